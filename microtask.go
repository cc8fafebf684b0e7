// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package dedicatedworker

// microtaskQueue is a FIFO of microtasks. It is confined to the worker
// thread, and so is unsynchronized.
type microtaskQueue struct {
	items []func()
	head  int
}

func (q *microtaskQueue) push(fn func()) {
	q.items = append(q.items, fn)
}

// pop returns the oldest microtask, or nil if empty.
func (q *microtaskQueue) pop() func() {
	if q.head == len(q.items) {
		return nil
	}
	fn := q.items[q.head]
	q.items[q.head] = nil
	q.head++
	if q.head == len(q.items) {
		// drained, so reuse the backing array
		q.items = q.items[:0]
		q.head = 0
	}
	return fn
}

func (q *microtaskQueue) len() int {
	return len(q.items) - q.head
}
