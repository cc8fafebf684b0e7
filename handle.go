// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package dedicatedworker

import (
	"context"
	"sync"
	"sync/atomic"
)

// sender is shared by every clone of a [Handle]. The inbox is closed once the
// last live clone is released.
type sender struct {
	inbox chan Message
	done  <-chan struct{}
	mu    sync.RWMutex
	live  int64
	shut  bool
	// rejecting is set once the worker closes itself, as nothing posted
	// after that point will run.
	rejecting atomic.Bool
}

// Handle is the owner's capability to talk to a worker: post tasks and data
// into its inbox, and request that it close. It carries no execution state.
//
// Each Handle returned by [Handle.Clone] must be released exactly once, via
// [Handle.Release]. When every clone has been released, the worker observes
// [ErrChannelClosed] (assuming no other lane is open).
type Handle struct {
	s        *sender
	closing  *closingFlag
	addr     Address
	released atomic.Bool
}

func newHandle(addr Address, capacity int, closing *closingFlag, done <-chan struct{}) (*Handle, <-chan Message) {
	s := &sender{
		inbox: make(chan Message, capacity),
		done:  done,
		live:  1,
	}
	return &Handle{s: s, closing: closing, addr: addr}, s.inbox
}

// Address returns the address of the worker.
func (h *Handle) Address() Address {
	return h.addr
}

// Clone returns a new live handle to the same worker. It returns nil if h has
// already been released.
func (h *Handle) Clone() *Handle {
	if h.released.Load() {
		return nil
	}
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if h.s.shut {
		return nil
	}
	h.s.live++
	return &Handle{s: h.s, closing: h.closing, addr: h.addr}
}

// Release drops this clone. Subsequent posts via h fail with
// [ErrWorkerClosed]. Releasing more than once is a no-op.
func (h *Handle) Release() {
	if !h.released.CompareAndSwap(false, true) {
		return
	}
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	h.s.live--
	if h.s.live == 0 && !h.s.shut {
		h.s.shut = true
		close(h.s.inbox)
	}
}

// Close requests that the worker stop. It does not block and there is no
// acknowledgement; use [Join] to wait for the worker to exit. The running
// script, if any, is interrupted.
func (h *Handle) Close() {
	h.closing.Set()
}

// PostTask enqueues a task, to run on the worker thread.
func (h *Handle) PostTask(ctx context.Context, task Task) error {
	if task == nil {
		panic("dedicatedworker: nil task")
	}
	return h.Post(ctx, &TaskMessage{Worker: h.addr, Task: task})
}

// PostMessage enqueues structured-clone encoded data (see [EncodeValue]),
// dispatched as a message event within the worker.
func (h *Handle) PostMessage(ctx context.Context, data []byte) error {
	return h.Post(ctx, &DataMessage{Worker: h.addr, Data: data})
}

// Post enqueues msg into the inbox, blocking while the inbox is full. The
// inbox accepts [*TaskMessage] and [*DataMessage]; any other variant is
// treated by the worker as a protocol violation.
func (h *Handle) Post(ctx context.Context, msg Message) error {
	if msg == nil {
		panic("dedicatedworker: nil message")
	}
	if h.released.Load() || h.closing.IsSet() || h.s.rejecting.Load() {
		return ErrWorkerClosed
	}

	h.s.mu.RLock()
	defer h.s.mu.RUnlock()
	if h.s.shut {
		return ErrWorkerClosed
	}

	select {
	case h.s.inbox <- msg:
		return nil
	case <-h.s.done:
		return ErrWorkerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
