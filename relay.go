// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package dedicatedworker

import (
	"sync"
)

const timerLaneCapacity = 16

// timerRelay adapts scheduler fire notifications into the worker's timer
// lane. Worker-sourced events are forwarded only if their Seq is armed, and
// each armed Seq is forwarded at most once. Events claiming any other source
// are passed through untouched, for the engine to reject.
type timerRelay struct {
	out      chan Message
	stop     <-chan struct{}
	armed    map[uint64]struct{}
	mu       sync.RWMutex
	armedMu  sync.Mutex
	addr     Address
	shut     bool
	stopOnce sync.Once
}

func newTimerRelay(addr Address, stop <-chan struct{}) *timerRelay {
	return &timerRelay{
		out:   make(chan Message, timerLaneCapacity),
		stop:  stop,
		armed: make(map[uint64]struct{}),
		addr:  addr,
	}
}

// lane is the receive side, consumed by the selector.
func (r *timerRelay) lane() <-chan Message {
	return r.out
}

// expect arms seq. Must be called before the matching request is scheduled.
func (r *timerRelay) expect(seq uint64) {
	r.armedMu.Lock()
	r.armed[seq] = struct{}{}
	r.armedMu.Unlock()
}

// forget disarms seq, e.g. after the timer is cleared.
func (r *timerRelay) forget(seq uint64) {
	r.armedMu.Lock()
	delete(r.armed, seq)
	r.armedMu.Unlock()
}

// FireTimer implements TimerSink.
func (r *timerRelay) FireTimer(event TimerEvent) {
	if event.Source == TimerSourceWorker {
		r.armedMu.Lock()
		_, ok := r.armed[event.Seq]
		delete(r.armed, event.Seq)
		r.armedMu.Unlock()
		if !ok {
			return
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.shut {
		return
	}
	select {
	case r.out <- &TimerMessage{Worker: r.addr, Event: event}:
	case <-r.stop:
	}
}

// SchedulerClosed implements TimerSink, closing the timer lane.
func (r *timerRelay) SchedulerClosed() {
	r.close()
}

func (r *timerRelay) close() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.shut = true
		close(r.out)
		r.mu.Unlock()
	})
}
