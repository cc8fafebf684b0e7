// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package dedicatedworker

import (
	"errors"
	"sync"
	"time"
)

// TimerRequest asks a [TimerScheduler] to deliver Event to a sink after
// Delay.
type TimerRequest struct {
	Event TimerEvent
	Delay time.Duration
}

// TimerSink receives fire notifications from a [TimerScheduler].
type TimerSink interface {
	// FireTimer is called, from any goroutine, once a scheduled timer
	// expires. Schedulers may deliver the same event more than once.
	FireTimer(event TimerEvent)
	// SchedulerClosed is called once, when the scheduler shuts down. No
	// further FireTimer calls will follow.
	SchedulerClosed()
}

// TimerScheduler is the timer service shared by workers. It is an external
// collaborator: a worker only ever talks to it via its relay.
type TimerScheduler interface {
	Attach(sink TimerSink) error
	Detach(sink TimerSink)
	Schedule(sink TimerSink, req TimerRequest) error
	Cancel(sink TimerSink, id TimerID)
}

var errSinkNotAttached = errors.New("dedicatedworker: timer sink not attached")

// Scheduler is an in-process [TimerScheduler], built on [time.AfterFunc].
// The zero value is not usable; see [NewScheduler].
type Scheduler struct {
	sinks  map[TimerSink]map[TimerID]*time.Timer
	mu     sync.Mutex
	closed bool
}

// NewScheduler returns a ready [Scheduler].
func NewScheduler() *Scheduler {
	return &Scheduler{sinks: make(map[TimerSink]map[TimerID]*time.Timer)}
}

// Attach registers sink. Attaching an already attached sink is a no-op.
func (s *Scheduler) Attach(sink TimerSink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSchedulerClosed
	}
	if _, ok := s.sinks[sink]; !ok {
		s.sinks[sink] = make(map[TimerID]*time.Timer)
	}
	return nil
}

// Detach stops every pending timer for sink, and unregisters it.
func (s *Scheduler) Detach(sink TimerSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.sinks[sink] {
		t.Stop()
	}
	delete(s.sinks, sink)
}

// Schedule arms a timer. Scheduling an ID that is already pending replaces
// the pending timer.
func (s *Scheduler) Schedule(sink TimerSink, req TimerRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSchedulerClosed
	}
	timers, ok := s.sinks[sink]
	if !ok {
		return errSinkNotAttached
	}
	if t := timers[req.Event.ID]; t != nil {
		t.Stop()
	}
	delay := max(req.Delay, 0)
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		s.mu.Lock()
		current := s.sinks[sink][req.Event.ID] == t
		if current {
			delete(s.sinks[sink], req.Event.ID)
		}
		s.mu.Unlock()
		if current {
			sink.FireTimer(req.Event)
		}
	})
	timers[req.Event.ID] = t
	return nil
}

// Cancel stops a pending timer. Unknown IDs are ignored.
func (s *Scheduler) Cancel(sink TimerSink, id TimerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.sinks[sink][id]; t != nil {
		t.Stop()
		delete(s.sinks[sink], id)
	}
}

// Pending returns the number of armed timers across all sinks.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for _, timers := range s.sinks {
		n += len(timers)
	}
	return n
}

// Close stops every timer and notifies every attached sink. Subsequent calls
// to Attach and Schedule fail with [ErrSchedulerClosed].
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSchedulerClosed
	}
	s.closed = true
	sinks := make([]TimerSink, 0, len(s.sinks))
	for sink, timers := range s.sinks {
		for _, t := range timers {
			t.Stop()
		}
		sinks = append(sinks, sink)
	}
	clear(s.sinks)
	s.mu.Unlock()

	for _, sink := range sinks {
		sink.SchedulerClosed()
	}
	return nil
}
