// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package dedicatedworker

import (
	"context"
	"sync"
	"testing"
	"time"

	eventloop "github.com/joeycumines/go-eventloop"
	"github.com/stretchr/testify/require"
)

const testTimeout = 5 * time.Second

// newTestOwner returns an owner, closed on cleanup. Tasks queue until
// runOwner, so listeners attached before then observe every event.
func newTestOwner(t *testing.T, opts ...OwnerOption) *Owner {
	t.Helper()
	o, err := NewOwner(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Close() })
	return o
}

// runOwner processes o's tasks until cleanup.
func runOwner(t *testing.T, o *Owner) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = o.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

// startWorker spawns main.js from scripts, terminating it on cleanup.
func startWorker(t *testing.T, o *Owner, scripts MapLoader, opts ...Option) *Worker {
	t.Helper()
	w, err := o.NewWorker(InitBundle{Loader: scripts, SourceURL: "main.js"}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		w.Terminate()
		_ = w.Wait(context.Background())
	})
	return w
}

// collect records the detail of every event of type typ.
func collect(w *Worker, typ string) <-chan any {
	ch := make(chan any, 64)
	w.AddEventListener(typ, func(e *eventloop.Event) {
		ch <- e.Detail()
	})
	return ch
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for value")
		panic("unreachable")
	}
}

func requireNothing[T any](t *testing.T, ch <-chan T, d time.Duration) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected value: %v", v)
	case <-time.After(d):
	}
}

// flushOwner waits until every task already queued on o has run.
func flushOwner(t *testing.T, o *Owner) {
	t.Helper()
	done := make(chan struct{})
	require.NoError(t, o.PostOwnerTask(context.Background(), func(OwnerContext) { close(done) }))
	receive(t, (<-chan struct{})(done))
}

func waitWorker(t *testing.T, w interface{ Wait(context.Context) error }) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	err := w.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "worker did not exit")
	return err
}

// fakeOwner is an [OwnerChannel] and [OwnerContext] that runs nothing
// automatically. Tasks can be run via runAll.
type fakeOwner struct {
	tasks   chan OwnerTask
	mu      sync.Mutex
	reports []ErrorRecord
	workers map[Address]*Worker
}

func newFakeOwner() *fakeOwner {
	return &fakeOwner{tasks: make(chan OwnerTask, 256), workers: make(map[Address]*Worker)}
}

func (o *fakeOwner) PostOwnerTask(ctx context.Context, task OwnerTask) error {
	select {
	case o.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *fakeOwner) Worker(addr Address) *Worker {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.workers[addr]
}

func (o *fakeOwner) ReportError(rec ErrorRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reports = append(o.reports, rec)
}

func (o *fakeOwner) runAll() int {
	var n int
	for {
		select {
		case task := <-o.tasks:
			task(o)
			n++
		default:
			return n
		}
	}
}

// fakeScheduler captures the attached sink, so tests can inject fires.
type fakeScheduler struct {
	mu        sync.Mutex
	sink      TimerSink
	scheduled []TimerRequest
	attachErr error
}

func (s *fakeScheduler) Attach(sink TimerSink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attachErr != nil {
		return s.attachErr
	}
	s.sink = sink
	return nil
}

func (s *fakeScheduler) Detach(TimerSink) {}

func (s *fakeScheduler) Schedule(_ TimerSink, req TimerRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = append(s.scheduled, req)
	return nil
}

func (s *fakeScheduler) Cancel(TimerSink, TimerID) {}

func (s *fakeScheduler) attached() TimerSink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sink
}

func (s *fakeScheduler) requests() []TimerRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TimerRequest(nil), s.scheduled...)
}
