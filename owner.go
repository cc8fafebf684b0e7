// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package dedicatedworker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	eventloop "github.com/joeycumines/go-eventloop"
	"github.com/joeycumines/logiface"
	"golang.org/x/sync/semaphore"
)

// ErrOwnerRunning is returned by [Owner.Run] if it is already running.
var ErrOwnerRunning = errors.New("dedicatedworker: owner is already running")

// OwnerContext is what an [OwnerTask] may access, on the owner's thread.
type OwnerContext interface {
	// Worker resolves addr to its public worker object, or nil if the
	// object no longer exists.
	Worker(addr Address) *Worker
	// ReportError passes rec to the top-level error reporter.
	ReportError(rec ErrorRecord)
}

// OwnerTask is a unit of work posted by a worker, to run on its owner's
// thread.
type OwnerTask func(oc OwnerContext)

// OwnerChannel accepts tasks for a worker's owner. PostOwnerTask is called
// from the worker thread, and must not run task synchronously. It may block,
// but must return once ctx is done, which happens when the worker starts
// closing.
type OwnerChannel interface {
	PostOwnerTask(ctx context.Context, task OwnerTask) error
}

// Owner is a minimal owner thread: a task queue, a registry of the worker
// objects it created, and a top-level error reporter. Tasks run on whichever
// goroutine calls [Owner.Run].
type Owner struct {
	logger       *logiface.Logger[logiface.Event]
	scheduler    TimerScheduler
	ownScheduler *Scheduler
	threads      *semaphore.Weighted
	registry     *registry
	metrics      *Metrics
	opts         *ownerOptions
	tasks        chan OwnerTask
	done         chan struct{}
	closeOnce    sync.Once
	running      atomic.Bool
}

// NewOwner returns a new [Owner]. Call [Owner.Run] to process tasks, and
// [Owner.Close] to release it.
func NewOwner(opts ...OwnerOption) (*Owner, error) {
	cfg, err := resolveOwnerOptions(opts)
	if err != nil {
		return nil, err
	}
	o := &Owner{
		logger:   cfg.logger,
		registry: newRegistry(),
		metrics:  cfg.metrics,
		opts:     cfg,
		tasks:    make(chan OwnerTask, cfg.taskCapacity),
		done:     make(chan struct{}),
	}
	if cfg.scheduler != nil {
		o.scheduler = cfg.scheduler
	} else {
		o.ownScheduler = NewScheduler()
		o.scheduler = o.ownScheduler
	}
	if cfg.threadLimit > 0 {
		o.threads = semaphore.NewWeighted(cfg.threadLimit)
	}
	return o, nil
}

// PostOwnerTask implements [OwnerChannel]. It blocks while the queue is
// full, until ctx is done or the owner is closed.
func (o *Owner) PostOwnerTask(ctx context.Context, task OwnerTask) error {
	if task == nil {
		panic("dedicatedworker: nil owner task")
	}
	select {
	case <-o.done:
		return ErrOwnerClosed
	default:
	}
	select {
	case o.tasks <- task:
		return nil
	case <-o.done:
		return ErrOwnerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes tasks until ctx is canceled, or the owner is closed. Tasks
// are received in batches: one blocking receive, then as many more as are
// immediately available.
func (o *Owner) Run(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return ErrOwnerRunning
	}
	defer o.running.Store(false)

	o.logger.Debug().Log(`owner started`)
	defer o.logger.Debug().Log(`owner stopped`)

	batch := make([]OwnerTask, 0, o.opts.batchSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.done:
			return nil
		case task := <-o.tasks:
			batch = append(batch[:0], task)
		}

	Drain:
		for len(batch) < cap(batch) {
			select {
			case task := <-o.tasks:
				batch = append(batch, task)
			default:
				break Drain
			}
		}

		for i, task := range batch {
			o.runTask(task)
			batch[i] = nil
		}

		o.registry.scavenge(len(batch))
	}
}

func (o *Owner) runTask(task OwnerTask) {
	o.metrics.ownerTask()
	if err := safeCall(func() error {
		task(o)
		return nil
	}); err != nil {
		o.logger.Err().
			Err(err).
			Log(`owner task panicked`)
	}
}

// Close terminates every live worker, stops accepting tasks, and closes the
// owner's own scheduler (if any). Pending tasks are discarded.
func (o *Owner) Close() error {
	err := ErrOwnerClosed
	o.closeOnce.Do(func() {
		err = nil
		close(o.done)
		for _, w := range o.registry.live() {
			// spawn still in progress if join is unset
			if w.join.Load() != nil {
				w.Terminate()
			}
		}
		if o.ownScheduler != nil {
			_ = o.ownScheduler.Close()
		}
	})
	return err
}

// Worker implements [OwnerContext].
func (o *Owner) Worker(addr Address) *Worker {
	return o.registry.lookup(addr)
}

// ReportError implements [OwnerContext].
func (o *Owner) ReportError(rec ErrorRecord) {
	if o.opts.reporter != nil {
		o.opts.reporter(rec)
		return
	}
	o.logger.Err().
		Str("message", rec.Message).
		Str("filename", rec.Filename).
		Uint64("line", uint64(rec.Line)).
		Uint64("column", uint64(rec.Column)).
		Log(`uncaught error in worker`)
}

// Scheduler returns the timer scheduler used for new workers.
func (o *Owner) Scheduler() TimerScheduler {
	return o.scheduler
}

// NewWorker registers a new worker object and spawns its thread. Unless set,
// init.Scheduler defaults to the owner's scheduler. The owner's thread limit
// applies. If the owner is closed concurrently, the returned worker is
// already terminated.
func (o *Owner) NewWorker(init InitBundle, opts ...Option) (*Worker, error) {
	select {
	case <-o.done:
		return nil, &SpawnError{Message: "owner closed", Cause: ErrOwnerClosed}
	default:
	}

	if init.Scheduler == nil {
		init.Scheduler = o.scheduler
	}

	w := &Worker{events: eventloop.NewEventTarget()}
	addr := o.registry.register(w)
	w.addr = addr

	all := make([]Option, 0, len(o.opts.workerOpts)+len(opts)+4)
	all = append(all, WithLogger(o.logger), WithMetrics(o.metrics))
	all = append(all, o.opts.workerOpts...)
	all = append(all, opts...)
	all = append(all, withAddress(addr))
	if o.threads != nil {
		all = append(all, WithThreadLimit(o.threads))
	}

	handle, join, err := Spawn(init, o, all...)
	if err != nil {
		o.registry.remove(addr)
		return nil, err
	}
	w.handle = handle
	w.join.Store(join)

	// Close skips workers that have no join yet
	select {
	case <-o.done:
		w.Terminate()
	default:
	}

	return w, nil
}

// Worker is the owner-side object for a worker. Events are dispatched on the
// owner's thread:
//
//   - "message": detail is the decoded value (see [DecodeValue])
//   - "messageerror": the payload could not be decoded
//   - "error": detail is an [*ErrorRecord], or nil if the script failed to
//     load; calling PreventDefault on a forwarded error suppresses the
//     top-level report
type Worker struct {
	events *eventloop.EventTarget
	handle *Handle
	join   atomic.Pointer[Join]
	addr   Address
}

// Address returns the worker's address.
func (w *Worker) Address() Address { return w.addr }

// Handle returns the owner's handle. It is not released by the worker
// object; callers may [Handle.Clone] it.
func (w *Worker) Handle() *Handle { return w.handle }

// AddEventListener registers fn for events of type typ.
func (w *Worker) AddEventListener(typ string, fn eventloop.EventListenerFunc) eventloop.ListenerID {
	return w.events.AddEventListener(typ, fn)
}

// RemoveEventListener removes a listener added via AddEventListener.
func (w *Worker) RemoveEventListener(typ string, id eventloop.ListenerID) bool {
	return w.events.RemoveEventListenerByID(typ, id)
}

// PostMessage clones v (see [EncodeValue]) and enqueues it for the worker.
func (w *Worker) PostMessage(ctx context.Context, v any) error {
	data, err := EncodeValue(v)
	if err != nil {
		return err
	}
	return w.handle.PostMessage(ctx, data)
}

// PostTask enqueues task, to run on the worker thread.
func (w *Worker) PostTask(ctx context.Context, task Task) error {
	return w.handle.PostTask(ctx, task)
}

// Terminate closes the worker, interrupting any running script.
func (w *Worker) Terminate() {
	w.handle.Close()
}

// Wait blocks until the worker thread has exited, see [Join.Wait].
func (w *Worker) Wait(ctx context.Context) error {
	return w.join.Load().Wait(ctx)
}

// Done is closed once the worker thread has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.join.Load().Done()
}

func (w *Worker) dispatch(event *eventloop.Event) bool {
	return w.events.DispatchEvent(event)
}

// errorTask dispatches a forwarded script error on the worker object, falling
// through to the top-level reporter unless canceled.
func errorTask(addr Address, rec ErrorRecord) OwnerTask {
	return func(oc OwnerContext) {
		report := true
		if w := oc.Worker(addr); w != nil {
			report = w.dispatch(eventloop.NewCustomEventWithOptions("error", &rec, false, true).EventPtr())
		}
		if report {
			oc.ReportError(rec)
		}
	}
}

// loadErrorTask dispatches the plain error event for a script that failed to
// load.
func loadErrorTask(addr Address) OwnerTask {
	return func(oc OwnerContext) {
		if w := oc.Worker(addr); w != nil {
			w.dispatch(eventloop.NewEvent("error"))
		}
	}
}

// messageTask dispatches a message from the worker on the worker object.
func messageTask(addr Address, data []byte) OwnerTask {
	return func(oc OwnerContext) {
		w := oc.Worker(addr)
		if w == nil {
			return
		}
		v, err := DecodeValue(data)
		if err != nil {
			w.dispatch(eventloop.NewCustomEvent("messageerror", err).EventPtr())
			return
		}
		w.dispatch(eventloop.NewCustomEvent("message", v).EventPtr())
	}
}
