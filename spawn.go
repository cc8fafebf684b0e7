// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package dedicatedworker

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Security carries the fetch and debugging policy a worker inherits from its
// owner.
type Security struct {
	Credentials    string
	Referrer       string
	ReferrerPolicy string
	PipelineID     PipelineID
}

// InitBundle holds everything needed to start a worker.
type InitBundle struct {
	// Loader fetches the worker script, and any imported scripts. Required.
	Loader Loader
	// Scheduler services setTimeout and setInterval. If nil, the timer lane
	// is closed from the start, and the timer globals throw.
	Scheduler TimerScheduler
	// Debug is the debug-control source. If nil, the debug lane is closed
	// from the start.
	Debug <-chan DebugControl
	// SourceURL is the worker script URL. Required.
	SourceURL string
	// Origin is passed through to the loader.
	Origin string
	// Destination is passed through to the loader, defaulting to "worker".
	Destination string
	// Name is exposed to the script as the name global.
	Name     string
	Security Security
}

// Join observes the exit of a worker.
type Join struct {
	done chan struct{}
	err  error
	once sync.Once
}

func newJoin() *Join {
	return &Join{done: make(chan struct{})}
}

func (j *Join) finish(err error) {
	j.once.Do(func() {
		j.err = err
		close(j.done)
	})
}

// Done is closed once the worker has exited and released its resources.
func (j *Join) Done() <-chan struct{} {
	return j.done
}

// Err returns the exit reason, once Done is closed. See [Join.Wait].
func (j *Join) Err() error {
	select {
	case <-j.done:
		return j.err
	default:
		return nil
	}
}

// Wait blocks until the worker has exited, returning the reason: nil if it
// was closed, [ErrChannelClosed] if every lane closed, a
// [*ProtocolViolationError], or a [*LoadError]. If ctx is canceled first, its
// error is returned.
func (j *Join) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Spawn starts a worker on a new thread, returning the owner's handle to it.
//
// The returned error, if any, is a [*SpawnError], and indicates the worker
// never started. All other failures, including failure to load the script,
// are reported asynchronously: via owner, and via [Join.Wait].
func Spawn(init InitBundle, owner OwnerChannel, opts ...Option) (*Handle, *Join, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, nil, &SpawnError{Message: "invalid option", Cause: err}
	}
	switch {
	case owner == nil:
		return nil, nil, &SpawnError{Message: "nil owner channel"}
	case init.Loader == nil:
		return nil, nil, &SpawnError{Message: "nil loader"}
	case init.SourceURL == "":
		return nil, nil, &SpawnError{Message: "empty source url"}
	}

	if cfg.threadLimit != nil && !cfg.threadLimit.TryAcquire(1) {
		return nil, nil, &SpawnError{Message: "thread limit reached"}
	}

	addr := cfg.address
	if addr == 0 {
		addr = nextAddress()
	}

	e := &engine{
		init:       init,
		owner:      owner,
		opts:       cfg,
		closing:    newClosingFlag(),
		done:       make(chan struct{}),
		join:       newJoin(),
		metrics:    cfg.metrics,
		addr:       addr,
		threadName: "WebWorker for " + init.SourceURL,
		instance:   uuid.NewString(),
		throttle:   newLogThrottle(unknownDebugRates),
	}
	e.logger = workerLogger(cfg.logger, e.threadName, e.instance, addr)
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.console = newConsoleCache(cfg.consoleCacheSize, cfg.debugNotifier)
	e.console.live = cfg.liveNotifications
	if cfg.debugHandler != nil {
		e.debug = cfg.debugHandler
	} else {
		e.debug = &consoleDevtools{cache: e.console}
	}

	handle, inbox := newHandle(addr, cfg.inboxCapacity, e.closing, e.done)
	e.sender = handle.s

	var timerLane <-chan Message
	if init.Scheduler != nil {
		e.relay = newTimerRelay(addr, e.done)
		if err := init.Scheduler.Attach(e.relay); err != nil {
			e.cancel()
			if cfg.threadLimit != nil {
				cfg.threadLimit.Release(1)
			}
			return nil, nil, &SpawnError{Message: "timer scheduler refused worker", Cause: err}
		}
		timerLane = e.relay.lane()
	}

	e.sel = selector{
		inbox:    inbox,
		timer:    timerLane,
		debug:    init.Debug,
		closing:  e.closing.Done(),
		priority: cfg.priority,
		addr:     addr,
		policy:   cfg.selectPolicy,
	}

	e.metrics.started()
	go e.run()

	return handle, e.join, nil
}
