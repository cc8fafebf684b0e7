// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package dedicatedworker

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/joeycumines/logiface"
)

// InterruptAction is the answer to "should the running script stop?".
type InterruptAction uint8

const (
	InterruptContinue InterruptAction = iota
	InterruptAbort
)

// engine is the worker itself. Apart from closing and sender, which are
// shared with handles, every field is confined to the worker thread.
type engine struct {
	ctx        context.Context
	init       InitBundle
	owner      OwnerChannel
	debug      DebugHandler
	opts       *options
	logger     *logiface.Logger[logiface.Event]
	closing    *closingFlag
	relay      *timerRelay
	scope      *Scope
	console    *consoleCache
	throttle   *logThrottle
	metrics    *Metrics
	done       chan struct{}
	join       *Join
	cancel     context.CancelFunc
	threadName string
	instance   string
	sel        selector
	identity   identityCell
	addr       Address
	sender     *sender
	selfClosed bool
}

func (e *engine) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	pprof.SetGoroutineLabels(pprof.WithLabels(e.ctx, pprof.Labels("thread", e.threadName)))

	var reason error
	defer func() { e.shutdown(reason) }()
	reason = e.main()
}

func (e *engine) main() error {
	e.scope = newScope(e)
	go e.watchdog()

	e.logger.Debug().Log(`worker started`)

	res, err := e.load(e.init.SourceURL, e.destination())
	if err != nil {
		if e.closing.IsSet() && errors.Is(err, context.Canceled) {
			return nil
		}
		e.logger.Warning().
			Err(err).
			Str("url", e.init.SourceURL).
			Log(`failed to load worker script`)
		if perr := e.owner.PostOwnerTask(e.ctx, loadErrorTask(e.addr)); perr != nil {
			e.logger.Debug().Err(perr).Log(`dropped load error report`)
		}
		return &LoadError{URL: e.init.SourceURL, Cause: err}
	}
	e.scope.url = res.URL

	if e.closing.IsSet() {
		return nil
	}

	start := time.Now()
	func() {
		restore := e.identity.install(e.addr)
		defer restore()
		if _, err := e.scope.RunScript(res.URL, res.Body); err != nil {
			e.reportError(err)
		}
		e.metrics.microtasksRun(e.scope.performMicrotaskCheckpoint())
	}()
	e.logger.Debug().
		Dur("elapsed", time.Since(start)).
		Log(`initial script evaluated`)

	return e.loop()
}

// loop is the worker event loop. It returns nil if closed, else the fatal
// error that stopped it.
func (e *engine) loop() error {
	for {
		if e.closed() {
			return nil
		}

		env, err := e.sel.receiveNext()
		if err != nil {
			if errors.Is(err, errClosing) {
				return nil
			}
			return err
		}

		if e.closed() {
			// discarded
			return nil
		}

		start := time.Now()
		if err := e.handle(env); err != nil {
			return err
		}
		e.metrics.dispatched(env, time.Since(start))
	}
}

// selfClose stops the loop once the current envelope is handled. Unlike
// the closing flag, the running script is not interrupted.
func (e *engine) selfClose() {
	e.selfClosed = true
	if e.sender != nil {
		e.sender.rejecting.Store(true)
	}
}

func (e *engine) closed() bool {
	return e.selfClosed || e.closing.IsSet()
}

// handle dispatches a single envelope, then performs a microtask checkpoint,
// all under the target worker's identity.
func (e *engine) handle(env Envelope) error {
	target := env.Message.Target()
	if target == 0 {
		target = e.addr
	}
	restore := e.identity.install(target)
	defer restore()

	if err := e.dispatch(env); err != nil {
		return err
	}
	e.metrics.microtasksRun(e.scope.performMicrotaskCheckpoint())
	return nil
}

func (e *engine) dispatch(env Envelope) error {
	switch msg := env.Message.(type) {
	case *TaskMessage:
		if env.Lane != LaneInbox {
			return e.violation(env, "task outside the inbox")
		}
		if err := safeCall(func() error { return msg.Task(e.scope) }); err != nil {
			e.reportError(err)
		}

	case *DataMessage:
		if env.Lane != LaneInbox {
			return e.violation(env, "data outside the inbox")
		}
		e.scope.dispatchMessage(msg.Data)

	case *TimerMessage:
		if env.Lane != LaneTimer {
			return e.violation(env, "timer fire outside the timer lane")
		}
		if msg.Event.Source != TimerSourceWorker {
			return e.violation(env, fmt.Sprintf("timer fire from %s source", msg.Event.Source))
		}
		e.scope.fireTimer(msg.Event)

	case *DebugMessage:
		if env.Lane != LaneDebug {
			return e.violation(env, "debug control outside the debug lane")
		}
		if err := safeCall(func() error {
			e.handleDebug(msg.Control)
			return nil
		}); err != nil {
			e.reportError(err)
		}

	default:
		panic(fmt.Sprintf("dedicatedworker: unreachable: unexpected message type %T", env.Message))
	}
	return nil
}

func (e *engine) violation(env Envelope, msg string) error {
	err := &ProtocolViolationError{Lane: env.Lane, Message: msg}
	e.logger.Err().
		Err(err).
		Str("kind", env.Message.Kind().String()).
		Log(`protocol violation`)
	return err
}

func (e *engine) handleDebug(ctl DebugControl) {
	switch c := ctl.(type) {
	case *EvaluateScript:
		e.debug.EvaluateScript(e.scope, c)
	case *GetCachedMessages:
		e.debug.GetCachedMessages(e.scope, c)
	case *SetLiveNotifications:
		e.debug.SetLiveNotifications(e.scope, c)
	default:
		if e.throttle.allow(reflect.TypeOf(ctl)) {
			e.logger.Warning().
				Str("type", fmt.Sprintf("%T", ctl)).
				Log(`ignoring unrecognized debug control message`)
		}
	}
}

// interruptRequested is polled by the watchdog while the worker runs.
func (e *engine) interruptRequested() InterruptAction {
	if e.closing.IsSet() {
		return InterruptAbort
	}
	return InterruptContinue
}

// watchdog interrupts the running script, and cancels any in-flight load,
// once the worker starts closing.
func (e *engine) watchdog() {
	ticker := time.NewTicker(e.opts.interruptPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.done:
			return
		case <-e.closing.Done():
		case <-ticker.C:
		}
		if e.interruptRequested() == InterruptAbort {
			e.cancel()
			e.scope.vm.Interrupt(ErrInterrupted)
			return
		}
	}
}

func (e *engine) destination() string {
	if e.init.Destination != "" {
		return e.init.Destination
	}
	return "worker"
}

// load fetches a script via the configured loader.
func (e *engine) load(url, destination string) (*Resource, error) {
	res, err := e.init.Loader.Load(e.ctx, Request{
		URL:         url,
		Origin:      e.init.Origin,
		Destination: destination,
		Security:    e.init.Security,
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("dedicatedworker: loader returned no resource for %s", url)
	}
	if res.URL == "" {
		r := *res
		r.URL = url
		res = &r
	}
	return res, nil
}

// postToOwner sends a structured-clone payload to the worker object.
func (e *engine) postToOwner(data []byte) error {
	return e.owner.PostOwnerTask(e.ctx, messageTask(e.addr, data))
}

// shutdown releases everything the worker holds, then completes the join.
func (e *engine) shutdown(reason error) {
	close(e.done)
	e.cancel()

	if e.relay != nil {
		if e.scope != nil {
			e.scope.clearTimers()
		}
		e.init.Scheduler.Detach(e.relay)
		e.relay.close()
	}

	if e.opts.threadLimit != nil {
		e.opts.threadLimit.Release(1)
	}

	label := exitClosed
	switch {
	case reason == nil:
	case errors.Is(reason, ErrChannelClosed):
		label = exitChannelClosed
	case errors.Is(reason, ErrProtocolViolation):
		label = exitProtocol
	case errors.Is(reason, ErrLoadFailure):
		label = exitLoadFailed
	}
	e.metrics.exited(label)

	b := e.logger.Debug().Str("reason", label)
	if reason != nil {
		b = b.Err(reason)
	}
	b.Log(`worker stopped`)

	e.join.finish(reason)
}

// safeCall runs fn, converting a panic into a [*PanicError].
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return fn()
}
