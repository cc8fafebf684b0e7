// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package dedicatedworker

import (
	"errors"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
	eventloop "github.com/joeycumines/go-eventloop"

	"github.com/joeycumines/go-dedicatedworker/internal/structuredclone"
)

// Scope is the worker global scope: the script runtime, and everything bound
// into it. It must only be used on the worker thread, e.g. from a [Task].
type Scope struct {
	engine     *engine
	vm         *goja.Runtime
	global     *goja.Object
	events     *eventloop.EventTarget
	listeners  map[string][]scopeListener
	microtasks microtaskQueue
	timers     map[TimerID]*timerEntry
	url        string
	nextTimer  TimerID
	nextSeq    uint64
}

type scopeListener struct {
	fn goja.Value
	id eventloop.ListenerID
}

type timerEntry struct {
	callback goja.Callable
	args     []goja.Value
	delay    time.Duration
	seq      uint64
	repeat   bool
}

func newScope(e *engine) *Scope {
	s := &Scope{
		engine:    e,
		vm:        goja.New(),
		events:    eventloop.NewEventTarget(),
		listeners: make(map[string][]scopeListener),
		timers:    make(map[TimerID]*timerEntry),
		url:       e.init.SourceURL,
	}
	s.global = s.vm.GlobalObject()

	registry := require.NewRegistry()
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(e.console))
	registry.Enable(s.vm)
	console.Enable(s.vm)

	s.bind()
	return s
}

func (s *Scope) bind() {
	set := func(name string, value any) {
		if err := s.global.Set(name, value); err != nil {
			panic(err)
		}
	}
	set("self", s.global)
	set("name", s.engine.init.Name)
	set("onmessage", goja.Null())
	set("onmessageerror", goja.Null())
	set("postMessage", s.jsPostMessage)
	set("close", s.jsClose)
	set("addEventListener", s.jsAddEventListener)
	set("removeEventListener", s.jsRemoveEventListener)
	set("setTimeout", s.jsSetTimeout)
	set("clearTimeout", s.jsClearTimer)
	set("setInterval", s.jsSetInterval)
	set("clearInterval", s.jsClearTimer)
	set("queueMicrotask", s.jsQueueMicrotask)
	set("structuredClone", s.jsStructuredClone)
	set("importScripts", s.jsImportScripts)
}

// Runtime returns the underlying script runtime.
func (s *Scope) Runtime() *goja.Runtime { return s.vm }

// Address returns the worker address.
func (s *Scope) Address() Address { return s.engine.addr }

// Name returns the worker name, as exposed to scripts.
func (s *Scope) Name() string { return s.engine.init.Name }

// URL returns the final URL of the worker script.
func (s *Scope) URL() string { return s.url }

// RunScript evaluates src in the worker global scope.
func (s *Scope) RunScript(name, src string) (goja.Value, error) {
	return s.vm.RunScript(name, src)
}

// QueueMicrotask enqueues fn to run at the next microtask checkpoint.
func (s *Scope) QueueMicrotask(fn func()) {
	if fn == nil {
		panic("dedicatedworker: nil microtask")
	}
	s.microtasks.push(fn)
}

// PostMessage clones v and posts it to the owner, where it is dispatched as
// a message event on the worker object.
func (s *Scope) PostMessage(v goja.Value) error {
	data, err := structuredclone.Write(s.vm, v)
	if err != nil {
		return err
	}
	return s.engine.postToOwner(data)
}

// Close requests that the worker stop, once the current task and its
// microtasks complete. Unlike [Handle.Close], the running script is not
// interrupted.
func (s *Scope) Close() {
	s.engine.selfClose()
}

// performMicrotaskCheckpoint drains the microtask queue, including any
// microtasks queued while draining. It stops early once closing.
func (s *Scope) performMicrotaskCheckpoint() (n int) {
	for s.microtasks.len() > 0 {
		if s.engine.closing.IsSet() {
			return n
		}
		fn := s.microtasks.pop()
		if fn == nil {
			continue
		}
		n++
		fn()
	}
	return n
}

// dispatchMessage decodes data and dispatches a message event, or a
// messageerror event if it could not be decoded.
func (s *Scope) dispatchMessage(data []byte) {
	typ := "message"
	value, err := structuredclone.Read(s.vm, data)
	if err != nil {
		s.engine.logger.Debug().
			Err(err).
			Log(`failed to deserialize inbound message`)
		typ = "messageerror"
		value = goja.Null()
	}
	event := s.vm.NewObject()
	_ = event.Set("type", typ)
	_ = event.Set("data", value)
	_ = event.Set("target", s.global)
	_ = event.Set("currentTarget", s.global)
	s.dispatchEvent(typ, event)
}

// dispatchEvent calls the on<type> handler attribute, then every listener
// registered for typ, in registration order.
func (s *Scope) dispatchEvent(typ string, event goja.Value) {
	if handler, ok := goja.AssertFunction(s.global.Get("on" + typ)); ok {
		if _, err := handler(s.global, event); err != nil {
			if isInterrupted(err) {
				return
			}
			s.engine.reportError(err)
		}
	}
	s.events.DispatchEvent(eventloop.NewCustomEvent(typ, event).EventPtr())
}

func (s *Scope) invoker(fn goja.Callable) eventloop.EventListenerFunc {
	return func(ev *eventloop.Event) {
		arg, _ := ev.Detail().(goja.Value)
		if _, err := fn(s.global, arg); err != nil {
			if isInterrupted(err) {
				ev.StopImmediatePropagation()
				return
			}
			s.engine.reportError(err)
		}
	}
}

func (s *Scope) jsAddEventListener(call goja.FunctionCall) goja.Value {
	typ := call.Argument(0).String()
	fnValue := call.Argument(1)
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		// non-callable listeners are ignored, like a null listener
		return goja.Undefined()
	}
	for _, l := range s.listeners[typ] {
		if l.fn.SameAs(fnValue) {
			return goja.Undefined()
		}
	}

	var once bool
	if opts, ok := call.Argument(2).(*goja.Object); ok {
		once = opts.Get("once") != nil && opts.Get("once").ToBoolean()
	}

	var id eventloop.ListenerID
	listener := s.invoker(fn)
	if once {
		inner := listener
		listener = func(ev *eventloop.Event) {
			s.forgetListener(typ, id)
			inner(ev)
		}
		id = s.events.AddEventListenerOnce(typ, listener)
	} else {
		id = s.events.AddEventListener(typ, listener)
	}
	s.listeners[typ] = append(s.listeners[typ], scopeListener{fn: fnValue, id: id})
	return goja.Undefined()
}

func (s *Scope) jsRemoveEventListener(call goja.FunctionCall) goja.Value {
	typ := call.Argument(0).String()
	fnValue := call.Argument(1)
	for _, l := range s.listeners[typ] {
		if l.fn.SameAs(fnValue) {
			s.events.RemoveEventListenerByID(typ, l.id)
			s.forgetListener(typ, l.id)
			break
		}
	}
	return goja.Undefined()
}

func (s *Scope) forgetListener(typ string, id eventloop.ListenerID) {
	entries := s.listeners[typ]
	for i, l := range entries {
		if l.id == id {
			s.listeners[typ] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

func (s *Scope) jsPostMessage(call goja.FunctionCall) goja.Value {
	data, err := structuredclone.Write(s.vm, call.Argument(0))
	if err != nil {
		panic(s.vm.NewGoError(err))
	}
	if err := s.engine.postToOwner(data); err != nil {
		s.engine.logger.Debug().
			Err(err).
			Log(`dropped message to owner`)
	}
	return goja.Undefined()
}

func (s *Scope) jsClose(goja.FunctionCall) goja.Value {
	s.Close()
	return goja.Undefined()
}

func (s *Scope) jsQueueMicrotask(call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(s.vm.NewTypeError("queueMicrotask requires a function as first argument"))
	}
	s.microtasks.push(func() {
		if _, err := fn(goja.Undefined()); err != nil && !isInterrupted(err) {
			s.engine.reportError(err)
		}
	})
	return goja.Undefined()
}

func (s *Scope) jsStructuredClone(call goja.FunctionCall) goja.Value {
	v, err := structuredclone.Clone(s.vm, call.Argument(0))
	if err != nil {
		panic(s.vm.NewGoError(err))
	}
	return v
}

func (s *Scope) jsImportScripts(call goja.FunctionCall) goja.Value {
	for _, arg := range call.Arguments {
		target := resolveURL(s.url, arg.String())
		res, err := s.engine.load(target, "script")
		if err != nil {
			panic(s.vm.NewGoError(&LoadError{URL: target, Cause: err}))
		}
		if _, err := s.vm.RunScript(res.URL, res.Body); err != nil {
			var exc *goja.Exception
			if errors.As(err, &exc) {
				panic(exc)
			}
			if isInterrupted(err) {
				// re-arm, so the calling script aborts too
				s.vm.Interrupt(ErrInterrupted)
				return goja.Undefined()
			}
			panic(s.vm.NewGoError(err))
		}
	}
	return goja.Undefined()
}

func (s *Scope) jsSetTimeout(call goja.FunctionCall) goja.Value {
	return s.setTimer(call, false, "setTimeout")
}

func (s *Scope) jsSetInterval(call goja.FunctionCall) goja.Value {
	return s.setTimer(call, true, "setInterval")
}

func (s *Scope) setTimer(call goja.FunctionCall, repeat bool, method string) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(s.vm.NewTypeError(method + " requires a function as first argument"))
	}
	if s.engine.relay == nil {
		panic(s.vm.NewGoError(ErrTimersUnavailable))
	}

	delay := time.Duration(max(call.Argument(1).ToInteger(), 0)) * time.Millisecond
	var args []goja.Value
	if len(call.Arguments) > 2 {
		args = append(args, call.Arguments[2:]...)
	}

	s.nextTimer++
	id := s.nextTimer
	entry := &timerEntry{callback: fn, args: args, delay: delay, repeat: repeat}
	if err := s.arm(id, entry); err != nil {
		panic(s.vm.NewGoError(err))
	}
	s.timers[id] = entry
	return s.vm.ToValue(uint32(id))
}

// arm schedules entry with a fresh sequence number.
func (s *Scope) arm(id TimerID, entry *timerEntry) error {
	s.nextSeq++
	entry.seq = s.nextSeq
	s.engine.relay.expect(entry.seq)
	err := s.engine.init.Scheduler.Schedule(s.engine.relay, TimerRequest{
		Event: TimerEvent{Source: TimerSourceWorker, ID: id, Seq: entry.seq},
		Delay: entry.delay,
	})
	if err != nil {
		s.engine.relay.forget(entry.seq)
	}
	return err
}

func (s *Scope) jsClearTimer(call goja.FunctionCall) goja.Value {
	id := TimerID(call.Argument(0).ToInteger())
	if entry, ok := s.timers[id]; ok {
		delete(s.timers, id)
		s.engine.relay.forget(entry.seq)
		s.engine.init.Scheduler.Cancel(s.engine.relay, id)
	}
	return goja.Undefined()
}

// fireTimer runs the callback for a worker timer. Fires for cleared timers,
// or for a previous arming of an interval, are ignored.
func (s *Scope) fireTimer(event TimerEvent) {
	entry, ok := s.timers[event.ID]
	if !ok || entry.seq != event.Seq {
		return
	}
	if !entry.repeat {
		delete(s.timers, event.ID)
	}

	_, err := entry.callback(goja.Undefined(), entry.args...)

	if entry.repeat && s.timers[event.ID] == entry {
		if err := s.arm(event.ID, entry); err != nil {
			delete(s.timers, event.ID)
			s.engine.logger.Warning().
				Err(err).
				Uint64("timer", uint64(event.ID)).
				Log(`failed to re-arm interval`)
		}
	}

	if err != nil && !isInterrupted(err) {
		s.engine.reportError(err)
	}
}

// clearTimers cancels every pending timer, on shutdown.
func (s *Scope) clearTimers() {
	for id, entry := range s.timers {
		s.engine.relay.forget(entry.seq)
		s.engine.init.Scheduler.Cancel(s.engine.relay, id)
	}
	clear(s.timers)
}

func isInterrupted(err error) bool {
	var ie *goja.InterruptedError
	return errors.As(err, &ie) || errors.Is(err, ErrInterrupted)
}
