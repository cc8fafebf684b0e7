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
)

// DebugHandler handles recognized debug-control messages. Methods are called
// on the worker thread, with the worker identity installed, and are
// responsible for replying on the message's reply channel (if any).
type DebugHandler interface {
	EvaluateScript(scope *Scope, msg *EvaluateScript)
	GetCachedMessages(scope *Scope, msg *GetCachedMessages)
	SetLiveNotifications(scope *Scope, msg *SetLiveNotifications)
}

// consoleCache bounds the retained console and page-error messages, and
// implements the goja_nodejs console printer.
type consoleCache struct {
	notify   func(CachedMessage)
	messages []CachedMessage
	limit    int
	live     bool
}

func newConsoleCache(limit int, notify func(CachedMessage)) *consoleCache {
	return &consoleCache{limit: limit, notify: notify}
}

func (c *consoleCache) add(msg CachedMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if len(c.messages) >= c.limit {
		n := copy(c.messages, c.messages[1:])
		c.messages = c.messages[:n]
	}
	c.messages = append(c.messages, msg)
	if c.live && c.notify != nil && msg.Type == CachedConsoleAPI {
		c.notify(msg)
	}
}

func (c *consoleCache) console(level, s string) {
	c.add(CachedMessage{Type: CachedConsoleAPI, Level: level, Message: s})
}

// Log implements console.Printer.
func (c *consoleCache) Log(s string) { c.console("log", s) }

// Warn implements console.Printer.
func (c *consoleCache) Warn(s string) { c.console("warn", s) }

// Error implements console.Printer.
func (c *consoleCache) Error(s string) { c.console("error", s) }

func (c *consoleCache) pageError(rec ErrorRecord) {
	c.add(CachedMessage{
		Type:     CachedPageError,
		Level:    "error",
		Message:  rec.Message,
		Filename: rec.Filename,
		Line:     rec.Line,
		Column:   rec.Column,
	})
}

func (c *consoleCache) filter(types CachedMessageTypes) []CachedMessage {
	out := make([]CachedMessage, 0, len(c.messages))
	for _, msg := range c.messages {
		if msg.Type&types != 0 {
			out = append(out, msg)
		}
	}
	return out
}

// consoleDevtools is the default [DebugHandler].
type consoleDevtools struct {
	cache *consoleCache
}

func (d *consoleDevtools) EvaluateScript(scope *Scope, msg *EvaluateScript) {
	res := evaluate(scope.vm, msg.Source)
	if msg.Reply != nil {
		sendReply(scope, msg.Reply, res)
	}
}

func (d *consoleDevtools) GetCachedMessages(scope *Scope, msg *GetCachedMessages) {
	res := d.cache.filter(msg.Types)
	if msg.Reply != nil {
		sendReply(scope, msg.Reply, res)
	}
}

func (d *consoleDevtools) SetLiveNotifications(_ *Scope, msg *SetLiveNotifications) {
	d.cache.live = msg.Enabled
}

// sendReply delivers v on ch, giving up if the worker starts closing.
func sendReply[T any](scope *Scope, ch chan<- T, v T) {
	select {
	case ch <- v:
	case <-scope.engine.closing.Done():
	}
}

func evaluate(vm *goja.Runtime, src string) EvaluateResult {
	v, err := vm.RunScript("debugger eval code", src)
	if err != nil {
		var exc *goja.Exception
		if errors.As(err, &exc) {
			return EvaluateResult{Kind: EvaluateException, String: exceptionMessage(exc)}
		}
		return EvaluateResult{Kind: EvaluateException, String: err.Error()}
	}
	switch {
	case v == nil || goja.IsUndefined(v):
		return EvaluateResult{Kind: EvaluateVoid}
	case goja.IsNull(v):
		return EvaluateResult{Kind: EvaluateNull, String: "null"}
	}
	if obj, ok := v.(*goja.Object); ok {
		return EvaluateResult{Kind: EvaluateObject, Class: obj.ClassName(), String: v.String()}
	}
	switch x := v.Export().(type) {
	case bool:
		return EvaluateResult{Kind: EvaluateBoolean, Bool: x, String: v.String()}
	case int64:
		return EvaluateResult{Kind: EvaluateNumber, Number: float64(x), String: v.String()}
	case float64:
		return EvaluateResult{Kind: EvaluateNumber, Number: x, String: v.String()}
	case string:
		return EvaluateResult{Kind: EvaluateString, String: x}
	default:
		return EvaluateResult{Kind: EvaluateObject, String: v.String()}
	}
}
