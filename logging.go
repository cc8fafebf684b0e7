// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package dedicatedworker

import (
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// unknownDebugRates limits how often an unrecognized debug-control variant is
// logged, per concrete type.
var unknownDebugRates = map[time.Duration]int{
	time.Second: 1,
	time.Minute: 10,
	time.Hour:   60,
}

// workerLogger derives the per-worker sub-logger. Returns nil if parent is
// nil or disabled.
func workerLogger(parent *logiface.Logger[logiface.Event], name, instance string, addr Address) *logiface.Logger[logiface.Event] {
	return parent.Clone().
		Str("worker", name).
		Str("instance", instance).
		Uint64("address", uint64(addr)).
		Logger()
}

// logThrottle wraps a category rate limiter, for log lines that may be
// triggered by a misbehaving peer.
type logThrottle struct {
	limiter *catrate.Limiter
}

func newLogThrottle(rates map[time.Duration]int) *logThrottle {
	return &logThrottle{limiter: catrate.NewLimiter(rates)}
}

// allow reports whether a line for category should be emitted now.
func (x *logThrottle) allow(category any) bool {
	if x == nil {
		return true
	}
	_, ok := x.limiter.Allow(category)
	return ok
}
