// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package dedicatedworker

import (
	"sync/atomic"
)

// closingFlag is the only engine state written from other goroutines. It is
// monotonic: once set it never clears.
type closingFlag struct {
	signal chan struct{}
	set    atomic.Bool
}

func newClosingFlag() *closingFlag {
	return &closingFlag{signal: make(chan struct{})}
}

// Set marks the flag, returning true if this call performed the transition.
// Safe to call from any goroutine.
func (f *closingFlag) Set() bool {
	if f.set.CompareAndSwap(false, true) {
		close(f.signal)
		return true
	}
	return false
}

// IsSet reports whether Set has been called.
func (f *closingFlag) IsSet() bool {
	return f.set.Load()
}

// Done is closed once the flag is set.
func (f *closingFlag) Done() <-chan struct{} {
	return f.signal
}
