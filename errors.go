// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package dedicatedworker

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrChannelClosed is returned by the message selector (and surfaces via
	// [Join.Wait]) when every sender into every lane has been dropped. It is
	// fatal to the worker loop.
	ErrChannelClosed = errors.New("dedicatedworker: all channels closed")

	// ErrLoadFailure is the sentinel matched by [LoadError].
	ErrLoadFailure = errors.New("dedicatedworker: script load failed")

	// ErrSpawnFailure is the sentinel matched by [SpawnError].
	ErrSpawnFailure = errors.New("dedicatedworker: spawn failed")

	// ErrProtocolViolation is the sentinel matched by [ProtocolViolationError].
	ErrProtocolViolation = errors.New("dedicatedworker: protocol violation")

	// ErrWorkerClosed is returned when posting to a worker that has exited, or
	// via a [Handle] that has been released.
	ErrWorkerClosed = errors.New("dedicatedworker: worker is closed")

	// ErrOwnerClosed is returned by [Owner.PostOwnerTask] after [Owner.Close].
	ErrOwnerClosed = errors.New("dedicatedworker: owner is closed")

	// ErrInterrupted is the value used to interrupt a running script, once the
	// worker starts closing.
	ErrInterrupted = errors.New("dedicatedworker: script interrupted")

	// ErrSchedulerClosed is returned by [Scheduler] methods after Close.
	ErrSchedulerClosed = errors.New("dedicatedworker: scheduler is closed")

	// ErrTimersUnavailable is thrown (as a JS error) by the timer globals of a
	// worker spawned without a [TimerScheduler].
	ErrTimersUnavailable = errors.New("dedicatedworker: timers unavailable")

	// errClosing is used internally by the selector, to indicate the closing
	// signal fired while waiting.
	errClosing = errors.New("dedicatedworker: closing")
)

// ErrorRecord describes an uncaught script error, as forwarded to the owner.
type ErrorRecord struct {
	Message  string
	Filename string
	Line     uint32
	Column   uint32
}

// String formats the record like a console error line.
func (r ErrorRecord) String() string {
	if r.Filename == "" {
		return r.Message
	}
	return fmt.Sprintf("%s (%s:%d:%d)", r.Message, r.Filename, r.Line, r.Column)
}

// ScriptError is an uncaught error raised while handling a single message.
// It is isolated to that message: the worker loop continues.
type ScriptError struct {
	Cause  error
	Record ErrorRecord
}

// Error implements the error interface.
func (e *ScriptError) Error() string {
	return "dedicatedworker: uncaught script error: " + e.Record.String()
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *ScriptError) Unwrap() error {
	return e.Cause
}

// LoadError indicates the worker script body could not be fetched. The loop
// never starts.
type LoadError struct {
	Cause error
	URL   string
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("dedicatedworker: error loading script %s", e.URL)
	}
	return fmt.Sprintf("dedicatedworker: error loading script %s: %v", e.URL, e.Cause)
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Is matches [ErrLoadFailure].
func (e *LoadError) Is(target error) bool {
	return target == ErrLoadFailure
}

// SpawnError is returned synchronously by [Spawn] when the worker thread could
// not be started. It is never communicated via a message.
type SpawnError struct {
	Cause   error
	Message string
}

// Error implements the error interface.
func (e *SpawnError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "spawn failed"
	}
	if e.Cause != nil {
		return fmt.Sprintf("dedicatedworker: %s: %v", msg, e.Cause)
	}
	return "dedicatedworker: " + msg
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *SpawnError) Unwrap() error {
	return e.Cause
}

// Is matches [ErrSpawnFailure].
func (e *SpawnError) Is(target error) bool {
	return target == ErrSpawnFailure
}

// ProtocolViolationError indicates a lane delivered an envelope inconsistent
// with its declared origin. It terminates the worker.
type ProtocolViolationError struct {
	Lane    Lane
	Message string
}

// Error implements the error interface.
func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("dedicatedworker: protocol violation on %s lane: %s", e.Lane, e.Message)
}

// Is matches [ErrProtocolViolation].
func (e *ProtocolViolationError) Is(target error) bool {
	return target == ErrProtocolViolation
}

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Value any
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("dedicatedworker: task panicked: %v", e.Value)
}

// Unwrap returns the panic value if it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
