// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package dedicatedworker

import (
	"strconv"
	"sync/atomic"
	"time"
)

// Address is an opaque identifier for a worker. The owner resolves it to the
// public [Worker] object through its registry; the engine never holds a
// pointer back to that object.
type Address uint64

var addressCounter atomic.Uint64

// nextAddress allocates a process-unique, non-zero address.
func nextAddress() Address {
	return Address(addressCounter.Add(1))
}

// String returns a human-readable representation of the address.
func (a Address) String() string {
	return "worker#" + strconv.FormatUint(uint64(a), 10)
}

// Lane identifies the receive lane an [Envelope] originated from.
type Lane uint8

const (
	// LaneInbox carries [TaskMessage] and [DataMessage] from [Handle] clones.
	LaneInbox Lane = iota
	// LaneTimer carries [TimerMessage] from the timer relay.
	LaneTimer
	// LaneDebug carries [DebugMessage] from the debug-control source.
	LaneDebug

	laneCount = 3
)

// String returns a human-readable representation of the lane.
func (l Lane) String() string {
	switch l {
	case LaneInbox:
		return "inbox"
	case LaneTimer:
		return "timer"
	case LaneDebug:
		return "debug"
	default:
		return "unknown(" + strconv.Itoa(int(l)) + ")"
	}
}

// Kind is the tag of a [Message].
type Kind uint8

const (
	KindTask Kind = iota
	KindInboundData
	KindTimerFire
	KindDebugControl
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindTask:
		return "Task"
	case KindInboundData:
		return "InboundData"
	case KindTimerFire:
		return "TimerFire"
	case KindDebugControl:
		return "DebugControl"
	default:
		return "Unknown(" + strconv.Itoa(int(k)) + ")"
	}
}

// Message is the worker envelope payload, a closed set of variants:
// [*TaskMessage], [*DataMessage], [*TimerMessage] and [*DebugMessage].
type Message interface {
	// Target is the worker address the message is about.
	Target() Address
	// Kind returns the variant tag.
	Kind() Kind

	message()
}

// Envelope is returned by the selector, tagging a message with its lane.
type Envelope struct {
	Message Message
	Lane    Lane
}

// Task is a unit of work executed directly on the worker thread. A non-nil
// error is treated as uncaught, and forwarded to the owner.
type Task func(scope *Scope) error

type (
	// TaskMessage executes Task on the worker thread.
	TaskMessage struct {
		Task   Task
		Worker Address
	}

	// DataMessage carries a structured-clone payload, dispatched as a message
	// event to the worker's listeners.
	DataMessage struct {
		Data   []byte
		Worker Address
	}

	// TimerMessage is a timer fire notification, delivered by the relay.
	TimerMessage struct {
		Event  TimerEvent
		Worker Address
	}

	// DebugMessage wraps a debug-control variant.
	DebugMessage struct {
		Control DebugControl
		Worker  Address
	}
)

func (x *TaskMessage) Target() Address  { return x.Worker }
func (x *DataMessage) Target() Address  { return x.Worker }
func (x *TimerMessage) Target() Address { return x.Worker }
func (x *DebugMessage) Target() Address { return x.Worker }

func (*TaskMessage) Kind() Kind  { return KindTask }
func (*DataMessage) Kind() Kind  { return KindInboundData }
func (*TimerMessage) Kind() Kind { return KindTimerFire }
func (*DebugMessage) Kind() Kind { return KindDebugControl }

func (*TaskMessage) message()  {}
func (*DataMessage) message()  {}
func (*TimerMessage) message() {}
func (*DebugMessage) message() {}

// TimerID identifies a timer within a single worker.
type TimerID uint32

// TimerSource identifies which kind of global scheduled a timer.
type TimerSource uint8

const (
	// TimerSourceWorker is the only source a worker will accept.
	TimerSourceWorker TimerSource = iota
	// TimerSourceWindow exists so that misrouted fires can be detected.
	TimerSourceWindow
)

// String returns a human-readable representation of the source.
func (s TimerSource) String() string {
	switch s {
	case TimerSourceWorker:
		return "worker"
	case TimerSourceWindow:
		return "window"
	default:
		return "unknown(" + strconv.Itoa(int(s)) + ")"
	}
}

// TimerEvent is the fire notification sent by a [TimerScheduler]. Seq is
// unique per arming of a timer, and is how the relay detects redelivery.
type TimerEvent struct {
	Seq    uint64
	ID     TimerID
	Source TimerSource
}

// PipelineID identifies the pipeline (document) a worker belongs to, as used
// by the debug protocol.
type PipelineID string

// DebugControl is a debug-control message. The engine recognizes
// [*EvaluateScript], [*GetCachedMessages] and [*SetLiveNotifications]; any
// other implementation is logged and dropped.
type DebugControl interface {
	Pipeline() PipelineID
}

type (
	// EvaluateScript evaluates Source in the worker, replying on Reply.
	EvaluateScript struct {
		Reply      chan<- EvaluateResult
		PipelineID PipelineID
		Source     string
	}

	// GetCachedMessages replies with the cached console/page-error messages
	// matching Types.
	GetCachedMessages struct {
		Reply      chan<- []CachedMessage
		PipelineID PipelineID
		Types      CachedMessageTypes
	}

	// SetLiveNotifications toggles streaming of new console messages to the
	// debug notifier.
	SetLiveNotifications struct {
		PipelineID PipelineID
		Enabled    bool
	}
)

func (x *EvaluateScript) Pipeline() PipelineID       { return x.PipelineID }
func (x *GetCachedMessages) Pipeline() PipelineID    { return x.PipelineID }
func (x *SetLiveNotifications) Pipeline() PipelineID { return x.PipelineID }

// EvaluateKind tags an [EvaluateResult].
type EvaluateKind uint8

const (
	EvaluateVoid EvaluateKind = iota
	EvaluateNull
	EvaluateBoolean
	EvaluateNumber
	EvaluateString
	EvaluateObject
	EvaluateException
)

func (k EvaluateKind) String() string {
	switch k {
	case EvaluateVoid:
		return "void"
	case EvaluateNull:
		return "null"
	case EvaluateBoolean:
		return "boolean"
	case EvaluateNumber:
		return "number"
	case EvaluateString:
		return "string"
	case EvaluateObject:
		return "object"
	case EvaluateException:
		return "exception"
	default:
		return "unknown"
	}
}

// EvaluateResult is the reply to [EvaluateScript].
type EvaluateResult struct {
	// String holds the value for EvaluateString, the message for
	// EvaluateException, and the string form otherwise.
	String string
	// Class is the constructor name, for EvaluateObject.
	Class  string
	Number float64
	Kind   EvaluateKind
	Bool   bool
}

// CachedMessageTypes is a bit set used to filter [CachedMessage] values.
type CachedMessageTypes uint8

const (
	CachedPageError CachedMessageTypes = 1 << iota
	CachedConsoleAPI

	CachedAll = CachedPageError | CachedConsoleAPI
)

// CachedMessage is a console or page-error message retained for the debugger.
type CachedMessage struct {
	Timestamp time.Time
	Level     string
	Message   string
	Filename  string
	Type      CachedMessageTypes
	Line      uint32
	Column    uint32
}
