// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package dedicatedworker

import (
	"errors"
	"time"

	"github.com/joeycumines/logiface"
	"golang.org/x/sync/semaphore"
)

const (
	defaultInterruptPollInterval = 10 * time.Millisecond
	defaultInboxCapacity         = 64
	defaultConsoleCacheSize      = 256
	defaultOwnerTaskCapacity     = 256
	defaultOwnerBatchSize        = 32
)

// SelectPolicy controls how the message selector chooses between lanes that
// are ready at the same time.
type SelectPolicy uint8

const (
	// SelectRoundRobin tries lanes starting at a rotating offset, so that
	// every lane with continuous supply is serviced within laneCount
	// iterations.
	SelectRoundRobin SelectPolicy = iota
	// SelectPriority always tries lanes in a fixed order (see
	// [WithLanePriority]). It may starve lower priority lanes.
	SelectPriority
	// SelectRandom defers to the runtime's uniform choice among ready cases.
	SelectRandom
)

// String returns a human-readable representation of the policy.
func (p SelectPolicy) String() string {
	switch p {
	case SelectRoundRobin:
		return "round-robin"
	case SelectPriority:
		return "priority"
	case SelectRandom:
		return "random"
	default:
		return "unknown"
	}
}

// options holds configuration for [Spawn].
type options struct {
	logger                *logiface.Logger[logiface.Event]
	threadLimit           *semaphore.Weighted
	metrics               *Metrics
	debugHandler          DebugHandler
	debugNotifier         func(CachedMessage)
	liveNotifications     bool
	priority              [laneCount]Lane
	interruptPollInterval time.Duration
	inboxCapacity         int
	consoleCacheSize      int
	address               Address
	selectPolicy          SelectPolicy
}

// Option configures a worker spawned by [Spawn] or [Owner.NewWorker].
type Option interface {
	apply(*options) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyFunc func(*options) error
}

func (o *optionImpl) apply(opts *options) error {
	return o.applyFunc(opts)
}

// WithLogger sets the structured logger. A nil logger disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *options) error {
		opts.logger = logger
		return nil
	}}
}

// WithSelectPolicy sets the lane selection policy. Defaults to
// [SelectRoundRobin].
func WithSelectPolicy(policy SelectPolicy) Option {
	return &optionImpl{func(opts *options) error {
		switch policy {
		case SelectRoundRobin, SelectPriority, SelectRandom:
		default:
			return errors.New("dedicatedworker: invalid select policy")
		}
		opts.selectPolicy = policy
		return nil
	}}
}

// WithLanePriority sets the order lanes are tried by [SelectPriority]. Every
// lane must appear exactly once. Defaults to debug, timer, inbox.
func WithLanePriority(lanes ...Lane) Option {
	return &optionImpl{func(opts *options) error {
		if len(lanes) != laneCount {
			return errors.New("dedicatedworker: lane priority must list every lane")
		}
		var seen [laneCount]bool
		for i, lane := range lanes {
			if lane >= laneCount || seen[lane] {
				return errors.New("dedicatedworker: lane priority must list every lane exactly once")
			}
			seen[lane] = true
			opts.priority[i] = lane
		}
		return nil
	}}
}

// WithInterruptPollInterval sets how often the watchdog checks whether a
// running script should be interrupted.
func WithInterruptPollInterval(d time.Duration) Option {
	return &optionImpl{func(opts *options) error {
		if d <= 0 {
			return errors.New("dedicatedworker: interrupt poll interval must be positive")
		}
		opts.interruptPollInterval = d
		return nil
	}}
}

// WithInboxCapacity sets the buffer size of the inbox channel. Zero means
// unbuffered.
func WithInboxCapacity(n int) Option {
	return &optionImpl{func(opts *options) error {
		if n < 0 {
			return errors.New("dedicatedworker: inbox capacity must not be negative")
		}
		opts.inboxCapacity = n
		return nil
	}}
}

// WithThreadLimit bounds the number of concurrently running workers sharing
// sem. Each worker holds one unit for its lifetime. [Spawn] fails with a
// [SpawnError] if no unit is free.
func WithThreadLimit(sem *semaphore.Weighted) Option {
	return &optionImpl{func(opts *options) error {
		opts.threadLimit = sem
		return nil
	}}
}

// WithMetrics enables prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return &optionImpl{func(opts *options) error {
		opts.metrics = m
		return nil
	}}
}

// WithDebugHandler replaces the default console-capturing debug handler.
func WithDebugHandler(h DebugHandler) Option {
	return &optionImpl{func(opts *options) error {
		opts.debugHandler = h
		return nil
	}}
}

// WithDebugNotifier receives console messages while live notifications are
// enabled (see [SetLiveNotifications]). It is called on the worker thread.
func WithDebugNotifier(fn func(CachedMessage)) Option {
	return &optionImpl{func(opts *options) error {
		opts.debugNotifier = fn
		return nil
	}}
}

// WithLiveNotifications sets whether live notifications start enabled. They
// may still be toggled via [SetLiveNotifications].
func WithLiveNotifications(enabled bool) Option {
	return &optionImpl{func(opts *options) error {
		opts.liveNotifications = enabled
		return nil
	}}
}

// WithConsoleCacheSize bounds the number of cached console and page-error
// messages retained for [GetCachedMessages].
func WithConsoleCacheSize(n int) Option {
	return &optionImpl{func(opts *options) error {
		if n <= 0 {
			return errors.New("dedicatedworker: console cache size must be positive")
		}
		opts.consoleCacheSize = n
		return nil
	}}
}

// withAddress pins the worker address, used by the owner, which registers
// the public object before spawning.
func withAddress(addr Address) Option {
	return &optionImpl{func(opts *options) error {
		opts.address = addr
		return nil
	}}
}

// resolveOptions applies Option instances to options.
func resolveOptions(opts []Option) (*options, error) {
	cfg := &options{
		priority:              [laneCount]Lane{LaneDebug, LaneTimer, LaneInbox},
		interruptPollInterval: defaultInterruptPollInterval,
		inboxCapacity:         defaultInboxCapacity,
		consoleCacheSize:      defaultConsoleCacheSize,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// ownerOptions holds configuration for [NewOwner].
type ownerOptions struct {
	logger       *logiface.Logger[logiface.Event]
	reporter     func(ErrorRecord)
	scheduler    TimerScheduler
	metrics      *Metrics
	workerOpts   []Option
	threadLimit  int64
	taskCapacity int
	batchSize    int
}

// OwnerOption configures an [Owner].
type OwnerOption interface {
	applyOwner(*ownerOptions) error
}

// ownerOptionImpl implements OwnerOption.
type ownerOptionImpl struct {
	applyOwnerFunc func(*ownerOptions) error
}

func (o *ownerOptionImpl) applyOwner(opts *ownerOptions) error {
	return o.applyOwnerFunc(opts)
}

// WithOwnerLogger sets the owner's structured logger, which is also the
// default for workers it spawns.
func WithOwnerLogger(logger *logiface.Logger[logiface.Event]) OwnerOption {
	return &ownerOptionImpl{func(opts *ownerOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithErrorReporter sets the top-level reporter, receiving every forwarded
// script error whose error event was not canceled.
func WithErrorReporter(fn func(ErrorRecord)) OwnerOption {
	return &ownerOptionImpl{func(opts *ownerOptions) error {
		opts.reporter = fn
		return nil
	}}
}

// WithOwnerScheduler replaces the owner's in-process [Scheduler]. The
// scheduler is not closed by [Owner.Close].
func WithOwnerScheduler(s TimerScheduler) OwnerOption {
	return &ownerOptionImpl{func(opts *ownerOptions) error {
		opts.scheduler = s
		return nil
	}}
}

// WithOwnerThreadLimit bounds the number of concurrently running workers.
// Zero (the default) means unlimited.
func WithOwnerThreadLimit(n int64) OwnerOption {
	return &ownerOptionImpl{func(opts *ownerOptions) error {
		if n < 0 {
			return errors.New("dedicatedworker: thread limit must not be negative")
		}
		opts.threadLimit = n
		return nil
	}}
}

// WithOwnerTaskCapacity sets the buffer size of the owner task queue.
func WithOwnerTaskCapacity(n int) OwnerOption {
	return &ownerOptionImpl{func(opts *ownerOptions) error {
		if n <= 0 {
			return errors.New("dedicatedworker: owner task capacity must be positive")
		}
		opts.taskCapacity = n
		return nil
	}}
}

// WithOwnerBatchSize sets the maximum number of owner tasks run per wake up.
func WithOwnerBatchSize(n int) OwnerOption {
	return &ownerOptionImpl{func(opts *ownerOptions) error {
		if n <= 0 {
			return errors.New("dedicatedworker: owner batch size must be positive")
		}
		opts.batchSize = n
		return nil
	}}
}

// WithOwnerMetrics instruments the owner and every worker it spawns.
func WithOwnerMetrics(m *Metrics) OwnerOption {
	return &ownerOptionImpl{func(opts *ownerOptions) error {
		opts.metrics = m
		return nil
	}}
}

// WithWorkerOptions sets default options for every worker spawned by
// [Owner.NewWorker]. Options passed to NewWorker are applied after these.
func WithWorkerOptions(opts ...Option) OwnerOption {
	return &ownerOptionImpl{func(o *ownerOptions) error {
		o.workerOpts = append(o.workerOpts, opts...)
		return nil
	}}
}

// resolveOwnerOptions applies OwnerOption instances to ownerOptions.
func resolveOwnerOptions(opts []OwnerOption) (*ownerOptions, error) {
	cfg := &ownerOptions{
		taskCapacity: defaultOwnerTaskCapacity,
		batchSize:    defaultOwnerBatchSize,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyOwner(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
