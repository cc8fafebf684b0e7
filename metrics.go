// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package dedicatedworker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Exit reason label values.
const (
	exitClosed        = "closed"
	exitChannelClosed = "channel_closed"
	exitProtocol      = "protocol_violation"
	exitLoadFailed    = "load_failed"
)

// Metrics holds the prometheus collectors for workers. A nil *Metrics is
// valid, and records nothing.
type Metrics struct {
	messages        *prometheus.CounterVec
	scriptErrors    prometheus.Counter
	exits           *prometheus.CounterVec
	activeWorkers   prometheus.Gauge
	microtasks      prometheus.Counter
	dispatchSeconds *prometheus.HistogramVec
	ownerTasks      prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// skips registration.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dedicatedworker_messages_total",
				Help: "Total number of envelopes dispatched, by lane and kind.",
			},
			[]string{"lane", "kind"},
		),
		scriptErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dedicatedworker_script_errors_total",
				Help: "Total number of uncaught script errors forwarded to the owner.",
			},
		),
		exits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dedicatedworker_exits_total",
				Help: "Total number of workers that have exited, by reason.",
			},
			[]string{"reason"},
		),
		activeWorkers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dedicatedworker_active_workers",
				Help: "Number of currently running worker threads.",
			},
		),
		microtasks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dedicatedworker_microtasks_total",
				Help: "Total number of microtasks run during checkpoints.",
			},
		),
		dispatchSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dedicatedworker_dispatch_seconds",
				Help:    "Duration of envelope dispatch, including the microtask checkpoint, in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"lane"},
		),
		ownerTasks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dedicatedworker_owner_tasks_total",
				Help: "Total number of tasks run on owner threads.",
			},
		),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{
			m.messages,
			m.scriptErrors,
			m.exits,
			m.activeWorkers,
			m.microtasks,
			m.dispatchSeconds,
			m.ownerTasks,
		} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}

	for lane := range Lane(laneCount) {
		m.dispatchSeconds.WithLabelValues(lane.String())
	}
	for _, reason := range []string{exitClosed, exitChannelClosed, exitProtocol, exitLoadFailed} {
		m.exits.WithLabelValues(reason)
	}

	return m, nil
}

func (m *Metrics) dispatched(env Envelope, d time.Duration) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(env.Lane.String(), env.Message.Kind().String()).Inc()
	m.dispatchSeconds.WithLabelValues(env.Lane.String()).Observe(d.Seconds())
}

func (m *Metrics) scriptError() {
	if m != nil {
		m.scriptErrors.Inc()
	}
}

func (m *Metrics) started() {
	if m != nil {
		m.activeWorkers.Inc()
	}
}

func (m *Metrics) exited(reason string) {
	if m != nil {
		m.activeWorkers.Dec()
		m.exits.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) microtasksRun(n int) {
	if m != nil && n > 0 {
		m.microtasks.Add(float64(n))
	}
}

func (m *Metrics) ownerTask() {
	if m != nil {
		m.ownerTasks.Inc()
	}
}
