// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package dedicatedworker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainLane(ch <-chan Message) []*TimerMessage {
	var out []*TimerMessage
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, msg.(*TimerMessage))
		default:
			return out
		}
	}
}

func TestTimerRelay_redeliveryFiresOnce(t *testing.T) {
	stop := make(chan struct{})
	r := newTimerRelay(3, stop)

	r.expect(1)
	event := TimerEvent{Source: TimerSourceWorker, ID: 7, Seq: 1}
	r.FireTimer(event)
	r.FireTimer(event)
	r.FireTimer(event)

	got := drainLane(r.lane())
	require.Len(t, got, 1)
	assert.Equal(t, event, got[0].Event)
	assert.Equal(t, Address(3), got[0].Target())
	assert.Equal(t, KindTimerFire, got[0].Kind())
}

func TestTimerRelay_unarmedAndForgotten(t *testing.T) {
	r := newTimerRelay(1, make(chan struct{}))

	r.FireTimer(TimerEvent{Source: TimerSourceWorker, ID: 1, Seq: 1})

	r.expect(2)
	r.forget(2)
	r.FireTimer(TimerEvent{Source: TimerSourceWorker, ID: 1, Seq: 2})

	assert.Empty(t, drainLane(r.lane()))
}

func TestTimerRelay_windowSourcePassesThrough(t *testing.T) {
	r := newTimerRelay(1, make(chan struct{}))

	event := TimerEvent{Source: TimerSourceWindow, ID: 4, Seq: 99}
	r.FireTimer(event)
	r.FireTimer(event)

	got := drainLane(r.lane())
	require.Len(t, got, 2)
	assert.Equal(t, TimerSourceWindow, got[0].Event.Source)
}

func TestTimerRelay_schedulerClosed(t *testing.T) {
	r := newTimerRelay(1, make(chan struct{}))
	r.expect(1)

	r.SchedulerClosed()
	r.SchedulerClosed()
	r.close()

	_, ok := <-r.lane()
	assert.False(t, ok)

	// no panic on send after close
	r.FireTimer(TimerEvent{Source: TimerSourceWorker, ID: 1, Seq: 1})
}

func TestTimerRelay_stopUnblocksFull(t *testing.T) {
	stop := make(chan struct{})
	r := newTimerRelay(1, stop)
	for i := range uint64(timerLaneCapacity) {
		r.FireTimer(TimerEvent{Source: TimerSourceWindow, Seq: i})
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.FireTimer(TimerEvent{Source: TimerSourceWindow, Seq: 100})
	}()
	close(stop)
	<-done

	assert.Len(t, drainLane(r.lane()), timerLaneCapacity)
}
