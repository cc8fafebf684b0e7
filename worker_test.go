// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package dedicatedworker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	eventloop "github.com/joeycumines/go-eventloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"
)

func TestWorker_messageRoundTrip(t *testing.T) {
	o := newTestOwner(t)
	w := startWorker(t, o, MapLoader{
		"main.js": `onmessage = (e) => postMessage(e.data * 2);`,
	})
	messages := collect(w, "message")
	runOwner(t, o)

	require.NoError(t, w.PostMessage(context.Background(), 21))
	assert.Equal(t, float64(42), receive(t, messages))
}

func TestWorker_messagesInOrder(t *testing.T) {
	o := newTestOwner(t)
	w := startWorker(t, o, MapLoader{
		"main.js": `onmessage = (e) => {
	queueMicrotask(() => postMessage('micro ' + e.data));
	postMessage('task ' + e.data);
};`,
	})
	messages := collect(w, "message")
	runOwner(t, o)

	for i := 1; i <= 3; i++ {
		require.NoError(t, w.PostMessage(context.Background(), i))
	}

	var got []any
	for range 6 {
		got = append(got, receive(t, messages))
	}
	assert.Equal(t, []any{"task 1", "micro 1", "task 2", "micro 2", "task 3", "micro 3"}, got)
}

func TestWorker_tasksDrainMicrotasksBetween(t *testing.T) {
	o := newTestOwner(t)
	runOwner(t, o)
	w := startWorker(t, o, MapLoader{"main.js": ``})

	var (
		mu    sync.Mutex
		order []int
	)
	record := func(v int) {
		mu.Lock()
		order = append(order, v)
		mu.Unlock()
	}
	done := make(chan struct{})

	require.NoError(t, w.PostTask(context.Background(), func(scope *Scope) error {
		scope.QueueMicrotask(func() { record(2) })
		record(1)
		return nil
	}))
	require.NoError(t, w.PostTask(context.Background(), func(*Scope) error {
		record(3)
		close(done)
		return nil
	}))

	receive(t, (<-chan struct{})(done))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestWorker_identityInstalled(t *testing.T) {
	o := newTestOwner(t)
	runOwner(t, o)
	w := startWorker(t, o, MapLoader{"main.js": ``})

	got := make(chan [2]Address, 1)
	require.NoError(t, w.PostTask(context.Background(), func(scope *Scope) error {
		got <- [2]Address{scope.engine.identity.Current(), scope.Address()}
		return nil
	}))

	ids := receive(t, got)
	assert.Equal(t, w.Address(), ids[0])
	assert.Equal(t, w.Address(), ids[1])
}

func TestWorker_globals(t *testing.T) {
	o := newTestOwner(t)
	w, err := o.NewWorker(InitBundle{
		Loader:    MapLoader{"main.js": `postMessage([self === globalThis, name, typeof onmessage]);`},
		SourceURL: "main.js",
		Name:      "alpha",
	})
	require.NoError(t, err)
	t.Cleanup(w.Terminate)

	messages := collect(w, "message")
	runOwner(t, o)
	assert.Equal(t, []any{true, "alpha", "object"}, receive(t, messages))
}

func TestWorker_eventListeners(t *testing.T) {
	o := newTestOwner(t)
	w := startWorker(t, o, MapLoader{"main.js": `
const seen = [];
function a(e) { seen.push('a' + e.data); }
addEventListener('message', a);
addEventListener('message', a);
addEventListener('message', (e) => seen.push('once' + e.data), {once: true});
onmessage = (e) => {
	seen.push('on' + e.data);
	if (e.data === 3) postMessage(seen.join(','));
};
`})
	messages := collect(w, "message")
	runOwner(t, o)

	ctx := context.Background()
	require.NoError(t, w.PostMessage(ctx, 1))
	require.NoError(t, w.PostTask(ctx, func(scope *Scope) error {
		_, err := scope.RunScript("remove.js", `removeEventListener('message', a);`)
		return err
	}))
	require.NoError(t, w.PostMessage(ctx, 3))

	assert.Equal(t, "on1,a1,once1,on3", receive(t, messages))
}

func TestWorker_messageError(t *testing.T) {
	o := newTestOwner(t)
	w := startWorker(t, o, MapLoader{"main.js": `
onmessage = () => postMessage('message');
onmessageerror = (e) => postMessage('messageerror ' + e.data);
`})
	messages := collect(w, "message")
	runOwner(t, o)

	require.NoError(t, w.Handle().PostMessage(context.Background(), []byte("not a clone")))
	assert.Equal(t, "messageerror null", receive(t, messages))
}

func TestWorker_postMessageClonesValues(t *testing.T) {
	o := newTestOwner(t)
	w := startWorker(t, o, MapLoader{"main.js": `
const o = {n: 1};
o.self = o;
const c = structuredClone(o);
postMessage({copied: c !== o && c.self === c, map: new Map([[1, 'one']]), set: new Set(['x'])});
`})
	messages := collect(w, "message")
	runOwner(t, o)

	v, ok := receive(t, messages).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, v["copied"])

	m, ok := v["map"].(*Map)
	require.True(t, ok)
	one, ok := m.Get(float64(1))
	require.True(t, ok)
	assert.Equal(t, "one", one)

	s, ok := v["set"].(*Set)
	require.True(t, ok)
	assert.Equal(t, []any{"x"}, s.Values)
}

func TestWorker_postMessageUncloneable(t *testing.T) {
	o := newTestOwner(t)
	w := startWorker(t, o, MapLoader{"main.js": `
try {
	postMessage(() => 1);
} catch (e) {
	postMessage('caught');
}
`})
	messages := collect(w, "message")
	runOwner(t, o)
	assert.Equal(t, "caught", receive(t, messages))
}

func TestWorker_selfClose(t *testing.T) {
	o := newTestOwner(t)
	w := startWorker(t, o, MapLoader{"main.js": `
onmessage = (e) => {
	close();
	queueMicrotask(() => postMessage('microtask ran'));
	postMessage(e.data);
};
`})
	messages := collect(w, "message")
	runOwner(t, o)

	ctx := context.Background()
	require.NoError(t, w.PostMessage(ctx, "a"))
	require.NoError(t, waitWorker(t, w))
	_ = w.PostMessage(ctx, "b")

	flushOwner(t, o)
	assert.Equal(t, "a", receive(t, messages))
	assert.Equal(t, "microtask ran", receive(t, messages))
	requireNothing(t, messages, 20*time.Millisecond)
}

func TestWorker_selfCloseRejectsPosts(t *testing.T) {
	o := newTestOwner(t)
	runOwner(t, o)
	w := startWorker(t, o, MapLoader{"main.js": ``})

	ctx := context.Background()
	closed := make(chan struct{})
	resume := make(chan struct{})
	require.NoError(t, w.PostTask(ctx, func(s *Scope) error {
		s.Close()
		close(closed)
		<-resume
		return nil
	}))

	receive(t, (<-chan struct{})(closed))
	assert.ErrorIs(t, w.PostMessage(ctx, "late"), ErrWorkerClosed)
	assert.ErrorIs(t, w.PostTask(ctx, func(*Scope) error { return nil }), ErrWorkerClosed)
	close(resume)
	require.NoError(t, waitWorker(t, w))
}

func TestWorker_closeDuringInitialScript(t *testing.T) {
	o := newTestOwner(t)
	runOwner(t, o)
	w := startWorker(t, o, MapLoader{"main.js": `
close();
onmessage = () => postMessage('unreachable');
`})
	require.NoError(t, w.PostMessage(context.Background(), 1))
	require.NoError(t, waitWorker(t, w))
}

func TestWorker_terminateRunaway(t *testing.T) {
	o := newTestOwner(t)
	w := startWorker(t, o, MapLoader{"main.js": `while (true) {}`},
		WithInterruptPollInterval(time.Millisecond))
	errs := collect(w, "error")
	runOwner(t, o)

	time.Sleep(50 * time.Millisecond)
	select {
	case <-w.Done():
		t.Fatal("runaway worker exited on its own")
	default:
	}

	start := time.Now()
	w.Terminate()
	require.NoError(t, waitWorker(t, w))
	assert.Less(t, time.Since(start), time.Second)

	// interrupts are not reported as errors
	flushOwner(t, o)
	requireNothing(t, errs, 20*time.Millisecond)
}

func TestWorker_terminateRunawayTask(t *testing.T) {
	o := newTestOwner(t)
	runOwner(t, o)
	w := startWorker(t, o, MapLoader{"main.js": `onmessage = () => { for (;;) {} };`})

	require.NoError(t, w.PostMessage(context.Background(), 1))
	time.Sleep(30 * time.Millisecond)
	w.Terminate()
	require.NoError(t, waitWorker(t, w))
	assert.ErrorIs(t, w.PostMessage(context.Background(), 2), ErrWorkerClosed)
}

func TestWorker_errorForwarded(t *testing.T) {
	var (
		mu      sync.Mutex
		reports []ErrorRecord
	)
	o := newTestOwner(t, WithErrorReporter(func(rec ErrorRecord) {
		mu.Lock()
		reports = append(reports, rec)
		mu.Unlock()
	}))
	w := startWorker(t, o, MapLoader{"main.js": `onmessage = (e) => {
	if (e.data === 'ok') { postMessage('still alive'); return; }
	throw new Error('boom ' + e.data);
};`})
	errs := collect(w, "error")
	messages := collect(w, "message")
	runOwner(t, o)

	ctx := context.Background()
	require.NoError(t, w.PostMessage(ctx, 1))

	rec, ok := receive(t, errs).(*ErrorRecord)
	require.True(t, ok)
	assert.Equal(t, "Error: boom 1", rec.Message)
	assert.Equal(t, "main.js", rec.Filename)
	assert.Equal(t, uint32(3), rec.Line)
	assert.NotZero(t, rec.Column)

	// isolated to the message
	require.NoError(t, w.PostMessage(ctx, "ok"))
	assert.Equal(t, "still alive", receive(t, messages))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reports, 1)
	assert.Equal(t, *rec, reports[0])
}

func TestWorker_errorCanceled(t *testing.T) {
	var reported sync.WaitGroup
	reported.Add(1)
	var count int
	o := newTestOwner(t, WithErrorReporter(func(rec ErrorRecord) {
		count++
		assert.Equal(t, "Error: second", rec.Message)
		reported.Done()
	}))
	w := startWorker(t, o, MapLoader{"main.js": `onmessage = (e) => { throw new Error(e.data); };`})

	var canceled bool
	w.AddEventListener("error", func(e *eventloop.Event) {
		if !canceled {
			canceled = true
			e.PreventDefault()
		}
	})
	runOwner(t, o)

	ctx := context.Background()
	require.NoError(t, w.PostMessage(ctx, "first"))
	require.NoError(t, w.PostMessage(ctx, "second"))

	reported.Wait()
	flushOwner(t, o)
	assert.Equal(t, 1, count)
}

func TestWorker_initialScriptError(t *testing.T) {
	o := newTestOwner(t, WithErrorReporter(func(ErrorRecord) {}))
	w := startWorker(t, o, MapLoader{"main.js": `
onmessage = (e) => postMessage(e.data);
null.x;
`})
	errs := collect(w, "error")
	messages := collect(w, "message")
	runOwner(t, o)

	rec, ok := receive(t, errs).(*ErrorRecord)
	require.True(t, ok)
	assert.Contains(t, rec.Message, "TypeError")
	assert.Equal(t, uint32(3), rec.Line)

	require.NoError(t, w.PostMessage(context.Background(), "ok"))
	assert.Equal(t, "ok", receive(t, messages))
}

func TestWorker_taskErrors(t *testing.T) {
	o := newTestOwner(t, WithErrorReporter(func(ErrorRecord) {}))
	w := startWorker(t, o, MapLoader{"main.js": ``})
	errs := collect(w, "error")
	runOwner(t, o)

	ctx := context.Background()
	require.NoError(t, w.PostTask(ctx, func(*Scope) error { return errors.New("task failed") }))
	rec := receive(t, errs).(*ErrorRecord)
	assert.Equal(t, ErrorRecord{Message: "task failed", Filename: "main.js"}, *rec)

	require.NoError(t, w.PostTask(ctx, func(*Scope) error { panic("kaboom") }))
	rec = receive(t, errs).(*ErrorRecord)
	assert.Equal(t, "dedicatedworker: task panicked: kaboom", rec.Message)

	require.NoError(t, w.PostTask(ctx, func(*Scope) error {
		return &ScriptError{Record: ErrorRecord{Message: "custom", Filename: "x.js", Line: 9, Column: 2}}
	}))
	rec = receive(t, errs).(*ErrorRecord)
	assert.Equal(t, ErrorRecord{Message: "custom", Filename: "x.js", Line: 9, Column: 2}, *rec)

	require.NoError(t, w.PostTask(ctx, func(scope *Scope) error {
		_, err := scope.RunScript("task.js", "\n  throw new RangeError('nope');")
		return err
	}))
	rec = receive(t, errs).(*ErrorRecord)
	assert.Equal(t, "RangeError: nope", rec.Message)
	assert.Equal(t, "task.js", rec.Filename)
	assert.Equal(t, uint32(2), rec.Line)
}

func TestWorker_loadFailure(t *testing.T) {
	o := newTestOwner(t)
	w := startWorker(t, o, MapLoader{})
	errs := collect(w, "error")
	runOwner(t, o)

	ranTask := make(chan struct{}, 1)
	_ = w.PostTask(context.Background(), func(*Scope) error {
		ranTask <- struct{}{}
		return nil
	})

	err := waitWorker(t, w)
	require.ErrorIs(t, err, ErrLoadFailure)
	require.ErrorIs(t, err, ErrNotFound)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "main.js", le.URL)

	assert.Nil(t, receive(t, errs))
	requireNothing(t, (<-chan struct{})(ranTask), 20*time.Millisecond)
}

func TestWorker_loaderCanceledByClose(t *testing.T) {
	o := newTestOwner(t)
	started := make(chan struct{})
	w, err := o.NewWorker(InitBundle{
		Loader: LoaderFunc(func(ctx context.Context, req Request) (*Resource, error) {
			assert.Equal(t, "worker", req.Destination)
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}),
		SourceURL: "slow.js",
	})
	require.NoError(t, err)
	errs := collect(w, "error")
	runOwner(t, o)

	receive(t, (<-chan struct{})(started))
	w.Terminate()
	require.NoError(t, waitWorker(t, w))

	flushOwner(t, o)
	requireNothing(t, errs, 20*time.Millisecond)
}

func TestWorker_protocolViolationInbox(t *testing.T) {
	o := newTestOwner(t)
	runOwner(t, o)
	w := startWorker(t, o, MapLoader{"main.js": ``})

	require.NoError(t, w.Handle().Post(context.Background(), &TimerMessage{
		Worker: w.Address(),
		Event:  TimerEvent{Source: TimerSourceWorker, ID: 1, Seq: 1},
	}))

	err := waitWorker(t, w)
	require.ErrorIs(t, err, ErrProtocolViolation)
	var pv *ProtocolViolationError
	require.ErrorAs(t, err, &pv)
	assert.Equal(t, LaneInbox, pv.Lane)
}

func TestSpawn_protocolViolationWindowTimer(t *testing.T) {
	owner := newFakeOwner()
	sched := &fakeScheduler{}
	h, join, err := Spawn(InitBundle{
		Loader:    MapLoader{"main.js": ``},
		Scheduler: sched,
		SourceURL: "main.js",
	}, owner)
	require.NoError(t, err)
	defer h.Release()

	sink := sched.attached()
	require.NotNil(t, sink)
	sink.FireTimer(TimerEvent{Source: TimerSourceWindow, ID: 1, Seq: 1})

	err = waitWorker(t, join)
	var pv *ProtocolViolationError
	require.ErrorAs(t, err, &pv)
	assert.Equal(t, LaneTimer, pv.Lane)
	assert.Contains(t, pv.Message, "window")
}

func TestSpawn_channelClosed(t *testing.T) {
	owner := newFakeOwner()
	h, join, err := Spawn(InitBundle{
		Loader:    MapLoader{"main.js": `onmessage = (e) => postMessage(e.data);`},
		SourceURL: "main.js",
	}, owner)
	require.NoError(t, err)

	c := h.Clone()
	require.NotNil(t, c)
	data, err := EncodeValue("last")
	require.NoError(t, err)
	require.NoError(t, c.PostMessage(context.Background(), data))
	c.Release()
	h.Release()

	require.ErrorIs(t, waitWorker(t, join), ErrChannelClosed)
	assert.ErrorIs(t, join.Err(), ErrChannelClosed)

	// the buffered message was still processed
	assert.Equal(t, 1, owner.runAll())
}

func TestSpawn_validation(t *testing.T) {
	loader := MapLoader{"main.js": ``}
	for _, tc := range []struct {
		name  string
		init  InitBundle
		owner OwnerChannel
		opts  []Option
	}{
		{name: "nil owner", init: InitBundle{Loader: loader, SourceURL: "main.js"}},
		{name: "nil loader", init: InitBundle{SourceURL: "main.js"}, owner: newFakeOwner()},
		{name: "empty url", init: InitBundle{Loader: loader}, owner: newFakeOwner()},
		{name: "invalid option", init: InitBundle{Loader: loader, SourceURL: "main.js"}, owner: newFakeOwner(), opts: []Option{WithInboxCapacity(-1)}},
		{name: "bad priority", init: InitBundle{Loader: loader, SourceURL: "main.js"}, owner: newFakeOwner(), opts: []Option{WithLanePriority(LaneInbox, LaneInbox, LaneDebug)}},
		{name: "scheduler refused", init: InitBundle{Loader: loader, SourceURL: "main.js", Scheduler: &fakeScheduler{attachErr: ErrSchedulerClosed}}, owner: newFakeOwner()},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h, join, err := Spawn(tc.init, tc.owner, tc.opts...)
			assert.Nil(t, h)
			assert.Nil(t, join)
			assert.ErrorIs(t, err, ErrSpawnFailure)
			var se *SpawnError
			assert.ErrorAs(t, err, &se)
		})
	}
}

func TestSpawn_threadLimit(t *testing.T) {
	sem := semaphore.NewWeighted(1)
	init := InitBundle{Loader: MapLoader{"main.js": ``}, SourceURL: "main.js"}

	h, join, err := Spawn(init, newFakeOwner(), WithThreadLimit(sem))
	require.NoError(t, err)

	_, _, err = Spawn(init, newFakeOwner(), WithThreadLimit(sem))
	require.ErrorIs(t, err, ErrSpawnFailure)
	assert.Contains(t, err.Error(), "thread limit")

	h.Close()
	require.NoError(t, waitWorker(t, join))

	h2, join2, err := Spawn(init, newFakeOwner(), WithThreadLimit(sem))
	require.NoError(t, err)
	h2.Close()
	require.NoError(t, waitWorker(t, join2))
}

func TestWorker_timers(t *testing.T) {
	o := newTestOwner(t)
	w := startWorker(t, o, MapLoader{"main.js": `
setTimeout((v) => postMessage(v), 30, 'late');
setTimeout(() => postMessage('early'), 5);
const cleared = setTimeout(() => postMessage('cleared'), 10);
clearTimeout(cleared);
let n = 0;
const id = setInterval(() => {
	n++;
	if (n === 3) {
		clearInterval(id);
		setTimeout(() => postMessage('ticks ' + n), 40);
	}
}, 5);
`})
	messages := collect(w, "message")
	runOwner(t, o)

	assert.Equal(t, "early", receive(t, messages))
	assert.Equal(t, "late", receive(t, messages))
	assert.Equal(t, "ticks 3", receive(t, messages))
	requireNothing(t, messages, 30*time.Millisecond)
	assert.Eventually(t, func() bool {
		return o.Scheduler().(*Scheduler).Pending() == 0
	}, testTimeout, time.Millisecond)
}

func TestWorker_timersClearedOnExit(t *testing.T) {
	o := newTestOwner(t)
	runOwner(t, o)
	w := startWorker(t, o, MapLoader{"main.js": `setTimeout(() => {}, 60000); setInterval(() => {}, 60000);`})

	sched := o.Scheduler().(*Scheduler)
	assert.Eventually(t, func() bool { return sched.Pending() == 2 }, testTimeout, time.Millisecond)

	w.Terminate()
	require.NoError(t, waitWorker(t, w))
	assert.Equal(t, 0, sched.Pending())
}

func TestWorker_timersUnavailable(t *testing.T) {
	owner := newFakeOwner()
	h, join, err := Spawn(InitBundle{
		Loader: MapLoader{"main.js": `
try {
	setTimeout(() => {}, 1);
} catch (e) {
	postMessage(String(e));
}
`},
		SourceURL: "main.js",
	}, owner)
	require.NoError(t, err)
	task := receive(t, (<-chan OwnerTask)(owner.tasks))
	h.Close()
	require.NoError(t, waitWorker(t, join))
	h.Release()

	w := &Worker{events: eventloop.NewEventTarget(), addr: h.Address()}
	owner.mu.Lock()
	owner.workers[w.addr] = w
	owner.mu.Unlock()
	messages := collect(w, "message")
	task(owner)
	assert.Contains(t, receive(t, messages).(string), "timers unavailable")
}

func TestWorker_schedulerSeqPerArming(t *testing.T) {
	owner := newFakeOwner()
	sched := &fakeScheduler{}
	h, join, err := Spawn(InitBundle{
		Loader:    MapLoader{"main.js": `setInterval(() => postMessage('tick'), 10);`},
		Scheduler: sched,
		SourceURL: "main.js",
	}, owner)
	require.NoError(t, err)
	defer func() {
		h.Close()
		_ = waitWorker(t, join)
		h.Release()
	}()

	assert.Eventually(t, func() bool { return len(sched.requests()) == 1 }, testTimeout, time.Millisecond)
	first := sched.requests()[0]
	assert.Equal(t, TimerSourceWorker, first.Event.Source)
	assert.Equal(t, 10*time.Millisecond, first.Delay)

	sink := sched.attached()
	sink.FireTimer(first.Event)
	sink.FireTimer(first.Event)

	// one callback, one re-arm with a fresh seq
	assert.Eventually(t, func() bool { return len(sched.requests()) == 2 }, testTimeout, time.Millisecond)
	second := sched.requests()[1]
	assert.Equal(t, first.Event.ID, second.Event.ID)
	assert.NotEqual(t, first.Event.Seq, second.Event.Seq)

	time.Sleep(20 * time.Millisecond)
	assert.Len(t, sched.requests(), 2)
	assert.Len(t, owner.tasks, 1)
}

func TestWorker_importScripts(t *testing.T) {
	o := newTestOwner(t, WithErrorReporter(func(ErrorRecord) {}))
	w := startWorker(t, o, MapLoader{
		"main.js": `
importScripts('lib/double.js', 'lib/inc.js');
postMessage(inc(double(20)));
try {
	importScripts('missing.js');
} catch (e) {
	postMessage('missing: ' + String(e).includes('not found'));
}
importScripts('lib/throws.js');
`,
		"lib/double.js": `function double(x) { return x * 2; }`,
		"lib/inc.js":    `function inc(x) { return x + 1; }`,
		"lib/throws.js": `throw new TypeError('from import');`,
	})
	messages := collect(w, "message")
	errs := collect(w, "error")
	runOwner(t, o)

	assert.Equal(t, float64(41), receive(t, messages))
	assert.Equal(t, "missing: true", receive(t, messages))

	rec := receive(t, errs).(*ErrorRecord)
	assert.Equal(t, "TypeError: from import", rec.Message)
	assert.Equal(t, "lib/throws.js", rec.Filename)
}

func TestWorker_consoleCaptured(t *testing.T) {
	var (
		mu   sync.Mutex
		live []CachedMessage
	)
	o := newTestOwner(t)
	runOwner(t, o)
	w := startWorker(t, o, MapLoader{"main.js": `console.log('hello', 1); console.warn('careful');`},
		WithLiveNotifications(true),
		WithDebugNotifier(func(msg CachedMessage) {
			mu.Lock()
			live = append(live, msg)
			mu.Unlock()
		}))

	done := make(chan struct{})
	require.NoError(t, w.PostTask(context.Background(), func(*Scope) error {
		close(done)
		return nil
	}))
	receive(t, (<-chan struct{})(done))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, live, 2)
	assert.Equal(t, "log", live[0].Level)
	assert.Equal(t, "hello 1", live[0].Message)
	assert.Equal(t, "warn", live[1].Level)
	assert.True(t, strings.HasPrefix(live[1].Message, "careful"))
}
