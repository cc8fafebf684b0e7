// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package dedicatedworker implements dedicated workers: isolated JavaScript
// execution contexts (via [github.com/dop251/goja]), each running on its own
// OS thread, communicating with their owner only by message passing.
//
// # Architecture
//
// A worker multiplexes three independent lanes into a single ordered loop:
//
//   - Inbox: tasks and messages posted via a [Handle]
//   - Timer: fire notifications from a [TimerScheduler], relayed exactly once
//   - Debug: [DebugControl] messages, e.g. [EvaluateScript]
//
// Each iteration receives one [Envelope] (see [SelectPolicy]), dispatches it
// with the worker identity installed, then drains the microtask queue before
// receiving again. Envelopes from a single lane are processed in FIFO order.
//
// # Lifecycle
//
// [Spawn] starts the worker thread, which fetches the script via the
// [Loader], evaluates it, then enters the loop. The loop exits when:
//
//   - [Handle.Close] is called, which also interrupts any running script
//   - the script calls close(), after the current task completes
//   - every lane has closed, e.g. once every [Handle] clone is released (and
//     there is no scheduler or debug source), reported as [ErrChannelClosed]
//   - a lane delivers an envelope inconsistent with its origin, reported as
//     a [*ProtocolViolationError]
//
// Uncaught errors are isolated to the message that raised them. Each one is
// posted to the owner as an [OwnerTask], which dispatches a cancelable
// "error" event on the [Worker] object, then (unless canceled) passes the
// [ErrorRecord] to the owner's top-level reporter.
//
// # Owner
//
// [Owner] is a ready-made [OwnerChannel]: a task queue, a weak registry of
// [Worker] objects keyed by [Address], an in-process [Scheduler], and an
// optional thread limit.
//
// # Usage
//
//	owner, err := dedicatedworker.NewOwner()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer owner.Close()
//	go owner.Run(ctx)
//
//	w, err := owner.NewWorker(dedicatedworker.InitBundle{
//	    SourceURL: "main.js",
//	    Loader: dedicatedworker.MapLoader{
//	        "main.js": `onmessage = (e) => postMessage(e.data * 2);`,
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	w.AddEventListener("message", func(e *eventloop.Event) {
//	    fmt.Println(e.Detail()) // 42
//	})
//	_ = w.PostMessage(ctx, 21)
package dedicatedworker
