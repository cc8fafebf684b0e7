// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	eventloop "github.com/joeycumines/go-eventloop"
	"github.com/joeycumines/stumpy"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	dedicatedworker "github.com/joeycumines/go-dedicatedworker"
)

// runOptions holds flags for the run command.
type runOptions struct {
	*rootOptions
	Messages []string
	Evals    []string
	Name     string
	Timeout  time.Duration
}

func newRunCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &runOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <script>",
		Short: "Run a script file as a worker",
		Long: `Run a script file as a dedicated worker.

Each --message is parsed as JSON and posted to the worker, in order, after the
script has been started. Messages posted by the worker are printed to stdout,
one JSON document per line. The worker runs until it calls close(), or the
timeout elapses.

Example:
  dedicatedworker run ./worker.js --message '{"n": 21}' --timeout 5s
  dedicatedworker run ./worker.js --eval 'self.name' --name demo`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), opts, args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringArrayVar(&opts.Messages, "message", nil, "JSON message to post to the worker (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Evals, "eval", nil, "expression to evaluate in the worker via the debug lane (repeatable)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "worker name, exposed to the script as self.name")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "terminate the worker after this long (0 disables)")

	return cmd
}

// lockedWriter serializes writes from the worker and owner threads.
type lockedWriter struct {
	w  io.Writer
	mu *sync.Mutex
}

func (x lockedWriter) Write(p []byte) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.w.Write(p)
}

func runWorker(ctx context.Context, opts *runOptions, script string, stdout, stderr io.Writer) error {
	var mu sync.Mutex
	stdout = lockedWriter{w: stdout, mu: &mu}
	stderr = lockedWriter{w: stderr, mu: &mu}

	level, err := parseLevel(opts.LogLevel)
	if err != nil {
		return err
	}
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(stderr)),
		stumpy.L.WithLevel(level),
	).Logger()

	messages := make([][]byte, 0, len(opts.Messages))
	for i, raw := range opts.Messages {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
		data, err := dedicatedworker.EncodeValue(v)
		if err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
		messages = append(messages, data)
	}

	abs, err := filepath.Abs(script)
	if err != nil {
		return err
	}

	owner, err := dedicatedworker.NewOwner(
		dedicatedworker.WithOwnerLogger(logger),
		dedicatedworker.WithErrorReporter(func(rec dedicatedworker.ErrorRecord) {
			fmt.Fprintln(stderr, "uncaught:", rec.String())
		}),
		dedicatedworker.WithWorkerOptions(
			dedicatedworker.WithLiveNotifications(true),
			dedicatedworker.WithDebugNotifier(func(msg dedicatedworker.CachedMessage) {
				fmt.Fprintf(stderr, "console.%s: %s\n", msg.Level, msg.Message)
			}),
		),
	)
	if err != nil {
		return err
	}
	defer owner.Close()

	debug := make(chan dedicatedworker.DebugControl)
	defer close(debug)

	pipeline := dedicatedworker.PipelineID(uuid.NewString())
	w, err := owner.NewWorker(dedicatedworker.InitBundle{
		Loader:    dedicatedworker.FileLoader{},
		Debug:     debug,
		SourceURL: abs,
		Name:      opts.Name,
		Security:  dedicatedworker.Security{PipelineID: pipeline},
	})
	if err != nil {
		return err
	}

	w.AddEventListener("message", func(e *eventloop.Event) {
		b, err := json.Marshal(e.Detail())
		if err != nil {
			fmt.Fprintf(stdout, "%v\n", e.Detail())
			return
		}
		fmt.Fprintf(stdout, "%s\n", b)
	})
	w.AddEventListener("messageerror", func(e *eventloop.Event) {
		fmt.Fprintln(stderr, "messageerror:", e.Detail())
	})

	g, ctx := errgroup.WithContext(ctx)
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	g.Go(func() error {
		if err := owner.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		defer cancelRun()

		for _, data := range messages {
			if err := w.Handle().PostMessage(ctx, data); err != nil {
				if errors.Is(err, dedicatedworker.ErrWorkerClosed) {
					break
				}
				return err
			}
		}

	Evals:
		for _, src := range opts.Evals {
			reply := make(chan dedicatedworker.EvaluateResult, 1)
			select {
			case debug <- &dedicatedworker.EvaluateScript{Reply: reply, PipelineID: pipeline, Source: src}:
			case <-w.Done():
				break Evals
			case <-ctx.Done():
				return ctx.Err()
			}
			select {
			case res := <-reply:
				fmt.Fprintf(stdout, "eval %s: %s (%s)\n", src, res.String, res.Kind)
			case <-w.Done():
				break Evals
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		waitCtx := ctx
		if opts.Timeout > 0 {
			var cancel context.CancelFunc
			waitCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
			defer cancel()
		}
		werr := w.Wait(waitCtx)
		if errors.Is(werr, context.DeadlineExceeded) {
			w.Terminate()
			werr = w.Wait(ctx)
		}

		// tasks already posted by the worker run first
		flushed := make(chan struct{})
		if err := owner.PostOwnerTask(ctx, func(dedicatedworker.OwnerContext) { close(flushed) }); err == nil {
			select {
			case <-flushed:
			case <-ctx.Done():
			}
		}

		return werr
	})

	return g.Wait()
}
