// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Command dedicatedworker runs a script file as a dedicated worker, printing
// the messages it posts, its console output, and any uncaught errors.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joeycumines/logiface"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// rootOptions holds global flags.
type rootOptions struct {
	LogLevel string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "dedicatedworker",
		Short: "Run scripts as dedicated workers",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := parseLevel(opts.LogLevel)
			return err
		},
	}
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "warning", "log level (disabled|emerg|alert|crit|err|warning|notice|info|debug|trace)")
	cmd.AddCommand(newRunCommand(opts))
	return cmd
}

var levels = map[string]logiface.Level{
	logiface.LevelDisabled.String():      logiface.LevelDisabled,
	logiface.LevelEmergency.String():     logiface.LevelEmergency,
	logiface.LevelAlert.String():         logiface.LevelAlert,
	logiface.LevelCritical.String():      logiface.LevelCritical,
	logiface.LevelError.String():         logiface.LevelError,
	logiface.LevelWarning.String():       logiface.LevelWarning,
	logiface.LevelNotice.String():        logiface.LevelNotice,
	logiface.LevelInformational.String(): logiface.LevelInformational,
	logiface.LevelDebug.String():         logiface.LevelDebug,
	logiface.LevelTrace.String():         logiface.LevelTrace,
}

func parseLevel(s string) (logiface.Level, error) {
	if level, ok := levels[s]; ok {
		return level, nil
	}
	return logiface.LevelDisabled, fmt.Errorf("invalid log level %q", s)
}
