// Copyright 2026 The Quotio Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/quotio/quotio/cmd/quotio/cli"
	"github.com/quotio/quotio/relay"
	"github.com/quotio/quotio/supervisor"
	"github.com/quotio/quotio/usage"
)

func runCommand() *cli.Command {
	var configPath *string
	var verbose *bool

	return &cli.Command{
		Name:    "run",
		Summary: "run the relay and backend in the foreground",
		Description: "Run starts the backend (unless one is already running), then the relay\n" +
			"on the front port, and serves until interrupted. Usage totals are\n" +
			"flushed to the history file periodically and at shutdown.",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
			configPath = configFlag(flagSet)
			verbose = flagSet.BoolP("verbose", "v", false, "per-connection debug logging")
			return flagSet
		},
		Run: func(args []string) error {
			return runDaemon(*configPath, *verbose)
		},
	}
}

func runDaemon(configPath string, verbose bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	logger := cli.NewCommandLogger(verbose)
	slog.SetDefault(logger)

	ctx := context.Background()

	// Start the backend first: the relay answers 502 until the back
	// port is live, and waiting here keeps that window out of normal
	// startup. A backend left over from an earlier invocation is
	// adopted rather than restarted, and in that case it is also left
	// running at exit.
	sup := &supervisor.Supervisor{Config: cfg, Logger: logger}
	spawnedBackend := false
	switch err := sup.Start(ctx); {
	case err == nil:
		spawnedBackend = true
	case errors.Is(err, supervisor.ErrAlreadyRunning):
	default:
		return err
	}

	stopBackend := func() {
		if !spawnedBackend {
			return
		}
		if err := sup.Stop(); err != nil {
			logger.Warn("stopping backend failed", "error", err)
		}
	}

	// Seed the tracker from the persisted history so totals accumulate
	// across restarts. An unreadable file costs the history, not the
	// daemon.
	snapshot, err := usage.Load(cfg.HistoryFile())
	if err != nil {
		logger.Warn("usage history unreadable, starting fresh", "error", err)
		snapshot = usage.Snapshot{}
	}
	tracker := usage.FromSnapshot(snapshot)

	r := &relay.Relay{Logger: logger, Sink: tracker}
	if err := r.Configure(cfg.Port, cfg.EffectiveBackendPort()); err != nil {
		stopBackend()
		return err
	}
	if err := r.Start(ctx); err != nil {
		stopBackend()
		return err
	}

	flush := func() {
		if err := usage.Save(cfg.HistoryFile(), tracker.Snapshot()); err != nil {
			logger.Warn("flushing usage history failed", "error", err)
		}
	}

	ticker := time.NewTicker(cfg.FlushInterval())
	defer ticker.Stop()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	for {
		select {
		case <-ticker.C:
			flush()

		case sig := <-signals:
			logger.Info("shutting down", "signal", sig.String())
			r.Stop()
			r.Wait()
			flush()
			stopBackend()
			return nil

		// Done() is nil unless this process spawned the backend, and a
		// nil channel never fires.
		case <-sup.Done():
			r.Stop()
			r.Wait()
			flush()
			return fmt.Errorf("backend exited unexpectedly (exit code %d); see %s",
				sup.ExitCode(), cfg.LogFile())
		}
	}
}
