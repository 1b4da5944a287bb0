// Copyright 2026 The Quotio Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/quotio/quotio/cmd/quotio/cli"
	"github.com/quotio/quotio/supervisor"
)

func backendCommand() *cli.Command {
	return &cli.Command{
		Name:    "backend",
		Summary: "manage the backend proxy process",
		Subcommands: []*cli.Command{
			backendActionCommand("start", "start the backend", func(sup *supervisor.Supervisor) error {
				err := sup.Start(context.Background())
				if errors.Is(err, supervisor.ErrAlreadyRunning) {
					fmt.Println("backend is already running")
					return nil
				}
				return err
			}),
			backendActionCommand("stop", "stop the backend", func(sup *supervisor.Supervisor) error {
				return sup.Stop()
			}),
			backendActionCommand("restart", "restart the backend", func(sup *supervisor.Supervisor) error {
				return sup.Restart(context.Background())
			}),
			backendStatusCommand(),
		},
	}
}

// backendActionCommand wraps one supervisor call in the shared
// config-loading and logger setup.
func backendActionCommand(name, summary string, action func(*supervisor.Supervisor) error) *cli.Command {
	var configPath *string

	return &cli.Command{
		Name:    name,
		Summary: summary,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
			configPath = configFlag(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			sup, err := newSupervisor(*configPath)
			if err != nil {
				return err
			}
			return action(sup)
		},
	}
}

func backendStatusCommand() *cli.Command {
	var configPath *string

	return &cli.Command{
		Name:    "status",
		Summary: "report whether the backend is running",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			configPath = configFlag(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			sup := &supervisor.Supervisor{Config: cfg, Logger: cli.NewCommandLogger(false)}

			status := sup.Status()
			switch {
			case status.Running:
				fmt.Printf("backend running (pid %d), port %d reachable: %v\n",
					status.PID, cfg.EffectiveBackendPort(), status.PortReachable)
				return nil
			case status.PortReachable:
				fmt.Printf("no managed backend, but port %d is in use by another process\n",
					cfg.EffectiveBackendPort())
				return &cli.ExitError{Code: 1}
			default:
				fmt.Println("backend is not running")
				return &cli.ExitError{Code: 1}
			}
		},
	}
}

// newSupervisor builds a supervisor from the config at path, with
// directories ensured and the standard logger installed.
func newSupervisor(configPath string) (*supervisor.Supervisor, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	logger := cli.NewCommandLogger(false)
	slog.SetDefault(logger)

	return &supervisor.Supervisor{Config: cfg, Logger: logger}, nil
}
