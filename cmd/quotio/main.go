// Copyright 2026 The Quotio Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/quotio/quotio/cmd/quotio/cli"
	"github.com/quotio/quotio/lib/config"
	"github.com/quotio/quotio/lib/version"
)

func main() {
	if err := run(); err != nil {
		// Commands that print their own output (like backend status)
		// return an ExitError with the desired exit code. Don't print a
		// redundant "error:" line for those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return rootCommand().Execute(os.Args[1:])
}

func rootCommand() *cli.Command {
	return &cli.Command{
		Name:        "quotio",
		Description: "Quotio keeps CLI coding agents on fresh connections to a local AI proxy\nand tracks per-provider usage.",
		Subcommands: []*cli.Command{
			runCommand(),
			backendCommand(),
			usageCommand(),
			modelsCommand(),
			versionCommand(),
		},
		Examples: []cli.Example{
			{Description: "Run the relay and backend in the foreground", Command: "quotio run"},
			{Description: "Watch live usage", Command: "quotio usage --watch"},
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "print version information",
		Run: func(args []string) error {
			fmt.Println(version.Full())
			return nil
		},
	}
}

// configFlag registers the shared --config flag on a flag set and
// returns the destination pointer, defaulting to the standard location.
func configFlag(flagSet *pflag.FlagSet) *string {
	return flagSet.String("config", config.DefaultPath(), "path to the quotio config file")
}

// loadConfig loads and validates the configuration for a command.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
