// Copyright 2026 The Quotio Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/quotio/quotio/lib/config"
	"github.com/quotio/quotio/lib/version"
	"github.com/quotio/quotio/relay"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Parse flags manually to handle the -- separator.
	frontPort := uint16(config.DefaultPort)
	backPort := uint16(0)
	verbose := false
	var execCommand []string

	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--":
			// Everything after -- is the command to exec.
			execCommand = args[i+1:]
			i = len(args) // Stop parsing.
		case arg == "--listen" || arg == "-l":
			if i+1 >= len(args) {
				return fmt.Errorf("--listen requires an argument")
			}
			i++
			port, err := parsePort(args[i])
			if err != nil {
				return fmt.Errorf("--listen: %w", err)
			}
			frontPort = port
		case arg == "--backend" || arg == "-b":
			if i+1 >= len(args) {
				return fmt.Errorf("--backend requires an argument")
			}
			i++
			port, err := parsePort(args[i])
			if err != nil {
				return fmt.Errorf("--backend: %w", err)
			}
			backPort = port
		case arg == "--verbose" || arg == "-v":
			verbose = true
		case arg == "--help" || arg == "-h":
			printUsage()
			return nil
		case arg == "--version":
			fmt.Printf("quotio-relay %s\n", version.Info())
			return nil
		default:
			return fmt.Errorf("unknown flag: %s", arg)
		}
	}

	if backPort == 0 {
		backPort = config.DeriveBackendPort(frontPort)
	}

	// Configure logger: verbose enables Debug level for per-connection
	// events; default Info level shows only lifecycle and errors.
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	r := &relay.Relay{Logger: logger}
	if err := r.Configure(frontPort, backPort); err != nil {
		return err
	}

	if len(execCommand) > 0 {
		return runExecMode(r, execCommand)
	}

	return runStandalone(r)
}

// parsePort parses a decimal TCP port.
func parsePort(s string) (uint16, error) {
	port, err := strconv.ParseUint(s, 10, 16)
	if err != nil || port == 0 {
		return 0, fmt.Errorf("%q is not a valid port", s)
	}
	return uint16(port), nil
}

func printUsage() {
	fmt.Print(`quotio-relay - Connection-freshness relay for a local AI proxy

USAGE
    quotio-relay [flags]
    quotio-relay [flags] -- <command> [args...]

FLAGS
    -l, --listen <port>     Front port to listen on (default: 8317)
    -b, --backend <port>    Backend port to forward to (default: derived
                            from the front port)
    -v, --verbose           Enable per-connection debug logging
    -h, --help              Show this help
        --version           Print the version and exit

EXAMPLES
    # Run as a standalone relay
    quotio-relay --listen 8317 --backend 18317

    # Run the relay and then a CLI agent that uses it
    quotio-relay -- aider --model gpt-4o

In exec mode, the relay runs in the background and the command is run
with signals forwarded; the relay stops when the command exits and the
command's exit code is propagated.
`)
}

// runExecMode starts the relay, runs a subprocess, then stops the relay
// when the subprocess exits.
func runExecMode(r *relay.Relay, command []string) error {
	ctx := context.Background()

	if err := r.Start(ctx); err != nil {
		return err
	}
	defer r.Stop()

	commandPath, err := exec.LookPath(command[0])
	if err != nil {
		return fmt.Errorf("command not found: %s", command[0])
	}

	cmd := exec.Command(commandPath, command[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	// Forward signals to the child.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for sig := range sigChan {
			if cmd.Process != nil {
				cmd.Process.Signal(sig)
			}
		}
	}()

	err = cmd.Run()
	signal.Stop(sigChan)

	// Propagate exit code. Stop the relay explicitly before os.Exit
	// because os.Exit does not run deferred functions.
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			r.Stop()
			os.Exit(exitErr.ExitCode())
		}
		return err
	}

	return nil
}

// runStandalone runs the relay until interrupted by SIGINT or SIGTERM.
func runStandalone(r *relay.Relay) error {
	ctx := context.Background()

	if err := r.Start(ctx); err != nil {
		return err
	}

	// Wait for shutdown signal.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	r.Stop()
	return nil
}
