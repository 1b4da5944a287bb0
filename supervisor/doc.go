// Copyright 2026 The Quotio Authors
// SPDX-License-Identifier: Apache-2.0

// Package supervisor manages the CLIProxyAPI backend process that the
// relay forwards to.
//
// [Supervisor.Start] discovers the installed binary, writes the
// generated backend config, spawns the process with stdout and stderr
// merged into a rotating log file, records its pid, and waits for the
// backend port to accept connections before returning. The pid file
// under the data directory is the source of truth for whether a
// backend is running, so [Supervisor.Stop] can terminate a backend
// started by an earlier quotio invocation, not just one spawned in
// this process. [Supervisor.Status] reports liveness without side
// effects.
//
// The backend is a standalone server with its own config format; the
// supervisor owns the small slice of that config Quotio cares about
// (listen address, auth directory, routing) and regenerates it on
// every start.
//
// This package depends on lib/binhash for spawn-time binary digests,
// lib/config for ports and paths, and lib/netutil for readiness
// probes.
package supervisor
