// Copyright 2026 The Quotio Authors
// SPDX-License-Identifier: Apache-2.0

// Command quotio-relay runs the connection-freshness relay on its own,
// without the backend supervisor or usage tracking. Useful when the
// backend is already managed elsewhere (launchd, a debugger, a test
// harness) and only the relay's forwarding behavior is wanted.
//
// Standalone mode runs until interrupted:
//
//	quotio-relay --listen 8317 --backend 18317
//
// Exec mode starts the relay, runs a command with signals forwarded,
// and stops the relay when the command exits, propagating its exit
// code:
//
//	quotio-relay --listen 8317 -- aider --model gpt-4o
package main
