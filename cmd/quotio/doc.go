// Copyright 2026 The Quotio Authors
// SPDX-License-Identifier: Apache-2.0

// Command quotio manages the connection-freshness relay and the
// CLIProxyAPI backend it forwards to.
//
//	quotio run                 run the relay and backend in the foreground
//	quotio backend <action>    start, stop, restart, or inspect the backend
//	quotio usage [--watch]     show aggregated usage, or a live dashboard
//	quotio models              list models available through the relay
//	quotio version             print version information
package main
