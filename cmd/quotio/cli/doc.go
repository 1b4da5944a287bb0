// Copyright 2026 The Quotio Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command-tree framework for the quotio binary:
// nested [Command] dispatch over pflag flag sets, synthesized help
// output, Levenshtein suggestions for mistyped commands and flags, and
// the terminal-aware logger used by every subcommand.
package cli
