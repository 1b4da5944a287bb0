// Copyright 2026 The Quotio Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/quotio/quotio/cmd/quotio/cli"
	"github.com/quotio/quotio/usage"
)

func usageCommand() *cli.Command {
	var configPath *string
	var watch *bool

	return &cli.Command{
		Name:    "usage",
		Summary: "show aggregated request usage per provider",
		Description: "Usage reads the history file the running daemon flushes to and prints\n" +
			"per-provider totals. With --watch, a live dashboard refreshes as the\n" +
			"daemon keeps flushing.",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("usage", pflag.ContinueOnError)
			configPath = configFlag(flagSet)
			watch = flagSet.BoolP("watch", "w", false, "live dashboard")
			return flagSet
		},
		Run: func(args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			if *watch {
				return runDashboard(cfg.HistoryFile(), cfg.Port)
			}

			snapshot, err := usage.Load(cfg.HistoryFile())
			if err != nil {
				return err
			}
			printUsageSummary(snapshot)
			return nil
		},
	}
}

func printUsageSummary(snapshot usage.Snapshot) {
	if len(snapshot.Providers) == 0 {
		fmt.Println("no usage recorded yet")
		return
	}

	writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintln(writer, "PROVIDER\tREQUESTS\tERRORS\tSENT\tRECEIVED\tAVG LATENCY\tLAST MODEL")
	for _, provider := range sortedProviders(snapshot) {
		totals := snapshot.Providers[provider]
		fmt.Fprintf(writer, "%s\t%d\t%d\t%s\t%s\t%s\t%s\n",
			provider,
			totals.Requests,
			totals.Errors,
			formatBytes(totals.RequestBytes),
			formatBytes(totals.ResponseBytes),
			formatAverageLatency(totals.Latency),
			totals.LastModel,
		)
	}
	writer.Flush()

	fmt.Printf("\n%d requests total", snapshot.TotalRequests())
	if !snapshot.UpdatedAt.IsZero() {
		fmt.Printf(", last updated %s", snapshot.UpdatedAt.Format(time.RFC3339))
	}
	fmt.Println()
}

// sortedProviders returns provider names ordered by request count,
// busiest first, ties broken alphabetically.
func sortedProviders(snapshot usage.Snapshot) []string {
	providers := make([]string, 0, len(snapshot.Providers))
	for provider := range snapshot.Providers {
		providers = append(providers, provider)
	}
	sort.Slice(providers, func(i, j int) bool {
		left, right := snapshot.Providers[providers[i]], snapshot.Providers[providers[j]]
		if left.Requests != right.Requests {
			return left.Requests > right.Requests
		}
		return providers[i] < providers[j]
	})
	return providers
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GiB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func formatAverageLatency(histogram *usage.Histogram) string {
	if histogram == nil || histogram.Count == 0 {
		return "-"
	}
	average := time.Duration(histogram.Sum / float64(histogram.Count) * float64(time.Second))
	return average.Round(time.Millisecond).String()
}
