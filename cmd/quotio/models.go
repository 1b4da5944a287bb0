// Copyright 2026 The Quotio Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
	"github.com/tidwall/gjson"

	"github.com/quotio/quotio/cmd/quotio/cli"
)

// modelsRequestTimeout bounds the whole models request. The backend
// answers from its own routing table, so this is generous.
const modelsRequestTimeout = 10 * time.Second

func modelsCommand() *cli.Command {
	var configPath *string
	var providerFilter *string

	return &cli.Command{
		Name:    "models",
		Summary: "list models available through the relay",
		Description: "Models asks the backend (through the relay on the front port) for its\n" +
			"model list, so the output reflects exactly what a CLI agent pointed at\n" +
			"the relay would see.",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("models", pflag.ContinueOnError)
			configPath = configFlag(flagSet)
			providerFilter = flagSet.String("provider", "", "only models owned by this provider")
			return flagSet
		},
		Run: func(args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return listModels(cfg.Port, *providerFilter)
		},
	}
}

func listModels(frontPort uint16, providerFilter string) error {
	client := &http.Client{Timeout: modelsRequestTimeout}

	url := fmt.Sprintf("http://127.0.0.1:%d/v1/models", frontPort)
	response, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("relay unreachable at %s (is 'quotio run' active?): %w", url, err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("reading models response: %w", err)
	}
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("backend answered %s: %s", response.Status, strings.TrimSpace(string(body)))
	}

	models := gjson.GetBytes(body, "data").Array()
	if len(models) == 0 {
		fmt.Println("no models reported")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintln(writer, "MODEL\tOWNED BY")
	matched := 0
	for _, model := range models {
		id := model.Get("id").String()
		owner := model.Get("owned_by").String()
		if providerFilter != "" && !strings.EqualFold(owner, providerFilter) {
			continue
		}
		fmt.Fprintf(writer, "%s\t%s\n", id, owner)
		matched++
	}
	writer.Flush()

	if matched == 0 && providerFilter != "" {
		fmt.Printf("no models owned by %q\n", providerFilter)
	}
	return nil
}
