// Copyright 2026 The Quotio Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// requestMetadata is derived once per framed request and carried
// through to the completion record.
type requestMetadata struct {
	timestamp time.Time
	method    string
	path      string
	provider  string // empty when unknown
	model     string // empty when unknown
}

// extractMetadata classifies the provider and model behind a framed
// request. Provider-specific path segments win; when the path says
// nothing, the model field of a JSON body decides. The model string is
// recorded whenever the body carries one, however the provider was
// chosen.
func extractMetadata(request *framedRequest, timestamp time.Time) requestMetadata {
	model := gjson.GetBytes(request.body, "model").String()

	provider := providerFromPath(request.path)
	if provider == "" {
		provider = providerFromModel(model)
	}

	return requestMetadata{
		timestamp: timestamp,
		method:    request.method,
		path:      request.path,
		provider:  provider,
		model:     model,
	}
}

// providerFromPath maps provider-specific path segments to provider
// names.
func providerFromPath(path string) string {
	switch {
	case strings.Contains(path, "/anthropic/"):
		return "claude"
	case strings.Contains(path, "/gemini/"), strings.Contains(path, "/google/"):
		return "gemini"
	case strings.Contains(path, "/openai/"), strings.Contains(path, "/chat/completions"):
		return "openai"
	case strings.Contains(path, "/copilot/"):
		return "copilot"
	}
	return ""
}

// providerFromModel infers the provider from well-known model name
// prefixes.
func providerFromModel(model string) string {
	switch {
	case model == "":
		return ""
	case strings.HasPrefix(model, "claude"):
		return "claude"
	case strings.HasPrefix(model, "gemini"), strings.HasPrefix(model, "models/gemini"):
		return "gemini"
	case strings.HasPrefix(model, "gpt"), strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"):
		return "openai"
	}
	return ""
}

// statusPrefixLimit bounds how much of the response is retained for
// status-line parsing. Everything past it is forwarded and counted,
// never kept.
const statusPrefixLimit = 100

// parseStatusCode extracts the status code from the retained response
// prefix: the second space-separated token of the first line. A prefix
// that doesn't parse yields ok=false, which is not an error — the
// bytes were forwarded to the client regardless.
func parseStatusCode(prefix []byte) (int, bool) {
	line := string(prefix)
	if idx := strings.Index(line, "\r\n"); idx >= 0 {
		line = line[:idx]
	}

	tokens := strings.Fields(line)
	if len(tokens) < 2 {
		return 0, false
	}

	code, err := strconv.Atoi(tokens[1])
	if err != nil {
		return 0, false
	}
	return code, true
}
