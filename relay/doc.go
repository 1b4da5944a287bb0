// Copyright 2026 The Quotio Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay provides the local HTTP/1.1 forwarding relay between
// CLI coding agents and the managed backend proxy.
//
// Kept-alive connections to the backend go stale: the backend times
// them out silently, and the next request a client sends down a reused
// connection hangs or fails. The relay eliminates the problem by
// construction. It accepts client connections on a front port, frames
// each HTTP/1.1 request incrementally (headers to \r\n\r\n, then
// Content-Length bytes of body), and forwards it over a freshly dialed
// connection to 127.0.0.1 on the back port with Connection: close
// forced onto every outbound request. Responses stream back in bounded
// chunks, so long-running LLM responses reach the client while the
// backend is still producing them; only the first 100 bytes are
// retained for status parsing.
//
// [Relay] is the single type. Configure sets the two ports (only while
// stopped), Start binds the listener and accepts in a background
// goroutine, Stop closes the listener and lets in-flight requests
// drain naturally, and Wait blocks until they have. Every accepted
// connection runs in its own goroutine with no shared mutable state
// beyond two monitoring counters, so one failed request never affects
// another. When the relay itself must answer — unframeable request,
// unreachable backend, handler panic — it synthesizes a minimal 400,
// 502, or 500 response.
//
// Each answered request produces one [CompletionRecord], delivered to
// the configured [RecordSink] after the response has been fully
// handled; the sink is never on the data path.
//
// There is no concurrency cap and no backpressure: acceptable for a
// localhost-only, single-user tool, but a known limitation if the
// deployment assumptions change.
package relay
