// Copyright 2026 The Quotio Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// State identifies where the relay is in its lifecycle.
type State string

const (
	// StateIdle means the relay has never been started.
	StateIdle State = "idle"
	// StateStarting means Start is binding the listener.
	StateStarting State = "starting"
	// StateListening means the listener is bound and accepting.
	StateListening State = "listening"
	// StateFailed means the last Start could not bind; LastError
	// carries the bind error.
	StateFailed State = "failed"
	// StateStopped means the relay was stopped after running.
	StateStopped State = "stopped"
)

// CompletionRecord describes one relayed request. It is emitted after
// the response — forwarded from the backend or synthesized by the
// relay — has been delivered to the client.
type CompletionRecord struct {
	// Timestamp is when the request was accepted.
	Timestamp time.Time

	// Method and Path come from the request line. Both are empty for
	// a synthesized 400 when no request line was parseable.
	Method string
	Path   string

	// Provider and Model classify the request for usage tracking;
	// empty when inference found nothing.
	Provider string
	Model    string

	// StatusCode is parsed from the response status line; zero when
	// no status line could be parsed.
	StatusCode int

	// Duration is wall clock from accept to response completion.
	Duration time.Duration

	// RequestBytes counts bytes received from the client;
	// ResponseBytes counts bytes delivered back to it.
	RequestBytes  int64
	ResponseBytes int64
}

// RecordSink consumes completion records, one per answered request.
// The relay calls Record from the connection's own goroutine after
// the response has been fully delivered, so implementations must not
// block for long but are never on the data path.
type RecordSink interface {
	Record(CompletionRecord)
}

// Stats is a point-in-time snapshot of the relay's counters.
type Stats struct {
	// TotalRequests counts connections that were answered: a framed
	// request was forwarded, or a synthesized response was sent.
	TotalRequests int64

	// ActiveConnections counts connection handlers currently running.
	ActiveConnections int64
}

// Relay accepts client connections on a front port and forwards each
// framed HTTP/1.1 request over a fresh connection to the backend on
// the back port. Every outbound request carries Connection: close, so
// a stale kept-alive backend connection can never be handed to a
// client. There is no keep-alive on the client side either: one
// connection, one request, one response.
//
// The zero value is usable: Configure, then Start.
type Relay struct {
	// Logger receives structured log output. If nil, slog.Default()
	// is used. Per-connection events are logged at Debug level;
	// lifecycle events at Info/Error.
	Logger *slog.Logger

	// Sink, when non-nil, receives one CompletionRecord per answered
	// request.
	Sink RecordSink

	mu        sync.Mutex
	frontPort uint16
	backPort  uint16
	state     State
	lastError error
	listener  net.Listener
	done      chan struct{}
	unwatch   func() bool

	connections       sync.WaitGroup
	totalRequests     atomic.Int64
	activeConnections atomic.Int64
}

// logger returns the configured logger or the default.
func (r *Relay) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Configure sets the front and back ports. Both are required and must
// differ. The relay must not be running: stop it first. Port changes
// never affect in-flight requests — each connection works from the
// snapshot taken when it was accepted.
func (r *Relay) Configure(frontPort, backPort uint16) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateStarting || r.state == StateListening {
		return fmt.Errorf("relay: cannot configure while running (stop first)")
	}
	if frontPort == 0 {
		return fmt.Errorf("relay: front port is required")
	}
	if backPort == 0 {
		return fmt.Errorf("relay: back port is required")
	}
	if frontPort == backPort {
		return fmt.Errorf("relay: front and back ports must differ")
	}

	r.frontPort = frontPort
	r.backPort = backPort
	return nil
}

// Start binds a listener on 127.0.0.1:frontPort and begins accepting.
// It returns once the listener is bound, or an error if binding
// fails; a bind failure also moves the relay to StateFailed with the
// error retained for LastError. Starting an already-listening relay
// logs and returns nil. The relay runs in the background until Stop
// is called or ctx is cancelled.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateListening {
		r.logger().Info("relay already listening", "front_port", r.frontPort)
		return nil
	}
	if r.frontPort == 0 || r.backPort == 0 {
		return fmt.Errorf("relay: not configured")
	}

	r.state = StateStarting

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", r.frontPort))
	if err != nil {
		bindError := fmt.Errorf("relay: failed to listen on 127.0.0.1:%d: %w", r.frontPort, err)
		r.state = StateFailed
		r.lastError = bindError
		return bindError
	}

	r.listener = listener
	r.state = StateListening
	r.lastError = nil
	r.done = make(chan struct{})
	r.unwatch = context.AfterFunc(ctx, r.Stop)

	backPort := r.backPort
	done := r.done
	go func() {
		defer close(done)
		r.acceptLoop(listener, backPort)
	}()

	r.logger().Info("relay started",
		"front_port", r.frontPort,
		"back_port", r.backPort,
	)
	return nil
}

// Stop closes the listener and marks the relay stopped. It is
// idempotent: stopping a relay that isn't running does nothing.
// In-flight requests are not cancelled — they drain to natural
// completion or natural error; use Wait to block until they have.
func (r *Relay) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateListening {
		return
	}

	// Closing the listener wakes the accept loop, which drains the
	// in-flight handlers and then closes the done channel that Wait
	// observes.
	r.state = StateStopped
	r.listener.Close()
	r.listener = nil
	if r.unwatch != nil {
		r.unwatch()
		r.unwatch = nil
	}

	r.logger().Info("relay stopped", "front_port", r.frontPort)
}

// Wait blocks until the accept loop has exited and every connection
// handler has finished. It returns immediately if the relay was never
// started.
func (r *Relay) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()

	if done != nil {
		<-done
	}
}

// State returns the current lifecycle state.
func (r *Relay) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == "" {
		return StateIdle
	}
	return r.state
}

// LastError returns the bind error from the most recent failed Start,
// or nil.
func (r *Relay) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastError
}

// Addr returns the listener's address while the relay is listening,
// nil otherwise.
func (r *Relay) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// TotalRequests returns how many connections have been answered since
// the relay was created. The counter survives stop/start cycles.
func (r *Relay) TotalRequests() int64 {
	return r.totalRequests.Load()
}

// ActiveConnections returns how many connection handlers are running
// right now.
func (r *Relay) ActiveConnections() int64 {
	return r.activeConnections.Load()
}

// Stats returns a snapshot of both counters.
func (r *Relay) Stats() Stats {
	return Stats{
		TotalRequests:     r.totalRequests.Load(),
		ActiveConnections: r.activeConnections.Load(),
	}
}

// acceptLoop accepts connections until the listener closes, spawning
// one handler goroutine per connection. It waits for all in-flight
// handlers to finish before returning, so that closing the done
// channel signals full quiescence.
func (r *Relay) acceptLoop(listener net.Listener, backPort uint16) {
	var connectionCount int64

	for {
		conn, err := listener.Accept()
		if err != nil {
			// Only Stop closes this listener, so a closed error is
			// the shutdown signal for this generation of the loop.
			if errors.Is(err, net.ErrClosed) {
				r.connections.Wait()
				return
			}
			r.logger().Error("accept failed", "error", err)
			continue
		}

		connectionCount++
		connectionID := connectionCount
		r.connections.Add(1)
		go func() {
			defer r.connections.Done()
			r.handleConnection(conn, connectionID, backPort)
		}()
	}
}

// emit hands a completion record to the sink, if one is set.
func (r *Relay) emit(record CompletionRecord) {
	if r.Sink != nil {
		r.Sink.Record(record)
	}
}
