// Copyright 2026 The Quotio Authors
// SPDX-License-Identifier: Apache-2.0

package usage

import (
	"sync"
	"time"

	"github.com/quotio/quotio/relay"
)

// durationBoundaries are the histogram bucket upper bounds in seconds,
// chosen for AI request latency. Ranges from 5ms to 60s, covering
// instant local failures through slow streaming completions.
var durationBoundaries = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// recentCapacity bounds the in-memory request log. Old records are
// overwritten once the ring is full.
const recentCapacity = 256

// providerUnknown is the aggregation key for requests whose provider
// could not be inferred from the path or the request body.
const providerUnknown = "unknown"

// Histogram accumulates observations into fixed buckets. BucketCounts
// has len(Boundaries)+1 entries: one per boundary plus the implicit
// +Inf bucket.
type Histogram struct {
	Boundaries   []float64 `cbor:"boundaries"`
	BucketCounts []uint64  `cbor:"bucket_counts"`
	Sum          float64   `cbor:"sum"`
	Count        uint64    `cbor:"count"`
}

func newHistogram() *Histogram {
	return &Histogram{
		Boundaries:   durationBoundaries,
		BucketCounts: make([]uint64, len(durationBoundaries)+1),
	}
}

func (h *Histogram) observe(duration time.Duration) {
	seconds := duration.Seconds()
	h.Sum += seconds
	h.Count++

	for i, boundary := range h.Boundaries {
		if seconds <= boundary {
			h.BucketCounts[i]++
			return
		}
	}
	h.BucketCounts[len(h.Boundaries)]++
}

func (h *Histogram) clone() *Histogram {
	if h == nil {
		return nil
	}
	copied := &Histogram{
		Boundaries:   make([]float64, len(h.Boundaries)),
		BucketCounts: make([]uint64, len(h.BucketCounts)),
		Sum:          h.Sum,
		Count:        h.Count,
	}
	copy(copied.Boundaries, h.Boundaries)
	copy(copied.BucketCounts, h.BucketCounts)
	return copied
}

// ProviderTotals aggregates everything known about one provider.
// Counters are cumulative (monotonically increasing).
type ProviderTotals struct {
	// Requests counts answered requests attributed to this provider.
	// Errors counts the subset whose status code was >= 400 or could
	// not be determined at all.
	Requests int64 `cbor:"requests"`
	Errors   int64 `cbor:"errors"`

	// RequestBytes and ResponseBytes are transfer totals as measured
	// by the relay on its two sockets.
	RequestBytes  int64 `cbor:"request_bytes"`
	ResponseBytes int64 `cbor:"response_bytes"`

	// LastModel is the most recently seen model name, empty when no
	// request carried one. ModelCounts counts requests per model.
	LastModel   string           `cbor:"last_model,omitempty"`
	ModelCounts map[string]int64 `cbor:"model_counts,omitempty"`

	// Latency is the request duration distribution.
	Latency *Histogram `cbor:"latency"`
}

func (p *ProviderTotals) clone() *ProviderTotals {
	copied := &ProviderTotals{
		Requests:      p.Requests,
		Errors:        p.Errors,
		RequestBytes:  p.RequestBytes,
		ResponseBytes: p.ResponseBytes,
		LastModel:     p.LastModel,
		Latency:       p.Latency.clone(),
	}
	if p.ModelCounts != nil {
		copied.ModelCounts = make(map[string]int64, len(p.ModelCounts))
		for model, count := range p.ModelCounts {
			copied.ModelCounts[model] = count
		}
	}
	return copied
}

// RequestRecord is the persisted form of one relayed request, kept in
// the recent-request ring for the dashboard's request log.
type RequestRecord struct {
	Timestamp     time.Time     `cbor:"timestamp"`
	Method        string        `cbor:"method,omitempty"`
	Path          string        `cbor:"path,omitempty"`
	Provider      string        `cbor:"provider,omitempty"`
	Model         string        `cbor:"model,omitempty"`
	StatusCode    int           `cbor:"status_code,omitempty"`
	Duration      time.Duration `cbor:"duration"`
	RequestBytes  int64         `cbor:"request_bytes"`
	ResponseBytes int64         `cbor:"response_bytes"`
}

// Snapshot is a point-in-time copy of a tracker's state. It shares no
// memory with the tracker that produced it, and it is the unit the
// store persists.
type Snapshot struct {
	// UpdatedAt is when the last record was absorbed; zero when the
	// tracker has seen nothing.
	UpdatedAt time.Time `cbor:"updated_at"`

	// Providers maps provider name to its cumulative totals.
	Providers map[string]*ProviderTotals `cbor:"providers"`

	// Recent holds up to recentCapacity records, oldest first.
	Recent []RequestRecord `cbor:"recent,omitempty"`
}

// TotalRequests sums the request counters across all providers.
func (s Snapshot) TotalRequests() int64 {
	var total int64
	for _, totals := range s.Providers {
		total += totals.Requests
	}
	return total
}

// Tracker aggregates completion records by provider and keeps a
// bounded log of recent requests. It implements [relay.RecordSink].
// All methods are safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	updatedAt time.Time
	providers map[string]*ProviderTotals
	recent    []RequestRecord
	next      int
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		providers: make(map[string]*ProviderTotals),
	}
}

// FromSnapshot returns a tracker seeded with previously persisted
// state, so counts accumulate across daemon restarts. The snapshot is
// deep-copied; the caller keeps ownership of it.
func FromSnapshot(snapshot Snapshot) *Tracker {
	tracker := NewTracker()
	tracker.updatedAt = snapshot.UpdatedAt

	for provider, totals := range snapshot.Providers {
		restored := totals.clone()
		// A histogram from disk must satisfy the bucket invariant
		// before observe indexes into it.
		if restored.Latency == nil ||
			len(restored.Latency.BucketCounts) != len(restored.Latency.Boundaries)+1 {
			restored.Latency = newHistogram()
		}
		tracker.providers[provider] = restored
	}

	if len(snapshot.Recent) > 0 {
		recent := snapshot.Recent
		if len(recent) > recentCapacity {
			recent = recent[len(recent)-recentCapacity:]
		}
		tracker.recent = make([]RequestRecord, len(recent))
		copy(tracker.recent, recent)
		if len(tracker.recent) == recentCapacity {
			tracker.next = 0
		} else {
			tracker.next = len(tracker.recent)
		}
	}

	return tracker
}

// Record absorbs one completion record. Called by the relay from the
// connection's own goroutine after the response has been delivered.
func (t *Tracker) Record(record relay.CompletionRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	provider := record.Provider
	if provider == "" {
		provider = providerUnknown
	}

	totals := t.providers[provider]
	if totals == nil {
		totals = &ProviderTotals{
			Latency: newHistogram(),
		}
		t.providers[provider] = totals
	}

	totals.Requests++
	if record.StatusCode >= 400 || record.StatusCode == 0 {
		totals.Errors++
	}
	totals.RequestBytes += record.RequestBytes
	totals.ResponseBytes += record.ResponseBytes
	totals.Latency.observe(record.Duration)

	if record.Model != "" {
		totals.LastModel = record.Model
		if totals.ModelCounts == nil {
			totals.ModelCounts = make(map[string]int64)
		}
		totals.ModelCounts[record.Model]++
	}

	t.appendRecentLocked(RequestRecord{
		Timestamp:     record.Timestamp,
		Method:        record.Method,
		Path:          record.Path,
		Provider:      record.Provider,
		Model:         record.Model,
		StatusCode:    record.StatusCode,
		Duration:      record.Duration,
		RequestBytes:  record.RequestBytes,
		ResponseBytes: record.ResponseBytes,
	})
	t.updatedAt = time.Now()
}

func (t *Tracker) appendRecentLocked(record RequestRecord) {
	if len(t.recent) < recentCapacity {
		t.recent = append(t.recent, record)
		t.next = len(t.recent) % recentCapacity
		return
	}
	t.recent[t.next] = record
	t.next = (t.next + 1) % recentCapacity
}

// Snapshot returns a deep copy of the tracker's state. Mutating the
// returned snapshot never affects the tracker, and recording into the
// tracker never affects a snapshot already taken.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := Snapshot{
		UpdatedAt: t.updatedAt,
		Providers: make(map[string]*ProviderTotals, len(t.providers)),
		Recent:    t.recentLocked(),
	}
	for provider, totals := range t.providers {
		snapshot.Providers[provider] = totals.clone()
	}
	return snapshot
}

// recentLocked returns the ring's contents oldest first.
func (t *Tracker) recentLocked() []RequestRecord {
	if len(t.recent) == 0 {
		return nil
	}
	if len(t.recent) < recentCapacity {
		out := make([]RequestRecord, len(t.recent))
		copy(out, t.recent)
		return out
	}
	out := make([]RequestRecord, 0, recentCapacity)
	out = append(out, t.recent[t.next:]...)
	out = append(out, t.recent[:t.next]...)
	return out
}
