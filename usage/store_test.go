// Copyright 2026 The Quotio Authors
// SPDX-License-Identifier: Apache-2.0

package usage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/quotio/quotio/relay"
)

func TestStore_RoundTrip(t *testing.T) {
	tracker := NewTracker()
	tracker.Record(relay.CompletionRecord{
		Timestamp:     time.Now(),
		Method:        "POST",
		Path:          "/v1/messages",
		Provider:      "claude",
		Model:         "claude-opus-4",
		StatusCode:    200,
		Duration:      120 * time.Millisecond,
		RequestBytes:  512,
		ResponseBytes: 2048,
	})
	tracker.Record(relay.CompletionRecord{
		Timestamp:  time.Now(),
		Method:     "GET",
		Path:       "/v1/models",
		Provider:   "openai",
		StatusCode: 502,
		Duration:   time.Millisecond,
	})
	saved := tracker.Snapshot()

	path := filepath.Join(t.TempDir(), "usage.cbor.zst")
	if err := Save(path, saved); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got, want := loaded.UpdatedAt.UnixMicro(), saved.UpdatedAt.UnixMicro(); got != want {
		t.Errorf("UpdatedAt = %d µs, want %d µs", got, want)
	}
	if len(loaded.Providers) != 2 {
		t.Fatalf("provider count = %d, want 2", len(loaded.Providers))
	}

	claude := loaded.Providers["claude"]
	if claude == nil {
		t.Fatal("no totals for claude after reload")
	}
	if claude.Requests != 1 || claude.Errors != 0 {
		t.Errorf("claude = %d requests / %d errors, want 1 / 0", claude.Requests, claude.Errors)
	}
	if claude.RequestBytes != 512 || claude.ResponseBytes != 2048 {
		t.Errorf("claude bytes = %d / %d, want 512 / 2048", claude.RequestBytes, claude.ResponseBytes)
	}
	if claude.LastModel != "claude-opus-4" {
		t.Errorf("claude last model = %q", claude.LastModel)
	}
	if claude.ModelCounts["claude-opus-4"] != 1 {
		t.Errorf("claude model counts = %v", claude.ModelCounts)
	}
	if claude.Latency == nil || claude.Latency.Count != 1 {
		t.Errorf("claude latency did not survive the round trip: %+v", claude.Latency)
	}

	openai := loaded.Providers["openai"]
	if openai == nil || openai.Errors != 1 {
		t.Errorf("openai totals = %+v, want 1 error", openai)
	}

	if len(loaded.Recent) != 2 {
		t.Fatalf("recent length = %d, want 2", len(loaded.Recent))
	}
	if loaded.Recent[0].Path != "/v1/messages" || loaded.Recent[1].Path != "/v1/models" {
		t.Errorf("recent order = %s, %s", loaded.Recent[0].Path, loaded.Recent[1].Path)
	}
	if loaded.Recent[0].Duration != 120*time.Millisecond {
		t.Errorf("recent duration = %v, want 120ms", loaded.Recent[0].Duration)
	}
}

func TestStore_LoadMissingFile(t *testing.T) {
	snapshot, err := Load(filepath.Join(t.TempDir(), "does-not-exist.cbor.zst"))
	if err != nil {
		t.Fatalf("missing file should not be an error, got: %v", err)
	}
	if len(snapshot.Providers) != 0 || len(snapshot.Recent) != 0 {
		t.Errorf("missing file should load as a zero snapshot, got %+v", snapshot)
	}
	if !snapshot.UpdatedAt.IsZero() {
		t.Errorf("zero snapshot has UpdatedAt = %v", snapshot.UpdatedAt)
	}
}

func TestStore_LoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.cbor.zst")
	if err := os.WriteFile(path, []byte("not a zstd frame"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load should reject a corrupt history file")
	}
}

func TestStore_SaveReplacesAtomically(t *testing.T) {
	directory := t.TempDir()
	path := filepath.Join(directory, "usage.cbor.zst")

	first := NewTracker()
	first.Record(completion("claude", "", 200, time.Millisecond))
	if err := Save(path, first.Snapshot()); err != nil {
		t.Fatalf("first Save: %v", err)
	}

	second := NewTracker()
	second.Record(completion("claude", "", 200, time.Millisecond))
	second.Record(completion("claude", "", 200, time.Millisecond))
	if err := Save(path, second.Snapshot()); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := loaded.Providers["claude"].Requests; got != 2 {
		t.Errorf("loaded requests = %d, want the second snapshot's 2", got)
	}

	// No temporary file left behind.
	entries, err := os.ReadDir(directory)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "usage.cbor.zst" {
		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			names = append(names, entry.Name())
		}
		t.Errorf("directory contents = %v, want only usage.cbor.zst", names)
	}
}

func TestStore_FileIsZstdFramed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.cbor.zst")
	if err := Save(path, Snapshot{}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	zstdMagic := []byte{0x28, 0xB5, 0x2F, 0xFD}
	if len(data) < 4 || !bytes.Equal(data[:4], zstdMagic) {
		t.Errorf("history file does not start with the zstd frame magic: % x", data[:min(len(data), 8)])
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		t.Errorf("file mode = %o, want 0600", mode)
	}
}

func TestStore_EmptySnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.cbor.zst")
	if err := Save(path, Snapshot{}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Providers) != 0 || len(loaded.Recent) != 0 {
		t.Errorf("empty snapshot round trip produced %+v", loaded)
	}
}
