package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

// Not parallel: the level is process wide.

func TestNewFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, " WARN ")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if Level() != slog.LevelWarn {
		t.Fatalf("level = %s, want WARN", Level())
	}

	logger.Info("dropped")
	logger.Warn("kept", "table", "responses")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected exactly one JSON record, got %q: %v", buf.String(), err)
	}
	if record["msg"] != "kept" || record["table"] != "responses" || record["service"] != "lsp-log-store" {
		t.Fatalf("unexpected record: %v", record)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, "verbose"); err == nil {
		t.Fatalf("New() error = nil, want parse failure")
	}
}

func TestNewDefaultsToInfo(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, ""); err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if Level() != slog.LevelInfo {
		t.Fatalf("level = %s, want INFO", Level())
	}
}
