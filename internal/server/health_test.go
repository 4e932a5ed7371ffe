package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/kon-rad/lsp-log-store/internal/db"
)

func openStore(t *testing.T) *db.Manager {
	t.Helper()

	dbm, err := db.Open(filepath.Join(t.TempDir(), "lsp.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = dbm.Close()
	})
	return dbm
}

// failingCounts degrades the row count probe of an otherwise healthy store.
type failingCounts struct {
	*db.Manager
}

func (failingCounts) RowCounts(context.Context) (map[string]int64, error) {
	return nil, errors.New("count failed")
}

func TestHealthAlwaysReturnsContract(t *testing.T) {
	t.Parallel()

	dbm := openStore(t)
	if _, err := dbm.OpenSession(context.Background(), time.Now()); err != nil {
		t.Fatalf("open session: %v", err)
	}

	handler := NewHealthHandler(dbm, time.Now().Add(-5*time.Second), "test-version")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode error = %v", err)
	}

	required := []string{
		"status",
		"uptime_seconds",
		"version",
		"driver",
		"db_status",
		"db_size_bytes",
		"wal_size_bytes",
		"schema_version",
		"row_counts",
		"rss_bytes",
		"generated_at",
	}
	for _, key := range required {
		if _, ok := body[key]; !ok {
			t.Fatalf("missing health field %q", key)
		}
	}

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode health response: %v", err)
	}
	if resp.Status != "ok" || resp.Driver != "sqlite" || resp.SchemaVersion != "0003" {
		t.Fatalf("unexpected health response: %+v", resp)
	}
	if resp.RowCounts["sessions"] != 1 {
		t.Fatalf("sessions count = %d, want 1", resp.RowCounts["sessions"])
	}
}

func TestHealthDegradesWhenProbeFails(t *testing.T) {
	t.Parallel()

	handler := NewHealthHandler(failingCounts{openStore(t)}, time.Now(), "test-version")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode health response: %v", err)
	}
	if resp.Status != "degraded" {
		t.Fatalf("status = %q, want degraded", resp.Status)
	}
	if len(resp.Warnings) != 1 || resp.Warnings[0] != "row_counts_unavailable" {
		t.Fatalf("warnings = %v", resp.Warnings)
	}
}
