package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/kon-rad/lsp-log-store/internal/db"
	"github.com/kon-rad/lsp-log-store/internal/hardening"
)

// Store is the read side of db.Manager the handlers need.
type Store interface {
	Dialect() db.Dialect
	Stats() db.HealthStats
	SchemaVersion(ctx context.Context) (string, error)
	RowCounts(ctx context.Context) (map[string]int64, error)
	LogLevels(ctx context.Context) ([]db.LogLevelRow, error)
	Sources(ctx context.Context) ([]db.SourceRow, error)
}

type HealthResponse struct {
	Status        string           `json:"status"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Version       string           `json:"version"`
	Driver        string           `json:"driver"`
	DBStatus      string           `json:"db_status"`
	DBSizeBytes   int64            `json:"db_size_bytes"`
	WALSizeBytes  int64            `json:"wal_size_bytes"`
	SchemaVersion string           `json:"schema_version"`
	RowCounts     map[string]int64 `json:"row_counts"`
	RSSBytes      int64            `json:"rss_bytes"`
	GeneratedAt   string           `json:"generated_at"`
	Warnings      []string         `json:"warnings,omitempty"`
}

type HealthHandler struct {
	store     Store
	startTime time.Time
	version   string
}

func NewHealthHandler(store Store, start time.Time, version string) *HealthHandler {
	return &HealthHandler{
		store:     store,
		startTime: start,
		version:   version,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	dbStats := h.store.Stats()
	resp := HealthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Version:       h.version,
		Driver:        string(h.store.Dialect()),
		DBStatus:      dbStats.DBStatus,
		DBSizeBytes:   dbStats.DBSizeBytes,
		WALSizeBytes:  dbStats.WALSize,
		RowCounts:     map[string]int64{},
		GeneratedAt:   time.Now().UTC().Format(time.RFC3339),
	}

	if version, err := h.store.SchemaVersion(ctx); err != nil {
		resp.Warnings = append(resp.Warnings, "schema_version_unavailable")
	} else {
		resp.SchemaVersion = version
	}
	if counts, err := h.store.RowCounts(ctx); err != nil {
		resp.Warnings = append(resp.Warnings, "row_counts_unavailable")
	} else {
		resp.RowCounts = counts
	}
	if rss, err := hardening.CurrentRSSBytes(); err == nil {
		resp.RSSBytes = rss
	}

	if resp.DBStatus != "ok" || len(resp.Warnings) > 0 {
		resp.Status = "degraded"
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
