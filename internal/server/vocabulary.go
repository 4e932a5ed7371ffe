package server

import (
	"net/http"

	"github.com/kon-rad/lsp-log-store/internal/db"
)

type VocabularyResponse struct {
	LogLevels []db.LogLevelRow `json:"log_levels"`
	Sources   []db.SourceRow   `json:"sources"`
}

// VocabularyHandler serves the seeded log_levels and sources rows.
type VocabularyHandler struct {
	store Store
}

func NewVocabularyHandler(store Store) *VocabularyHandler {
	return &VocabularyHandler{store: store}
}

func (h *VocabularyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	levels, err := h.store.LogLevels(r.Context())
	if err != nil {
		http.Error(w, "log levels unavailable", http.StatusServiceUnavailable)
		return
	}
	sources, err := h.store.Sources(r.Context())
	if err != nil {
		http.Error(w, "sources unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, VocabularyResponse{LogLevels: levels, Sources: sources})
}
