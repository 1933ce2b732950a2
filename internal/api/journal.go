package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/starford/wstore/internal/models"
)

// JournalLister reads recent change journal entries.
type JournalLister interface {
	Recent(ctx context.Context, path string, limit int) ([]models.JournalEntry, error)
}

const (
	defaultJournalLimit = 50
	maxJournalLimit     = 1000
)

type journalHandler struct {
	journal JournalLister
}

// List handles GET /journal?path=&limit=.
func (h *journalHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := defaultJournalLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorBody("limit must be a positive integer"))
			return
		}
		limit = min(n, maxJournalLimit)
	}

	entries, err := h.journal.Recent(r.Context(), q.Get("path"), limit)
	if err != nil {
		slog.Error("journal query failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if entries == nil {
		entries = []models.JournalEntry{}
	}
	writeJSON(w, http.StatusOK, JournalResponse{Entries: entries})
}
