// Package report computes per-user adherence statistics and renders an
// optional natural-language summary of them.
package report

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/pathakanu/medibuddy/internal/store"
)

// Stats summarizes a user's weekly schedule by confirmation state.
type Stats struct {
	Taken   int64 `json:"taken"`
	Missed  int64 `json:"missed"`
	Pending int64 `json:"pending"`
	Total   int64 `json:"total"`
}

// Service produces adherence reports.
type Service struct {
	store      *store.Store
	summarizer *Summarizer
	logger     *slog.Logger
}

// New creates a report service. summarizer may be unconfigured; the
// deterministic fallback summary is used then.
func New(st *store.Store, summarizer *Summarizer, logger *slog.Logger) *Service {
	return &Service{store: st, summarizer: summarizer, logger: logger}
}

// Stats tallies the user's reminders.
func (s *Service) Stats(ctx context.Context, userID string) (Stats, error) {
	counts, err := s.store.AdherenceCounts(ctx, userID)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Taken:   counts.Taken,
		Missed:  counts.Missed,
		Pending: counts.Pending,
		Total:   counts.Total,
	}, nil
}

// Handler serves GET /report?userId=... guarded by the same shared
// secret as the ingestion endpoint.
func (s *Service) Handler(secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "only GET"})
			return
		}
		token := r.Header.Get("X-Device-Secret")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
			return
		}
		userID := r.URL.Query().Get("userId")
		if userID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing userId"})
			return
		}

		stats, err := s.Stats(r.Context(), userID)
		if err != nil {
			s.logger.Error("adherence stats failed", "user_id", userID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
			return
		}
		summary, err := s.summarizer.SummarizeAdherence(r.Context(), stats)
		if err != nil {
			// Stats still stand on their own.
			s.logger.Warn("adherence summary failed", "user_id", userID, "error", err)
			summary = ""
		}

		writeJSON(w, http.StatusOK, map[string]any{"stats": stats, "summary": summary})
	}
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
