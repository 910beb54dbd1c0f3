package ingest

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
)

// SecretHeader is the header carrying the shared device secret.
const SecretHeader = "X-Device-Secret"

// Handler returns the webhook endpoint for device event submissions.
// Responses: 200 {"ok":true}, 401 unauthorized, 400 invalid request,
// 405 wrong method, 500 {"error":...} on persistence failure.
func (i *Ingestor) Handler(secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "only POST"})
			return
		}
		if !authorized(r, secret) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
			return
		}

		var ev Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed body"})
			return
		}

		err := i.Apply(r.Context(), ev, "http")
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		case errors.Is(err, ErrMissingFields), errors.Is(err, ErrBadEvent), errors.Is(err, ErrBadTimestamp):
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		default:
			i.logger.Error("device event ingestion failed", "cell_id", ev.CellID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
		}
	}
}

// authorized checks the shared secret from the header or the token query
// parameter. An empty configured secret rejects everything.
func authorized(r *http.Request, secret string) bool {
	if secret == "" {
		return false
	}
	token := r.Header.Get(SecretHeader)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
