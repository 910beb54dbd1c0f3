// Package api exposes the user-edit surface: creating, listing,
// updating, and deleting scheduled doses, plus the delivery callback
// for fired alerts. Rendering lives in the mobile app; this is the
// record-of-truth side only.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pathakanu/medibuddy/internal/cellmap"
	"github.com/pathakanu/medibuddy/internal/notify"
	"github.com/pathakanu/medibuddy/internal/store"
)

// Handler serves the reminder CRUD endpoints.
type Handler struct {
	store     *store.Store
	scheduler *notify.Scheduler
	secret    string
	logger    *slog.Logger
}

// New creates the reminders handler.
func New(st *store.Store, scheduler *notify.Scheduler, secret string, logger *slog.Logger) *Handler {
	return &Handler{store: st, scheduler: scheduler, secret: secret, logger: logger}
}

type reminderRequest struct {
	UserID       string `json:"userId"`
	ID           string `json:"id,omitempty"`
	Day          string `json:"day"`
	Slot         string `json:"slot"`
	Time         string `json:"time"`
	MedicineName string `json:"medicineName"`
}

type deliveryRequest struct {
	UserID string `json:"userId"`
	Day    string `json:"day"`
	Slot   string `json:"slot"`
}

// Register mounts the endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/reminders", h.handleReminders)
	mux.HandleFunc("/notifications/delivered", h.handleDelivered)
}

func (h *Handler) handleReminders(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	case http.MethodPut:
		h.update(w, r)
	case http.MethodDelete:
		h.delete(w, r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing userId"})
		return
	}
	reminders, err := h.store.ListReminders(r.Context(), userID)
	if err != nil {
		h.logger.Error("list reminders failed", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reminders": reminders})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req reminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed body"})
		return
	}

	reminder, err := h.store.CreateReminder(r.Context(), req.UserID,
		cellmap.Day(req.Day), cellmap.Slot(req.Slot), req.Time, req.MedicineName)
	if err != nil {
		h.writeStoreError(w, req.UserID, err)
		return
	}
	if err := h.scheduler.Arm(*reminder); err != nil {
		h.logger.Error("arm after create failed", "reminder_id", reminder.ID, "error", err)
	}
	writeJSON(w, http.StatusCreated, map[string]any{"reminder": reminder})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req reminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.ID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed body"})
		return
	}

	reminder, err := h.store.UpdateReminder(r.Context(), req.UserID, req.ID,
		cellmap.Day(req.Day), cellmap.Slot(req.Slot), req.Time, req.MedicineName)
	if err != nil {
		h.writeStoreError(w, req.UserID, err)
		return
	}
	if err := h.scheduler.Arm(*reminder); err != nil {
		h.logger.Error("re-arm after update failed", "reminder_id", reminder.ID, "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"reminder": reminder})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	id := r.URL.Query().Get("id")
	if userID == "" || id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing userId or id"})
		return
	}
	if err := h.store.DeleteReminder(r.Context(), userID, id); err != nil {
		h.writeStoreError(w, userID, err)
		return
	}
	h.scheduler.Cancel(id)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleDelivered is the callback fired when the device shows a
// scheduled alert: the addressed reminder re-enters pending.
func (h *Handler) handleDelivered(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "only POST"})
		return
	}
	if !h.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		return
	}
	var req deliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed body"})
		return
	}

	err := h.scheduler.HandleDelivery(r.Context(), req.UserID, cellmap.Day(req.Day), cellmap.Slot(req.Slot))
	if err != nil {
		h.writeStoreError(w, req.UserID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) writeStoreError(w http.ResponseWriter, userID string, err error) {
	switch {
	case errors.Is(err, cellmap.ErrInvalidAddress), errors.Is(err, store.ErrInvalidTime):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
	case errors.Is(err, store.ErrDuplicateSlot):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
	default:
		h.logger.Error("reminder write failed", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
	}
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return false
	}
	token := r.Header.Get("X-Device-Secret")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.secret)) == 1
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
