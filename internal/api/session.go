package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/acurth/audioguia/pkg/session"
	"github.com/acurth/audioguia/pkg/tour"
)

// SessionHandler drives the tracking session lifecycle.
type SessionHandler struct {
	ctrl *session.Controller
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(ctrl *session.Controller) *SessionHandler {
	return &SessionHandler{ctrl: ctrl}
}

// SessionStartRequest selects the tour to track.
type SessionStartRequest struct {
	TourID string `json:"tourId"`
}

// VisibilityRequest reports the client page visibility.
type VisibilityRequest struct {
	Visible bool `json:"visible"`
}

// HandleStart handles POST /api/session/start. Must run on a user gesture so
// the audio unlock inside counts.
func (h *SessionHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req SessionStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.TourID == "" {
		http.Error(w, "tourId is required", http.StatusBadRequest)
		return
	}

	if err := h.ctrl.Start(r.Context(), req.TourID); err != nil {
		if errors.Is(err, tour.ErrNotFound) {
			http.Error(w, "tour not found", http.StatusNotFound)
			return
		}
		slog.Error("Session start failed", "tour", req.TourID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.ctrl.Status()); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// HandleStop handles POST /api/session/stop
func (h *SessionHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	h.ctrl.Stop()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.ctrl.Status()); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// HandleStatus handles GET /api/session/status
func (h *SessionHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.ctrl.Status()); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// HandleVisibility handles POST /api/session/visibility. The client reports
// page visibility changes here so the wake lock follows the foreground rule.
func (h *SessionHandler) HandleVisibility(w http.ResponseWriter, r *http.Request) {
	var req VisibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	h.ctrl.SetVisibility(req.Visible)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"visible": req.Visible,
	}); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// HandleDistances handles GET /api/session/distances
func (h *SessionHandler) HandleDistances(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"distances": h.ctrl.Distances(),
	}); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
