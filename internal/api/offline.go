package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/acurth/audioguia/pkg/offline"
	"github.com/acurth/audioguia/pkg/progress"
	"github.com/acurth/audioguia/pkg/store"
	"github.com/acurth/audioguia/pkg/tour"
)

// OfflineHandler drives tour downloads and serves their state.
type OfflineHandler struct {
	mgr      *progress.Manager
	registry *tour.Registry
	store    store.Store
}

// NewOfflineHandler creates a new OfflineHandler.
func NewOfflineHandler(mgr *progress.Manager, registry *tour.Registry, st store.Store) *OfflineHandler {
	return &OfflineHandler{mgr: mgr, registry: registry, store: st}
}

// OfflineRequest names the tour a download command applies to.
type OfflineRequest struct {
	TourID  string `json:"tourId"`
	Restart bool   `json:"restart,omitempty"` // reset only
}

// HandleDownload handles POST /api/offline/download
func (h *OfflineHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	var req OfflineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	t, err := h.registry.Get(req.TourID)
	if err != nil {
		http.Error(w, "tour not found", http.StatusNotFound)
		return
	}
	if t.Manifest == nil {
		http.Error(w, "tour has no offline manifest", http.StatusConflict)
		return
	}

	tourJSON, err := tour.MarshalTour(t)
	if err != nil {
		slog.Error("Cannot marshal tour for download", "tour", t.ID, "error", err)
		http.Error(w, "cannot marshal tour", http.StatusInternalServerError)
		return
	}

	if err := h.mgr.Download(t.ID, t.Slug, t.FileURLs(), tourJSON); err != nil {
		slog.Error("Download submit failed", "tour", t.ID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeState(w, t.ID)
}

// HandleDelete handles POST /api/offline/delete
func (h *OfflineHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	var req OfflineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.TourID == "" {
		http.Error(w, "tourId is required", http.StatusBadRequest)
		return
	}

	if err := h.mgr.Delete(req.TourID); err != nil {
		slog.Error("Delete submit failed", "tour", req.TourID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeState(w, req.TourID)
}

// HandleReset handles POST /api/offline/reset. With restart set the deletion
// is followed by a fresh download of the same tour.
func (h *OfflineHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	var req OfflineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.TourID == "" {
		http.Error(w, "tourId is required", http.StatusBadRequest)
		return
	}

	if err := h.mgr.Reset(req.TourID, req.Restart); err != nil {
		slog.Error("Reset submit failed", "tour", req.TourID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeState(w, req.TourID)
}

// HandleStates handles GET /api/offline/states
func (h *OfflineHandler) HandleStates(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"states": h.mgr.States(),
	}); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// HandleVerify handles GET /api/offline/verify?tour=..
// A failed verification is a result, not a server error.
func (h *OfflineHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("tour")
	if id == "" {
		http.Error(w, "tour is required", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := offline.Verify(r.Context(), h.store, id); err != nil {
		if encErr := json.NewEncoder(w).Encode(map[string]string{
			"status":  "error",
			"message": err.Error(),
		}); encErr != nil {
			slog.Error("Failed to encode response", "error", encErr)
		}
		return
	}
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	}); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func (h *OfflineHandler) writeState(w http.ResponseWriter, tourID string) {
	w.Header().Set("Content-Type", "application/json")
	state, ok := h.mgr.State(tourID)
	if !ok {
		if err := json.NewEncoder(w).Encode(map[string]string{
			"status": "ok",
		}); err != nil {
			slog.Error("Failed to encode response", "error", err)
		}
		return
	}
	if err := json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"state":  state,
	}); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
