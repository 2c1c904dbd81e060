package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/acurth/audioguia/pkg/audio"
	"github.com/acurth/audioguia/pkg/session"
)

// AudioHandler handles audio control endpoints.
type AudioHandler struct {
	ctrl  *session.Controller
	audio audio.Service
}

// NewAudioHandler creates a new AudioHandler.
func NewAudioHandler(ctrl *session.Controller, audioSvc audio.Service) *AudioHandler {
	return &AudioHandler{ctrl: ctrl, audio: audioSvc}
}

// AudioControlRequest represents an audio control command.
type AudioControlRequest struct {
	Action  string  `json:"action"` // "play", "toggle", "pause", "resume", "stop", "unlock", "volume"
	PointID string  `json:"pointId,omitempty"`
	Volume  float64 `json:"volume,omitempty"`
}

// AudioVolumeRequest represents a volume change request.
type AudioVolumeRequest struct {
	Volume float64 `json:"volume"`
}

// HandleControl handles POST /api/audio/control
func (h *AudioHandler) HandleControl(w http.ResponseWriter, r *http.Request) {
	var req AudioControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var state string
	switch req.Action {
	case "play":
		if err := h.ctrl.PlayPointByID(req.PointID); err != nil {
			writeControlError(w, err)
			return
		}
		state = "playing"
	case "toggle":
		if err := h.ctrl.TogglePointByID(req.PointID); err != nil {
			writeControlError(w, err)
			return
		}
		state = "toggled"
	case "pause":
		h.audio.Pause()
		state = "paused"
	case "resume":
		h.audio.Resume()
		state = "playing"
	case "stop":
		h.audio.Stop()
		state = "stopped"
	case "unlock":
		if err := h.audio.Unlock(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		state = "unlocked"
	case "volume":
		h.ctrl.SetVolume(req.Volume)
		state = "volume"
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}

	slog.Debug("Audio control", "action", req.Action, "state", state)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"state":  state,
	}); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeControlError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrNoActiveTour) {
		http.Error(w, "no active tour", http.StatusConflict)
		return
	}
	http.Error(w, err.Error(), http.StatusNotFound)
}

// HandleVolume handles POST /api/audio/volume
func (h *AudioHandler) HandleVolume(w http.ResponseWriter, r *http.Request) {
	var req AudioVolumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// SetVolume clamps and persists the effective value.
	h.ctrl.SetVolume(req.Volume)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"volume": h.audio.Volume(),
	}); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// HandleStatus handles GET /api/audio/status
func (h *AudioHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.audio.Status()); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
