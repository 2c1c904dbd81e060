package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/acurth/audioguia/pkg/model"
	"github.com/acurth/audioguia/pkg/position"
	"github.com/acurth/audioguia/pkg/session"
)

// PositionHandler ingests fixes relayed by the client. Pushes only make
// sense with the manual provider; replay providers feed the session
// themselves.
type PositionHandler struct {
	ctrl   *session.Controller
	source position.Source
}

// NewPositionHandler creates a new PositionHandler.
func NewPositionHandler(ctrl *session.Controller, source position.Source) *PositionHandler {
	return &PositionHandler{ctrl: ctrl, source: source}
}

// PositionRequest is one fix from the client geolocation watcher. Timestamp
// is epoch milliseconds as reported by the platform; zero means "now".
type PositionRequest struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Accuracy  float64 `json:"accuracy"`
	Alt       float64 `json:"alt,omitempty"`
	Timestamp int64   `json:"timestamp,omitempty"`
}

// PositionErrorRequest reports a client-side geolocation failure.
type PositionErrorRequest struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// HandlePush handles POST /api/position
func (h *PositionHandler) HandlePush(w http.ResponseWriter, r *http.Request) {
	manual, ok := h.source.(*position.ManualSource)
	if !ok {
		http.Error(w, "position pushes need the manual provider", http.StatusConflict)
		return
	}

	var req PositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Lat < -90 || req.Lat > 90 || req.Lng < -180 || req.Lng > 180 {
		http.Error(w, "coordinates out of range", http.StatusBadRequest)
		return
	}

	pos := model.Position{
		Lat:      req.Lat,
		Lng:      req.Lng,
		Accuracy: req.Accuracy,
	}
	if req.Timestamp > 0 {
		pos.Timestamp = time.UnixMilli(req.Timestamp)
	}

	manual.Push(pos)
	// While idle the watch is down; feed the sample straight to the
	// distance preview.
	h.ctrl.OfferPosition(pos)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	}); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// HandleError handles POST /api/position/error
func (h *PositionHandler) HandleError(w http.ResponseWriter, r *http.Request) {
	manual, ok := h.source.(*position.ManualSource)
	if !ok {
		http.Error(w, "position errors need the manual provider", http.StatusConflict)
		return
	}

	var req PositionErrorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Code == "" {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}

	manual.Fail(req.Code, req.Message)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	}); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
