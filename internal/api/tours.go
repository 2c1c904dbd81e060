package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/acurth/audioguia/pkg/model"
	"github.com/acurth/audioguia/pkg/tour"
)

// excerptWords caps list-view descriptions. Full prose stays on the detail
// endpoint.
const excerptWords = 40

// ToursHandler serves the tour library.
type ToursHandler struct {
	registry *tour.Registry
}

// NewToursHandler creates a new ToursHandler.
func NewToursHandler(registry *tour.Registry) *ToursHandler {
	return &ToursHandler{registry: registry}
}

// TourSummary is the list-view projection of a tour.
type TourSummary struct {
	ID         string `json:"id"`
	Slug       string `json:"slug"`
	Name       string `json:"name"`
	Excerpt    string `json:"excerpt,omitempty"`
	Points     int    `json:"points"`
	Offline    bool   `json:"offline"`
	TotalBytes int64  `json:"totalBytes,omitempty"`
}

func summarize(t *model.Tour) TourSummary {
	s := TourSummary{
		ID:      t.ID,
		Slug:    t.Slug,
		Name:    t.Name,
		Excerpt: tour.Excerpt(t.Description, excerptWords),
		Points:  len(t.Points),
	}
	if t.Manifest != nil {
		s.Offline = true
		s.TotalBytes = t.Manifest.TotalBytes
	}
	return s
}

// HandleList handles GET /api/tours
func (h *ToursHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	tours := h.registry.List()
	summaries := make([]TourSummary, 0, len(tours))
	for _, t := range tours {
		summaries = append(summaries, summarize(t))
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"tours": summaries,
	}); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// HandleGet handles GET /api/tours/{id}. The id segment also accepts a slug.
func (h *ToursHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	t, err := h.registry.Get(r.PathValue("id"))
	if err != nil {
		http.Error(w, "tour not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(t); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// HandleNearby handles GET /api/tours/nearby?lat=..&lng=..
func (h *ToursHandler) HandleNearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
	if errLat != nil || errLng != nil {
		http.Error(w, "lat and lng are required", http.StatusBadRequest)
		return
	}

	tours := h.registry.Nearby(lat, lng)
	summaries := make([]TourSummary, 0, len(tours))
	for _, t := range tours {
		summaries = append(summaries, summarize(t))
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"tours": summaries,
	}); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
