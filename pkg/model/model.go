package model

import (
	"time"
)

// Tour represents a walking tour with its ordered waypoints. Tours are
// immutable once loaded; ID and Slug both resolve to the same record.
type Tour struct {
	ID          string           `json:"id" validate:"required"`
	Slug        string           `json:"slug" validate:"required"`
	Name        string           `json:"name" validate:"required"`
	Description string           `json:"description,omitempty"` // May carry HTML from the authoring side
	Points      []Point          `json:"points" validate:"min=1,dive"`
	Manifest    *OfflineManifest `json:"offlineManifest,omitempty"`
}

// Point represents a single waypoint of a tour. Point order matters only as
// the trigger engine's iteration/tie-break order, not as a required visiting
// sequence.
type Point struct {
	ID        string   `json:"id" validate:"required"`
	Name      string   `json:"name"`
	Lat       float64  `json:"lat" validate:"latitude"`
	Lng       float64  `json:"lng" validate:"longitude"`
	Alt       float64  `json:"alt,omitempty"`
	Radius    float64  `json:"radius" validate:"gte=0"` // Author-declared trigger radius in meters, pre-effective-radius
	AudioRef  string   `json:"audioRef" validate:"required"`
	PhotoRefs []string `json:"photoRefs,omitempty"`
}

// OfflineManifest declares every asset required for offline playback of a
// tour. Produced by an external build step, consumed read-only.
type OfflineManifest struct {
	TotalBytes int64          `json:"totalBytes"`
	Files      []ManifestFile `json:"files"`
}

// ManifestFile is one entry of an OfflineManifest.
type ManifestFile struct {
	Path  string `json:"path"`
	Bytes int64  `json:"bytes"`
}

// Position is one sample from a position source.
type Position struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Accuracy  float64   `json:"accuracy"` // Reported accuracy radius in meters
	Timestamp time.Time `json:"timestamp"`
}

// PointByID returns the point with the given id, or nil.
func (t *Tour) PointByID(id string) *Point {
	for i := range t.Points {
		if t.Points[i].ID == id {
			return &t.Points[i]
		}
	}
	return nil
}

// FileURLs returns the manifest file paths in declared order, or nil when the
// tour has no manifest.
func (t *Tour) FileURLs() []string {
	if t.Manifest == nil {
		return nil
	}
	urls := make([]string, 0, len(t.Manifest.Files))
	for _, f := range t.Manifest.Files {
		urls = append(urls, f.Path)
	}
	return urls
}
