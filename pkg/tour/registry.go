// Package tour holds the library of loaded tours and answers "what can I
// walk near here" lookups.
package tour

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/uber/h3-go/v4"

	"github.com/acurth/audioguia/pkg/model"
)

// ErrNotFound is returned when neither id nor slug matches a tour.
var ErrNotFound = errors.New("tour not found")

const (
	// Cells at resolution 7 span roughly a neighborhood, which matches
	// how close "nearby" should feel on foot.
	indexResolution = 7
	nearbyRingSize  = 1
)

// Registry loads tour files from a directory and indexes their points
// for spatial lookup.
type Registry struct {
	log      *slog.Logger
	dir      string
	validate *validator.Validate

	mu     sync.RWMutex
	byID   map[string]*model.Tour
	bySlug map[string]*model.Tour
	order  []string
	cells  map[h3.Cell][]string
}

func NewRegistry(dir string) *Registry {
	return &Registry{
		log:      slog.With("component", "tour"),
		dir:      dir,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		byID:     make(map[string]*model.Tour),
		bySlug:   make(map[string]*model.Tour),
		cells:    make(map[h3.Cell][]string),
	}
}

// Load reads every tour file under the registry directory. A file that
// fails to parse or validate is skipped with a log entry; one broken
// tour must not empty the whole library.
func (r *Registry) Load() error {
	entries, err := os.ReadDir(r.dir)
	if os.IsNotExist(err) {
		r.log.Warn("Tours directory missing", "dir", r.dir)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read tours dir: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[string]*model.Tour)
	r.bySlug = make(map[string]*model.Tour)
	r.order = nil
	r.cells = make(map[h3.Cell][]string)

	loaded, skipped := 0, 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".geojson" && ext != ".json" {
			continue
		}
		path := filepath.Join(r.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			r.log.Error("Failed to read tour file", "file", e.Name(), "error", err)
			skipped++
			continue
		}
		t, err := ParseTour(data)
		if err != nil {
			r.log.Error("Failed to parse tour file", "file", e.Name(), "error", err)
			skipped++
			continue
		}
		if err := r.installLocked(t); err != nil {
			r.log.Error("Rejected tour", "file", e.Name(), "error", err)
			skipped++
			continue
		}
		loaded++
	}

	r.log.Info("Tour library loaded", "tours", loaded, "skipped", skipped)
	return nil
}

// Install validates a tour and adds it to the library, persisting it to
// the registry directory so it survives restarts.
func (r *Registry) Install(t *model.Tour) error {
	r.mu.Lock()
	if err := r.installLocked(t); err != nil {
		r.mu.Unlock()
		return err
	}
	r.mu.Unlock()

	data, err := MarshalTour(t)
	if err != nil {
		return fmt.Errorf("failed to marshal tour %s: %w", t.ID, err)
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(r.dir, t.Slug+".geojson")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to persist tour %s: %w", t.ID, err)
	}
	r.log.Info("Tour installed", "id", t.ID, "slug", t.Slug, "points", len(t.Points))
	return nil
}

func (r *Registry) installLocked(t *model.Tour) error {
	if t.Slug == "" {
		t.Slug = t.ID
	}
	if err := r.validate.Struct(t); err != nil {
		return fmt.Errorf("invalid tour: %w", err)
	}
	if old, ok := r.byID[t.ID]; ok {
		r.removeLocked(old)
	}
	if old, ok := r.bySlug[t.Slug]; ok && old.ID != t.ID {
		return fmt.Errorf("slug %q already taken by tour %s", t.Slug, old.ID)
	}

	r.byID[t.ID] = t
	r.bySlug[t.Slug] = t
	r.order = append(r.order, t.ID)

	for _, p := range t.Points {
		cell, err := h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lng), indexResolution)
		if err != nil {
			r.log.Warn("Point not indexable", "tour", t.ID, "point", p.ID, "error", err)
			continue
		}
		if !containsID(r.cells[cell], t.ID) {
			r.cells[cell] = append(r.cells[cell], t.ID)
		}
	}
	return nil
}

func (r *Registry) removeLocked(t *model.Tour) {
	delete(r.byID, t.ID)
	delete(r.bySlug, t.Slug)
	for i, id := range r.order {
		if id == t.ID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	for cell, ids := range r.cells {
		r.cells[cell] = removeID(ids, t.ID)
		if len(r.cells[cell]) == 0 {
			delete(r.cells, cell)
		}
	}
}

// Remove drops a tour from the library and deletes its file.
func (r *Registry) Remove(idOrSlug string) error {
	r.mu.Lock()
	t, err := r.getLocked(idOrSlug)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	r.removeLocked(t)
	r.mu.Unlock()

	path := filepath.Join(r.dir, t.Slug+".geojson")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	r.log.Info("Tour removed", "id", t.ID)
	return nil
}

// Get resolves a tour by id first, slug second.
func (r *Registry) Get(idOrSlug string) (*model.Tour, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getLocked(idOrSlug)
}

func (r *Registry) getLocked(idOrSlug string) (*model.Tour, error) {
	if t, ok := r.byID[idOrSlug]; ok {
		return t, nil
	}
	if t, ok := r.bySlug[idOrSlug]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, idOrSlug)
}

// List returns tours in load order.
func (r *Registry) List() []*model.Tour {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.Tour, 0, len(r.order))
	for _, id := range r.order {
		if t, ok := r.byID[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Nearby returns tours with at least one point in the neighborhood of
// the given position, in load order.
func (r *Registry) Nearby(lat, lng float64) []*model.Tour {
	cell, err := h3.LatLngToCell(h3.NewLatLng(lat, lng), indexResolution)
	if err != nil {
		return nil
	}
	disk, err := h3.GridDisk(cell, nearbyRingSize)
	if err != nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	hit := make(map[string]bool)
	for _, c := range disk {
		for _, id := range r.cells[c] {
			hit[id] = true
		}
	}

	var out []*model.Tour
	for _, id := range r.order {
		if hit[id] {
			if t, ok := r.byID[id]; ok {
				out = append(out, t)
			}
		}
	}
	return out
}

func containsID(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}
