package tour

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/acurth/audioguia/pkg/model"
)

// Tour files are GeoJSON FeatureCollections of Point features, with the
// tour-level fields riding in a "tour" member next to "features". That
// keeps them loadable in any GIS tool while staying self-contained.

type tourMeta struct {
	ID          string                 `json:"id"`
	Slug        string                 `json:"slug"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Manifest    *model.OfflineManifest `json:"offlineManifest,omitempty"`
}

type tourFile struct {
	Type     string             `json:"type"`
	Meta     tourMeta           `json:"tour"`
	Features []*geojson.Feature `json:"features"`
}

// ParseTour decodes one tour file.
func ParseTour(data []byte) (*model.Tour, error) {
	var meta struct {
		Meta tourMeta `json:"tour"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse tour file: %w", err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse geojson: %w", err)
	}

	t := &model.Tour{
		ID:          meta.Meta.ID,
		Slug:        meta.Meta.Slug,
		Name:        meta.Meta.Name,
		Description: meta.Meta.Description,
		Manifest:    meta.Meta.Manifest,
	}
	if t.Slug == "" {
		t.Slug = t.ID
	}

	for i, f := range fc.Features {
		pt, ok := f.Geometry.(orb.Point)
		if !ok {
			return nil, fmt.Errorf("feature %d: geometry is %T, want Point", i, f.Geometry)
		}
		p := model.Point{
			ID:       getStringProp(f.Properties, "id"),
			Name:     getStringProp(f.Properties, "name"),
			Lat:      pt.Lat(),
			Lng:      pt.Lon(),
			Radius:   getFloatProp(f.Properties, "radius"),
			AudioRef: getStringProp(f.Properties, "audio"),
		}
		if photos, ok := f.Properties["photos"].([]interface{}); ok {
			for _, ph := range photos {
				if s, ok := ph.(string); ok {
					p.PhotoRefs = append(p.PhotoRefs, s)
				}
			}
		}
		if alt, ok := f.Properties["alt"].(float64); ok {
			p.Alt = alt
		}
		t.Points = append(t.Points, p)
	}

	return t, nil
}

// MarshalTour renders a tour back into its file form.
func MarshalTour(t *model.Tour) ([]byte, error) {
	out := tourFile{
		Type: "FeatureCollection",
		Meta: tourMeta{
			ID:          t.ID,
			Slug:        t.Slug,
			Name:        t.Name,
			Description: t.Description,
			Manifest:    t.Manifest,
		},
	}
	for _, p := range t.Points {
		f := geojson.NewFeature(orb.Point{p.Lng, p.Lat})
		f.Properties = geojson.Properties{
			"id":    p.ID,
			"name":  p.Name,
			"audio": p.AudioRef,
		}
		if p.Radius > 0 {
			f.Properties["radius"] = p.Radius
		}
		if p.Alt != 0 {
			f.Properties["alt"] = p.Alt
		}
		if len(p.PhotoRefs) > 0 {
			f.Properties["photos"] = p.PhotoRefs
		}
		out.Features = append(out.Features, f)
	}
	return json.MarshalIndent(out, "", "  ")
}

// getStringProp safely extracts a string property from GeoJSON properties.
func getStringProp(props geojson.Properties, key string) string {
	if val, ok := props[key]; ok {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return ""
}

// getFloatProp safely extracts a numeric property from GeoJSON properties.
func getFloatProp(props geojson.Properties, key string) float64 {
	if val, ok := props[key]; ok {
		switch v := val.(type) {
		case float64:
			return v
		case int:
			return float64(v)
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return f
			}
		}
	}
	return 0
}
