package tour

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acurth/audioguia/pkg/model"
)

func lisbonTour() *model.Tour {
	return &model.Tour{
		ID:          "lisbon-alfama-1",
		Slug:        "alfama",
		Name:        "Alfama on Foot",
		Description: "<p>Narrow streets and <b>fado</b> houses.</p>",
		Points: []model.Point{
			{ID: "p1", Name: "Sé de Lisboa", Lat: 38.7097, Lng: -9.1326, Radius: 18, AudioRef: "audio/se.mp3"},
			{ID: "p2", Name: "Miradouro de Santa Luzia", Lat: 38.7118, Lng: -9.1297, Radius: 12, AudioRef: "audio/luzia.mp3"},
		},
		Manifest: &model.OfflineManifest{
			TotalBytes: 2048,
			Files: []model.ManifestFile{
				{Path: "/tours/alfama/audio/se.mp3", Bytes: 1024},
				{Path: "/tours/alfama/audio/luzia.mp3", Bytes: 1024},
			},
		},
	}
}

func portoTour() *model.Tour {
	return &model.Tour{
		ID:   "porto-ribeira-1",
		Slug: "ribeira",
		Name: "Ribeira Waterfront",
		Points: []model.Point{
			{ID: "p1", Name: "Ponte Luís I", Lat: 41.1399, Lng: -8.6094, Radius: 20, AudioRef: "audio/ponte.mp3"},
		},
	}
}

func writeTourFile(t *testing.T, dir string, tr *model.Tour) {
	t.Helper()
	data, err := MarshalTour(tr)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, tr.Slug+".geojson"), data, 0o644))
}

func TestParseTourRoundTrip(t *testing.T) {
	orig := lisbonTour()
	orig.Points[0].Alt = 30
	orig.Points[0].PhotoRefs = []string{"img/se-1.jpg", "img/se-2.jpg"}

	data, err := MarshalTour(orig)
	require.NoError(t, err)

	got, err := ParseTour(data)
	require.NoError(t, err)

	assert.Equal(t, orig.ID, got.ID)
	assert.Equal(t, orig.Slug, got.Slug)
	assert.Equal(t, orig.Name, got.Name)
	assert.Equal(t, orig.Description, got.Description)
	require.Len(t, got.Points, 2)
	assert.Equal(t, orig.Points[0].ID, got.Points[0].ID)
	assert.InDelta(t, orig.Points[0].Lat, got.Points[0].Lat, 1e-9)
	assert.InDelta(t, orig.Points[0].Lng, got.Points[0].Lng, 1e-9)
	assert.Equal(t, orig.Points[0].Radius, got.Points[0].Radius)
	assert.Equal(t, orig.Points[0].AudioRef, got.Points[0].AudioRef)
	assert.Equal(t, orig.Points[0].PhotoRefs, got.Points[0].PhotoRefs)
	assert.Equal(t, 30.0, got.Points[0].Alt)
	require.NotNil(t, got.Manifest)
	assert.Equal(t, int64(2048), got.Manifest.TotalBytes)
	require.Len(t, got.Manifest.Files, 2)
}

func TestParseTourRejectsNonPointGeometry(t *testing.T) {
	data := []byte(`{
		"type": "FeatureCollection",
		"tour": {"id": "x", "name": "X"},
		"features": [
			{"type": "Feature", "geometry": {"type": "LineString", "coordinates": [[0,0],[1,1]]}, "properties": {}}
		]
	}`)
	_, err := ParseTour(data)
	require.Error(t, err)
}

func TestRegistryLoadAndResolve(t *testing.T) {
	dir := t.TempDir()
	writeTourFile(t, dir, lisbonTour())
	writeTourFile(t, dir, portoTour())
	// Broken file must be skipped without poisoning the rest.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.geojson"), []byte("{nope"), 0o644))
	// Tour missing audio refs fails validation and is skipped too.
	invalid := `{"type":"FeatureCollection","tour":{"id":"bad","name":"Bad"},
		"features":[{"type":"Feature","geometry":{"type":"Point","coordinates":[-9.1,38.7]},"properties":{"id":"p1"}}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "invalid.geojson"), []byte(invalid), 0o644))

	r := NewRegistry(dir)
	require.NoError(t, r.Load())
	assert.Equal(t, 2, r.Count())

	byID, err := r.Get("lisbon-alfama-1")
	require.NoError(t, err)
	bySlug, err := r.Get("alfama")
	require.NoError(t, err)
	assert.Same(t, byID, bySlug)

	_, err = r.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)

	list := r.List()
	require.Len(t, list, 2)
}

func TestRegistryLoadMissingDir(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, r.Load())
	assert.Equal(t, 0, r.Count())
}

func TestRegistryNearby(t *testing.T) {
	dir := t.TempDir()
	writeTourFile(t, dir, lisbonTour())
	writeTourFile(t, dir, portoTour())

	r := NewRegistry(dir)
	require.NoError(t, r.Load())

	// Standing by the cathedral: only the Lisbon tour is in reach.
	near := r.Nearby(38.7099, -9.1320)
	require.Len(t, near, 1)
	assert.Equal(t, "lisbon-alfama-1", near[0].ID)

	// Out in the Atlantic nothing is nearby.
	assert.Empty(t, r.Nearby(36.0, -20.0))
}

func TestRegistryInstallAndRemove(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry(dir)
	require.NoError(t, r.Load())

	tr := lisbonTour()
	require.NoError(t, r.Install(tr))
	assert.FileExists(t, filepath.Join(dir, "alfama.geojson"))

	// Installing the same id again replaces, not duplicates.
	again := lisbonTour()
	again.Name = "Alfama by Night"
	require.NoError(t, r.Install(again))
	assert.Equal(t, 1, r.Count())
	got, err := r.Get("alfama")
	require.NoError(t, err)
	assert.Equal(t, "Alfama by Night", got.Name)

	// A different tour claiming a taken slug is rejected.
	clash := portoTour()
	clash.Slug = "alfama"
	require.Error(t, r.Install(clash))

	require.NoError(t, r.Remove("alfama"))
	assert.Equal(t, 0, r.Count())
	assert.NoFileExists(t, filepath.Join(dir, "alfama.geojson"))
	assert.Empty(t, r.Nearby(38.7099, -9.1320))
}

func TestExcerpt(t *testing.T) {
	tests := []struct {
		name     string
		fragment string
		maxWords int
		want     string
	}{
		{
			name:     "plain text passes through",
			fragment: "A short stroll through Alfama.",
			maxWords: 10,
			want:     "A short stroll through Alfama.",
		},
		{
			name:     "tags stripped",
			fragment: "<p>Narrow <b>streets</b> and fado houses.</p>",
			maxWords: 10,
			want:     "Narrow streets and fado houses.",
		},
		{
			name:     "citations and scripts dropped",
			fragment: `<p>Old town<sup>[1]</sup> charm.<script>x()</script></p>`,
			maxWords: 10,
			want:     "Old town charm.",
		},
		{
			name:     "truncated at word cap",
			fragment: "one two three four five",
			maxWords: 3,
			want:     "one two three...",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Excerpt(tt.fragment, tt.maxWords))
		})
	}
}
