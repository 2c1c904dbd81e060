package store

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/acurth/audioguia/pkg/db"
)

// setupTestStore creates a test database and store for each test.
func setupTestStore(t *testing.T) (*SQLiteStore, func()) {
	t.Helper()
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "test.db")

	d, err := db.Init(dbPath)
	if err != nil {
		t.Fatalf("Failed to init DB: %v", err)
	}

	store := NewSQLiteStore(d)
	cleanup := func() { d.Close() }
	return store, cleanup
}

func TestAssetStore_CompressionRoundTrip(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		body []byte
	}{
		{
			name: "small json",
			body: []byte(`{"id":"t1","points":[]}`),
		},
		{
			name: "large compressible payload",
			body: bytes.Repeat([]byte("la"), 50000),
		},
		{
			name: "empty body",
			body: []byte{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, cleanup := setupTestStore(t)
			defer cleanup()

			if err := store.PutAsset(ctx, "t1", "/f", tt.body, "application/octet-stream"); err != nil {
				t.Fatalf("PutAsset() error = %v", err)
			}
			a, err := store.GetAsset(ctx, "t1", "/f")
			if err != nil {
				t.Fatalf("GetAsset() error = %v", err)
			}
			if a == nil {
				t.Fatal("GetAsset() returned nil")
			}
			if !bytes.Equal(a.Body, tt.body) {
				t.Errorf("Body round trip mismatch: got %d bytes, want %d", len(a.Body), len(tt.body))
			}
			if a.Size != int64(len(tt.body)) {
				t.Errorf("Size = %d, want uncompressed %d", a.Size, len(tt.body))
			}
		})
	}
}

func TestAssetStore_ReplaceKeepsOneRow(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	_ = store.PutAsset(ctx, "t1", "/f", []byte("v1"), "text/plain")
	_ = store.PutAsset(ctx, "t1", "/f", []byte("v2"), "text/plain")

	n, err := store.CountAssets(ctx, "t1")
	if err != nil {
		t.Fatalf("CountAssets() error = %v", err)
	}
	if n != 1 {
		t.Errorf("CountAssets() = %d, want 1", n)
	}
	a, _ := store.GetAsset(ctx, "t1", "/f")
	if string(a.Body) != "v2" {
		t.Errorf("Body = %q, want v2", a.Body)
	}
}

func TestCacheRegistry_ListEmpty(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	caches, err := store.ListCaches(context.Background())
	if err != nil {
		t.Fatalf("ListCaches() error = %v", err)
	}
	if len(caches) != 0 {
		t.Errorf("ListCaches() on fresh db = %d entries, want 0", len(caches))
	}
}

func TestAssetStore_IsolatesTours(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	_ = store.PutAsset(ctx, "a", "/same.mp3", []byte("tour a"), "audio/mpeg")
	_ = store.PutAsset(ctx, "b", "/same.mp3", []byte("tour b"), "audio/mpeg")

	if _, err := store.DeleteTourAssets(ctx, "a"); err != nil {
		t.Fatalf("DeleteTourAssets() error = %v", err)
	}

	got, err := store.GetAsset(ctx, "b", "/same.mp3")
	if err != nil {
		t.Fatalf("GetAsset() error = %v", err)
	}
	if got == nil || string(got.Body) != "tour b" {
		t.Error("deleting tour a must not touch tour b assets")
	}
}
