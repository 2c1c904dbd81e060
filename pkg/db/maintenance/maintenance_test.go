package maintenance

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/acurth/audioguia/pkg/db"
	"github.com/acurth/audioguia/pkg/store"
)

func TestMaintenance(t *testing.T) {
	// Setup DB
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "maint_test.db")
	d, err := db.Init(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	s := store.NewSQLiteStore(d)
	ctx := context.Background()

	// Empty namespace: registered, never got an asset.
	if err := s.RegisterCache(ctx, "ghost-tour", "ghost"); err != nil {
		t.Fatal(err)
	}
	// Healthy namespace.
	if err := s.RegisterCache(ctx, "live-tour", "live"); err != nil {
		t.Fatal(err)
	}
	if err := s.PutAsset(ctx, "live-tour", "/a.mp3", []byte("x"), "audio/mpeg"); err != nil {
		t.Fatal(err)
	}
	// Orphan asset: namespace already unregistered.
	if err := s.PutAsset(ctx, "deleted-tour", "/b.mp3", []byte("y"), "audio/mpeg"); err != nil {
		t.Fatal(err)
	}

	// Temp media: one stale clip, one fresh.
	tmpMedia := filepath.Join(tempDir, "media")
	if err := os.MkdirAll(tmpMedia, 0o755); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(tmpMedia, "stale.mp3")
	fresh := filepath.Join(tmpMedia, "fresh.mp3")
	for _, p := range []string{stale, fresh} {
		if err := os.WriteFile(p, []byte("clip"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	// Run Maintenance
	if err := Run(d, tmpMedia); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Empty namespaces are the download worker's business, not ours.
	caches, err := s.ListCaches(ctx)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, c := range caches {
		if c.TourID == "ghost-tour" {
			found = true
		}
	}
	if !found {
		t.Error("Maintenance must leave empty cache namespaces alone")
	}

	// Verify orphan pruning
	var count int
	if err := d.QueryRow("SELECT count(*) FROM asset_cache WHERE tour_id = ?", "deleted-tour").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Error("Orphan asset row was not pruned")
	}
	if err := d.QueryRow("SELECT count(*) FROM asset_cache WHERE tour_id = ?", "live-tour").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Error("Live asset row was incorrectly pruned")
	}

	// Verify temp sweep
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("Stale temp clip was not removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("Fresh temp clip should survive the sweep")
	}
}

func TestCleanTempMediaMissingDir(t *testing.T) {
	if err := cleanTempMedia(filepath.Join(t.TempDir(), "nope")); err != nil {
		t.Errorf("missing dir should be a no-op, got %v", err)
	}
}
