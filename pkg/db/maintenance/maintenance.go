package maintenance

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/acurth/audioguia/pkg/db"
)

// Age after which an exported narration clip in the temp dir is junk.
const tempMediaMaxAge = 24 * time.Hour

// Run executes all maintenance tasks on startup: dropping asset rows
// whose cache namespace is gone and sweeping stale exported clips.
// Empty namespaces are not touched here, the download worker reaps
// those when it starts. Failures are logged, not fatal; the engine can
// run without them.
func Run(d *db.DB, tmpMediaDir string) error {
	slog.Info("Starting database maintenance...")

	orphans, err := d.DeleteOrphanAssets()
	if err != nil {
		slog.Error("Orphan asset pruning failed", "error", err)
	} else if orphans > 0 {
		slog.Info("Pruned orphan assets", "rows", orphans)
	}

	if err := cleanTempMedia(tmpMediaDir); err != nil {
		slog.Error("Temp media sweep failed", "error", err)
	}

	slog.Info("Database maintenance completed")
	return nil
}

// cleanTempMedia removes exported narration clips left behind by playback
// sessions that did not shut down cleanly.
func cleanTempMedia(dir string) error {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	deadline := time.Now().Add(-tempMediaMaxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(deadline) {
			if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
				removed++
			}
		}
	}
	if removed > 0 {
		slog.Info("Removed stale temp media", "count", removed)
	}
	return nil
}
