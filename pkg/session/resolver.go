package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/acurth/audioguia/pkg/config"
	"github.com/acurth/audioguia/pkg/store"
)

// MediaResolver turns a point's audio reference into a path the decoder
// can open.
type MediaResolver interface {
	Resolve(ctx context.Context, tourID, pointID, ref string) (string, error)
}

// Resolver prefers media files on disk and falls back to the offline asset
// cache, exporting cached bytes into the temp media directory. The sound
// backend wants seekable files, so cached clips cannot be streamed straight
// out of the database.
type Resolver struct {
	log      *slog.Logger
	assets   store.AssetStore
	mediaDir string
	tmpDir   string
}

func NewResolver(cfg *config.ToursConfig, assets store.AssetStore) *Resolver {
	return &Resolver{
		log:      slog.With("component", "media"),
		assets:   assets,
		mediaDir: cfg.MediaDir,
		tmpDir:   cfg.TmpDir,
	}
}

// Resolve maps an audio reference to a local file. Absolute paths and files
// under the media directory win; otherwise the tour's asset cache is
// consulted and a hit is exported to a stable temp file.
func (r *Resolver) Resolve(ctx context.Context, tourID, pointID, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("point %s: empty audio reference", pointID)
	}

	if filepath.IsAbs(ref) {
		if fi, err := os.Stat(ref); err == nil && fi.Mode().IsRegular() {
			return ref, nil
		}
	} else if r.mediaDir != "" {
		local := filepath.Join(r.mediaDir, filepath.FromSlash(strings.TrimPrefix(ref, "/")))
		if fi, err := os.Stat(local); err == nil && fi.Mode().IsRegular() {
			return local, nil
		}
	}

	rec, err := r.assets.GetAsset(ctx, tourID, cacheKey(ref))
	if err != nil {
		return "", fmt.Errorf("asset lookup for %s: %w", ref, err)
	}
	if rec == nil {
		return "", fmt.Errorf("no media for %s: not on disk, not cached", ref)
	}
	return r.export(tourID, pointID, ref, rec.Body)
}

// export writes cached bytes under a content-derived name so repeated
// triggers of the same clip reuse one file. The write lands as .part first;
// the rename keeps a concurrent open from seeing a torn file.
func (r *Resolver) export(tourID, pointID, ref string, body []byte) (string, error) {
	if err := os.MkdirAll(r.tmpDir, 0o755); err != nil {
		return "", fmt.Errorf("create temp media dir: %w", err)
	}

	sum := sha256.Sum256(body)
	name := fmt.Sprintf("%s_%s_%s%s",
		sanitize(tourID), sanitize(pointID), hex.EncodeToString(sum[:4]), mediaExt(ref))
	dst := filepath.Join(r.tmpDir, name)

	if fi, err := os.Stat(dst); err == nil && fi.Size() == int64(len(body)) {
		return dst, nil
	}

	part := dst + ".part"
	if err := os.WriteFile(part, body, 0o644); err != nil {
		return "", fmt.Errorf("write temp media: %w", err)
	}
	if err := os.Rename(part, dst); err != nil {
		return "", fmt.Errorf("publish temp media: %w", err)
	}
	r.log.Debug("Exported cached media", "ref", ref, "path", dst, "bytes", len(body))
	return dst, nil
}

// cacheKey normalizes an audio reference into the asset cache's key space,
// a rooted path plus any query string.
func cacheKey(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		if !strings.HasPrefix(ref, "/") {
			return "/" + ref
		}
		return ref
	}
	key := u.Path
	if !strings.HasPrefix(key, "/") {
		key = "/" + key
	}
	if u.RawQuery != "" {
		key += "?" + u.RawQuery
	}
	return key
}

// sanitize keeps ids usable as filename parts.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, s)
}

// mediaExt picks the export extension from the reference, defaulting to
// mp3. The decoder dispatches on it.
func mediaExt(ref string) string {
	base := ref
	if u, err := url.Parse(ref); err == nil && u.Path != "" {
		base = u.Path
	}
	if ext := path.Ext(base); ext != "" {
		return ext
	}
	return ".mp3"
}
