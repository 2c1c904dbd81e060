package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/acurth/audioguia/pkg/db"
)

// Store defines the repository interface.
// It composes all sub-interfaces for full store access.
// Consumers should depend on specific sub-interfaces when possible.
type Store interface {
	AssetStore
	CacheRegistry
	StateStore

	// Close closes the store connection.
	Close() error
}

// SQLiteStore implements Store.
type SQLiteStore struct {
	db *db.DB
}

func NewSQLiteStore(db *db.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Assets ---

func (s *SQLiteStore) PutAsset(ctx context.Context, tourID, url string, body []byte, contentType string) error {
	size := int64(len(body))

	// Transparent Compression
	compressed, err := compress(body)
	if err == nil {
		body = compressed
	}

	query := `INSERT OR REPLACE INTO asset_cache (tour_id, url, body, content_type, size, created_at)
	          VALUES (?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query, tourID, url, body, contentType, size, time.Now())
	return err
}

func (s *SQLiteStore) GetAsset(ctx context.Context, tourID, url string) (*AssetRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT tour_id, url, body, content_type, size, created_at
		 FROM asset_cache WHERE tour_id = ? AND url = ?`, tourID, url)

	var a AssetRecord
	var contentType sql.NullString
	err := row.Scan(&a.TourID, &a.URL, &a.Body, &contentType, &a.Size, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	if contentType.Valid {
		a.ContentType = contentType.String
	}

	// Transparent Decompression
	if len(a.Body) > 2 && a.Body[0] == 0x1f && a.Body[1] == 0x8b {
		if decompressed, err := decompress(a.Body); err == nil {
			a.Body = decompressed
		}
	}

	return &a, nil
}

func (s *SQLiteStore) HasAsset(ctx context.Context, tourID, url string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM asset_cache WHERE tour_id = ? AND url = ?", tourID, url).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) ListAssetURLs(ctx context.Context, tourID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT url FROM asset_cache WHERE tour_id = ? ORDER BY url", tourID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

func (s *SQLiteStore) CountAssets(ctx context.Context, tourID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT count(*) FROM asset_cache WHERE tour_id = ?", tourID).Scan(&n)
	return n, err
}

func (s *SQLiteStore) DeleteTourAssets(ctx context.Context, tourID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM asset_cache WHERE tour_id = ?", tourID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Cache Registry ---

func (s *SQLiteStore) RegisterCache(ctx context.Context, tourID, slug string) error {
	query := `INSERT INTO tour_caches (tour_id, slug, created_at) VALUES (?, ?, ?)
	          ON CONFLICT(tour_id) DO UPDATE SET slug=excluded.slug`
	_, err := s.db.ExecContext(ctx, query, tourID, slug, time.Now())
	return err
}

func (s *SQLiteStore) UnregisterCache(ctx context.Context, tourID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM tour_caches WHERE tour_id = ?", tourID)
	return err
}

func (s *SQLiteStore) ListCaches(ctx context.Context) ([]CacheInfo, error) {
	query := `SELECT t.tour_id, t.slug, t.created_at, count(a.url), coalesce(sum(a.size), 0)
	          FROM tour_caches t
	          LEFT JOIN asset_cache a ON a.tour_id = t.tour_id
	          GROUP BY t.tour_id ORDER BY t.created_at`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []CacheInfo
	for rows.Next() {
		var c CacheInfo
		var slug sql.NullString
		if err := rows.Scan(&c.TourID, &slug, &c.CreatedAt, &c.AssetCount, &c.TotalBytes); err != nil {
			return nil, err
		}
		if slug.Valid {
			c.Slug = slug.String
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// ReapEmptyCaches removes registry rows that never received an asset,
// typically left behind by downloads that died before their first file.
// Returns the tour ids that were reaped.
func (s *SQLiteStore) ReapEmptyCaches(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.tour_id FROM tour_caches t
		 LEFT JOIN asset_cache a ON a.tour_id = t.tour_id
		 WHERE a.tour_id IS NULL`)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM tour_caches WHERE tour_id = ?", id); err != nil {
			return ids, err
		}
	}
	return ids, nil
}

// --- Compression Pooling ---

var (
	// Pool for gzip writers to reuse flate state
	gzipWriterPool = sync.Pool{
		New: func() interface{} {
			return gzip.NewWriter(io.Discard)
		},
	}
	// Pool for generic byte buffers
	bufferPool = sync.Pool{
		New: func() interface{} {
			return new(bytes.Buffer)
		},
	}
)

func compress(data []byte) ([]byte, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	w := gzipWriterPool.Get().(*gzip.Writer)
	defer gzipWriterPool.Put(w)
	w.Reset(buf)

	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	// Must copy because buf is returned to pool
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// --- State ---

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, bool) {
	var val string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM client_state WHERE key = ?", key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false
	}
	if err != nil {
		return "", false
	}
	return val, true
}

func (s *SQLiteStore) SetState(ctx context.Context, key, val string) error {
	query := `INSERT OR REPLACE INTO client_state (key, value, created_at) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, key, val, time.Now())
	return err
}

func (s *SQLiteStore) DeleteState(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM client_state WHERE key = ?", key)
	return err
}
