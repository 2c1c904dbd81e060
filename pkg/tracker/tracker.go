package tracker

import (
	"sync"
	"sync/atomic"
)

// Tracker tracks download statistics per tour.
type Tracker struct {
	mu    sync.RWMutex
	stats map[string]*TourStats
}

// TourStats holds transfer metrics for a specific tour.
// Fields are accessed atomically.
type TourStats struct {
	FilesFetched int64
	FilesFailed  int64
	CacheHits    int64
	BytesFetched int64
}

// New creates a new Tracker.
func New() *Tracker {
	return &Tracker{
		stats: make(map[string]*TourStats),
	}
}

// getStats returns the stats object for a tour, creating it if needed.
func (t *Tracker) getStats(tourID string) *TourStats {
	t.mu.RLock()
	s, ok := t.stats[tourID]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Double check
	if s, ok = t.stats[tourID]; ok {
		return s
	}
	s = &TourStats{}
	t.stats[tourID] = s
	return s
}

// TrackFetchSuccess records a completed file transfer.
func (t *Tracker) TrackFetchSuccess(tourID string, bytes int64) {
	s := t.getStats(tourID)
	atomic.AddInt64(&s.FilesFetched, 1)
	atomic.AddInt64(&s.BytesFetched, bytes)
}

// TrackFetchFailure records a file that could not be fetched.
func (t *Tracker) TrackFetchFailure(tourID string) {
	atomic.AddInt64(&t.getStats(tourID).FilesFailed, 1)
}

// TrackCacheHit records a file skipped because it was already cached.
func (t *Tracker) TrackCacheHit(tourID string) {
	atomic.AddInt64(&t.getStats(tourID).CacheHits, 1)
}

// Snapshot returns a copy of the current stats.
func (t *Tracker) Snapshot() map[string]TourStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[string]TourStats)
	for k, v := range t.stats {
		result[k] = TourStats{
			FilesFetched: atomic.LoadInt64(&v.FilesFetched),
			FilesFailed:  atomic.LoadInt64(&v.FilesFailed),
			CacheHits:    atomic.LoadInt64(&v.CacheHits),
			BytesFetched: atomic.LoadInt64(&v.BytesFetched),
		}
	}
	return result
}
