package tracker

import (
	"testing"
)

func TestTracker(t *testing.T) {
	tr := New()
	tourID := "tour-lisbon"

	// Test Initial State
	stats := tr.Snapshot()
	if len(stats) != 0 {
		t.Errorf("Expected empty stats, got %d", len(stats))
	}

	// Test Tracking
	tr.TrackFetchSuccess(tourID, 2048)
	tr.TrackFetchSuccess(tourID, 1024)
	tr.TrackFetchFailure(tourID)
	tr.TrackCacheHit(tourID)

	// Verify Snapshot
	stats = tr.Snapshot()
	tStats, ok := stats[tourID]
	if !ok {
		t.Fatalf("Expected stats for tour %s", tourID)
	}

	if tStats.FilesFetched != 2 {
		t.Errorf("Expected 2 FilesFetched, got %d", tStats.FilesFetched)
	}
	if tStats.FilesFailed != 1 {
		t.Errorf("Expected 1 FilesFailed, got %d", tStats.FilesFailed)
	}
	if tStats.CacheHits != 1 {
		t.Errorf("Expected 1 CacheHit, got %d", tStats.CacheHits)
	}
	if tStats.BytesFetched != 3072 {
		t.Errorf("Expected 3072 BytesFetched, got %d", tStats.BytesFetched)
	}
}

func TestTrackerIsolatesTours(t *testing.T) {
	tr := New()

	tr.TrackFetchSuccess("tour-a", 100)
	tr.TrackFetchFailure("tour-b")

	stats := tr.Snapshot()
	if stats["tour-a"].FilesFailed != 0 {
		t.Error("tour-a should have no failures")
	}
	if stats["tour-b"].FilesFetched != 0 {
		t.Error("tour-b should have no fetches")
	}
	if stats["tour-b"].FilesFailed != 1 {
		t.Errorf("Expected 1 failure for tour-b, got %d", stats["tour-b"].FilesFailed)
	}
}
