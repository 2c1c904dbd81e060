package trigger

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/acurth/audioguia/pkg/geo"
	"github.com/acurth/audioguia/pkg/model"
)

var testPolicy = geo.RadiusPolicy{
	DefaultRadius:      15,
	MinRadius:          10,
	MaxRadius:          50,
	AccuracyMultiplier: 2.0,
	MaxAccuracy:        50,
}

type sinkRecorder struct {
	mu     sync.Mutex
	played []string
}

func (s *sinkRecorder) PlayPoint(p *model.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.played = append(s.played, p.ID)
}

func (s *sinkRecorder) playedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.played))
	copy(out, s.played)
	return out
}

var testBase = geo.Point{Lat: 38.7223, Lng: -9.1393}

// lineTour builds a tour whose points sit north of the base at the given
// meter marks, all with the same author radius.
func lineTour(radius float64, meterMarks ...float64) *model.Tour {
	tour := &model.Tour{ID: "t1", Slug: "test-walk", Name: "Test Walk"}
	for i, m := range meterMarks {
		p := geo.DestinationPoint(testBase, m, 0)
		tour.Points = append(tour.Points, model.Point{
			ID:     "p" + string(rune('1'+i)),
			Name:   "Point " + string(rune('1'+i)),
			Lat:    p.Lat,
			Lng:    p.Lng,
			Radius: radius,
		})
	}
	return tour
}

// at builds a sample the given meters north of the base.
func at(meters, accuracy float64) model.Position {
	p := geo.DestinationPoint(testBase, meters, 0)
	return model.Position{Lat: p.Lat, Lng: p.Lng, Accuracy: accuracy, Timestamp: time.Now()}
}

func newTestEngine(t *testing.T, tour *model.Tour) (*Engine, *sinkRecorder) {
	t.Helper()
	e := NewEngine(testPolicy, slog.Default())
	sink := &sinkRecorder{}
	e.SetSink(sink)
	e.SetTour(tour)
	return e, sink
}

func TestEngineTriggersMiddlePointOnly(t *testing.T) {
	// Three points with radius 10 spaced 100m apart. Walking up to point 2
	// with a 5m fix (effective radius 10m) must fire point 2 once, while
	// points 1 and 3 stay out of range and unarmed.
	e, sink := newTestEngine(t, lineTour(10, 0, 100, 200))

	if _, err := e.Start(); err != nil {
		t.Fatal(err)
	}

	fired := e.HandlePosition(at(92, 5))
	if fired == nil || fired.ID != "p2" {
		t.Fatalf("expected p2 to fire, got %+v", fired)
	}

	snap, ok := e.Session()
	if !ok {
		t.Fatal("expected active session")
	}
	if len(snap.TriggeredIDs) != 1 || snap.TriggeredIDs[0] != "p2" {
		t.Errorf("triggered ids = %v, want [p2]", snap.TriggeredIDs)
	}
	if snap.LastTriggered == nil || snap.LastTriggered.ID != "p2" {
		t.Errorf("last triggered = %+v, want p2", snap.LastTriggered)
	}
	if got := sink.playedIDs(); len(got) != 1 || got[0] != "p2" {
		t.Errorf("sink played %v, want [p2]", got)
	}
}

func TestEngineNoRearm(t *testing.T) {
	e, sink := newTestEngine(t, lineTour(10, 0, 100, 200))
	if _, err := e.Start(); err != nil {
		t.Fatal(err)
	}

	// Trigger p2, wander away, come back inside its radius.
	if fired := e.HandlePosition(at(92, 5)); fired == nil || fired.ID != "p2" {
		t.Fatalf("first pass should fire p2, got %+v", fired)
	}
	if fired := e.HandlePosition(at(60, 5)); fired != nil {
		t.Fatalf("mid-walk sample fired %v", fired.ID)
	}
	if fired := e.HandlePosition(at(95, 5)); fired != nil {
		t.Fatalf("re-entering p2 radius re-armed it: %v", fired.ID)
	}

	if got := sink.playedIDs(); len(got) != 1 {
		t.Errorf("sink played %v, want exactly one", got)
	}
}

func TestEngineAccuracyGate(t *testing.T) {
	e, _ := newTestEngine(t, lineTour(10, 0, 100, 200))
	if _, err := e.Start(); err != nil {
		t.Fatal(err)
	}

	// 80m accuracy is above the trigger ceiling: inside the geometric
	// radius but no trigger.
	if fired := e.HandlePosition(at(92, 80)); fired != nil {
		t.Fatalf("sample with 80m accuracy fired %v", fired.ID)
	}

	// Same spot once the fix improves to 15m.
	fired := e.HandlePosition(at(92, 15))
	if fired == nil || fired.ID != "p2" {
		t.Fatalf("expected p2 after accuracy improved, got %+v", fired)
	}
}

func TestEngineArrayOrderTieBreak(t *testing.T) {
	// Overlapping radii: the sample is nearer to p2, but p1 comes first in
	// array order and wins the sample.
	e, _ := newTestEngine(t, lineTour(10, 0, 15))
	if _, err := e.Start(); err != nil {
		t.Fatal(err)
	}

	fired := e.HandlePosition(at(12, 10)) // effective radius 20m, both inside
	if fired == nil || fired.ID != "p1" {
		t.Fatalf("expected array-order winner p1, got %+v", fired)
	}

	// One trigger per sample: p2 must not have fired too.
	snap, _ := e.Session()
	if len(snap.TriggeredIDs) != 1 {
		t.Errorf("triggered ids = %v, want exactly one", snap.TriggeredIDs)
	}

	// The next sample picks up p2, still inside.
	fired = e.HandlePosition(at(12, 10))
	if fired == nil || fired.ID != "p2" {
		t.Fatalf("expected p2 on next sample, got %+v", fired)
	}
}

func TestEngineDefaultRadiusFallback(t *testing.T) {
	e, _ := newTestEngine(t, lineTour(0, 0)) // radius 0 -> default 15m
	if _, err := e.Start(); err != nil {
		t.Fatal(err)
	}

	fired := e.HandlePosition(at(12, 5))
	if fired == nil {
		t.Fatal("expected trigger via default radius fallback")
	}
}

func TestEngineIdleComputesDistancesOnly(t *testing.T) {
	e, sink := newTestEngine(t, lineTour(10, 0, 100))

	if fired := e.HandlePosition(at(2, 5)); fired != nil {
		t.Fatalf("idle engine fired %v", fired.ID)
	}

	dists := e.Distances()
	if len(dists) != 2 {
		t.Fatalf("distances rows = %d, want 2", len(dists))
	}
	if dists[0].Distance > 3 || !dists[0].Inside {
		t.Errorf("row 0 = %+v, want inside at ~2m", dists[0])
	}
	if len(sink.playedIDs()) != 0 {
		t.Error("sink invoked while idle")
	}
}

func TestEngineStopClearsSession(t *testing.T) {
	e, sink := newTestEngine(t, lineTour(10, 0, 100, 200))
	if _, err := e.Start(); err != nil {
		t.Fatal(err)
	}
	if fired := e.HandlePosition(at(92, 5)); fired == nil {
		t.Fatal("setup trigger failed")
	}

	e.Stop()
	if _, ok := e.Session(); ok {
		t.Fatal("session survives Stop")
	}

	// A new session starts clean: the same point fires again.
	if _, err := e.Start(); err != nil {
		t.Fatal(err)
	}
	if fired := e.HandlePosition(at(92, 5)); fired == nil || fired.ID != "p2" {
		t.Fatalf("expected p2 in fresh session, got %+v", fired)
	}
	if got := sink.playedIDs(); len(got) != 2 {
		t.Errorf("sink played %v, want two (one per session)", got)
	}
}

func TestEngineTriggeredSetMonotonic(t *testing.T) {
	e, _ := newTestEngine(t, lineTour(10, 0, 30, 60, 90))
	if _, err := e.Start(); err != nil {
		t.Fatal(err)
	}

	// Walk the whole line; every point fires exactly once, in order.
	seen := make(map[string]int)
	var order []string
	for m := 0.0; m <= 95; m += 2.5 {
		if fired := e.HandlePosition(at(m, 5)); fired != nil {
			seen[fired.ID]++
			order = append(order, fired.ID)
		}
	}

	for id, n := range seen {
		if n != 1 {
			t.Errorf("point %s fired %d times", id, n)
		}
	}
	if len(order) != 4 {
		t.Fatalf("fired %v, want all 4 points", order)
	}
	for i, id := range []string{"p1", "p2", "p3", "p4"} {
		if order[i] != id {
			t.Errorf("firing order = %v, want [p1 p2 p3 p4]", order)
			break
		}
	}

	snap, _ := e.Session()
	if len(snap.TriggeredIDs) != 4 {
		t.Errorf("triggered ids = %v", snap.TriggeredIDs)
	}
}

func TestEngineStartWithoutTour(t *testing.T) {
	e := NewEngine(testPolicy, slog.Default())
	if _, err := e.Start(); err != ErrNoTour {
		t.Fatalf("Start without tour = %v, want ErrNoTour", err)
	}
}
