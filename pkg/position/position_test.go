package position

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/acurth/audioguia/pkg/geo"
	"github.com/acurth/audioguia/pkg/model"
)

func TestManualSourcePushAndReplay(t *testing.T) {
	s := NewManualSource()
	ctx := context.Background()

	// A fix pushed before anyone watches is replayed to late joiners.
	s.Push(model.Position{Lat: 38.7, Lng: -9.14, Accuracy: 5})

	w, err := s.Watch(ctx, Options{})
	if err != nil {
		t.Fatalf("Watch() error: %v", err)
	}
	defer w.Unsubscribe()

	select {
	case p := <-w.Samples():
		if p.Lat != 38.7 {
			t.Errorf("replayed Lat = %v, want 38.7", p.Lat)
		}
		if p.Timestamp.IsZero() {
			t.Error("Push must stamp a missing timestamp")
		}
	case <-time.After(time.Second):
		t.Fatal("expected replayed fix")
	}

	s.Push(model.Position{Lat: 38.71, Lng: -9.14, Accuracy: 7})
	select {
	case p := <-w.Samples():
		if p.Lat != 38.71 {
			t.Errorf("Lat = %v, want 38.71", p.Lat)
		}
	case <-time.After(time.Second):
		t.Fatal("expected pushed fix")
	}
}

func TestManualSourceUnsubscribeClosesSamples(t *testing.T) {
	s := NewManualSource()
	w, err := s.Watch(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	w.Unsubscribe()
	w.Unsubscribe() // second call must be safe

	select {
	case _, ok := <-w.Samples():
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("samples channel did not close")
	}

	// Pushing after unsubscribe must not panic.
	s.Push(model.Position{Lat: 1, Lng: 2})
}

func TestManualSourceFirstFixTimeout(t *testing.T) {
	s := NewManualSource()
	w, err := s.Watch(context.Background(), Options{Timeout: 30 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Unsubscribe()

	select {
	case werr := <-w.Errors():
		if werr.Code != CodeTimeout {
			t.Errorf("Code = %q, want %q", werr.Code, CodeTimeout)
		}
	case <-time.After(time.Second):
		t.Fatal("expected timeout error")
	}
}

func TestManualSourceFail(t *testing.T) {
	s := NewManualSource()
	w, err := s.Watch(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Unsubscribe()

	s.Fail(CodePermissionDenied, "user revoked location access")

	select {
	case werr := <-w.Errors():
		if werr.Code != CodePermissionDenied {
			t.Errorf("Code = %q, want %q", werr.Code, CodePermissionDenied)
		}
		if !strings.Contains(werr.Error(), "permission-denied") {
			t.Errorf("Error() = %q", werr.Error())
		}
	case <-time.After(time.Second):
		t.Fatal("expected failure")
	}
}

const sampleGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <trk>
    <name>Alfama loop</name>
    <trkseg>
      <trkpt lat="38.7100" lon="-9.1300"><ele>20</ele><time>2025-05-01T10:00:00Z</time></trkpt>
      <trkpt lat="38.7101" lon="-9.1300"><ele>21</ele><time>2025-05-01T10:00:01Z</time></trkpt>
    </trkseg>
    <trkseg>
      <trkpt lat="38.7102" lon="-9.1301"><ele>22</ele><time>2025-05-01T10:00:02Z</time></trkpt>
    </trkseg>
  </trk>
</gpx>`

func TestParseGPX(t *testing.T) {
	points, err := parseGPX(strings.NewReader(sampleGPX))
	if err != nil {
		t.Fatalf("parseGPX() error: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("got %d points, want 3 (segments must flatten)", len(points))
	}
	if points[0].Lat != 38.7100 || points[0].Lon != -9.1300 {
		t.Errorf("first point = (%v, %v)", points[0].Lat, points[0].Lon)
	}
	if points[2].Elevation != 22 {
		t.Errorf("Elevation = %v, want 22", points[2].Elevation)
	}
}

func TestParseGPXEmpty(t *testing.T) {
	_, err := parseGPX(strings.NewReader(`<gpx version="1.1"></gpx>`))
	if err == nil {
		t.Fatal("expected error for trackless GPX")
	}
}

func TestReplaySource(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/walk.gpx"
	if err := writeFile(path, sampleGPX); err != nil {
		t.Fatal(err)
	}

	// 1s gaps at 100x replay in ~10ms steps.
	s := NewReplaySource(path, 100, 6)
	w, err := s.Watch(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Watch() error: %v", err)
	}
	defer w.Unsubscribe()

	var got []model.Position
	deadline := time.After(2 * time.Second)
	for {
		select {
		case p, ok := <-w.Samples():
			if !ok {
				if len(got) != 3 {
					t.Fatalf("got %d samples before close, want 3", len(got))
				}
				if got[0].Accuracy != 6 {
					t.Errorf("Accuracy = %v, want stamped 6", got[0].Accuracy)
				}
				if got[2].Lat != 38.7102 {
					t.Errorf("last Lat = %v, want 38.7102", got[2].Lat)
				}
				return
			}
			got = append(got, p)
		case <-deadline:
			t.Fatalf("replay did not finish, got %d samples", len(got))
		}
	}
}

func TestReplaySourceMissingFile(t *testing.T) {
	s := NewReplaySource("/nonexistent/track.gpx", 1, 5)
	if _, err := s.Watch(context.Background(), Options{}); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWalkerFollowsRoute(t *testing.T) {
	start := geo.Point{Lat: 38.7100, Lng: -9.1300}
	target := geo.DestinationPoint(start, 50, 0)

	walker := NewWalker(WalkerConfig{
		StartLat: start.Lat,
		StartLng: start.Lng,
		Speed:    100, // sprint so the test finishes fast
		Interval: 10 * time.Millisecond,
	})
	defer walker.Close()
	walker.SetRoute([]geo.Point{target})

	w, err := walker.Watch(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Watch() error: %v", err)
	}
	defer w.Unsubscribe()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case p := <-w.Samples():
			d := geo.Distance(geo.Point{Lat: p.Lat, Lng: p.Lng}, target)
			if d < 25 { // jitter keeps it off the exact waypoint
				return
			}
			if p.Accuracy < 4 || p.Accuracy > 12 {
				t.Fatalf("Accuracy = %v, want within [4, 12]", p.Accuracy)
			}
		case <-deadline:
			t.Fatal("walker never reached the waypoint")
		}
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
