package position

import (
	"context"
	"log/slog"
	"time"

	"github.com/acurth/audioguia/pkg/model"
)

const defaultReplayGap = time.Second

// ReplaySource walks a recorded GPX track, pacing samples by the track's
// own timestamps. It is how field recordings get re-run against a tour
// on a desk.
type ReplaySource struct {
	log      *slog.Logger
	path     string
	speed    float64
	accuracy float64
}

// NewReplaySource replays the track at path. speed scales the pace (2 =
// twice as fast); accuracy is stamped onto every sample since GPX files
// carry none.
func NewReplaySource(path string, speed, accuracy float64) *ReplaySource {
	if speed <= 0 {
		speed = 1
	}
	if accuracy <= 0 {
		accuracy = 5
	}
	return &ReplaySource{
		log:      slog.With("component", "position", "source", "gpx"),
		path:     path,
		speed:    speed,
		accuracy: accuracy,
	}
}

func (s *ReplaySource) Name() string { return "gpx" }

func (s *ReplaySource) Watch(ctx context.Context, opts Options) (*Watch, error) {
	points, err := parseGPXFile(s.path)
	if err != nil {
		return nil, err
	}

	w := newWatch()
	cancel := firstFixTimer(w, opts)
	go s.run(ctx, w, points, cancel)
	return w, nil
}

func (s *ReplaySource) run(ctx context.Context, w *Watch, points []gpxPoint, cancel func()) {
	defer w.close()
	defer cancel()

	s.log.Info("Replaying track", "path", s.path, "points", len(points), "speed", s.speed)

	for i, pt := range points {
		if i > 0 {
			gap := defaultReplayGap
			if !pt.Time.IsZero() && !points[i-1].Time.IsZero() {
				if d := pt.Time.Sub(points[i-1].Time); d > 0 {
					gap = d
				}
			}
			gap = time.Duration(float64(gap) / s.speed)

			select {
			case <-time.After(gap):
			case <-w.stop:
				return
			case <-ctx.Done():
				return
			}
		}

		if i == 0 {
			cancel()
		}
		w.push(model.Position{
			Lat:       pt.Lat,
			Lng:       pt.Lon,
			Accuracy:  s.accuracy,
			Timestamp: time.Now(),
		})
	}

	s.log.Info("Track replay finished", "path", s.path)
}
