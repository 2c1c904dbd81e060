package motion

import (
	"testing"
	"time"

	"github.com/acurth/audioguia/pkg/geo"
	"github.com/acurth/audioguia/pkg/model"
)

var testThresholds = Thresholds{
	UsableAccuracy:  20,
	Window:          12 * time.Second,
	MovingThreshold: 8,
	StillThreshold:  3,
}

// sample places a position meters north of the base coordinate at the given
// offset from t0.
func sample(meters, accuracy float64, offset time.Duration) model.Position {
	base := geo.Point{Lat: 38.7223, Lng: -9.1393}
	p := geo.DestinationPoint(base, meters, 0)
	t0 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	return model.Position{
		Lat:       p.Lat,
		Lng:       p.Lng,
		Accuracy:  accuracy,
		Timestamp: t0.Add(offset),
	}
}

func TestDetector(t *testing.T) {
	tests := []struct {
		name     string
		sequence []model.Position
		expected State
	}{
		{
			name:     "Initial",
			sequence: []model.Position{sample(0, 5, 0)},
			expected: StateStationary,
		},
		{
			name: "WalksAway_Moving",
			sequence: []model.Position{
				sample(0, 5, 0),
				sample(10, 5, 12*time.Second),
			},
			expected: StateMoving,
		},
		{
			name: "BeforeWindow_NoChange",
			sequence: []model.Position{
				sample(0, 5, 0),
				sample(10, 5, 5*time.Second),
			},
			expected: StateStationary,
		},
		{
			name: "GapDisplacement_NoChange",
			sequence: []model.Position{
				sample(0, 5, 0),
				sample(5, 5, 12*time.Second),
			},
			expected: StateStationary,
		},
		{
			name: "GapKeepsReference_ThenMoving",
			sequence: []model.Position{
				sample(0, 5, 0),
				// 5m is inside the hysteresis gap; reference stays at 0m,
				// so the next 10m total displacement flips to moving.
				sample(5, 5, 12*time.Second),
				sample(10, 5, 24*time.Second),
			},
			expected: StateMoving,
		},
		{
			name: "StopsAgain_Stationary",
			sequence: []model.Position{
				sample(0, 5, 0),
				sample(10, 5, 12*time.Second),
				sample(11, 5, 24*time.Second),
			},
			expected: StateStationary,
		},
		{
			name: "PoorAccuracyIgnored",
			sequence: []model.Position{
				sample(0, 5, 0),
				sample(50, 25, 12*time.Second),
			},
			expected: StateStationary,
		},
		{
			name: "PoorAccuracyDoesNotMoveReference",
			sequence: []model.Position{
				sample(0, 5, 0),
				sample(50, 25, 6*time.Second),
				sample(10, 5, 12*time.Second),
			},
			expected: StateMoving,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDetector(testThresholds)
			var state State
			for _, pos := range tt.sequence {
				state = d.Update(pos)
			}
			if state != tt.expected {
				t.Errorf("final state = %v, want %v", state, tt.expected)
			}
		})
	}
}

func TestDetectorReset(t *testing.T) {
	d := NewDetector(testThresholds)
	d.Update(sample(0, 5, 0))
	d.Update(sample(10, 5, 12*time.Second))

	if !d.IsMoving() {
		t.Fatal("expected moving before reset")
	}

	d.Reset()
	if d.IsMoving() {
		t.Error("expected stationary after reset")
	}

	// After reset the first sample only seeds the reference again.
	if got := d.Update(sample(100, 5, 30*time.Second)); got != StateStationary {
		t.Errorf("state after reseed = %v, want stationary", got)
	}
}
