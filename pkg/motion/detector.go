// Package motion infers whether the user is walking or standing still from
// accepted position samples. The result feeds a UI indicator only; it never
// gates narration triggering.
package motion

import (
	"time"

	"github.com/acurth/audioguia/pkg/geo"
	"github.com/acurth/audioguia/pkg/model"
)

// State is the binary motion state.
type State string

// Motion states.
const (
	StateStationary State = "stationary"
	StateMoving     State = "moving"
)

// Thresholds holds the detector tunables, all from configuration.
type Thresholds struct {
	UsableAccuracy  float64       // Samples above this accuracy are ignored
	Window          time.Duration // Minimum elapsed time before re-evaluating
	MovingThreshold float64       // Displacement at or above this means moving
	StillThreshold  float64       // Displacement below this means stationary
}

// Detector is a hysteresis state machine over position deltas. Displacements
// between the still and moving thresholds leave both the state and the
// reference sample untouched, so border values cannot make the state flap.
type Detector struct {
	thresholds Thresholds

	state          State
	refPoint       geo.Point
	refTime        time.Time
	hasRef         bool
	lastTransition map[State]time.Time
}

// NewDetector creates a detector in the Stationary state.
func NewDetector(t Thresholds) *Detector {
	return &Detector{
		thresholds:     t,
		state:          StateStationary,
		lastTransition: make(map[State]time.Time),
	}
}

// Update evaluates one position sample and returns the current state.
// Samples with unusable accuracy are ignored here but remain valid for
// distance and trigger evaluation upstream.
func (d *Detector) Update(pos model.Position) State {
	if pos.Accuracy > d.thresholds.UsableAccuracy {
		return d.state
	}

	p := geo.Point{Lat: pos.Lat, Lng: pos.Lng}

	if !d.hasRef {
		d.refPoint = p
		d.refTime = pos.Timestamp
		d.hasRef = true
		return d.state
	}

	if pos.Timestamp.Sub(d.refTime) < d.thresholds.Window {
		return d.state
	}

	displacement := geo.Distance(d.refPoint, p)

	switch {
	case displacement >= d.thresholds.MovingThreshold:
		d.transition(StateMoving, pos.Timestamp)
		d.refPoint = p
		d.refTime = pos.Timestamp
	case displacement < d.thresholds.StillThreshold:
		d.transition(StateStationary, pos.Timestamp)
		d.refPoint = p
		d.refTime = pos.Timestamp
	default:
		// Hysteresis gap: no state change, reference kept.
	}

	return d.state
}

func (d *Detector) transition(next State, at time.Time) {
	if d.state == next {
		return
	}
	d.state = next
	d.lastTransition[next] = at
}

// State returns the current motion state.
func (d *Detector) State() State {
	return d.state
}

// IsMoving reports whether the current state is Moving.
func (d *Detector) IsMoving() bool {
	return d.state == StateMoving
}

// LastTransition returns when the detector last entered the given state.
func (d *Detector) LastTransition(s State) time.Time {
	return d.lastTransition[s]
}

// Reset returns the detector to its initial state, dropping the reference.
func (d *Detector) Reset() {
	d.state = StateStationary
	d.hasRef = false
	d.refPoint = geo.Point{}
	d.refTime = time.Time{}
	d.lastTransition = make(map[State]time.Time)
}
