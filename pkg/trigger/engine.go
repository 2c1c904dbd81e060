// Package trigger implements the geofence trigger engine: it consumes
// position samples and decides, exactly once per point per session, when to
// fire a narration.
package trigger

import (
	"log/slog"
	"sync"

	"github.com/acurth/audioguia/pkg/geo"
	"github.com/acurth/audioguia/pkg/logging"
	"github.com/acurth/audioguia/pkg/model"
)

// Sink receives the side effect of a trigger, normally the audio playback
// controller. Play failures are the sink's problem; the engine has already
// committed the trigger when it calls this.
type Sink interface {
	PlayPoint(p *model.Point)
}

// PointDistance is the per-point diagnostic row recomputed on every sample,
// tracking or not, so the UI can show distances before tracking starts.
type PointDistance struct {
	PointID         string  `json:"pointId"`
	Name            string  `json:"name"`
	Distance        float64 `json:"distance"`
	EffectiveRadius float64 `json:"effectiveRadius"`
	Inside          bool    `json:"inside"`
	Triggered       bool    `json:"triggered"`
}

// Engine evaluates position samples against the active tour's points.
// Points are scanned in declared array order, not by proximity: tours are
// linear paths, so array order approximates visiting order, and the first
// point satisfying radius and accuracy wins the sample.
type Engine struct {
	mu     sync.Mutex
	log    *slog.Logger
	policy geo.RadiusPolicy

	tour    *model.Tour
	session *Session
	sink    Sink

	distances []PointDistance
}

// NewEngine creates an idle engine with no tour loaded.
func NewEngine(policy geo.RadiusPolicy, log *slog.Logger) *Engine {
	return &Engine{
		policy: policy,
		log:    log.With("component", "trigger"),
	}
}

// SetSink wires the narration sink. Must be called before Start.
func (e *Engine) SetSink(s Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sink = s
}

// SetTour loads a tour. Switching tours while tracking stops the session
// first; triggered state never carries over between tours.
func (e *Engine) SetTour(t *model.Tour) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		e.log.Info("tour change while tracking, stopping session", "session", e.session.ID)
		e.session = nil
	}
	e.tour = t
	e.distances = nil
}

// Tour returns the loaded tour, or nil.
func (e *Engine) Tour() *model.Tour {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tour
}

// Start begins a tracking session. Starting while already tracking returns
// the running session unchanged.
func (e *Engine) Start() (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tour == nil {
		return Snapshot{}, ErrNoTour
	}
	if e.session != nil {
		return e.session.snapshot(), nil
	}
	e.session = newSession()
	e.log.Info("tracking started", "session", e.session.ID, "tour", e.tour.ID, "points", len(e.tour.Points))
	return e.session.snapshot(), nil
}

// Stop ends the tracking session. The triggered set and last-triggered
// record die with it; there is no re-arm and no persistence across sessions.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return
	}
	e.log.Info("tracking stopped", "session", e.session.ID, "triggered", len(e.session.triggeredIDs))
	e.session = nil
}

// Tracking reports whether a session is active.
func (e *Engine) Tracking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session != nil
}

// SetMoving mirrors the motion detector's state into the session for the
// status API. No-op when idle.
func (e *Engine) SetMoving(moving bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		e.session.isMoving = moving
	}
}

// Session returns a snapshot of the active session, or ok=false when idle.
func (e *Engine) Session() (Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return Snapshot{}, false
	}
	return e.session.snapshot(), true
}

// Distances returns the latest per-point diagnostic snapshot.
func (e *Engine) Distances() []PointDistance {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]PointDistance, len(e.distances))
	copy(out, e.distances)
	return out
}

// HandlePosition runs one sample through the engine and returns the
// triggered point, or nil. At most one point triggers per sample.
func (e *Engine) HandlePosition(pos model.Position) *model.Point {
	e.mu.Lock()
	fired := e.evaluateLocked(pos)
	sink := e.sink
	e.mu.Unlock()

	// The sink may block on audio IO; never hold the lock across it.
	if fired != nil && sink != nil {
		sink.PlayPoint(fired)
	}
	return fired
}

func (e *Engine) evaluateLocked(pos model.Position) *model.Point {
	if e.tour == nil {
		return nil
	}

	here := geo.Point{Lat: pos.Lat, Lng: pos.Lng}

	// Distance rows are recomputed for every sample, even while idle, to
	// support the pre-tracking distance preview.
	if cap(e.distances) < len(e.tour.Points) {
		e.distances = make([]PointDistance, len(e.tour.Points))
	}
	e.distances = e.distances[:len(e.tour.Points)]
	for i := range e.tour.Points {
		p := &e.tour.Points[i]
		eff := geo.EffectiveRadius(p.Radius, pos.Accuracy, e.policy)
		d := geo.Distance(here, geo.Point{Lat: p.Lat, Lng: p.Lng})
		e.distances[i] = PointDistance{
			PointID:         p.ID,
			Name:            p.Name,
			Distance:        d,
			EffectiveRadius: eff,
			Inside:          d <= eff,
			Triggered:       e.session != nil && e.session.triggered(p.ID),
		}
	}

	if e.session == nil {
		return nil
	}

	posCopy := pos
	e.session.lastPosition = &posCopy

	accOK := e.policy.AccuracyUsable(pos.Accuracy)

	for i := range e.tour.Points {
		p := &e.tour.Points[i]
		if e.session.triggered(p.ID) {
			continue
		}

		row := e.distances[i]
		logging.Trace(e.log, "evaluate point",
			"point", p.ID, "distance", row.Distance, "radius", row.EffectiveRadius,
			"inside", row.Inside, "accuracy_ok", accOK)

		if row.Inside && accOK {
			e.session.markTriggered(p)
			e.distances[i].Triggered = true
			e.log.Info("point triggered",
				"session", e.session.ID, "point", p.ID, "name", p.Name,
				"distance", row.Distance, "effective_radius", row.EffectiveRadius,
				"accuracy", pos.Accuracy)
			return p
		}
	}

	return nil
}
