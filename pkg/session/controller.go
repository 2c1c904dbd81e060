// Package session owns the tracking lifecycle. The controller binds a
// position source, the motion detector, the trigger engine, audio playback
// and the wake lock into the one object the API layer drives.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/acurth/audioguia/pkg/audio"
	"github.com/acurth/audioguia/pkg/config"
	"github.com/acurth/audioguia/pkg/geo"
	"github.com/acurth/audioguia/pkg/logging"
	"github.com/acurth/audioguia/pkg/model"
	"github.com/acurth/audioguia/pkg/motion"
	"github.com/acurth/audioguia/pkg/position"
	"github.com/acurth/audioguia/pkg/store"
	"github.com/acurth/audioguia/pkg/tour"
	"github.com/acurth/audioguia/pkg/trigger"
	"github.com/acurth/audioguia/pkg/wakelock"
)

// ErrNoActiveTour is returned by point playback when no tour is selected.
var ErrNoActiveTour = errors.New("no active tour")

// RouteSetter is implemented by sources that can follow the active tour,
// currently the mock walker.
type RouteSetter interface {
	SetRoute(route []geo.Point)
}

// Deps collects the controller's collaborators. All fields are required.
type Deps struct {
	Registry *tour.Registry
	Engine   *trigger.Engine
	Detector *motion.Detector
	Player   audio.Service
	Lock     *wakelock.Manager
	Source   position.Source
	KV       store.StateStore
	Resolver MediaResolver
}

// Controller drives tracking sessions. Public methods are safe for
// concurrent use; all sample handling runs on a single consumer goroutine,
// which is also the only place the motion detector is touched.
type Controller struct {
	log  *slog.Logger
	cfg  *config.PositionConfig
	deps Deps

	// startMu serializes Start, Stop and visibility changes end to end.
	// mu guards only the snapshot fields and is never held across IO.
	startMu sync.Mutex
	mu      sync.Mutex

	tracking   bool
	tourID     string
	visible    bool
	moving     bool
	statusLine string
	watch      *position.Watch
	wg         sync.WaitGroup

	obsMu     sync.Mutex
	observers []func(Event)
}

// Status is the session snapshot served by the API.
type Status struct {
	Tracking   bool              `json:"tracking"`
	TourID     string            `json:"tourId,omitempty"`
	Visible    bool              `json:"visible"`
	WakeLock   bool              `json:"wakeLock"`
	Moving     bool              `json:"moving"`
	StatusLine string            `json:"statusLine,omitempty"`
	Source     string            `json:"source"`
	Session    *trigger.Snapshot `json:"session,omitempty"`
	Audio      audio.Status      `json:"audio"`
}

// NewController wires a controller and registers it as the trigger sink.
// Visibility starts foreground.
func NewController(cfg *config.PositionConfig, deps Deps) *Controller {
	c := &Controller{
		log:     slog.With("component", "session"),
		cfg:     cfg,
		deps:    deps,
		visible: true,
	}
	deps.Engine.SetSink(c)
	return c
}

// Subscribe registers an observer for session events. Observers are called
// from the consumer goroutine and must not block.
func (c *Controller) Subscribe(fn func(Event)) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.observers = append(c.observers, fn)
}

func (c *Controller) emit(ev Event) {
	c.obsMu.Lock()
	obs := make([]func(Event), len(c.observers))
	copy(obs, c.observers)
	c.obsMu.Unlock()
	for _, fn := range obs {
		fn(ev)
	}
}

// Start begins tracking the given tour. Starting the already-tracked tour
// is a no-op; a different tour replaces the running session. The request
// doubles as the user gesture that unlocks the sound device, so playback
// can later start without another interaction.
func (c *Controller) Start(ctx context.Context, tourID string) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	if c.tracking && c.tourID == tourID {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	// Resolve the tour before touching the running session so a bad id
	// leaves it undisturbed.
	t, err := c.deps.Registry.Get(tourID)
	if err != nil {
		return err
	}

	c.stopLocked()

	if err := c.deps.Player.Unlock(); err != nil {
		c.log.Warn("Audio unlock failed, narration may need a manual play", "error", err)
	}

	c.deps.Engine.SetTour(t)
	if _, err := c.deps.Engine.Start(); err != nil {
		return err
	}

	if rs, ok := c.deps.Source.(RouteSetter); ok {
		rs.SetRoute(tourRoute(t))
	}

	watch, err := c.deps.Source.Watch(ctx, position.Options{
		HighAccuracy: c.cfg.HighAccuracy,
		Timeout:      c.cfg.Timeout.Std(),
	})
	if err != nil {
		c.deps.Engine.Stop()
		return fmt.Errorf("watch %s source: %w", c.deps.Source.Name(), err)
	}

	c.deps.Detector.Reset()

	c.mu.Lock()
	c.tracking = true
	c.tourID = t.ID
	c.moving = false
	c.statusLine = ""
	c.watch = watch
	visible := c.visible
	c.wg.Add(1)
	c.mu.Unlock()

	if visible {
		c.deps.Lock.Acquire("tour tracking")
	}

	go c.consume(watch)

	if err := c.deps.KV.SetState(context.Background(), config.KeyLastTour, t.ID); err != nil {
		c.log.Warn("Persisting last tour failed", "error", err)
	}

	c.log.Info("Session started", "tour", t.ID, "points", len(t.Points), "source", c.deps.Source.Name())
	return nil
}

// Stop ends tracking. It returns only after the sample consumer has
// drained, so callers observe a fully idle controller. The loaded tour
// stays selected.
func (c *Controller) Stop() {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	c.stopLocked()
}

func (c *Controller) stopLocked() {
	c.mu.Lock()
	watch := c.watch
	wasTracking := c.tracking
	c.watch = nil
	c.tracking = false
	c.mu.Unlock()

	if watch != nil {
		watch.Unsubscribe()
	}
	c.wg.Wait()

	if !wasTracking {
		return
	}

	c.deps.Engine.Stop()
	c.deps.Player.Stop()
	c.deps.Lock.Release()
	c.log.Info("Session stopped")
}

// SetVisibility mirrors the client's page visibility. The wake lock is
// surrendered in the background and reacquired when a tracking session
// returns to the foreground. Tracking itself never pauses.
func (c *Controller) SetVisibility(visible bool) {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	c.visible = visible
	tracking := c.tracking
	c.mu.Unlock()

	if !visible {
		c.deps.Lock.Release()
		return
	}
	if tracking {
		c.deps.Lock.Acquire("tour tracking")
	}
}

// Tracking reports whether a session is running.
func (c *Controller) Tracking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracking
}

// Status assembles the full session snapshot.
func (c *Controller) Status() Status {
	c.mu.Lock()
	st := Status{
		Tracking:   c.tracking,
		TourID:     c.tourID,
		Visible:    c.visible,
		Moving:     c.moving,
		StatusLine: c.statusLine,
	}
	c.mu.Unlock()

	st.WakeLock = c.deps.Lock.Held()
	st.Source = c.deps.Source.Name()
	if snap, ok := c.deps.Engine.Session(); ok {
		st.Session = &snap
	}
	st.Audio = c.deps.Player.Status()
	return st
}

// Distances returns the per-point distance preview from the trigger engine.
func (c *Controller) Distances() []trigger.PointDistance {
	return c.deps.Engine.Distances()
}

// OfferPosition feeds a sample into the distance preview while idle. While
// tracking, samples arrive through the position watch instead; offering is
// then a no-op so each pushed sample is evaluated once.
func (c *Controller) OfferPosition(pos model.Position) {
	c.mu.Lock()
	tracking := c.tracking
	c.mu.Unlock()
	if tracking {
		return
	}
	c.deps.Engine.HandlePosition(pos)
}

// PlayPointByID plays a point on demand, independent of the geofence. Always
// restarts the clip from the top.
func (c *Controller) PlayPointByID(pointID string) error {
	return c.playPointByID(pointID, false)
}

// TogglePointByID plays a point on demand like PlayPointByID, but tapping the
// point that is already playing pauses it instead.
func (c *Controller) TogglePointByID(pointID string) error {
	return c.playPointByID(pointID, true)
}

func (c *Controller) playPointByID(pointID string, toggle bool) error {
	c.mu.Lock()
	tourID := c.tourID
	c.mu.Unlock()
	if tourID == "" {
		return ErrNoActiveTour
	}
	t, err := c.deps.Registry.Get(tourID)
	if err != nil {
		return err
	}
	p := t.PointByID(pointID)
	if p == nil {
		return fmt.Errorf("point %s not in tour %s", pointID, tourID)
	}
	path, err := c.deps.Resolver.Resolve(context.Background(), t.ID, p.ID, p.AudioRef)
	if err != nil {
		return err
	}
	if toggle {
		return c.deps.Player.Toggle(p.ID, path, nil)
	}
	return c.deps.Player.Play(p.ID, path, nil)
}

// SetVolume adjusts playback volume and persists the effective value for
// the next run.
func (c *Controller) SetVolume(v float64) {
	c.deps.Player.SetVolume(v)
	v = c.deps.Player.Volume()
	if err := c.deps.KV.SetState(context.Background(), config.KeyAudioVolume, strconv.FormatFloat(v, 'f', -1, 64)); err != nil {
		c.log.Warn("Persisting volume failed", "error", err)
	}
}

// RestoreState reapplies persisted client state: playback volume and the
// last active tour. The tour is selected but never auto-started; resuming
// tracking needs a user gesture for the audio unlock to count.
func (c *Controller) RestoreState(ctx context.Context) {
	if raw, ok := c.deps.KV.GetState(ctx, config.KeyAudioVolume); ok {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			c.deps.Player.SetVolume(v)
		}
	}

	id, ok := c.deps.KV.GetState(ctx, config.KeyLastTour)
	if !ok || id == "" {
		return
	}
	t, err := c.deps.Registry.Get(id)
	if err != nil {
		c.log.Warn("Last tour not restorable", "tour", id, "error", err)
		return
	}
	c.deps.Engine.SetTour(t)
	c.mu.Lock()
	c.tourID = t.ID
	c.mu.Unlock()
	c.log.Info("Restored last tour", "tour", t.ID)
}

// PlayPoint implements trigger.Sink. The trigger is already committed when
// this runs; a missing clip or playback failure surfaces as a status line
// and the session keeps tracking.
func (c *Controller) PlayPoint(p *model.Point) {
	c.mu.Lock()
	tourID := c.tourID
	c.mu.Unlock()

	logging.LogAnnouncement(tourID, "Now playing: "+p.Name)

	path, err := c.deps.Resolver.Resolve(context.Background(), tourID, p.ID, p.AudioRef)
	if err != nil {
		c.log.Warn("Media resolve failed", "point", p.ID, "error", err)
		c.setStatus("No audio for " + p.Name)
		c.emit(Event{Type: EvtTrigger, TourID: tourID, Point: p})
		return
	}
	if err := c.deps.Player.Play(p.ID, path, nil); err != nil {
		c.log.Warn("Playback failed", "point", p.ID, "error", err)
		c.setStatus("Playback failed for " + p.Name)
	}
	c.emit(Event{Type: EvtTrigger, TourID: tourID, Point: p})
}

func (c *Controller) consume(w *position.Watch) {
	defer c.wg.Done()
	for {
		select {
		case pos, ok := <-w.Samples():
			if !ok {
				return
			}
			c.handleSample(pos)
		case werr := <-w.Errors():
			c.handleWatchError(werr)
		}
	}
}

func (c *Controller) handleSample(pos model.Position) {
	if maxAge := c.cfg.MaxAge.Std(); maxAge > 0 && !pos.Timestamp.IsZero() {
		if age := time.Since(pos.Timestamp); age > maxAge {
			logging.Trace(c.log, "Dropping stale sample", "age", age)
			return
		}
	}

	wasMoving := c.deps.Detector.IsMoving()
	state := c.deps.Detector.Update(pos)
	if moving := state == motion.StateMoving; moving != wasMoving {
		c.mu.Lock()
		c.moving = moving
		c.mu.Unlock()
		c.deps.Engine.SetMoving(moving)
		m := moving
		c.emit(Event{Type: EvtMotion, Moving: &m})
	}

	c.deps.Engine.HandlePosition(pos)

	p := pos
	c.emit(Event{Type: EvtPosition, Position: &p})
}

func (c *Controller) handleWatchError(werr *position.WatchError) {
	c.log.Warn("Position source error", "code", werr.Code, "message", werr.Message)
	c.setStatus(statusLine(werr))
}

func (c *Controller) setStatus(line string) {
	c.mu.Lock()
	changed := c.statusLine != line
	c.statusLine = line
	c.mu.Unlock()
	if changed {
		c.emit(Event{Type: EvtStatus, Status: line})
	}
}

// statusLine maps watch error codes to the line shown in the client UI.
func statusLine(werr *position.WatchError) string {
	switch werr.Code {
	case position.CodePermissionDenied:
		return "Location permission denied"
	case position.CodeUnavailable:
		return "Position unavailable"
	case position.CodeTimeout:
		return "Waiting for a GPS fix timed out"
	default:
		return werr.Message
	}
}

// tourRoute flattens a tour into waypoints for route-following sources.
func tourRoute(t *model.Tour) []geo.Point {
	route := make([]geo.Point, 0, len(t.Points))
	for _, p := range t.Points {
		route = append(route, geo.Point{Lat: p.Lat, Lng: p.Lng})
	}
	return route
}
