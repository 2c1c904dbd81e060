package position

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/acurth/audioguia/pkg/geo"
	"github.com/acurth/audioguia/pkg/model"
)

// WalkerConfig seeds the simulated pedestrian.
type WalkerConfig struct {
	StartLat float64
	StartLng float64
	// Speed in meters per second. Zero means a brisk walk.
	Speed float64
	// Interval between emitted fixes. Zero means one per second.
	Interval time.Duration
	// Jitter caps the smear of reported fixes around the true position,
	// in meters. Zero reports exact positions.
	Jitter float64
}

// Walker simulates a pedestrian for demos and trigger testing. Without a
// route it wanders with occasional turns; with one it walks the waypoint
// chain and stops at the end.
type Walker struct {
	log *slog.Logger

	mu       sync.Mutex
	pos      geo.Point
	heading  float64
	speed    float64
	interval time.Duration
	jitter   float64
	route    []geo.Point
	routeIdx int
	arrived  bool
	lastTurn time.Time
	nextTurn time.Duration
	watches  map[*Watch]func()

	startOnce sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

func NewWalker(cfg WalkerConfig) *Walker {
	speed := cfg.Speed
	if speed <= 0 {
		speed = 1.4
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	return &Walker{
		log:      slog.With("component", "position", "source", "mock"),
		pos:      geo.Point{Lat: cfg.StartLat, Lng: cfg.StartLng},
		heading:  rand.Float64() * 360.0,
		speed:    speed,
		interval: interval,
		jitter:   cfg.Jitter,
		lastTurn: time.Now(),
		nextTurn: randomTurnDelay(),
		watches:  make(map[*Watch]func()),
		stopCh:   make(chan struct{}),
	}
}

func (s *Walker) Name() string { return "mock" }

// SetRoute points the walker along a waypoint chain, e.g. the points of
// the active tour. Resets any previous progress.
func (s *Walker) SetRoute(route []geo.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.route = route
	s.routeIdx = 0
	s.arrived = false
}

func (s *Walker) Watch(ctx context.Context, opts Options) (*Watch, error) {
	w := newWatch()
	cancel := firstFixTimer(w, opts)

	s.mu.Lock()
	s.watches[w] = cancel
	s.mu.Unlock()

	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.physicsLoop()
	})

	go func() {
		select {
		case <-w.stop:
		case <-ctx.Done():
		}
		cancel()
		s.mu.Lock()
		delete(s.watches, w)
		s.mu.Unlock()
		w.close()
	}()

	return w, nil
}

// Close stops the physics loop and releases resources.
func (s *Walker) Close() error {
	close(s.stopCh)
	s.wg.Wait()
	return nil
}

func (s *Walker) physicsLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.update()
		}
	}
}

func (s *Walker) update() {
	s.mu.Lock()

	dt := s.interval.Seconds()
	step := s.speed * dt

	if len(s.route) > 0 {
		s.advanceRoute(step)
	} else {
		s.wander(step)
	}

	// GPS jitter: smear the reported fix around the true position.
	accuracy := 4.0 + rand.Float64()*8.0
	reported := s.pos
	if s.jitter > 0 {
		reported = geo.DestinationPoint(s.pos, rand.Float64()*s.jitter, rand.Float64()*360.0)
	}

	sample := model.Position{
		Lat:       reported.Lat,
		Lng:       reported.Lng,
		Accuracy:  accuracy,
		Timestamp: time.Now(),
	}
	targets := make(map[*Watch]func(), len(s.watches))
	for w, cancel := range s.watches {
		targets[w] = cancel
	}
	s.mu.Unlock()

	for w, cancel := range targets {
		cancel()
		w.push(sample)
	}
}

func (s *Walker) advanceRoute(step float64) {
	if s.routeIdx >= len(s.route) {
		if !s.arrived {
			s.arrived = true
			s.log.Info("Route finished, holding position")
		}
		return
	}
	target := s.route[s.routeIdx]
	dist := geo.Distance(s.pos, target)
	if dist <= step {
		s.pos = target
		s.routeIdx++
		return
	}
	s.heading = geo.Bearing(s.pos, target)
	s.pos = geo.DestinationPoint(s.pos, step, s.heading)
}

func (s *Walker) wander(step float64) {
	now := time.Now()
	if now.Sub(s.lastTurn) >= s.nextTurn {
		s.heading += (rand.Float64() - 0.5) * 120.0
		s.lastTurn = now
		s.nextTurn = randomTurnDelay()
	}
	s.pos = geo.DestinationPoint(s.pos, step, s.heading)
}

func randomTurnDelay() time.Duration {
	return time.Duration(20+rand.Intn(20)) * time.Second
}
