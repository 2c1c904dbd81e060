package position

import (
	"context"
	"sync"
	"time"

	"github.com/acurth/audioguia/pkg/model"
)

// ManualSource relays positions pushed over the API. It is the default
// provider: honest hardware access differs per deployment, the push
// endpoint works everywhere.
type ManualSource struct {
	mu      sync.Mutex
	watches map[*Watch]func()
	last    *model.Position
}

func NewManualSource() *ManualSource {
	return &ManualSource{watches: make(map[*Watch]func())}
}

func (s *ManualSource) Name() string { return "manual" }

func (s *ManualSource) Watch(ctx context.Context, opts Options) (*Watch, error) {
	w := newWatch()
	cancel := firstFixTimer(w, opts)

	s.mu.Lock()
	s.watches[w] = cancel
	last := s.last
	s.mu.Unlock()

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

	// Replay the latest known fix so a session started mid-stream is
	// not blind until the next push.
	if last != nil {
		cancel()
		w.push(*last)
	}
	return w, nil
}

// Push fans a fix out to every live watch.
func (s *ManualSource) Push(p model.Position) {
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now()
	}

	s.mu.Lock()
	s.last = &p
	targets := make(map[*Watch]func(), len(s.watches))
	for w, cancel := range s.watches {
		targets[w] = cancel
	}
	s.mu.Unlock()

	for w, cancel := range targets {
		cancel()
		w.push(p)
	}
}

// Fail reports a provider-side failure to every live watch, e.g. the
// operator revoking location permission on the device relaying fixes.
func (s *ManualSource) Fail(code, msg string) {
	s.mu.Lock()
	targets := make([]*Watch, 0, len(s.watches))
	for w := range s.watches {
		targets = append(targets, w)
	}
	s.mu.Unlock()

	for _, w := range targets {
		w.fail(code, msg)
	}
}
