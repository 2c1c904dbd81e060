// Package position supplies the engine with location samples. Sources
// share one shape: subscribe, read samples until done, unsubscribe.
package position

import (
	"context"
	"sync"
	"time"

	"github.com/acurth/audioguia/pkg/model"
)

// Watch error codes, mirrored into API responses.
const (
	CodePermissionDenied = "permission-denied"
	CodeUnavailable      = "position-unavailable"
	CodeTimeout          = "timeout"
)

// WatchError is a position failure the session can show to the user.
type WatchError struct {
	Code    string
	Message string
}

func (e *WatchError) Error() string {
	return e.Code + ": " + e.Message
}

// Options tunes a watch. Sources ignore what they cannot honor.
type Options struct {
	HighAccuracy bool
	// Timeout bounds the wait for the first fix. Zero disables it.
	Timeout time.Duration
}

// Source produces location samples.
type Source interface {
	// Watch starts streaming. The returned Watch stays live until
	// Unsubscribe is called or ctx ends.
	Watch(ctx context.Context, opts Options) (*Watch, error)
	// Name identifies the source in logs and status output.
	Name() string
}

// Watch is one active subscription.
type Watch struct {
	samples chan model.Position
	errs    chan *WatchError
	stop    chan struct{}
	once    sync.Once

	mu     sync.Mutex
	closed bool
}

func newWatch() *Watch {
	return &Watch{
		samples: make(chan model.Position, 8),
		errs:    make(chan *WatchError, 1),
		stop:    make(chan struct{}),
	}
}

// Samples delivers fixes in arrival order. The channel closes when the
// source ends or the watch is unsubscribed.
func (w *Watch) Samples() <-chan model.Position { return w.samples }

// Errors delivers at most one pending failure at a time.
func (w *Watch) Errors() <-chan *WatchError { return w.errs }

// Unsubscribe stops the feed. Safe to call more than once.
func (w *Watch) Unsubscribe() {
	w.once.Do(func() { close(w.stop) })
}

// close seals the sample channel. Producers call it exactly when they
// stop pushing; the mutex keeps late pushes from hitting a closed chan.
func (w *Watch) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	close(w.samples)
}

// push hands a sample to the consumer without ever blocking the
// producer. A full buffer drops the oldest fix; stale positions are
// worthless anyway.
func (w *Watch) push(p model.Position) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.samples <- p:
		return
	default:
	}
	select {
	case <-w.samples:
	default:
	}
	select {
	case w.samples <- p:
	default:
	}
}

// fail reports an error, replacing any unread one.
func (w *Watch) fail(code, msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.errs <- &WatchError{Code: code, Message: msg}:
		return
	default:
	}
	select {
	case <-w.errs:
	default:
	}
	select {
	case w.errs <- &WatchError{Code: code, Message: msg}:
	default:
	}
}

// firstFixTimer arms the timeout failure for a watch. The returned func
// must be called once the first sample arrives.
func firstFixTimer(w *Watch, opts Options) func() {
	if opts.Timeout <= 0 {
		return func() {}
	}
	t := time.AfterFunc(opts.Timeout, func() {
		w.fail(CodeTimeout, "no fix within "+opts.Timeout.String())
	})
	return func() { t.Stop() }
}
