package offline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/acurth/audioguia/pkg/config"
	"github.com/acurth/audioguia/pkg/model"
	"github.com/acurth/audioguia/pkg/store"
	"github.com/acurth/audioguia/pkg/tour"
	"github.com/acurth/audioguia/pkg/tracker"
)

const (
	commandQueueSize = 16
	eventQueueSize   = 64
)

// ErrQueueFull is returned by Submit when the command queue is saturated.
var ErrQueueFull = errors.New("offline worker queue is full")

// TourInstaller adds a downloaded tour definition to the local library.
type TourInstaller interface {
	Install(t *model.Tour) error
}

// Worker is the download pipeline. One goroutine drains the command queue in
// FIFO order; within a job, files download strictly sequentially. A download
// and a delete for the same tour therefore never interleave.
type Worker struct {
	log       *slog.Logger
	fetcher   *Fetcher
	store     store.Store
	tracker   *tracker.Tracker
	installer TourInstaller
	norm      *Normalizer

	commands chan Command
	events   chan Event

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewWorker creates a Worker. installer may be nil when downloaded tours
// should not be added to the library.
func NewWorker(cfg *config.OfflineConfig, st store.Store, tr *tracker.Tracker, installer TourInstaller) (*Worker, error) {
	norm, err := NewNormalizer(cfg.Origin, cfg.BasePath)
	if err != nil {
		return nil, err
	}
	return &Worker{
		log:       slog.With("component", "offline"),
		fetcher:   NewFetcher(cfg),
		store:     st,
		tracker:   tr,
		installer: installer,
		norm:      norm,
		commands:  make(chan Command, commandQueueSize),
		events:    make(chan Event, eventQueueSize),
		stopCh:    make(chan struct{}),
	}, nil
}

// Start reaps leftover empty caches and launches the worker goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.reap(ctx)
		w.wg.Add(1)
		go w.run(ctx)
	})
}

// Stop shuts the worker down and closes the event channel. An in-flight job
// is abandoned at the next file boundary; its partial cache stays on disk and
// is picked up again on retry.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.wg.Wait()
		close(w.events)
	})
}

// Submit queues a command. Returns ErrQueueFull when the worker cannot keep
// up.
func (w *Worker) Submit(cmd Command) error {
	select {
	case w.commands <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// Events returns the channel the worker publishes on. Closed by Stop.
func (w *Worker) Events() <-chan Event {
	return w.events
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	w.log.Info("Offline worker started")
	for {
		select {
		case <-w.stopCh:
			w.log.Info("Offline worker stopped")
			return
		case <-ctx.Done():
			return
		case cmd := <-w.commands:
			switch cmd.Type {
			case CmdDownloadTour:
				w.handleDownload(ctx, cmd.Payload)
			case CmdDeleteTour:
				w.handleDelete(ctx, cmd.ID)
			default:
				w.log.Warn("Unknown worker command", "type", cmd.Type)
			}
		}
	}
}

// reap drops cache namespaces registered by interrupted jobs that never
// stored a single asset.
func (w *Worker) reap(ctx context.Context) {
	ids, err := w.store.ReapEmptyCaches(ctx)
	if err != nil {
		w.log.Warn("Cannot reap empty tour caches", "error", err)
		return
	}
	for _, id := range ids {
		w.log.Info("Reaped empty tour cache", "tour", id)
	}
}

func (w *Worker) emit(ev Event) {
	select {
	case w.events <- ev:
	case <-w.stopCh:
	}
}

func (w *Worker) handleDownload(ctx context.Context, p *DownloadPayload) {
	if p == nil || p.ID == "" {
		w.log.Warn("Download command without payload")
		return
	}
	log := w.log.With("tour", p.ID)

	files := dedupe(p.Files)
	total := len(files)
	log.Info("Starting tour download", "slug", p.Slug, "files", total)

	w.emit(progressEvent(p.ID, model.StagePreparing, 0, total))

	if err := w.store.RegisterCache(ctx, p.ID, p.Slug); err != nil {
		log.Error("Cannot register tour cache", "error", err)
		ev := progressEvent(p.ID, model.StageError, 0, total)
		ev.Error = err.Error()
		w.emit(ev)
		return
	}

	result := &model.DownloadResult{FailedURLs: []string{}}
	completed := 0

	for i, raw := range files {
		select {
		case <-w.stopCh:
			log.Warn("Download interrupted", "completed", completed, "total", total)
			return
		case <-ctx.Done():
			return
		default:
		}

		cur := progressEvent(p.ID, model.StageDownloading, completed, total)
		idx := i
		cur.CurrentIndex = &idx
		cur.CurrentURL = raw
		w.emit(cur)

		key, fetchURL, ok := w.norm.Normalize(raw)
		if !ok {
			log.Warn("File not cacheable", "url", raw)
			w.fileFailed(p.ID, result, "not cacheable", cur)
			continue
		}

		if has, err := w.store.HasAsset(ctx, p.ID, key); err == nil && has {
			w.tracker.TrackCacheHit(p.ID)
			completed++
			result.OkCount++
			w.emit(progressEvent(p.ID, model.StageDownloading, completed, total))
			continue
		}

		body, ctype, err := w.fetcher.Fetch(ctx, fetchURL)
		if err != nil {
			log.Warn("File download failed", "url", raw, "error", err)
			w.fileFailed(p.ID, result, err.Error(), cur)
			continue
		}

		if err := w.store.PutAsset(ctx, p.ID, key, body, ctype); err != nil {
			log.Error("Cannot store file", "url", raw, "error", err)
			w.fileFailed(p.ID, result, err.Error(), cur)
			continue
		}

		w.tracker.TrackFetchSuccess(p.ID, int64(len(body)))
		completed++
		result.OkCount++
		w.emit(progressEvent(p.ID, model.StageDownloading, completed, total))
	}

	// Metadata goes in last so that its presence implies the file loop ran to
	// completion.
	w.emit(progressEvent(p.ID, model.StageSaving, completed, total))
	if len(p.JSON) > 0 {
		if err := w.store.PutAsset(ctx, p.ID, MetaKey(p.Slug), p.JSON, "application/json"); err != nil {
			log.Error("Cannot store tour metadata", "error", err)
			ev := progressEvent(p.ID, model.StageError, completed, total)
			ev.Error = err.Error()
			w.emit(ev)
			w.emit(downloadedEvent(p.ID, result))
			return
		}
		w.installTour(p)
	}

	w.emit(progressEvent(p.ID, model.StageDone, completed, total))
	log.Info("Tour download finished", "ok", result.OkCount, "failed", result.FailCount)
	w.emit(downloadedEvent(p.ID, result))
}

// fileFailed records one failed file and emits the progress event carrying
// the error. Failures never abort the job, the loop moves on.
func (w *Worker) fileFailed(tourID string, result *model.DownloadResult, msg string, cur Event) {
	w.tracker.TrackFetchFailure(tourID)
	result.FailCount++
	result.FailedURLs = append(result.FailedURLs, cur.CurrentURL)
	cur.Error = msg
	w.emit(cur)
}

func (w *Worker) installTour(p *DownloadPayload) {
	if w.installer == nil {
		return
	}
	t, err := tour.ParseTour(p.JSON)
	if err != nil {
		w.log.Warn("Downloaded tour definition does not parse, not installing", "tour", p.ID, "error", err)
		return
	}
	if err := w.installer.Install(t); err != nil {
		w.log.Warn("Cannot install downloaded tour", "tour", p.ID, "error", err)
	}
}

func (w *Worker) handleDelete(ctx context.Context, id string) {
	if id == "" {
		w.log.Warn("Delete command without tour id")
		return
	}
	n, err := w.store.DeleteTourAssets(ctx, id)
	if err != nil {
		w.log.Error("Cannot delete tour assets", "tour", id, "error", err)
		ev := deletedEvent(id)
		ev.Error = err.Error()
		w.emit(ev)
		return
	}
	if err := w.store.UnregisterCache(ctx, id); err != nil {
		w.log.Error("Cannot unregister tour cache", "tour", id, "error", err)
		ev := deletedEvent(id)
		ev.Error = err.Error()
		w.emit(ev)
		return
	}
	w.log.Info("Tour cache deleted", "tour", id, "assets", n)
	w.emit(deletedEvent(id))
}

// dedupe drops repeated URLs, keeping first occurrence order.
func dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
