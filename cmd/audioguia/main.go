package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/acurth/audioguia/internal/api"
	"github.com/acurth/audioguia/pkg/audio"
	"github.com/acurth/audioguia/pkg/config"
	"github.com/acurth/audioguia/pkg/db"
	"github.com/acurth/audioguia/pkg/db/maintenance"
	"github.com/acurth/audioguia/pkg/logging"
	"github.com/acurth/audioguia/pkg/model"
	"github.com/acurth/audioguia/pkg/motion"
	"github.com/acurth/audioguia/pkg/offline"
	"github.com/acurth/audioguia/pkg/position"
	"github.com/acurth/audioguia/pkg/probe"
	"github.com/acurth/audioguia/pkg/progress"
	"github.com/acurth/audioguia/pkg/session"
	"github.com/acurth/audioguia/pkg/store"
	"github.com/acurth/audioguia/pkg/tour"
	"github.com/acurth/audioguia/pkg/tracker"
	"github.com/acurth/audioguia/pkg/trigger"
	"github.com/acurth/audioguia/pkg/version"
	"github.com/acurth/audioguia/pkg/wakelock"
	"github.com/acurth/audioguia/pkg/watcher"
)

var initConfig = flag.Bool("init-config", false, "Generate default config file and exit")

func main() {
	flag.Parse()

	// Handle --init-config flag
	if *initConfig {
		if err := config.GenerateDefault("configs/audioguia.yaml"); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated: configs/audioguia.yaml")
		return
	}

	if err := run(context.Background(), "configs/audioguia.yaml"); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// A .env next to the binary feeds the config overrides.
	_ = godotenv.Load()

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()
	if os.Getenv("AUDIOGUIA_TRACE") == "1" {
		logging.EnableTrace = true
	}

	slog.Info("Audioguia Started", "version", version.Version)

	dbConn, st, err := initDB(appCfg)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	if err := maintenance.Run(dbConn, appCfg.Tours.TmpDir); err != nil {
		slog.Error("Maintenance tasks failed", "error", err)
	}

	registry := tour.NewRegistry(appCfg.Tours.Dir)
	if err := registry.Load(); err != nil {
		return fmt.Errorf("failed to load tour library: %w", err)
	}
	slog.Info("Tour library loaded", "tours", registry.Count())

	tr := tracker.New()

	// Download pipeline
	worker, err := offline.NewWorker(&appCfg.Offline, st, tr, registry)
	if err != nil {
		return fmt.Errorf("failed to initialize download worker: %w", err)
	}
	worker.Start(ctx)
	defer worker.Stop()

	progressMgr := progress.NewManager(&appCfg.Offline, worker, st)
	progressMgr.Rehydrate(ctx)
	go progressMgr.Run(worker.Events())

	// Position source
	source, closeSource, err := initSource(&appCfg.Position)
	if err != nil {
		return fmt.Errorf("failed to initialize position source: %w", err)
	}
	if closeSource != nil {
		defer closeSource()
	}
	slog.Info("Position source ready", "provider", source.Name())

	// Playback and session
	player := audio.New(&appCfg.Audio)
	defer player.Shutdown()

	lock := wakelock.NewManager()

	ctrl := session.NewController(&appCfg.Position, session.Deps{
		Registry: registry,
		Engine:   trigger.NewEngine(trigger.PolicyFromConfig(&appCfg.Trigger), slog.With("component", "trigger")),
		Detector: motion.NewDetector(motion.ThresholdsFromConfig(&appCfg.Motion)),
		Player:   player,
		Lock:     lock,
		Source:   source,
		KV:       st,
		Resolver: session.NewResolver(&appCfg.Tours, st),
	})
	defer ctrl.Stop()
	ctrl.RestoreState(ctx)

	// Startup Probes
	results := probe.Run(ctx, []probe.Probe{
		probe.DataDirWritable(appCfg.Tours.TmpDir),
		probe.DatabaseRoundTrip(st),
		probe.ToursReadable(appCfg.Tours.Dir),
		probe.TourResolves(registry),
		probe.AudioDecode(appCfg.Tours.TmpDir),
		probe.WakeLockAvailable(lock),
	})
	if err := probe.Summarize(results); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	// Event stream
	hub := api.NewHub()
	go hub.Run(ctx)
	ctrl.Subscribe(func(ev session.Event) {
		hub.Broadcast(ev)
	})
	progressMgr.Subscribe(func(tourID string, state model.DownloadState) {
		hub.Broadcast(downloadEvent{Type: "download-progress", TourID: tourID, State: state})
	})

	// Library watcher picks up sideloaded tour files
	libWatcher := watcher.NewService(appCfg.Tours.Dir)
	go libWatcher.Run(ctx, 5*time.Second, func(file string) {
		if err := registry.Load(); err != nil {
			slog.Error("Failed to reload tour library", "file", file, "error", err)
			return
		}
		hub.Broadcast(libraryEvent{Type: "library-changed", File: file})
	})

	// Server
	return runServer(appCfg, registry, ctrl, source, player, progressMgr, st, hub)
}

// downloadEvent is the event-stream frame for download state changes.
type downloadEvent struct {
	Type   string              `json:"type"`
	TourID string              `json:"tourId"`
	State  model.DownloadState `json:"state"`
}

// libraryEvent tells connected clients to refetch the tour list.
type libraryEvent struct {
	Type string `json:"type"`
	File string `json:"file"`
}

func initDB(appCfg *config.Config) (*db.DB, store.Store, error) {
	dbConn, err := db.Init(appCfg.DB.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return dbConn, store.NewSQLiteStore(dbConn), nil
}

// initSource builds the configured position provider. The returned closer is
// nil for sources without background work.
func initSource(cfg *config.PositionConfig) (position.Source, func(), error) {
	switch cfg.Provider {
	case "manual":
		return position.NewManualSource(), nil, nil
	case "gpx":
		if cfg.GPX.Path == "" {
			return nil, nil, fmt.Errorf("gpx provider needs position.gpx.path")
		}
		return position.NewReplaySource(cfg.GPX.Path, cfg.GPX.Speed, cfg.GPX.Accuracy), nil, nil
	case "mock":
		walker := position.NewWalker(position.WalkerConfig{
			StartLat: cfg.Mock.StartLat,
			StartLng: cfg.Mock.StartLng,
			Speed:    cfg.Mock.SpeedMPS,
			Interval: cfg.Mock.StepInterval.Std(),
			Jitter:   cfg.Mock.JitterM,
		})
		return walker, func() { _ = walker.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown position provider %q", cfg.Provider)
	}
}

func runServer(cfg *config.Config, registry *tour.Registry, ctrl *session.Controller, source position.Source, player audio.Service, progressMgr *progress.Manager, st store.Store, hub *api.Hub) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	shutdownFunc := func() { quit <- syscall.SIGTERM }

	srv := api.NewServer(cfg.Server.Address,
		api.NewToursHandler(registry),
		api.NewSessionHandler(ctrl),
		api.NewPositionHandler(ctrl, source),
		api.NewAudioHandler(ctrl, player),
		api.NewOfflineHandler(progressMgr, registry, st),
		api.NewEventsHandler(hub),
		shutdownFunc,
	)

	srv.Handler = loggingMiddleware(srv.Handler)
	return runServerLifecycle(context.Background(), srv, quit)
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit chan os.Signal) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.RequestLogger.Info("Request Processed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
