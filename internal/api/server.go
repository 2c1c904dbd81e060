package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/acurth/audioguia/pkg/version"
)

// NewServer creates and configures the HTTP server.
// It accepts handlers for all API endpoints and a shutdownFunc for graceful shutdown.
func NewServer(addr string, tours *ToursHandler, sess *SessionHandler, pos *PositionHandler, audioH *AudioHandler, offlineH *OfflineHandler, events *EventsHandler, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	// 1. Health Endpoint
	mux.HandleFunc("GET /health", handleHealth)

	// 2. Version Endpoint
	mux.HandleFunc("GET /api/version", handleVersion)

	// 2a. Logs Endpoints
	mux.HandleFunc("GET /api/log/latest", handleLatestLog)
	mux.HandleFunc("GET /api/announcement/latest", handleLatestAnnouncement)

	// 2b. Tour Endpoints
	mux.HandleFunc("GET /api/tours", tours.HandleList)
	mux.HandleFunc("GET /api/tours/nearby", tours.HandleNearby)
	mux.HandleFunc("GET /api/tours/{id}", tours.HandleGet)

	// 2c. Session Endpoints
	mux.HandleFunc("POST /api/session/start", sess.HandleStart)
	mux.HandleFunc("POST /api/session/stop", sess.HandleStop)
	mux.HandleFunc("GET /api/session/status", sess.HandleStatus)
	mux.HandleFunc("POST /api/session/visibility", sess.HandleVisibility)
	mux.HandleFunc("GET /api/session/distances", sess.HandleDistances)

	// 2d. Position Endpoints
	mux.HandleFunc("POST /api/position", pos.HandlePush)
	mux.HandleFunc("POST /api/position/error", pos.HandleError)

	// 2e. Audio Endpoints
	mux.HandleFunc("POST /api/audio/control", audioH.HandleControl)
	mux.HandleFunc("POST /api/audio/volume", audioH.HandleVolume)
	mux.HandleFunc("GET /api/audio/status", audioH.HandleStatus)

	// 2f. Offline Endpoints
	mux.HandleFunc("POST /api/offline/download", offlineH.HandleDownload)
	mux.HandleFunc("POST /api/offline/delete", offlineH.HandleDelete)
	mux.HandleFunc("POST /api/offline/reset", offlineH.HandleReset)
	mux.HandleFunc("GET /api/offline/states", offlineH.HandleStates)
	mux.HandleFunc("GET /api/offline/verify", offlineH.HandleVerify)

	// 2g. Event Stream
	mux.HandleFunc("GET /api/events", events.HandleEvents)

	// 3. Shutdown Endpoint
	mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		slog.Info("Graceful shutdown initiated via API")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("Shutting down...")); err != nil {
			slog.Error("Failed to write shutdown response", "error", err)
		}
		// Call shutdown in a goroutine to allow response to flush
		go func() {
			time.Sleep(100 * time.Millisecond)
			shutdown()
		}()
	})

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"version": "%s"}`, version.Version); err != nil {
		slog.Error("Failed to write version response", "error", err)
	}
}
