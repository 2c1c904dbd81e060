package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/acurth/audioguia/pkg/logging"
)

// handleLatestLog returns the last captured log line, for the debug footer.
func handleLatestLog(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{
		"log": logging.GlobalLogCapture.GetLastLine(),
	}); err != nil {
		// Just log locally, can't return error to client after writing
		fmt.Printf("Failed to write log response: %v\n", err)
	}
}

// handleLatestAnnouncement returns the last screen reader announcement, so
// the client's live region can poll it as a fallback when the event socket
// is down.
func handleLatestAnnouncement(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{
		"announcement": logging.GlobalAnnouncementCapture.GetLastLine(),
	}); err != nil {
		fmt.Printf("Failed to write announcement response: %v\n", err)
	}
}
