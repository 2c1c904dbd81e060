// Package offline implements the tour download pipeline. A single worker
// goroutine consumes typed commands and emits typed events; foreground code
// never shares memory with it, all coordination happens over channels with
// JSON-serializable messages.
package offline

import (
	"encoding/json"

	"github.com/acurth/audioguia/pkg/model"
)

// Command types accepted by the worker.
const (
	CmdDownloadTour = "download-tour"
	CmdDeleteTour   = "delete-tour"
)

// Event types emitted by the worker.
const (
	EvtTourProgress   = "tour-progress"
	EvtTourDownloaded = "tour-downloaded"
	EvtTourDeleted    = "tour-deleted"
)

// Command is one instruction for the worker. Payload is set for
// download-tour, ID for delete-tour.
type Command struct {
	Type    string           `json:"type"`
	ID      string           `json:"id,omitempty"`
	Payload *DownloadPayload `json:"payload,omitempty"`
}

// DownloadPayload carries everything one download job needs. JSON is the raw
// tour definition, persisted verbatim under the tour's metadata key.
type DownloadPayload struct {
	ID    string          `json:"id"`
	Slug  string          `json:"slug"`
	Files []string        `json:"files"`
	JSON  json.RawMessage `json:"json"`
}

// NewDownloadCommand builds a download-tour command.
func NewDownloadCommand(id, slug string, files []string, tourJSON []byte) Command {
	return Command{
		Type: CmdDownloadTour,
		Payload: &DownloadPayload{
			ID:    id,
			Slug:  slug,
			Files: files,
			JSON:  tourJSON,
		},
	}
}

// NewDeleteCommand builds a delete-tour command.
func NewDeleteCommand(id string) Command {
	return Command{Type: CmdDeleteTour, ID: id}
}

// Event is one message from the worker. Progress events carry Stage and the
// counters; the terminal tour-downloaded event carries Result. Counter fields
// are pointers so that a legitimate zero survives serialization while
// non-progress events omit them entirely.
type Event struct {
	Type         string                `json:"type"`
	ID           string                `json:"id"`
	Stage        model.DownloadStage   `json:"stage,omitempty"`
	Completed    *int                  `json:"completed,omitempty"`
	Total        *int                  `json:"total,omitempty"`
	CurrentIndex *int                  `json:"currentIndex,omitempty"`
	CurrentURL   string                `json:"currentUrl,omitempty"`
	Progress     *int                  `json:"progress,omitempty"`
	Error        string                `json:"error,omitempty"`
	Result       *model.DownloadResult `json:"result,omitempty"`
}

func progressEvent(id string, stage model.DownloadStage, completed, total int) Event {
	return Event{
		Type:      EvtTourProgress,
		ID:        id,
		Stage:     stage,
		Completed: &completed,
		Total:     &total,
	}
}

func downloadedEvent(id string, result *model.DownloadResult) Event {
	return Event{Type: EvtTourDownloaded, ID: id, Result: result}
}

func deletedEvent(id string) Event {
	return Event{Type: EvtTourDeleted, ID: id}
}
