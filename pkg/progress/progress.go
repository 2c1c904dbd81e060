// Package progress owns the canonical per-tour download state. It aggregates
// the worker's event stream into DownloadState records, persists them across
// restarts, and rate-limits the screen-reader announcements derived from
// them. The worker holds no state of its own; whatever this package says is
// what the UI shows.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/acurth/audioguia/pkg/config"
	"github.com/acurth/audioguia/pkg/logging"
	"github.com/acurth/audioguia/pkg/model"
	"github.com/acurth/audioguia/pkg/offline"
	"github.com/acurth/audioguia/pkg/store"
)

// Commander hands commands to the download worker.
type Commander interface {
	Submit(cmd offline.Command) error
}

// Observer is notified after every state change. Called outside the manager
// lock; the state is a copy.
type Observer func(tourID string, state model.DownloadState)

// StateView is a DownloadState plus the read-time stall flag. Stalling is
// computed on read, never stored, so a stuck job shows up without any timer
// firing.
type StateView struct {
	model.DownloadState
	Stalled bool `json:"stalled,omitempty"`
}

// Manager aggregates worker events and serves download state.
type Manager struct {
	log           *slog.Logger
	stall         time.Duration
	announceEvery time.Duration
	commander     Commander
	kv            store.StateStore

	mu           sync.Mutex
	states       map[string]*model.DownloadState
	lastCmd      map[string]offline.Command
	lastAnnounce map[string]time.Time
	observers    []Observer

	now func() time.Time
}

// NewManager creates a Manager wired to the given worker and state KV.
func NewManager(cfg *config.OfflineConfig, commander Commander, kv store.StateStore) *Manager {
	return &Manager{
		log:           slog.With("component", "progress"),
		stall:         cfg.StallTimeout.Std(),
		announceEvery: cfg.AnnounceInterval.Std(),
		commander:     commander,
		kv:            kv,
		states:        make(map[string]*model.DownloadState),
		lastCmd:       make(map[string]offline.Command),
		lastAnnounce:  make(map[string]time.Time),
		now:           time.Now,
	}
}

// Subscribe registers an observer for state changes.
func (m *Manager) Subscribe(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// Rehydrate loads persisted states. Jobs that were mid-flight when the
// process died cannot be trusted, they come back as errors pending a retry.
func (m *Manager) Rehydrate(ctx context.Context) {
	raw, ok := m.kv.GetState(ctx, config.KeyDownloadStates)
	if !ok || raw == "" {
		return
	}
	var states map[string]*model.DownloadState
	if err := json.Unmarshal([]byte(raw), &states); err != nil {
		m.log.Warn("Cannot parse persisted download states", "error", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, st := range states {
		if st.Status == model.StatusDownloading {
			st.Status = model.StatusError
			st.Stage = model.StageError
			st.ErrorMessage = "download interrupted"
			st.LastUpdate = m.now().UnixMilli()
			m.log.Warn("Found interrupted download", "tour", id)
		}
		m.states[id] = st
	}
	m.persistLocked()
}

// Run consumes worker events until the channel closes.
func (m *Manager) Run(events <-chan offline.Event) {
	for ev := range events {
		m.Handle(ev)
	}
}

// Handle applies one worker event.
func (m *Manager) Handle(ev offline.Event) {
	m.mu.Lock()

	var notify *model.DownloadState
	switch ev.Type {
	case offline.EvtTourProgress:
		st := m.stateLocked(ev.ID)
		m.applyProgressLocked(ev.ID, st, ev)
		notify = st
	case offline.EvtTourDownloaded:
		st := m.stateLocked(ev.ID)
		m.applyResultLocked(st, ev.Result)
		notify = st
	case offline.EvtTourDeleted:
		delete(m.states, ev.ID)
		delete(m.lastCmd, ev.ID)
		delete(m.lastAnnounce, ev.ID)
		notify = &model.DownloadState{Status: model.StatusIdle, LastUpdate: m.now().UnixMilli()}
		if ev.Error != "" {
			notify.Status = model.StatusError
			notify.ErrorMessage = ev.Error
			m.states[ev.ID] = notify
		}
	default:
		m.log.Warn("Unknown worker event", "type", ev.Type)
		m.mu.Unlock()
		return
	}

	m.persistLocked()
	obs := append([]Observer(nil), m.observers...)
	state := *notify
	m.mu.Unlock()

	for _, o := range obs {
		o(ev.ID, state)
	}
}

func (m *Manager) stateLocked(id string) *model.DownloadState {
	st, ok := m.states[id]
	if !ok {
		st = &model.DownloadState{Status: model.StatusIdle}
		m.states[id] = st
	}
	return st
}

func (m *Manager) applyProgressLocked(id string, st *model.DownloadState, ev offline.Event) {
	// A fresh job wipes whatever the previous one left behind.
	if ev.Stage == model.StagePreparing {
		*st = model.DownloadState{}
	}

	prevStage := st.Stage
	prevCompleted := st.CompletedFiles

	st.Stage = ev.Stage
	if ev.Completed != nil {
		st.CompletedFiles = *ev.Completed
	}
	if ev.Total != nil {
		st.TotalFiles = *ev.Total
	}
	if ev.CurrentIndex != nil {
		st.CurrentIndex = *ev.CurrentIndex
	}
	if ev.CurrentURL != "" {
		st.CurrentURL = ev.CurrentURL
	}
	if ev.Error != "" {
		st.ErrorMessage = ev.Error
	}

	switch ev.Stage {
	case model.StageDone:
		if st.ErrorMessage != "" || st.CompletedFiles < st.TotalFiles {
			st.Status = model.StatusError
		} else {
			st.Status = model.StatusDownloaded
		}
	case model.StageError:
		st.Status = model.StatusError
	default:
		st.Status = model.StatusDownloading
	}

	st.ProgressPercent = derivePercent(st, ev.Progress)
	st.LastUpdate = m.now().UnixMilli()

	m.maybeAnnounceLocked(id, st, prevStage, prevCompleted)
}

func (m *Manager) applyResultLocked(st *model.DownloadState, result *model.DownloadResult) {
	if result == nil {
		return
	}
	st.CompletedFiles = result.OkCount
	st.TotalFiles = result.OkCount + result.FailCount
	st.Stage = model.StageDone
	if result.FailCount > 0 {
		st.Status = model.StatusError
		st.ErrorMessage = fmt.Sprintf("%d of %d files failed to download", result.FailCount, st.TotalFiles)
	} else {
		st.Status = model.StatusDownloaded
		st.ErrorMessage = ""
	}
	st.ProgressPercent = derivePercent(st, nil)
	st.LastUpdate = m.now().UnixMilli()
}

// derivePercent prefers real counts; an explicit progress number from the
// event is only trusted when counts are absent.
func derivePercent(st *model.DownloadState, explicit *int) int {
	if st.TotalFiles > 0 {
		return 100 * st.CompletedFiles / st.TotalFiles
	}
	if explicit != nil {
		return *explicit
	}
	if st.Stage == model.StageDone {
		return 100
	}
	return 0
}

// maybeAnnounceLocked updates the screen-reader line. Stage transitions away
// from downloading always speak; per-file progress is throttled to one
// announcement per interval.
func (m *Manager) maybeAnnounceLocked(id string, st *model.DownloadState, prevStage model.DownloadStage, prevCompleted int) {
	now := m.now()
	stageChanged := st.Stage != prevStage
	completedChanged := st.CompletedFiles != prevCompleted

	switch {
	case stageChanged && st.Stage != model.StageDownloading:
	case completedChanged && now.Sub(m.lastAnnounce[id]) >= m.announceEvery:
	default:
		return
	}

	st.Announcement = announcementText(st)
	m.lastAnnounce[id] = now
	logging.LogAnnouncement(id, st.Announcement)
}

func announcementText(st *model.DownloadState) string {
	switch st.Stage {
	case model.StagePreparing:
		return "Preparing tour download"
	case model.StageDownloading:
		return fmt.Sprintf("Downloading tour: %d of %d files", st.CompletedFiles, st.TotalFiles)
	case model.StageSaving:
		return "Saving tour"
	case model.StageDone:
		if st.Status == model.StatusError {
			return fmt.Sprintf("Tour download finished with errors: %d of %d files", st.CompletedFiles, st.TotalFiles)
		}
		return "Tour downloaded and ready for offline use"
	case model.StageError:
		return "Tour download failed"
	}
	return ""
}

func (m *Manager) persistLocked() {
	data, err := json.Marshal(m.states)
	if err != nil {
		m.log.Error("Cannot serialize download states", "error", err)
		return
	}
	if err := m.kv.SetState(context.Background(), config.KeyDownloadStates, string(data)); err != nil {
		m.log.Error("Cannot persist download states", "error", err)
	}
}

// Download records the command for later restarts and queues it.
func (m *Manager) Download(id, slug string, files []string, tourJSON []byte) error {
	cmd := offline.NewDownloadCommand(id, slug, files, tourJSON)
	m.mu.Lock()
	m.lastCmd[id] = cmd
	m.mu.Unlock()
	return m.commander.Submit(cmd)
}

// Delete queues removal of the tour's cache.
func (m *Manager) Delete(id string) error {
	return m.commander.Submit(offline.NewDeleteCommand(id))
}

// Reset treats the tour's cache as corrupt: it queues its deletion and drops
// the state back to idle. With restart, the last known download command for
// the tour is queued again behind the delete, so the worker serializes both.
func (m *Manager) Reset(id string, restart bool) error {
	m.mu.Lock()
	cmd, hasCmd := m.lastCmd[id]
	m.mu.Unlock()

	if restart && !hasCmd {
		return fmt.Errorf("no download on record for tour %s", id)
	}

	if err := m.commander.Submit(offline.NewDeleteCommand(id)); err != nil {
		return err
	}

	m.mu.Lock()
	idle := &model.DownloadState{Status: model.StatusIdle, LastUpdate: m.now().UnixMilli()}
	m.states[id] = idle
	m.persistLocked()
	obs := append([]Observer(nil), m.observers...)
	state := *idle
	m.mu.Unlock()

	for _, o := range obs {
		o(id, state)
	}

	if restart {
		return m.commander.Submit(cmd)
	}
	return nil
}

// State returns the view for one tour.
func (m *Manager) State(id string) (StateView, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[id]
	if !ok {
		return StateView{}, false
	}
	return m.viewLocked(st), true
}

// States returns views for every known tour.
func (m *Manager) States() map[string]StateView {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]StateView, len(m.states))
	for id, st := range m.states {
		out[id] = m.viewLocked(st)
	}
	return out
}

func (m *Manager) viewLocked(st *model.DownloadState) StateView {
	v := StateView{DownloadState: *st}
	if st.Status == model.StatusDownloading && m.now().UnixMilli()-st.LastUpdate > m.stall.Milliseconds() {
		v.Stalled = true
	}
	return v
}
