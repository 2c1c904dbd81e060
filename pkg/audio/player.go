// Package audio plays narration clips through the host sound device.
//
// The player holds a single slot: starting a new clip replaces whatever is
// loaded, and a finished clip stays resumable until the next one arrives.
// All methods are safe for concurrent use.
package audio

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"

	"github.com/acurth/audioguia/pkg/config"
)

// Service is the narrow surface the rest of the engine talks to.
type Service interface {
	Unlock() error
	Play(pointID, path string, onComplete func()) error
	Toggle(pointID, path string, onComplete func()) error
	Pause()
	Resume()
	Stop()
	SetVolume(v float64)
	Volume() float64
	Status() Status
	Shutdown()
}

// Status is a snapshot of the player slot.
type Status struct {
	PointID     string  `json:"pointId,omitempty"`
	Playing     bool    `json:"playing"`
	Paused      bool    `json:"paused"`
	Unlocked    bool    `json:"unlocked"`
	Volume      float64 `json:"volume"`
	PositionSec float64 `json:"positionSec"`
	DurationSec float64 `json:"durationSec"`
	LastError   string  `json:"lastError,omitempty"`
}

// Manager owns the speaker and the single playback slot.
type Manager struct {
	cfg *config.AudioConfig
	log *slog.Logger

	mu           sync.Mutex
	speakerReady bool
	unlocked     bool
	mixRate      beep.SampleRate

	ctrl    *beep.Ctrl
	volume  *effects.Volume
	track   beep.StreamSeekCloser
	format  beep.Format
	pointID string
	path    string

	playing    bool
	paused     bool
	vol        float64
	generation uint64
	lastError  string
}

var _ Service = (*Manager)(nil)

func New(cfg *config.AudioConfig) *Manager {
	return &Manager{
		cfg: cfg,
		log: slog.With("component", "audio"),
		vol: clampVolume(cfg.Volume),
	}
}

func (m *Manager) ensureSpeakerLocked() error {
	if m.speakerReady {
		return nil
	}
	sr := beep.SampleRate(m.cfg.SampleRate)
	if err := speaker.Init(sr, sr.N(m.cfg.BufferLen.Std())); err != nil {
		return fmt.Errorf("speaker init: %w", err)
	}
	m.mixRate = sr
	m.speakerReady = true
	m.log.Debug("Speaker initialized", "rate", int(sr), "buffer", m.cfg.BufferLen.Std())
	return nil
}

// Unlock primes the sound device so later playback can start without a
// user gesture. The prime rides its own muted channel through the mixer,
// so the loaded clip's volume, pause state and position are untouched; the
// saved volume is re-applied afterward all the same.
func (m *Manager) Unlock() error {
	m.mu.Lock()
	if m.unlocked {
		m.mu.Unlock()
		return nil
	}
	if err := m.ensureSpeakerLocked(); err != nil {
		m.lastError = err.Error()
		m.mu.Unlock()
		return err
	}
	prev := m.vol
	n := m.mixRate.N(50 * time.Millisecond)
	done := make(chan struct{})
	muted := &effects.Volume{Streamer: beep.Take(n, silence()), Base: 2, Silent: true}
	speaker.Play(beep.Seq(muted, beep.Callback(func() { close(done) })))
	m.mu.Unlock()

	select {
	case <-done:
	case <-time.After(time.Second):
	}

	m.mu.Lock()
	m.vol = prev
	m.applyVolumeLocked()
	m.unlocked = true
	m.mu.Unlock()
	m.log.Info("Audio unlocked")
	return nil
}

// Play loads the clip at path into the slot and starts it, replacing any
// clip already there. onComplete fires once when the clip plays to its end,
// not when it is replaced or stopped.
func (m *Manager) Play(pointID, path string, onComplete func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureSpeakerLocked(); err != nil {
		m.lastError = err.Error()
		return err
	}
	m.stopLocked()

	track, format, err := DecodeMedia(path)
	if err != nil {
		err = fmt.Errorf("decode %s: %w", filepath.Base(path), err)
		m.lastError = err.Error()
		return err
	}

	var streamer beep.Streamer = track
	if format.SampleRate != m.mixRate {
		streamer = beep.Resample(4, format.SampleRate, m.mixRate, track)
	}
	m.ctrl = &beep.Ctrl{Streamer: streamer}
	m.volume = &effects.Volume{
		Streamer: m.ctrl,
		Base:     2,
		Volume:   volumeToPower(m.vol),
		Silent:   m.vol <= 0.01,
	}
	m.generation++
	gen := m.generation
	end := beep.Callback(func() {
		// Runs on the speaker goroutine; never touch the mutex here.
		go m.finish(gen, onComplete)
	})
	speaker.Play(beep.Seq(m.volume, end))

	m.track = track
	m.format = format
	m.pointID = pointID
	m.path = path
	m.playing = true
	m.paused = false
	m.lastError = ""
	m.log.Info("Playing", "point", pointID, "file", filepath.Base(path))
	return nil
}

// finish clears the playing flag when a clip runs out. The generation
// check drops completions from clips that were already replaced.
func (m *Manager) finish(gen uint64, onComplete func()) {
	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return
	}
	m.playing = false
	m.paused = false
	m.ctrl = nil
	m.volume = nil
	m.mu.Unlock()
	if onComplete != nil {
		onComplete()
	}
}

// Toggle pauses or resumes the clip when pointID matches the slot, and
// behaves like Play otherwise. A clip that already finished is restarted
// from the top.
func (m *Manager) Toggle(pointID, path string, onComplete func()) error {
	m.mu.Lock()
	if m.pointID == pointID && m.path == path && m.ctrl != nil {
		paused := !m.paused
		speaker.Lock()
		m.ctrl.Paused = paused
		speaker.Unlock()
		m.paused = paused
		m.playing = !paused
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()
	return m.Play(pointID, path, onComplete)
}

func (m *Manager) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctrl == nil || m.paused {
		return
	}
	speaker.Lock()
	m.ctrl.Paused = true
	speaker.Unlock()
	m.paused = true
	m.playing = false
}

func (m *Manager) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctrl == nil || !m.paused {
		return
	}
	speaker.Lock()
	m.ctrl.Paused = false
	speaker.Unlock()
	m.paused = false
	m.playing = true
}

// Stop empties the slot. Nothing is resumable afterward.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
	m.pointID = ""
	m.path = ""
}

func (m *Manager) stopLocked() {
	m.generation++
	if m.ctrl != nil {
		speaker.Clear()
		m.ctrl = nil
		m.volume = nil
	}
	if m.track != nil {
		m.track.Close()
		m.track = nil
	}
	m.playing = false
	m.paused = false
}

func (m *Manager) SetVolume(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vol = clampVolume(v)
	m.applyVolumeLocked()
}

func (m *Manager) applyVolumeLocked() {
	if m.volume == nil {
		return
	}
	speaker.Lock()
	m.volume.Volume = volumeToPower(m.vol)
	m.volume.Silent = m.vol <= 0.01
	speaker.Unlock()
}

func (m *Manager) Volume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vol
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{
		PointID:   m.pointID,
		Playing:   m.playing,
		Paused:    m.paused,
		Unlocked:  m.unlocked,
		Volume:    m.vol,
		LastError: m.lastError,
	}
	if m.track != nil {
		speaker.Lock()
		pos := m.track.Position()
		length := m.track.Len()
		speaker.Unlock()
		st.PositionSec = m.format.SampleRate.D(pos).Seconds()
		st.DurationSec = m.format.SampleRate.D(length).Seconds()
	}
	return st
}

func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
	if m.speakerReady {
		speaker.Close()
		m.speakerReady = false
	}
}

// silence yields zeroed samples forever. Wrap it in beep.Take for a
// bounded stretch.
func silence() beep.Streamer {
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			samples[i] = [2]float64{}
		}
		return len(samples), true
	})
}
