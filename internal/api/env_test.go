package api

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/acurth/audioguia/pkg/audio"
	"github.com/acurth/audioguia/pkg/config"
	"github.com/acurth/audioguia/pkg/db"
	"github.com/acurth/audioguia/pkg/geo"
	"github.com/acurth/audioguia/pkg/model"
	"github.com/acurth/audioguia/pkg/motion"
	"github.com/acurth/audioguia/pkg/offline"
	"github.com/acurth/audioguia/pkg/position"
	"github.com/acurth/audioguia/pkg/progress"
	"github.com/acurth/audioguia/pkg/session"
	"github.com/acurth/audioguia/pkg/store"
	"github.com/acurth/audioguia/pkg/tour"
	"github.com/acurth/audioguia/pkg/trigger"
	"github.com/acurth/audioguia/pkg/wakelock"
)

type fakePlayer struct {
	mu      sync.Mutex
	unlocks int
	pauses  int
	resumes int
	stops   int
	plays   []string
	toggles []string
	volume  float64
}

func (f *fakePlayer) Unlock() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unlocks++
	return nil
}

func (f *fakePlayer) Play(pointID, path string, onComplete func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plays = append(f.plays, pointID)
	return nil
}

func (f *fakePlayer) Toggle(pointID, path string, onComplete func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggles = append(f.toggles, pointID)
	return nil
}

func (f *fakePlayer) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauses++
}

func (f *fakePlayer) Resume() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumes++
}

func (f *fakePlayer) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakePlayer) SetVolume(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = v
}

func (f *fakePlayer) Volume() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volume
}

func (f *fakePlayer) Status() audio.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return audio.Status{Unlocked: f.unlocks > 0, Volume: f.volume}
}

func (f *fakePlayer) Shutdown() {}

type fakeLocker struct{}

func (fakeLocker) Acquire(reason string) error { return nil }
func (fakeLocker) Release() error              { return nil }

type fakeResolver struct{ path string }

func (f *fakeResolver) Resolve(ctx context.Context, tourID, pointID, ref string) (string, error) {
	return f.path, nil
}

type fakeCommander struct {
	mu   sync.Mutex
	cmds []offline.Command
}

func (f *fakeCommander) Submit(cmd offline.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, cmd)
	return nil
}

func (f *fakeCommander) submitted() []offline.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]offline.Command(nil), f.cmds...)
}

// staticSource stands in for a replay provider; its watch is never opened by
// the handlers under test.
type staticSource struct{}

func (staticSource) Name() string { return "gpx" }
func (staticSource) Watch(ctx context.Context, opts position.Options) (*position.Watch, error) {
	return nil, context.Canceled
}

func guideTour() *model.Tour {
	return &model.Tour{
		ID:          "lx",
		Slug:        "lisboa-old-town",
		Name:        "Lisboa Old Town",
		Description: "<p>Castles, <b>miradouros</b> and the old cathedral quarter.</p>",
		Points: []model.Point{
			{ID: "castelo", Name: "Castelo de São Jorge", Lat: 38.7139, Lng: -9.1335, Radius: 10, AudioRef: "/audio/castelo.mp3"},
			{ID: "se", Name: "Sé de Lisboa", Lat: 38.7097, Lng: -9.1326, Radius: 10, AudioRef: "/audio/se.mp3"},
		},
		Manifest: &model.OfflineManifest{
			TotalBytes: 2048,
			Files: []model.ManifestFile{
				{Path: "/audio/castelo.mp3", Bytes: 1024},
				{Path: "/audio/se.mp3", Bytes: 1024},
			},
		},
	}
}

func plainTour() *model.Tour {
	return &model.Tour{
		ID:   "pt",
		Slug: "porto-riverside",
		Name: "Porto Riverside",
		Points: []model.Point{
			{ID: "ribeira", Name: "Cais da Ribeira", Lat: 41.1408, Lng: -8.6131, Radius: 12, AudioRef: "/audio/ribeira.mp3"},
		},
	}
}

type testEnv struct {
	registry  *tour.Registry
	ctrl      *session.Controller
	player    *fakePlayer
	source    *position.ManualSource
	st        store.Store
	mgr       *progress.Manager
	commander *fakeCommander

	tours    *ToursHandler
	sess     *SessionHandler
	pos      *PositionHandler
	audio    *AudioHandler
	offlineH *OfflineHandler
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	d, err := db.Init(filepath.Join(t.TempDir(), "api_test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	st := store.NewSQLiteStore(d)

	registry := tour.NewRegistry(t.TempDir())
	if err := registry.Install(guideTour()); err != nil {
		t.Fatal(err)
	}
	if err := registry.Install(plainTour()); err != nil {
		t.Fatal(err)
	}

	policy := geo.RadiusPolicy{
		DefaultRadius:      15,
		MinRadius:          10,
		MaxRadius:          50,
		AccuracyMultiplier: 2,
		MaxAccuracy:        50,
	}
	det := motion.NewDetector(motion.Thresholds{
		UsableAccuracy:  20,
		Window:          12 * time.Second,
		MovingThreshold: 8,
		StillThreshold:  3,
	})

	player := &fakePlayer{volume: 0.8}
	source := position.NewManualSource()

	ctrl := session.NewController(&config.PositionConfig{
		Provider:     "manual",
		HighAccuracy: true,
		Timeout:      config.Duration(30 * time.Second),
	}, session.Deps{
		Registry: registry,
		Engine:   trigger.NewEngine(policy, slog.Default()),
		Detector: det,
		Player:   player,
		Lock:     wakelock.NewManagerWith(fakeLocker{}),
		Source:   source,
		KV:       st,
		Resolver: &fakeResolver{path: "/tmp/clip.mp3"},
	})
	t.Cleanup(ctrl.Stop)

	commander := &fakeCommander{}
	mgr := progress.NewManager(&config.OfflineConfig{
		Origin:           "https://tours.example.org",
		BasePath:         "/api",
		FetchTimeout:     config.Duration(10 * time.Second),
		FetchAttempts:    2,
		StallTimeout:     config.Duration(30 * time.Second),
		AnnounceInterval: config.Duration(2 * time.Second),
	}, commander, st)

	return &testEnv{
		registry:  registry,
		ctrl:      ctrl,
		player:    player,
		source:    source,
		st:        st,
		mgr:       mgr,
		commander: commander,
		tours:     NewToursHandler(registry),
		sess:      NewSessionHandler(ctrl),
		pos:       NewPositionHandler(ctrl, source),
		audio:     NewAudioHandler(ctrl, player),
		offlineH:  NewOfflineHandler(mgr, registry, st),
	}
}
