// Package watcher polls the tour library directory for files changed behind
// the registry's back. The download pipeline installs tours through the
// registry directly; the watcher picks up tours copied in by hand.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Service monitors a tour library directory.
type Service struct {
	dir   string
	mu    sync.Mutex
	known map[string]time.Time
}

// NewService creates a monitor for the given directory. The current library
// is snapshotted so only later changes count.
func NewService(dir string) *Service {
	s := &Service{dir: dir}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		slog.Warn("Watcher: Directory does not exist yet", "path", dir)
	}
	s.known = s.scan()
	return s
}

// CheckChanged rescans the directory and reports the first tour file added,
// rewritten or removed since the previous check.
func (s *Service) CheckChanged() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.scan()
	defer func() { s.known = current }()

	for name, mod := range current {
		prev, ok := s.known[name]
		if !ok {
			slog.Info("Watcher: New tour file detected", "file", name)
			return name, true
		}
		if mod.After(prev) {
			slog.Info("Watcher: Tour file rewritten", "file", name)
			return name, true
		}
	}

	for name := range s.known {
		if _, ok := current[name]; !ok {
			slog.Info("Watcher: Tour file removed", "file", name)
			return name, true
		}
	}

	return "", false
}

// Run polls every interval until ctx is done, invoking onChange with the
// file that tripped the check.
func (s *Service) Run(ctx context.Context, interval time.Duration, onChange func(file string)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if file, ok := s.CheckChanged(); ok {
				onChange(file)
			}
		}
	}
}

// scan maps tour file names to modification times. A missing or unreadable
// directory yields an empty snapshot.
func (s *Service) scan() map[string]time.Time {
	files := make(map[string]time.Time)

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return files
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		lower := strings.ToLower(entry.Name())
		if !strings.HasSuffix(lower, ".json") && !strings.HasSuffix(lower, ".geojson") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		files[entry.Name()] = info.ModTime()
	}

	return files
}
