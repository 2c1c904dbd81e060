package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "audioguia.yaml")

	tests := []struct {
		name          string
		setup         func()
		validate      func(*testing.T, *Config)
		checkFile     func(*testing.T)
		expectedError bool
	}{
		{
			name:  "NewFile_Defaults",
			setup: func() {}, // No file
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Position.Provider != "manual" {
					t.Errorf("expected default provider 'manual', got '%s'", cfg.Position.Provider)
				}
				if cfg.Trigger.AccuracyMultiplier != 2.0 {
					t.Errorf("expected default accuracy_multiplier 2.0, got %v", cfg.Trigger.AccuracyMultiplier)
				}
				if cfg.Offline.FetchAttempts != 2 {
					t.Errorf("expected default fetch_attempts 2, got %d", cfg.Offline.FetchAttempts)
				}
			},
			checkFile: func(t *testing.T) {
				content, err := os.ReadFile(configPath)
				if err != nil {
					t.Fatalf("failed to read config file: %v", err)
				}
				if !strings.Contains(string(content), "provider: manual") {
					t.Error("config file missing default values")
				}
				if !strings.Contains(string(content), "# Options: manual, gpx, mock") {
					t.Error("config file missing injected provider comment")
				}
			},
		},
		{
			name: "ExistingFile_Override",
			setup: func() {
				err := os.WriteFile(configPath, []byte("position:\n  provider: gpx\nmotion:\n  window: 20s\n"), 0o644)
				if err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Position.Provider != "gpx" {
					t.Errorf("expected provider 'gpx', got '%s'", cfg.Position.Provider)
				}
				if cfg.Motion.Window.Std() != 20*time.Second {
					t.Errorf("expected window 20s, got %v", cfg.Motion.Window.Std())
				}
				// Untouched sections keep defaults.
				if cfg.Trigger.MaxAccuracy.Meters() != 50 {
					t.Errorf("expected default max_accuracy 50, got %v", cfg.Trigger.MaxAccuracy.Meters())
				}
			},
			checkFile: func(t *testing.T) {
				content, err := os.ReadFile(configPath)
				if err != nil {
					t.Fatalf("failed to read config file: %v", err)
				}
				if !strings.Contains(string(content), "provider: gpx") {
					t.Error("config file should persist custom value")
				}
			},
		},
		{
			name: "Env_Override",
			setup: func() {
				t.Setenv("AUDIOGUIA_ADDR", "0.0.0.0:9090")
				err := os.WriteFile(configPath, []byte("server:\n  address: localhost:1872\n"), 0o644)
				if err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Server.Address != "0.0.0.0:9090" {
					t.Errorf("expected env address override, got '%s'", cfg.Server.Address)
				}
			},
			checkFile: func(t *testing.T) {},
		},
		{
			name: "InvalidProvider",
			setup: func() {
				err := os.WriteFile(configPath, []byte("position:\n  provider: teleport\n"), 0o644)
				if err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			},
			expectedError: true,
		},
		{
			name: "StillAboveMoving",
			setup: func() {
				err := os.WriteFile(configPath, []byte("motion:\n  still_threshold: 9m\n  moving_threshold: 8m\n"), 0o644)
				if err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Remove(configPath)
			tt.setup()

			cfg, err := Load(configPath)
			if tt.expectedError {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}

			if tt.validate != nil {
				tt.validate(t, cfg)
			}
			if tt.checkFile != nil {
				tt.checkFile(t)
			}
		})
	}
}

func TestGenerateDefault(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "audioguia.yaml")

	if err := GenerateDefault(configPath); err != nil {
		t.Fatalf("GenerateDefault failed: %v", err)
	}
	info, err := os.Stat(configPath)
	if err != nil {
		t.Fatalf("config file not created: %v", err)
	}

	// Second call must not rewrite the file.
	if err := GenerateDefault(configPath); err != nil {
		t.Fatalf("GenerateDefault on existing file failed: %v", err)
	}
	info2, err := os.Stat(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if info.ModTime() != info2.ModTime() {
		t.Error("GenerateDefault rewrote an existing file")
	}
}

func TestValidate_Defaults(t *testing.T) {
	if err := Validate(DefaultConfig()); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}
