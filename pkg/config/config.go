package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	DB       DBConfig       `yaml:"db"`
	Tours    ToursConfig    `yaml:"tours"`
	Trigger  TriggerConfig  `yaml:"trigger"`
	Motion   MotionConfig   `yaml:"motion"`
	Audio    AudioConfig    `yaml:"audio"`
	Offline  OfflineConfig  `yaml:"offline"`
	Position PositionConfig `yaml:"position"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address" validate:"required"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server        LogSettings `yaml:"server"`
	Requests      LogSettings `yaml:"requests"`
	Announcements string      `yaml:"announcements"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// ToursConfig holds tour content settings.
type ToursConfig struct {
	Dir      string `yaml:"dir" validate:"required"`
	MediaDir string `yaml:"media_dir"`
	TmpDir   string `yaml:"tmp_dir" validate:"required"`
}

// TriggerConfig holds the effective-radius policy for geofence triggering.
// The constants are tunables, not law; field meanings are documented on
// geo.RadiusPolicy.
type TriggerConfig struct {
	DefaultRadius      Distance `yaml:"default_radius" validate:"gt=0"`
	MinRadius          Distance `yaml:"min_radius" validate:"gt=0"`
	MaxRadius          Distance `yaml:"max_radius" validate:"gtefield=MinRadius"`
	AccuracyMultiplier float64  `yaml:"accuracy_multiplier" validate:"gt=0"`
	MaxAccuracy        Distance `yaml:"max_accuracy" validate:"gt=0"`
}

// MotionConfig holds thresholds for the walking/stationary detector.
type MotionConfig struct {
	UsableAccuracy  Distance `yaml:"usable_accuracy" validate:"gt=0"`
	Window          Duration `yaml:"window" validate:"gt=0"`
	MovingThreshold Distance `yaml:"moving_threshold" validate:"gt=0"`
	StillThreshold  Distance `yaml:"still_threshold" validate:"gt=0,ltfield=MovingThreshold"`
}

// AudioConfig holds playback settings.
type AudioConfig struct {
	Volume     float64  `yaml:"volume" validate:"gte=0,lte=1"`
	SampleRate int      `yaml:"sample_rate" validate:"gt=0"`
	BufferLen  Duration `yaml:"buffer_len" validate:"gt=0"`
}

// OfflineConfig holds settings for the offline download pipeline.
type OfflineConfig struct {
	Origin           string   `yaml:"origin" validate:"required,url"`
	BasePath         string   `yaml:"base_path" validate:"required"`
	FetchTimeout     Duration `yaml:"fetch_timeout" validate:"gt=0"`
	FetchAttempts    int      `yaml:"fetch_attempts" validate:"gte=1"`
	StallTimeout     Duration `yaml:"stall_timeout" validate:"gt=0"`
	AnnounceInterval Duration `yaml:"announce_interval" validate:"gt=0"`
}

// PositionConfig holds settings for the position source.
type PositionConfig struct {
	Provider     string         `yaml:"provider" validate:"oneof=manual gpx mock"`
	HighAccuracy bool           `yaml:"high_accuracy"`
	MaxAge       Duration       `yaml:"max_age"`
	Timeout      Duration       `yaml:"timeout" validate:"gt=0"`
	GPX          GPXConfig      `yaml:"gpx"`
	Mock         MockWalkConfig `yaml:"mock"`
}

// GPXConfig holds settings for the GPX replay source.
type GPXConfig struct {
	Path     string  `yaml:"path"`
	Speed    float64 `yaml:"speed" validate:"gt=0"`
	Accuracy float64 `yaml:"accuracy_m" validate:"gt=0"`
}

// MockWalkConfig holds settings for the synthetic walker source.
type MockWalkConfig struct {
	StartLat     float64  `yaml:"start_lat" validate:"gte=-90,lte=90"`
	StartLng     float64  `yaml:"start_lng" validate:"gte=-180,lte=180"`
	SpeedMPS     float64  `yaml:"speed_mps" validate:"gt=0"`
	JitterM      float64  `yaml:"jitter_m" validate:"gte=0"`
	StepInterval Duration `yaml:"step_interval" validate:"gt=0"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address: "localhost:1872",
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "./logs/requests.log",
				Level: "INFO",
			},
			Announcements: "./logs/announcements.log",
		},
		DB: DBConfig{
			Path: "./data/audioguia.db",
		},
		Tours: ToursConfig{
			Dir:      "./tours",
			MediaDir: "./media",
			TmpDir:   "./data/tmp-media",
		},
		Trigger: TriggerConfig{
			DefaultRadius:      Distance(15),
			MinRadius:          Distance(10),
			MaxRadius:          Distance(50),
			AccuracyMultiplier: 2.0,
			MaxAccuracy:        Distance(50),
		},
		Motion: MotionConfig{
			UsableAccuracy:  Distance(20),
			Window:          Duration(12 * time.Second),
			MovingThreshold: Distance(8),
			StillThreshold:  Distance(3),
		},
		Audio: AudioConfig{
			Volume:     0.8,
			SampleRate: 48000,
			BufferLen:  Duration(100 * time.Millisecond),
		},
		Offline: OfflineConfig{
			Origin:           "http://localhost:1872",
			BasePath:         "/",
			FetchTimeout:     Duration(45 * time.Second),
			FetchAttempts:    2,
			StallTimeout:     Duration(30 * time.Second),
			AnnounceInterval: Duration(2 * time.Second),
		},
		Position: PositionConfig{
			Provider:     "manual",
			HighAccuracy: true,
			MaxAge:       Duration(5 * time.Second),
			Timeout:      Duration(30 * time.Second),
			GPX: GPXConfig{
				Speed:    1.0,
				Accuracy: 8.0,
			},
			Mock: MockWalkConfig{
				StartLat:     52.5200,
				StartLng:     13.4050,
				SpeedMPS:     1.4,
				JitterM:      2.0,
				StepInterval: Duration(1 * time.Second),
			},
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// If the file exists, it merges defaults with existing values but does NOT
// save back to disk (to preserve user formatting and comments).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else {
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to save config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overrides select settings from the environment. Values from a
// .env file are honored when the caller loads it before Load.
func applyEnv(cfg *Config) {
	if addr := os.Getenv("AUDIOGUIA_ADDR"); addr != "" {
		cfg.Server.Address = addr
	}
	if level := os.Getenv("AUDIOGUIA_LOG_LEVEL"); level != "" {
		cfg.Log.Server.Level = level
	}
	if dbPath := os.Getenv("AUDIOGUIA_DB_PATH"); dbPath != "" {
		cfg.DB.Path = dbPath
	}
	if dir := os.Getenv("AUDIOGUIA_TOURS_DIR"); dir != "" {
		cfg.Tours.Dir = dir
	}
	if origin := os.Getenv("AUDIOGUIA_ORIGIN"); origin != "" {
		cfg.Offline.Origin = origin
	}
}

// Validate checks the configuration against its struct tags.
func Validate(cfg *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg); err != nil {
		var errs validator.ValidationErrors
		if ok := errors.As(err, &errs); ok && len(errs) > 0 {
			e := errs[0]
			return fmt.Errorf("invalid config: %s fails %q", e.Namespace(), e.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Audioguia Configuration
# ----------------------
# Supported Units:
#   Duration: ns, us, ms, s, m, h, d (day), w (week)
#   Distance: m (meters), km (kilometers), ft (feet)

`)
	data = append(header, data...)

	// Inject comments for enum fields. Regex keeps the indentation so the
	// comment lands inside the right section.
	reProvider := regexp.MustCompile(`(?m)^(\s+)provider:`)
	data = reProvider.ReplaceAll(data, []byte("${1}# Options: manual, gpx, mock\n${1}provider:"))

	reMultiplier := regexp.MustCompile(`(?m)^(\s+)accuracy_multiplier:`)
	data = reMultiplier.ReplaceAll(data, []byte("${1}# Widens a point's trigger radius by reported GPS accuracy\n${1}accuracy_multiplier:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
