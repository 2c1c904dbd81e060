package motion

import "github.com/acurth/audioguia/pkg/config"

// ThresholdsFromConfig maps detector configuration onto Thresholds.
func ThresholdsFromConfig(cfg *config.MotionConfig) Thresholds {
	return Thresholds{
		UsableAccuracy:  cfg.UsableAccuracy.Meters(),
		Window:          cfg.Window.Std(),
		MovingThreshold: cfg.MovingThreshold.Meters(),
		StillThreshold:  cfg.StillThreshold.Meters(),
	}
}
