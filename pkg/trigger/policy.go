package trigger

import (
	"github.com/acurth/audioguia/pkg/config"
	"github.com/acurth/audioguia/pkg/geo"
)

// PolicyFromConfig maps trigger configuration onto the radius policy.
func PolicyFromConfig(cfg *config.TriggerConfig) geo.RadiusPolicy {
	return geo.RadiusPolicy{
		DefaultRadius:      cfg.DefaultRadius.Meters(),
		MinRadius:          cfg.MinRadius.Meters(),
		MaxRadius:          cfg.MaxRadius.Meters(),
		AccuracyMultiplier: cfg.AccuracyMultiplier,
		MaxAccuracy:        cfg.MaxAccuracy.Meters(),
	}
}
