package geo

import (
	"math"
)

// RadiusPolicy holds the tunables for accuracy-adaptive trigger radii.
// GPS accuracy circles routinely exceed the author-declared radius of a
// point; widening the trigger radius with reported accuracy keeps points
// firing under poor signal, the ceiling prevents false positives from very
// bad fixes, and the floor keeps a sensible minimum trigger zone.
type RadiusPolicy struct {
	DefaultRadius      float64 // Fallback when a point's radius is missing or non-finite
	MinRadius          float64 // Floor for the effective radius
	MaxRadius          float64 // Ceiling for the effective radius
	AccuracyMultiplier float64 // Scales reported accuracy before comparing to the base radius
	MaxAccuracy        float64 // Samples above this accuracy never trigger
}

// EffectiveRadius computes the trigger radius actually used for one sample:
// clamp(max(base, accuracy*multiplier), min, max). A non-finite or
// non-positive base falls back to the policy default rather than failing.
func EffectiveRadius(baseRadius, accuracy float64, p RadiusPolicy) float64 {
	base := baseRadius
	if !isFinite(base) || base <= 0 {
		base = p.DefaultRadius
	}

	r := math.Max(base, accuracy*p.AccuracyMultiplier)
	return Clamp(r, p.MinRadius, p.MaxRadius)
}

// AccuracyUsable reports whether a sample's accuracy is good enough to
// trigger under this policy.
func (p RadiusPolicy) AccuracyUsable(accuracy float64) bool {
	return isFinite(accuracy) && accuracy <= p.MaxAccuracy
}

// Clamp limits v to the range [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
