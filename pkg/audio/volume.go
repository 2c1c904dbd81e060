package audio

import "math"

// volumeToPower maps a linear 0..1 volume onto the logarithmic scale the
// Volume effect expects with Base 2. Anything at or below 0.01 is treated
// as mute by the caller; -10 keeps the value finite if it slips through.
func volumeToPower(vol float64) float64 {
	if vol <= 0.01 {
		return -10
	}
	return math.Log2(vol)
}

func clampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
