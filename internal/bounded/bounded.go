// Package bounded holds the clamping and elapsed-time scaling helpers every
// subsystem writes its scalars through.
//
// Per-call adjustment constants are calibrated for one call per second of
// simulated time. Additive steps scale linearly with elapsed seconds and
// multiplicative retention compounds as rate^seconds, so the outcome over
// a span of time does not depend on how often the caller ticks.
package bounded

import (
	"math"
	"time"
)

// Unit clamps x into [0, 1].
func Unit(x float64) float64 {
	return Clamp(x, 0, 1)
}

// Signed clamps x into [-1, 1].
func Signed(x float64) float64 {
	return Clamp(x, -1, 1)
}

// Clamp restricts x to [lo, hi]. NaN collapses to lo.
func Clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) || x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Seconds converts a duration to fractional seconds, never negative.
func Seconds(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return d.Seconds()
}

// Step scales a per-second additive constant by the elapsed time.
func Step(perSecond float64, dt time.Duration) float64 {
	return perSecond * Seconds(dt)
}

// Retain returns the fraction kept after applying a per-second
// multiplicative rate for dt.
func Retain(rate float64, dt time.Duration) float64 {
	if rate <= 0 {
		return 0
	}
	return math.Pow(rate, Seconds(dt))
}
