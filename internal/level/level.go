// Package level holds the leveling curve. The formula is user-visible and
// comparable across clients, so it lives in exactly one place.
package level

import "math"

// Level maps cumulative focus minutes to a level. Always >= 1.
func Level(totalMinutes int64) int {
	return int(math.Floor(math.Sqrt(float64(totalMinutes))*0.5)) + 1
}

// Threshold is the minute total at which lvl begins. This is the algebraic
// inverse of Level for the *current* level, not the next one; progress is
// therefore position within the current band. Kept as-is for compatibility
// with existing clients.
func Threshold(lvl int) float64 {
	base := float64(lvl) / 0.5
	return base * base
}

// Progress returns a 0-100 percentage of totalMinutes against the current
// level threshold, capped at 100.
func Progress(totalMinutes int64, lvl int) float64 {
	threshold := Threshold(lvl)
	if threshold <= 0 {
		return 0
	}
	p := float64(totalMinutes) / threshold * 100
	return math.Min(100, p)
}
