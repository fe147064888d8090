package progress

import "time"

// displayCap keeps the bar under 95% until the engine reports true
// completion: duplicate detection and the final heavy stage dominate
// wall-clock time non-uniformly, a linear bar would stall visibly.
const displayCap = 95.0

// zoneSize partitions engine progress into four zones (0-25 .. 75-100)
const zoneSize = 25.0

// Smoother maps (elapsed time, true engine ticks) to a monotonically
// non-decreasing displayed percentage.
type Smoother struct {
	estimate  time.Duration
	started   time.Time
	displayed float64
}

// NewSmoother creates a smoother for one run with a precomputed estimate
func NewSmoother(estimate time.Duration, started time.Time) *Smoother {
	return &Smoother{estimate: estimate, started: started}
}

// Observe advances the displayed percentage given the current engine
// progress (0-100). Within the zone the displayed value occupies, it
// approaches the zone ceiling proportionally to elapsed/estimated time.
// Never decreases, never exceeds 95 until engine progress reports 100.
func (sm *Smoother) Observe(now time.Time, engineProgress int) float64 {
	if engineProgress >= 100 {
		sm.displayed = 100
		return sm.displayed
	}

	// The engine jumping ahead of the display pulls the display up
	// to the start of the engine's zone.
	target := float64(engineProgress)
	if target > sm.displayed {
		sm.displayed = target
	}

	zone := int(sm.displayed / zoneSize)
	if zone > 3 {
		zone = 3
	}
	ceiling := float64(zone+1) * zoneSize

	if sm.estimate > 0 {
		ratio := float64(now.Sub(sm.started)) / float64(sm.estimate)
		if ratio > 1 {
			ratio = 1
		}
		within := float64(zone)*zoneSize + ratio*zoneSize
		if within > sm.displayed {
			sm.displayed = within
		}
	}

	if sm.displayed > ceiling {
		sm.displayed = ceiling
	}
	if sm.displayed > displayCap {
		sm.displayed = displayCap
	}
	return sm.displayed
}

// Displayed returns the last computed percentage
func (sm *Smoother) Displayed() float64 {
	return sm.displayed
}
