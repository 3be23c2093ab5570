package logic

import (
	"math"
	"time"
)

// StepDetector finds trough-then-peak oscillations in the magnitude history.
type StepDetector struct {
	lastStep time.Time // zero until the first accepted step
}

// Evaluate reports whether the newest history entry is a step at time now.
// Every rejected gate is a silent no-op; only an accepted step updates state.
func (d *StepDetector) Evaluate(history []float64, now time.Time, cfg DetectionConfig) bool {
	n := len(history)
	if n < HistorySize {
		return false
	}

	if !d.lastStep.IsZero() && now.Sub(d.lastStep) <= cfg.MinStepInterval {
		return false
	}

	window := history[n-WindowSize:]
	current := window[len(window)-1]
	if current <= cfg.StepThreshold {
		return false
	}

	// Local maximum; ties pass
	for _, v := range window[:len(window)-1] {
		if v > current {
			return false
		}
	}

	// The three entries before the two most recent must dip below the valley line
	valley := history[n-WindowSize : n-2]
	if minOf(valley) >= cfg.StepThreshold*valleyRatio {
		return false
	}

	d.lastStep = now
	return true
}

// LastStep returns the time of the last accepted step (zero if none).
func (d *StepDetector) LastStep() time.Time {
	return d.lastStep
}

// Reset forgets the last accepted step.
func (d *StepDetector) Reset() {
	d.lastStep = time.Time{}
}

// FloorDetector looks for sustained elevated motion with a strong vertical component.
type FloorDetector struct {
	lastFloor time.Time
}

// Evaluate reports whether the current sample completes a floor climb.
// vertical is |z| of the raw current sample.
func (d *FloorDetector) Evaluate(history []float64, vertical float64, now time.Time, cfg DetectionConfig) bool {
	n := len(history)
	if n < HistorySize {
		return false
	}

	if !d.lastFloor.IsZero() && now.Sub(d.lastFloor) <= cfg.MinFloorInterval {
		return false
	}

	if vertical <= cfg.FloorThreshold {
		return false
	}

	limit := cfg.FloorThreshold * floorSustainRatio
	for _, v := range history[n-WindowSize:] {
		if v <= limit {
			return false
		}
	}

	d.lastFloor = now
	return true
}

// LastFloor returns the time of the last accepted floor climb (zero if none).
func (d *FloorDetector) LastFloor() time.Time {
	return d.lastFloor
}

// Reset forgets the last accepted floor climb.
func (d *FloorDetector) Reset() {
	d.lastFloor = time.Time{}
}

func minOf(values []float64) float64 {
	m := math.Inf(1)
	for _, v := range values {
		if v < m {
			m = v
		}
	}
	return m
}
