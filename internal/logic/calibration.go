package logic

import (
	"math"
	"time"
)

// Calibration is the learned step factor together with the active detection parameters.
// It outlives tracking sessions.
type Calibration struct {
	Factor      float64
	Sensitivity Sensitivity
	Config      DetectionConfig
}

// NewCalibration returns the calibration for a sensitivity preset and factor.
// A non-positive factor is replaced by 1.0.
func NewCalibration(s Sensitivity, factor float64) Calibration {
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		factor = defaultCalibration
	}
	return Calibration{
		Factor:      factor,
		Sensitivity: s,
		Config:      Preset(s),
	}
}

// ApplyPreset replaces the step threshold, step interval and floor threshold in one assignment.
func (c *Calibration) ApplyPreset(s Sensitivity) {
	cfg := Preset(s)
	cfg.MinFloorInterval = c.Config.MinFloorInterval
	if cfg.MinFloorInterval == 0 {
		cfg.MinFloorInterval = DefaultMinFloorInterval
	}
	c.Sensitivity = s
	c.Config = cfg
}

// ValidThreshold reports whether v can serve as a detection threshold:
// positive and finite.
func ValidThreshold(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

// SetSensitivityDirect overrides the step threshold and interval together, bypassing presets.
// It changes nothing and reports false for an invalid threshold or a negative interval.
func (c *Calibration) SetSensitivityDirect(threshold float64, minInterval time.Duration) bool {
	if !ValidThreshold(threshold) || minInterval < 0 {
		return false
	}
	cfg := c.Config
	cfg.StepThreshold = threshold
	cfg.MinStepInterval = minInterval
	c.Config = cfg
	return true
}

// Increment is the number of steps credited per detected step event.
// Any factor below 1.5 rounds to an increment of 1.
func (c Calibration) Increment() uint64 {
	inc := math.Round(1.0 * c.Factor)
	if inc < 1 {
		return 1
	}
	return uint64(inc)
}
