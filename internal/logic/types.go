// Package logic contains the pure step and floor detection engine.
// This package has NO external dependencies (no sensors, MQTT, OS, or time.Sleep).
// Time always comes from the sample being processed.
package logic

import (
	"fmt"
	"strings"
	"time"
)

// Vector is a 3-axis acceleration reading in g.
type Vector struct {
	X float64
	Y float64
	Z float64
}

// Sample is a single accelerometer reading.
type Sample struct {
	Time  time.Time
	Accel Vector
	// GravityRemoved is set when Accel is user acceleration (gravity already subtracted).
	GravityRemoved bool
}

// EventType identifies a detected motion event.
type EventType string

const (
	EventStep  EventType = "STEP"
	EventFloor EventType = "FLOOR"
)

// Counts holds the step and floor totals of a session.
type Counts struct {
	Steps  uint64
	Floors uint64
}

// Event is emitted when a step or floor climb is accepted.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Increment uint64 // amount added to the counter
	Counts    Counts // totals after the increment
}

// Sensitivity selects a detection preset.
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "LOW"
	SensitivityMedium Sensitivity = "MEDIUM"
	SensitivityHigh   Sensitivity = "HIGH"
)

// ParseSensitivity accepts LOW, MEDIUM or HIGH in any case.
func ParseSensitivity(s string) (Sensitivity, error) {
	switch v := Sensitivity(strings.ToUpper(strings.TrimSpace(s))); v {
	case SensitivityLow, SensitivityMedium, SensitivityHigh:
		return v, nil
	default:
		return "", fmt.Errorf("unknown sensitivity %q (want LOW, MEDIUM or HIGH)", s)
	}
}

// DetectionConfig holds the thresholds and refractory periods used by both detectors.
type DetectionConfig struct {
	StepThreshold    float64
	MinStepInterval  time.Duration
	FloorThreshold   float64
	MinFloorInterval time.Duration
}

const (
	// HistorySize is the capacity of the magnitude history.
	HistorySize = 10
	// WindowSize is the number of recent entries inspected for peaks and sustained motion.
	WindowSize = 5
	// DefaultAlpha is the exponential smoothing weight of the newest magnitude.
	DefaultAlpha = 0.1

	// DefaultMinFloorInterval is the floor refractory period; presets do not change it.
	DefaultMinFloorInterval = 2 * time.Second

	valleyRatio        = 0.7
	floorSustainRatio  = 0.8
	defaultCalibration = 1.0
)

// presets maps each sensitivity to its step and floor parameters.
var presets = map[Sensitivity]DetectionConfig{
	SensitivityLow: {
		StepThreshold:    1.5,
		MinStepInterval:  400 * time.Millisecond,
		FloorThreshold:   2.5,
		MinFloorInterval: DefaultMinFloorInterval,
	},
	SensitivityMedium: {
		StepThreshold:    1.2,
		MinStepInterval:  300 * time.Millisecond,
		FloorThreshold:   2.0,
		MinFloorInterval: DefaultMinFloorInterval,
	},
	SensitivityHigh: {
		StepThreshold:    0.9,
		MinStepInterval:  200 * time.Millisecond,
		FloorThreshold:   1.5,
		MinFloorInterval: DefaultMinFloorInterval,
	},
}

// Preset returns the detection parameters for s. Unknown values fall back to MEDIUM.
func Preset(s Sensitivity) DetectionConfig {
	if cfg, ok := presets[s]; ok {
		return cfg
	}
	return presets[SensitivityMedium]
}
