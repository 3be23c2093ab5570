package logic

import "time"

// Engine runs the conditioner and both detectors over a sample stream and
// accumulates the counters. Not safe for concurrent use; the caller must
// serialize all access.
type Engine struct {
	cond         *Conditioner
	step         StepDetector
	floor        FloorDetector
	cal          Calibration
	floorEnabled bool
	counts       Counts
}

// NewEngine creates an engine with the given calibration.
// floorEnabled is fixed for the lifetime of the engine.
func NewEngine(cal Calibration, floorEnabled bool) *Engine {
	return &Engine{
		cond:         NewConditioner(DefaultAlpha),
		cal:          cal,
		floorEnabled: floorEnabled,
	}
}

// Process conditions a sample and returns any step or floor events it completes.
// The counters are updated before the events are returned.
func (e *Engine) Process(s Sample) []Event {
	e.cond.Push(s)
	history := e.cond.History().Values()

	var events []Event

	if e.step.Evaluate(history, s.Time, e.cal.Config) {
		inc := e.cal.Increment()
		e.counts.Steps += inc
		events = append(events, Event{
			Timestamp: s.Time,
			Type:      EventStep,
			Increment: inc,
		})
	}

	if e.floorEnabled {
		vertical := s.Accel.Z
		if vertical < 0 {
			vertical = -vertical
		}
		if e.floor.Evaluate(history, vertical, s.Time, e.cal.Config) {
			e.counts.Floors++
			events = append(events, Event{
				Timestamp: s.Time,
				Type:      EventFloor,
				Increment: 1,
			})
		}
	}

	// Events carry the totals after both detectors ran on this sample
	for i := range events {
		events[i].Counts = e.counts
	}

	return events
}

// Reset zeroes the counters and clears all detection state for a new session.
func (e *Engine) Reset() {
	e.counts = Counts{}
	e.cond.Reset()
	e.step.Reset()
	e.floor.Reset()
}

// ResetSteps zeroes the step counter only.
func (e *Engine) ResetSteps() {
	e.counts.Steps = 0
}

// ResetFloors zeroes the floor counter only.
func (e *Engine) ResetFloors() {
	e.counts.Floors = 0
}

// StartCalibration prepares for a known-distance walk: zero steps, forget
// the last step and clear the history.
func (e *Engine) StartCalibration() {
	e.counts.Steps = 0
	e.step.Reset()
	e.cond.History().Clear()
}

// CalibrateWithKnown derives a new factor from a user-counted number of steps.
// It is a no-op returning false unless both knownSteps and the current step
// count are positive. On success the step counter is overwritten with
// knownSteps; the factor only scales future increments.
func (e *Engine) CalibrateWithKnown(knownSteps int64) (float64, bool) {
	if knownSteps <= 0 || e.counts.Steps == 0 {
		return e.cal.Factor, false
	}
	e.cal.Factor = float64(knownSteps) / float64(e.counts.Steps)
	e.counts.Steps = uint64(knownSteps)
	return e.cal.Factor, true
}

// ApplyPreset switches to a sensitivity preset.
func (e *Engine) ApplyPreset(s Sensitivity) {
	e.cal.ApplyPreset(s)
}

// SetSensitivityDirect overrides the step threshold and refractory interval.
func (e *Engine) SetSensitivityDirect(threshold float64, minInterval time.Duration) bool {
	return e.cal.SetSensitivityDirect(threshold, minInterval)
}

// SetFactor replaces the calibration factor. Non-positive values are ignored.
func (e *Engine) SetFactor(f float64) {
	if f > 0 {
		e.cal.Factor = f
	}
}

// SetCounts overwrites the counters. Used when an external pedometer supplies totals.
func (e *Engine) SetCounts(c Counts) {
	e.counts = c
}

// Counts returns the current totals.
func (e *Engine) Counts() Counts {
	return e.counts
}

// Calibration returns the current calibration.
func (e *Engine) Calibration() Calibration {
	return e.cal
}

// FloorTracking reports whether floor detection runs in this engine.
func (e *Engine) FloorTracking() bool {
	return e.floorEnabled
}

// LastStep returns the time of the last accepted step (zero if none).
func (e *Engine) LastStep() time.Time {
	return e.step.LastStep()
}

// LastFloor returns the time of the last accepted floor climb (zero if none).
func (e *Engine) LastFloor() time.Time {
	return e.floor.LastFloor()
}

// HistoryLen returns the number of magnitudes currently held.
func (e *Engine) HistoryLen() int {
	return e.cond.History().Len()
}
