package haptic

import "sync"

// FakeActuator records pulses.
type FakeActuator struct {
	mu     sync.Mutex
	pulses []Intensity

	// PulseError, if set, will be returned by Pulse
	PulseError error

	// Closed tracks if Close was called
	Closed bool
}

// NewFakeActuator creates a FakeActuator.
func NewFakeActuator() *FakeActuator {
	return &FakeActuator{}
}

// Pulse records the intensity.
func (f *FakeActuator) Pulse(i Intensity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PulseError != nil {
		return f.PulseError
	}
	f.pulses = append(f.pulses, i)
	return nil
}

// Pulses returns a copy of the recorded pulses.
func (f *FakeActuator) Pulses() []Intensity {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Intensity, len(f.pulses))
	copy(out, f.pulses)
	return out
}

// Close marks the actuator as closed.
func (f *FakeActuator) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
