// Package haptic drives a vibration motor for step and floor feedback.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package haptic

import "time"

// Intensity selects the pulse length.
type Intensity int

const (
	Light Intensity = iota // one step
	Heavy                  // one floor
)

func (i Intensity) String() string {
	switch i {
	case Light:
		return "light"
	case Heavy:
		return "heavy"
	default:
		return "unknown"
	}
}

// Duration is how long the motor runs for a pulse of this intensity.
func (i Intensity) Duration() time.Duration {
	if i == Heavy {
		return 150 * time.Millisecond
	}
	return 40 * time.Millisecond
}

// Actuator produces haptic pulses.
type Actuator interface {
	// Pulse starts a pulse and returns without waiting for it to end.
	// A pulse issued while another is running restarts the timer.
	Pulse(Intensity) error

	// Close stops the motor and releases resources.
	Close() error
}

// DefaultPin is the BCM pin driving the motor transistor.
const DefaultPin = 12
