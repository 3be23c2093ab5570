// Package motion provides accelerometer sample sources.
// The real implementations read an MPU9250 over SPI, an MQTT topic, or a
// serial accelerometer bridge. The fake implementation allows testing without
// hardware.
package motion

import "github.com/sweeney/step-sensor/internal/logic"

// Source delivers accelerometer samples in arrival order.
type Source interface {
	// Available reports whether the source can produce samples.
	// An unavailable source keeps detection inert; it is not an error.
	Available() bool

	// Start begins delivery. The returned channel is never closed by the
	// source; consumers stop reading after calling Stop.
	Start() (<-chan logic.Sample, error)

	// Stop ends delivery. Safe to call more than once.
	Stop() error
}

// DefaultBuffer is the channel capacity used by the real sources.
const DefaultBuffer = 64
