//go:build !linux

package haptic

import "errors"

// GPIOActuator is not available on non-Linux platforms.
type GPIOActuator struct{}

// NewGPIOActuator returns an error on non-Linux platforms.
func NewGPIOActuator(pin int) (*GPIOActuator, error) {
	return nil, errors.New("haptic: not supported on this platform (requires Linux)")
}

// Pulse is not implemented on non-Linux platforms.
func (a *GPIOActuator) Pulse(Intensity) error {
	return errors.New("haptic: not supported")
}

// Close is not implemented on non-Linux platforms.
func (a *GPIOActuator) Close() error {
	return nil
}
