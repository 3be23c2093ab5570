//go:build linux

package haptic

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// output is the subset of *gpiocdev.Line used to drive the motor.
type output interface {
	SetValue(int) error
	Reconfigure(...gpiocdev.LineConfigOption) error
	Close() error
}

// GPIOActuator drives a vibration motor through a GPIO output line.
type GPIOActuator struct {
	chip *gpiocdev.Chip
	line output

	mu     sync.Mutex
	timer  *time.Timer
	gen    uint64 // pulse generation; only the latest pulse's timer may turn the motor off
	closed bool
}

// NewGPIOActuator requests pin on gpiochip0 as an output driven low.
func NewGPIOActuator(pin int) (*GPIOActuator, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	line, err := chip.RequestLine(pin, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request motor pin %d: %w", pin, err)
	}

	return &GPIOActuator{chip: chip, line: line}, nil
}

// Pulse drives the line high and schedules it low again.
func (a *GPIOActuator) Pulse(i Intensity) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errors.New("haptic: closed")
	}

	if err := a.line.SetValue(1); err != nil {
		return fmt.Errorf("motor on: %w", err)
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	a.gen++
	gen := a.gen
	a.timer = time.AfterFunc(i.Duration(), func() { a.off(gen) })
	return nil
}

// off drives the line low unless a newer pulse has started since gen.
// Stop does not cancel a timer whose function is already running.
func (a *GPIOActuator) off(gen uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || gen != a.gen {
		return
	}
	a.line.SetValue(0)
}

// Close turns the motor off and returns the pin to an input with pull-down,
// matching Pi boot defaults.
func (a *GPIOActuator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if a.timer != nil {
		a.timer.Stop()
	}

	var errs []error
	if a.line != nil {
		if err := a.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("motor off: %w", err))
		}
		if err := a.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure motor pin: %w", err))
		}
		if err := a.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close motor pin: %w", err))
		}
	}
	if a.chip != nil {
		if err := a.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
