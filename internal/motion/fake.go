package motion

import (
	"errors"
	"sync"

	"github.com/sweeney/step-sensor/internal/logic"
)

// FakeSource is a test double that hands samples to the consumer one at a time.
type FakeSource struct {
	// Unavailable makes Available return false.
	Unavailable bool

	// StartError, if set, will be returned by Start.
	StartError error

	mu      sync.Mutex
	ch      chan logic.Sample
	done    chan struct{}
	starts  int
	stops   int
	running bool
}

// NewFakeSource creates an available FakeSource.
func NewFakeSource() *FakeSource {
	return &FakeSource{}
}

// Available reports whether the fake is configured as available.
func (f *FakeSource) Available() bool {
	return !f.Unavailable
}

// Start opens a new unbuffered delivery channel.
func (f *FakeSource) Start() (<-chan logic.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StartError != nil {
		return nil, f.StartError
	}
	if f.running {
		return nil, errors.New("fake source already started")
	}
	f.ch = make(chan logic.Sample)
	f.done = make(chan struct{})
	f.running = true
	f.starts++
	return f.ch, nil
}

// Emit blocks until the consumer receives s. Returns false if the source is
// not running or is stopped while waiting.
func (f *FakeSource) Emit(s logic.Sample) bool {
	f.mu.Lock()
	ch, done, running := f.ch, f.done, f.running
	f.mu.Unlock()
	if !running {
		return false
	}

	select {
	case ch <- s:
		return true
	case <-done:
		return false
	}
}

// Stop ends delivery and releases any blocked Emit.
func (f *FakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if f.running {
		close(f.done)
		f.running = false
	}
	return nil
}

// Running reports whether Start has been called without a matching Stop.
func (f *FakeSource) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// Calls returns the number of Start and Stop calls.
func (f *FakeSource) Calls() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}
