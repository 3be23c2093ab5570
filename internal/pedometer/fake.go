package pedometer

import (
	"errors"
	"sync"
)

// FakeService is a test double for Service.
type FakeService struct {
	// Unavailable makes Available return false.
	Unavailable bool

	// StartError, if set, will be returned by Start.
	StartError error

	mu      sync.Mutex
	ch      chan Update
	done    chan struct{}
	running bool
	starts  int
}

// NewFakeService creates an available FakeService.
func NewFakeService() *FakeService {
	return &FakeService{}
}

// Available reports whether the fake is configured as available.
func (f *FakeService) Available() bool {
	return !f.Unavailable
}

// Start opens a new unbuffered delivery channel.
func (f *FakeService) Start() (<-chan Update, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StartError != nil {
		return nil, f.StartError
	}
	if f.running {
		return nil, errors.New("fake pedometer already started")
	}
	f.ch = make(chan Update)
	f.done = make(chan struct{})
	f.running = true
	f.starts++
	return f.ch, nil
}

// Emit blocks until the consumer receives u. Returns false if the service
// is not running or is stopped while waiting.
func (f *FakeService) Emit(u Update) bool {
	f.mu.Lock()
	ch, done, running := f.ch, f.done, f.running
	f.mu.Unlock()
	if !running {
		return false
	}

	select {
	case ch <- u:
		return true
	case <-done:
		return false
	}
}

// Stop ends delivery.
func (f *FakeService) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		close(f.done)
		f.running = false
	}
	return nil
}

// Running reports whether Start has been called without a matching Stop.
func (f *FakeService) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// Starts returns the number of successful Start calls.
func (f *FakeService) Starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}
