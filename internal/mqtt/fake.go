package mqtt

import (
	"sync"

	"github.com/sweeney/step-sensor/internal/logic"
)

// FakePublisher records published events for test assertions.
// Safe for concurrent use; read the recorded slices through the accessor methods
// when a publish may still be in flight.
type FakePublisher struct {
	mu sync.Mutex

	// Events contains all step and floor events that were published.
	Events []logic.Event

	// Progress contains all progress updates that were published.
	Progress []Progress

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// Payloads contains the JSON payloads that were published, in order.
	Payloads [][]byte

	// PublishError, if set, will be returned by Publish and PublishProgress.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records the event.
func (f *FakePublisher) Publish(event logic.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatPayload(event)
	if err != nil {
		return err
	}
	f.Events = append(f.Events, event)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishProgress records the progress update.
func (f *FakePublisher) PublishProgress(p Progress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatProgressPayload(p)
	if err != nil {
		return err
	}
	f.Progress = append(f.Progress, p)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// EventsSnapshot returns a copy of the recorded events.
func (f *FakePublisher) EventsSnapshot() []logic.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]logic.Event(nil), f.Events...)
}

// ProgressSnapshot returns a copy of the recorded progress updates.
func (f *FakePublisher) ProgressSnapshot() []Progress {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Progress(nil), f.Progress...)
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Events = nil
	f.Progress = nil
	f.SystemEvents = nil
	f.Payloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
