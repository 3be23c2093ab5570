// Package sink adapts tracker notifications to the downstream consumers:
// haptic feedback, MQTT event and progress publishing, and status updates.
package sink

import (
	"log"
	"sync"

	"github.com/sweeney/step-sensor/internal/haptic"
	"github.com/sweeney/step-sensor/internal/logic"
	"github.com/sweeney/step-sensor/internal/mqtt"
	"github.com/sweeney/step-sensor/internal/tracker"
)

// Async runs a listener on its own goroutine so that slow hardware or
// network I/O never holds up detection. Notifications arriving while the
// queue is full are dropped.
type Async struct {
	name  string
	queue chan tracker.Notification
	done  chan struct{}

	mu      sync.Mutex
	closed  bool
	dropped int
}

// NewAsync starts a goroutine delivering queued notifications to l.
func NewAsync(name string, size int, l tracker.Listener) *Async {
	a := &Async{
		name:  name,
		queue: make(chan tracker.Notification, size),
		done:  make(chan struct{}),
	}
	go func() {
		defer close(a.done)
		for n := range a.queue {
			l(n)
		}
	}()
	return a
}

// Notify queues n without blocking. It satisfies tracker.Listener.
func (a *Async) Notify(n tracker.Notification) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- n:
		if a.dropped > 0 {
			log.Printf("sink: %s caught up after dropping %d notifications", a.name, a.dropped)
			a.dropped = 0
		}
	default:
		if a.dropped == 0 {
			log.Printf("sink: %s queue full, dropping notifications", a.name)
		}
		a.dropped++
	}
}

// Close stops accepting notifications and waits until the queue is drained.
func (a *Async) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()
	<-a.done
}

// Haptics pulses lightly for each step and heavily for each floor.
func Haptics(act haptic.Actuator) tracker.Listener {
	failing := false
	return func(n tracker.Notification) {
		var i haptic.Intensity
		switch n.Kind {
		case tracker.KindStep:
			i = haptic.Light
		case tracker.KindFloor:
			i = haptic.Heavy
		default:
			return
		}
		if err := act.Pulse(i); err != nil {
			if !failing {
				log.Printf("sink: haptic pulse failed: %v", err)
				failing = true
			}
			return
		}
		failing = false
	}
}

// Progress publishes detected events and, whenever the totals change, a
// goal-progress update. goal is read on every publish so that goal changes
// apply immediately.
func Progress(pub mqtt.Publisher, goal func() int) tracker.Listener {
	var (
		last      logic.Counts
		published bool
	)
	return func(n tracker.Notification) {
		switch n.Kind {
		case tracker.KindStep, tracker.KindFloor:
			event := logic.Event{
				Timestamp: n.Time,
				Type:      logic.EventType(n.Kind),
				Increment: n.Increment,
				Counts:    n.Counts,
			}
			if err := pub.Publish(event); err != nil {
				log.Printf("sink: publish %s: %v", n.Kind, err)
			}
		}

		if published && n.Counts == last {
			return
		}
		p := mqtt.Progress{Timestamp: n.Time, Counts: n.Counts, Goal: goal()}
		if err := pub.PublishProgress(p); err != nil {
			log.Printf("sink: publish progress: %v", err)
			return
		}
		last = n.Counts
		published = true
	}
}
