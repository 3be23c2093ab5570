// Package status provides a thread-safe status tracker for the step-sensor daemon.
// It is read by the HTTP handlers and the heartbeat.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/step-sensor/internal/logic"
	"github.com/sweeney/step-sensor/internal/tracker"
)

// Config contains daemon configuration for display.
type Config struct {
	SampleMs        int64
	HeartbeatMs     int64
	Broker          string
	HTTPAddr        string
	Source          string // requested sample source flag
	PreferPedometer bool
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Tracking      bool
	Calibrating   bool
	Source        tracker.SourceKind
	Counts        logic.Counts
	Calibration   logic.Calibration
	FloorTracking bool
	StepGoal      int
	LastStep      time.Time
	LastFloor     time.Time
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// GoalPercent is progress toward the step goal, 0 when no goal is set.
func (s Snapshot) GoalPercent() float64 {
	if s.StepGoal <= 0 {
		return 0
	}
	return float64(s.Counts.Steps) * 100 / float64(s.StepGoal)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update copies session state from a tracker snapshot.
func (t *Tracker) Update(s tracker.Snapshot) {
	t.mu.Lock()
	t.snap.Tracking = s.Tracking
	t.snap.Calibrating = s.Calibrating
	t.snap.Source = s.Source
	t.snap.Counts = s.Counts
	t.snap.Calibration = s.Calibration
	t.snap.FloorTracking = s.FloorTracking
	t.snap.LastStep = s.LastStep
	t.snap.LastFloor = s.LastFloor
	t.mu.Unlock()
}

// Notify records the counts carried by a notification. It never blocks on
// I/O and is registered directly as a tracker listener.
func (t *Tracker) Notify(n tracker.Notification) {
	t.mu.Lock()
	t.snap.Counts = n.Counts
	switch n.Kind {
	case tracker.KindStep:
		t.snap.LastStep = n.Time
	case tracker.KindFloor:
		t.snap.LastFloor = n.Time
	}
	t.mu.Unlock()
}

// SetStepGoal sets the daily step goal.
func (t *Tracker) SetStepGoal(goal int) {
	t.mu.Lock()
	t.snap.StepGoal = goal
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
