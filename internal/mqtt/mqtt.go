// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/step-sensor/internal/logic"
)

// TopicEvents is the MQTT topic for individual step and floor events.
const TopicEvents = "fitness/steps/events"

// TopicProgress is the MQTT topic for goal progress updates.
const TopicProgress = "fitness/steps/progress"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "fitness/steps/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a step or floor event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishProgress sends the current totals measured against the goal.
	PublishProgress(p Progress) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Progress is a goal-progress update.
type Progress struct {
	Timestamp time.Time
	Counts    logic.Counts
	Goal      int
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload is the MQTT message payload for a step or floor event.
type Payload struct {
	Motion MotionPayload `json:"motion"`
}

// MotionPayload contains the event details.
type MotionPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Increment uint64 `json:"increment"`
	Steps     uint64 `json:"steps"`
	Floors    uint64 `json:"floors"`
}

// FormatPayload creates the JSON payload for a step or floor event.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		Motion: MotionPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
			Event:     string(event.Type),
			Increment: event.Increment,
			Steps:     event.Counts.Steps,
			Floors:    event.Counts.Floors,
		},
	}
	return json.Marshal(payload)
}

// ProgressPayload is the MQTT message payload for goal progress.
type ProgressPayload struct {
	Progress ProgressInner `json:"progress"`
}

// ProgressInner contains the goal progress details.
type ProgressInner struct {
	Timestamp string  `json:"timestamp"`
	Steps     uint64  `json:"steps"`
	Floors    uint64  `json:"floors"`
	Goal      int     `json:"goal"`
	Percent   float64 `json:"percent"`
}

// FormatProgressPayload creates the JSON payload for a progress update.
// Percent is rounded to one decimal and is 0 when no goal is set.
func FormatProgressPayload(p Progress) ([]byte, error) {
	var pct float64
	if p.Goal > 0 {
		pct = math.Round(float64(p.Counts.Steps)*1000/float64(p.Goal)) / 10
	}
	payload := ProgressPayload{
		Progress: ProgressInner{
			Timestamp: p.Timestamp.UTC().Format(time.RFC3339),
			Steps:     p.Counts.Steps,
			Floors:    p.Counts.Floors,
			Goal:      p.Goal,
			Percent:   pct,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
