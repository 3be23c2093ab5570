package status

import (
	"encoding/json"
	"math"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string          `json:"event,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	Tracking      bool            `json:"tracking"`
	Calibrating   bool            `json:"calibrating"`
	Source        string          `json:"source"`
	Steps         uint64          `json:"steps"`
	Floors        uint64          `json:"floors"`
	Goal          GoalJSON        `json:"goal"`
	LastStep      string          `json:"last_step,omitempty"`
	LastFloor     string          `json:"last_floor,omitempty"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	StartTime     string          `json:"start_time"`
	Timestamp     string          `json:"timestamp"`
	MQTT          MQTTStatus      `json:"mqtt"`
	Calibration   CalibrationJSON `json:"calibration"`
	Config        ConfigJSON      `json:"config"`
}

// GoalJSON reports progress toward the daily step goal.
type GoalJSON struct {
	Steps   int     `json:"steps"`
	Percent float64 `json:"percent"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CalibrationJSON is the JSON representation of the detection parameters.
type CalibrationJSON struct {
	Sensitivity        string  `json:"sensitivity"`
	Factor             float64 `json:"factor"`
	StepThreshold      float64 `json:"step_threshold"`
	MinStepIntervalMs  int64   `json:"min_step_interval_ms"`
	FloorThreshold     float64 `json:"floor_threshold"`
	MinFloorIntervalMs int64   `json:"min_floor_interval_ms"`
	FloorTracking      bool    `json:"floor_tracking"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	SampleMs        int64  `json:"sample_ms"`
	HeartbeatMs     int64  `json:"heartbeat_ms"`
	Broker          string `json:"broker"`
	HTTPAddr        string `json:"http_addr"`
	Source          string `json:"source"`
	PreferPedometer bool   `json:"prefer_pedometer"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func buildInner(snap Snapshot) StatusInner {
	cal := snap.Calibration
	return StatusInner{
		Tracking:    snap.Tracking,
		Calibrating: snap.Calibrating,
		Source:      snap.Source.String(),
		Steps:       snap.Counts.Steps,
		Floors:      snap.Counts.Floors,
		Goal: GoalJSON{
			Steps:   snap.StepGoal,
			Percent: math.Round(snap.GoalPercent()*10) / 10,
		},
		LastStep:      formatTime(snap.LastStep),
		LastFloor:     formatTime(snap.LastFloor),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Calibration: CalibrationJSON{
			Sensitivity:        string(cal.Sensitivity),
			Factor:             cal.Factor,
			StepThreshold:      cal.Config.StepThreshold,
			MinStepIntervalMs:  cal.Config.MinStepInterval.Milliseconds(),
			FloorThreshold:     cal.Config.FloorThreshold,
			MinFloorIntervalMs: cal.Config.MinFloorInterval.Milliseconds(),
			FloorTracking:      snap.FloorTracking,
		},
		Config: ConfigJSON{
			SampleMs:        snap.Config.SampleMs,
			HeartbeatMs:     snap.Config.HeartbeatMs,
			Broker:          snap.Config.Broker,
			HTTPAddr:        snap.Config.HTTPAddr,
			Source:          snap.Config.Source,
			PreferPedometer: snap.Config.PreferPedometer,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
