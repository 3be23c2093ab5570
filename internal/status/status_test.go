package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/step-sensor/internal/logic"
	"github.com/sweeney/step-sensor/internal/tracker"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestNewTracker(t *testing.T) {
	cfg := Config{SampleMs: 100, Broker: "tcp://localhost:1883", HTTPAddr: ":80"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.SampleMs != 100 {
		t.Errorf("Config.SampleMs: got %d, want 100", snap.Config.SampleMs)
	}
	if snap.Tracking {
		t.Error("expected Tracking=false initially")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestUpdateAndSnapshot(t *testing.T) {
	tr := NewTracker(start, Config{})

	tr.Update(tracker.Snapshot{
		Tracking:      true,
		Source:        tracker.SourceMotion,
		Counts:        logic.Counts{Steps: 12, Floors: 1},
		Calibration:   logic.NewCalibration(logic.SensitivityHigh, 1.2),
		FloorTracking: true,
	})

	snap := tr.Snapshot()
	if !snap.Tracking || snap.Source != tracker.SourceMotion {
		t.Errorf("session: tracking=%v source=%v", snap.Tracking, snap.Source)
	}
	if snap.Counts != (logic.Counts{Steps: 12, Floors: 1}) {
		t.Errorf("Counts: got %+v", snap.Counts)
	}
	if snap.Calibration.Sensitivity != logic.SensitivityHigh {
		t.Errorf("Sensitivity: got %q", snap.Calibration.Sensitivity)
	}
}

func TestNotify(t *testing.T) {
	tr := NewTracker(start, Config{})
	at := start.Add(time.Minute)

	tr.Notify(tracker.Notification{Time: at, Kind: tracker.KindStep, Counts: logic.Counts{Steps: 3}})
	tr.Notify(tracker.Notification{Time: at.Add(time.Second), Kind: tracker.KindCounts, Counts: logic.Counts{Steps: 0}})

	snap := tr.Snapshot()
	if snap.Counts.Steps != 0 {
		t.Errorf("Steps: got %d, want 0", snap.Counts.Steps)
	}
	if !snap.LastStep.Equal(at) {
		t.Errorf("LastStep: got %v, want %v", snap.LastStep, at)
	}
	if !snap.LastFloor.IsZero() {
		t.Errorf("LastFloor: got %v, want zero", snap.LastFloor)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(start, Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestGoalPercent(t *testing.T) {
	tests := []struct {
		steps uint64
		goal  int
		want  float64
	}{
		{0, 10000, 0},
		{2500, 10000, 25},
		{15000, 10000, 150},
		{100, 0, 0},
	}
	for _, tt := range tests {
		snap := Snapshot{Counts: logic.Counts{Steps: tt.steps}, StepGoal: tt.goal}
		if got := snap.GoalPercent(); got != tt.want {
			t.Errorf("steps=%d goal=%d: got %v, want %v", tt.steps, tt.goal, got, tt.want)
		}
	}
}

func TestSnapshotUptime(t *testing.T) {
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
	}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(start, Config{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(start, Config{})
	tr.Notify(tracker.Notification{Kind: tracker.KindStep, Counts: logic.Counts{Steps: 1}})

	snap1 := tr.Snapshot()
	tr.Notify(tracker.Notification{Kind: tracker.KindStep, Counts: logic.Counts{Steps: 2}})

	if snap1.Counts.Steps != 1 {
		t.Error("snapshot should be a copy; Steps was modified")
	}
}

func TestFormatJSON(t *testing.T) {
	snap := Snapshot{
		Tracking:      true,
		Source:        tracker.SourceMotion,
		Counts:        logic.Counts{Steps: 2500, Floors: 3},
		Calibration:   logic.NewCalibration(logic.SensitivityMedium, 1.0),
		FloorTracking: true,
		StepGoal:      10000,
		LastStep:      start.Add(14 * time.Minute),
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config:        Config{SampleMs: 100, HeartbeatMs: 900000, Broker: "tcp://localhost:1883", HTTPAddr: ":80", Source: "imu"},
	}

	data := FormatJSON(snap)

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	s := parsed.Status
	if !s.Tracking || s.Source != "motion" {
		t.Errorf("session: tracking=%v source=%q", s.Tracking, s.Source)
	}
	if s.Steps != 2500 || s.Floors != 3 {
		t.Errorf("counts: steps=%d floors=%d", s.Steps, s.Floors)
	}
	if s.Goal.Steps != 10000 || s.Goal.Percent != 25 {
		t.Errorf("goal: %+v", s.Goal)
	}
	if s.LastStep != "2026-01-01T00:14:00Z" {
		t.Errorf("LastStep: got %q", s.LastStep)
	}
	if s.LastFloor != "" {
		t.Errorf("LastFloor: got %q, want empty", s.LastFloor)
	}
	if s.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", s.UptimeSeconds)
	}
	if !s.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	want := CalibrationJSON{
		Sensitivity:        "MEDIUM",
		Factor:             1.0,
		StepThreshold:      1.2,
		MinStepIntervalMs:  300,
		FloorThreshold:     2.0,
		MinFloorIntervalMs: 2000,
		FloorTracking:      true,
	}
	if s.Calibration != want {
		t.Errorf("Calibration: got %+v, want %+v", s.Calibration, want)
	}
	if s.Config.Source != "imu" {
		t.Errorf("Config.Source: got %q", s.Config.Source)
	}
	// Event and Reason should be omitted
	if s.Event != "" || s.Reason != "" {
		t.Errorf("expected empty Event/Reason for web format, got %q/%q", s.Event, s.Reason)
	}
}

func TestFormatStatusEvent(t *testing.T) {
	snap := Snapshot{
		Counts:    logic.Counts{Steps: 3},
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
		Config:    Config{Broker: "tcp://localhost:1883"},
	}

	data := FormatStatusEvent(snap, "HEARTBEAT", "")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "HEARTBEAT" {
		t.Errorf("Event: got %q, want HEARTBEAT", parsed.Status.Event)
	}
	if parsed.Status.Steps != 3 {
		t.Errorf("Steps: got %d, want 3", parsed.Status.Steps)
	}
	if parsed.Status.Source != "none" {
		t.Errorf("Source: got %q, want none", parsed.Status.Source)
	}
}

func TestFormatStatusEventShutdown(t *testing.T) {
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(30 * time.Minute),
	}

	data := FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "SHUTDOWN" {
		t.Errorf("Event: got %q, want SHUTDOWN", parsed.Status.Event)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q, want SIGTERM", parsed.Status.Reason)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(time.Second),
	}

	data := FormatStatusEvent(snap, "STARTUP", "")

	// Verify "reason" is not in the raw JSON output
	var raw map[string]interface{}
	json.Unmarshal(data, &raw)
	status := raw["status"].(map[string]interface{})
	if _, exists := status["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if status["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", status["event"])
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup

	// Writer
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.Notify(tracker.Notification{Kind: tracker.KindStep, Counts: logic.Counts{Steps: uint64(i)}})
			tr.SetMQTTConnected(i%2 == 0)
			tr.SetStepGoal(i)
		}
	}()

	// Reader
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = snap.Uptime()
			_ = snap.GoalPercent()
		}
	}()

	wg.Wait()
}
