package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/sweeney/step-sensor/internal/logic"
)

func TestFormatPayload(t *testing.T) {
	event := logic.Event{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 500_000_000, time.UTC),
		Type:      logic.EventStep,
		Increment: 2,
		Counts:    logic.Counts{Steps: 42, Floors: 3},
	}

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	want := MotionPayload{
		Timestamp: "2026-02-02T22:18:12.5Z",
		Event:     "STEP",
		Increment: 2,
		Steps:     42,
		Floors:    3,
	}
	if diff := cmp.Diff(want, parsed.Motion); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatPayloadExactJSON(t *testing.T) {
	event := logic.Event{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Type:      logic.EventFloor,
		Increment: 1,
		Counts:    logic.Counts{Steps: 10, Floors: 1},
	}
	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"motion":{"timestamp":"2026-02-02T22:18:12Z","event":"FLOOR","increment":1,"steps":10,"floors":1}}`
	if string(payload) != want {
		t.Errorf("got  %s\nwant %s", payload, want)
	}
}

func TestFormatPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	event := logic.Event{
		Timestamp: time.Date(2026, 2, 3, 0, 0, 0, 0, loc),
		Type:      logic.EventStep,
	}
	payload, _ := FormatPayload(event)

	var parsed Payload
	json.Unmarshal(payload, &parsed)
	if parsed.Motion.Timestamp != "2026-02-02T22:00:00Z" {
		t.Errorf("expected UTC timestamp, got %s", parsed.Motion.Timestamp)
	}
}

func TestFormatProgressPayload(t *testing.T) {
	ts := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		steps       uint64
		goal        int
		wantPercent float64
	}{
		{"no goal", 500, 0, 0},
		{"quarter", 2500, 10000, 25},
		{"rounded", 1234, 10000, 12.3},
		{"over goal", 15000, 10000, 150},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := FormatProgressPayload(Progress{
				Timestamp: ts,
				Counts:    logic.Counts{Steps: tt.steps, Floors: 2},
				Goal:      tt.goal,
			})
			if err != nil {
				t.Fatal(err)
			}
			var parsed ProgressPayload
			if err := json.Unmarshal(payload, &parsed); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if parsed.Progress.Percent != tt.wantPercent {
				t.Errorf("percent: got %v, want %v", parsed.Progress.Percent, tt.wantPercent)
			}
			if parsed.Progress.Steps != tt.steps || parsed.Progress.Floors != 2 || parsed.Progress.Goal != tt.goal {
				t.Errorf("unexpected progress: %+v", parsed.Progress)
			}
			if parsed.Progress.Timestamp != "2026-02-02T10:00:00Z" {
				t.Errorf("timestamp: got %s", parsed.Progress.Timestamp)
			}
		})
	}
}

func TestFormatSystemPayload(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 14, 30, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"system":{"timestamp":"2026-02-03T14:30:00Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(payload) != want {
		t.Errorf("got  %s\nwant %s", payload, want)
	}
}

func TestFormatSystemPayloadOmitsEmptyReason(t *testing.T) {
	payload, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 14, 30, 0, 0, time.UTC),
		Event:     "RECONNECTED",
	})
	want := `{"system":{"timestamp":"2026-02-03T14:30:00Z","event":"RECONNECTED"}}`
	if string(payload) != want {
		t.Errorf("got  %s\nwant %s", payload, want)
	}
}

func TestFormatSystemPayloadRawPassthrough(t *testing.T) {
	raw := []byte(`{"status":{"event":"STARTUP"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "STARTUP", RawPayload: raw})
	if err != nil {
		t.Fatal(err)
	}
	if string(payload) != string(raw) {
		t.Errorf("expected raw payload, got %s", payload)
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	if err := f.Publish(logic.Event{Type: logic.EventStep, Increment: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.PublishProgress(Progress{Counts: logic.Counts{Steps: 1}, Goal: 100}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.PublishSystem(SystemEvent{Event: "HEARTBEAT"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.EventsSnapshot()) != 1 || len(f.ProgressSnapshot()) != 1 || len(f.SystemEvents) != 1 {
		t.Fatalf("unexpected recordings: %d events, %d progress, %d system",
			len(f.Events), len(f.Progress), len(f.SystemEvents))
	}
	if len(f.Payloads) != 3 {
		t.Errorf("expected 3 payloads, got %d", len(f.Payloads))
	}
}

func TestFakePublisherErrors(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("boom")
	f.PublishSystemError = errors.New("bang")

	if err := f.Publish(logic.Event{}); err == nil {
		t.Error("expected Publish error")
	}
	if err := f.PublishProgress(Progress{}); err == nil {
		t.Error("expected PublishProgress error")
	}
	if err := f.PublishSystem(SystemEvent{}); err == nil {
		t.Error("expected PublishSystem error")
	}
	if len(f.Events)+len(f.Progress)+len(f.SystemEvents) != 0 {
		t.Error("failed publishes should not be recorded")
	}
}

func TestFakePublisherReset(t *testing.T) {
	f := NewFakePublisher()
	f.Publish(logic.Event{})
	f.Connected = true
	f.Close()

	f.Reset()

	if f.Events != nil || f.Payloads != nil || f.Closed || f.Connected {
		t.Errorf("Reset left state behind: %+v", f)
	}
}
