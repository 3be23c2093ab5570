package logic

import (
	"math/rand"
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// repeatValue returns n copies of v.
func repeatValue(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// padded prefixes tail with zeros so the result is a full history.
func padded(tail ...float64) []float64 {
	return append(repeatValue(0, HistorySize-len(tail)), tail...)
}

func TestStepColdStart(t *testing.T) {
	cfg := Preset(SensitivityMedium)
	var d StepDetector

	// A perfect trough-then-peak, but one entry short of a full history
	history := append(repeatValue(0.5, 7), 0.8, 1.4)
	for i := 0; i < 5; i++ {
		if d.Evaluate(history, t0.Add(time.Duration(i)*time.Second), cfg) {
			t.Fatalf("step fired with %d history entries", len(history))
		}
	}
	if !d.LastStep().IsZero() {
		t.Error("rejected evaluation should not record a step time")
	}
}

func TestStepTroughThenPeak(t *testing.T) {
	cfg := Preset(SensitivityMedium)
	var d StepDetector

	history := append(repeatValue(0.5, 8), 0.8, 1.4)
	if !d.Evaluate(history, t0, cfg) {
		t.Fatal("expected one step for trough-then-peak sequence")
	}
	if !d.LastStep().Equal(t0) {
		t.Errorf("LastStep: got %v, want %v", d.LastStep(), t0)
	}
}

func TestStepConstantMagnitudeNeverFires(t *testing.T) {
	cfg := Preset(SensitivityMedium)
	var d StepDetector
	h := NewHistory(HistorySize)

	fired := 0
	for i := 0; i < 20; i++ {
		h.Push(2.0)
		// Far apart so the refractory gate never interferes
		if d.Evaluate(h.Values(), t0.Add(time.Duration(i)*time.Second), cfg) {
			fired++
		}
	}
	if fired != 0 {
		t.Errorf("expected 0 steps for constant 2.0, got %d", fired)
	}
}

func TestStepThresholdGate(t *testing.T) {
	history := append(repeatValue(0.5, 8), 0.8, 1.0)

	var medium StepDetector
	if medium.Evaluate(history, t0, Preset(SensitivityMedium)) {
		t.Error("1.0 should not pass the MEDIUM threshold of 1.2")
	}

	var high StepDetector
	if !high.Evaluate(history, t0, Preset(SensitivityHigh)) {
		t.Error("1.0 should pass the HIGH threshold of 0.9")
	}
}

func TestStepThresholdIsStrict(t *testing.T) {
	cfg := DetectionConfig{StepThreshold: 1.0, MinStepInterval: 300 * time.Millisecond}
	var d StepDetector

	if d.Evaluate(padded(0.2, 0.2, 0.2, 0.5, 1.0), t0, cfg) {
		t.Error("current equal to threshold must not pass")
	}
}

func TestStepLocalMaximum(t *testing.T) {
	cfg := Preset(SensitivityMedium)

	tests := []struct {
		name    string
		history []float64
		want    bool
	}{
		{"earlier entry higher", append(repeatValue(0.5, 8), 1.5, 1.4), false},
		{"tie with previous", append(repeatValue(0.5, 8), 1.4, 1.4), true},
		{"higher entry outside window", padded(0.5, 0.5, 0.5, 3.0, 0.5, 0.5, 0.5, 0.8, 1.4), true},
		{"higher entry at window start", padded(3.0, 0.5, 0.5, 0.8, 1.4), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d StepDetector
			if got := d.Evaluate(tt.history, t0, cfg); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStepValleyWindowPositions(t *testing.T) {
	cfg := Preset(SensitivityMedium) // valley line 0.84

	tests := []struct {
		name    string
		history []float64
		want    bool
	}{
		// Low values before the valley window and in the second-newest slot do not count
		{"dip outside valley window", []float64{0.1, 0.1, 0.1, 0.1, 0.1, 1.0, 1.0, 1.0, 0.5, 1.4}, false},
		{"dip at oldest valley slot", []float64{1, 1, 1, 1, 1, 0.5, 1.0, 1.0, 1.0, 1.4}, true},
		{"dip at newest valley slot", []float64{1, 1, 1, 1, 1, 1.0, 1.0, 0.5, 1.0, 1.4}, true},
		{"no dip", repeatValue(1.3, HistorySize), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d StepDetector
			if got := d.Evaluate(tt.history, t0, cfg); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStepRefractoryBoundary(t *testing.T) {
	cfg := Preset(SensitivityMedium) // 300ms
	history := append(repeatValue(0.5, 8), 0.8, 1.4)
	var d StepDetector

	if !d.Evaluate(history, t0, cfg) {
		t.Fatal("first step should fire")
	}
	if d.Evaluate(history, t0.Add(300*time.Millisecond), cfg) {
		t.Error("step exactly one interval later must be rejected")
	}
	if !d.Evaluate(history, t0.Add(301*time.Millisecond), cfg) {
		t.Error("step just after the interval should fire")
	}
}

func TestStepRefractoryNoisyInput(t *testing.T) {
	for _, s := range []Sensitivity{SensitivityLow, SensitivityMedium, SensitivityHigh} {
		t.Run(string(s), func(t *testing.T) {
			cfg := Preset(s)
			rng := rand.New(rand.NewSource(42))
			h := NewHistory(HistorySize)
			var d StepDetector
			var last time.Time
			fired := 0

			for i := 0; i < 2000; i++ {
				h.Push(rng.Float64() * 3)
				now := t0.Add(time.Duration(i) * 100 * time.Millisecond)
				if d.Evaluate(h.Values(), now, cfg) {
					if !last.IsZero() && now.Sub(last) <= cfg.MinStepInterval {
						t.Fatalf("steps %v apart, interval %v", now.Sub(last), cfg.MinStepInterval)
					}
					last = now
					fired++
				}
			}
			if fired == 0 {
				t.Error("expected noisy input to produce some steps")
			}
		})
	}
}

func TestStepReset(t *testing.T) {
	cfg := Preset(SensitivityMedium)
	history := append(repeatValue(0.5, 8), 0.8, 1.4)
	var d StepDetector

	d.Evaluate(history, t0, cfg)
	d.Reset()
	if !d.LastStep().IsZero() {
		t.Error("Reset should clear the last step time")
	}
	if !d.Evaluate(history, t0.Add(time.Millisecond), cfg) {
		t.Error("step should fire immediately after Reset")
	}
}

func TestFloorSustainedElevation(t *testing.T) {
	cfg := Preset(SensitivityMedium) // floor threshold 2.0, sustain line 1.6

	tests := []struct {
		name     string
		tail     []float64
		vertical float64
		want     bool
	}{
		{"one entry below line", []float64{2.1, 2.1, 2.1, 1.5, 2.1}, 2.5, false},
		{"one entry exactly on line", []float64{2.1, 2.1, 2.1, 1.6, 2.1}, 2.5, false},
		{"all just above line", []float64{1.6000001, 1.6000001, 1.6000001, 1.6000001, 1.6000001}, 2.5, true},
		{"oldest window entry on line", []float64{1.6, 2.1, 2.1, 2.1, 2.1}, 2.5, false},
		{"vertical on threshold", []float64{2.1, 2.1, 2.1, 2.1, 2.1}, 2.0, false},
		{"vertical just above threshold", []float64{2.1, 2.1, 2.1, 2.1, 2.1}, 2.0001, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d FloorDetector
			if got := d.Evaluate(padded(tt.tail...), tt.vertical, t0, cfg); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFloorIgnoresEntriesOutsideWindow(t *testing.T) {
	cfg := Preset(SensitivityMedium)
	var d FloorDetector

	history := []float64{0, 0, 0, 0, 0, 2.1, 2.1, 2.1, 2.1, 2.1}
	if !d.Evaluate(history, 2.5, t0, cfg) {
		t.Error("only the last five entries should be checked")
	}
}

func TestFloorColdStart(t *testing.T) {
	cfg := Preset(SensitivityMedium)
	var d FloorDetector

	if d.Evaluate(repeatValue(3.0, HistorySize-1), 3.0, t0, cfg) {
		t.Error("floor fired before the history was full")
	}
}

func TestFloorRefractoryBoundary(t *testing.T) {
	cfg := Preset(SensitivityMedium)
	history := repeatValue(2.5, HistorySize)
	var d FloorDetector

	if !d.Evaluate(history, 2.5, t0, cfg) {
		t.Fatal("first floor should fire")
	}
	if d.Evaluate(history, 2.5, t0.Add(2*time.Second), cfg) {
		t.Error("floor exactly two seconds later must be rejected")
	}
	if !d.Evaluate(history, 2.5, t0.Add(2*time.Second+time.Millisecond), cfg) {
		t.Error("floor after the interval should fire")
	}
}

func TestFloorThresholdFollowsPreset(t *testing.T) {
	history := repeatValue(1.7, HistorySize)

	var medium FloorDetector
	if medium.Evaluate(history, 1.8, t0, Preset(SensitivityMedium)) {
		t.Error("1.8 should not pass MEDIUM floor threshold 2.0")
	}

	var high FloorDetector
	if !high.Evaluate(history, 1.8, t0, Preset(SensitivityHigh)) {
		t.Error("1.8 should pass HIGH floor threshold 1.5 with sustained 1.7 > 1.2")
	}
}
