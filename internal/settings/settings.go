// Package settings holds the user-facing tracking settings and persists them
// to a KEY=VALUE file.
package settings

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sweeney/step-sensor/internal/logic"
)

// Settings are the values supplied to the detection engine at construction
// and on every change.
type Settings struct {
	Sensitivity       logic.Sensitivity
	CalibrationFactor float64
	FloorTracking     bool
	StepGoal          int
}

// Defaults returns MEDIUM sensitivity, factor 1.0, floor tracking on and a 10000 step goal.
func Defaults() Settings {
	return Settings{
		Sensitivity:       logic.SensitivityMedium,
		CalibrationFactor: 1.0,
		FloorTracking:     true,
		StepGoal:          10000,
	}
}

// Load reads a settings file. A missing file yields Defaults.
func Load(path string) (Settings, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return Defaults(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("failed to open settings file: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads KEY=VALUE lines. Keys not present keep their default.
func Parse(r io.Reader) (Settings, error) {
	s := Defaults()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return Settings{}, fmt.Errorf("invalid settings line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := s.setValue(key, value); err != nil {
			return Settings{}, fmt.Errorf("settings line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return Settings{}, fmt.Errorf("error reading settings file: %w", err)
	}

	return s, nil
}

func (s *Settings) setValue(key, value string) error {
	switch key {
	case "SENSITIVITY":
		v, err := logic.ParseSensitivity(value)
		if err != nil {
			return fmt.Errorf("invalid SENSITIVITY: %w", err)
		}
		s.Sensitivity = v
	case "CALIBRATION_FACTOR":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid CALIBRATION_FACTOR %q: %w", value, err)
		}
		if f <= 0 || math.IsInf(f, 0) || math.IsNaN(f) {
			return fmt.Errorf("CALIBRATION_FACTOR must be positive, got %v", f)
		}
		s.CalibrationFactor = f
	case "FLOOR_TRACKING":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid FLOOR_TRACKING %q: %w", value, err)
		}
		s.FloorTracking = b
	case "STEP_GOAL":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid STEP_GOAL %q: %w", value, err)
		}
		if n < 0 {
			return fmt.Errorf("STEP_GOAL must not be negative, got %d", n)
		}
		s.StepGoal = n
	default:
		return fmt.Errorf("unknown settings key: %q", key)
	}
	return nil
}

// Format renders s in the file format read by Parse.
func Format(s Settings) []byte {
	var b bytes.Buffer
	b.WriteString("# step-sensor settings\n")
	fmt.Fprintf(&b, "SENSITIVITY=%s\n", s.Sensitivity)
	fmt.Fprintf(&b, "CALIBRATION_FACTOR=%s\n", strconv.FormatFloat(s.CalibrationFactor, 'g', -1, 64))
	fmt.Fprintf(&b, "FLOOR_TRACKING=%t\n", s.FloorTracking)
	fmt.Fprintf(&b, "STEP_GOAL=%d\n", s.StepGoal)
	return b.Bytes()
}

// Save writes s to path through a temporary file and rename.
func Save(path string, s Settings) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".settings-*")
	if err != nil {
		return fmt.Errorf("create temp settings file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(Format(s)); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace settings file: %w", err)
	}
	return nil
}
