package motion

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sweeney/step-sensor/internal/logic"
	"github.com/sweeney/step-sensor/internal/mqtt"
)

// DefaultSampleTopic is the topic a phone or wearable bridge publishes samples to.
const DefaultSampleTopic = "fitness/motion/samples"

// SamplePayload is the JSON wire format of one sample.
// UserAccel, when present, is acceleration with gravity removed and is preferred.
type SamplePayload struct {
	Time      string      `json:"time,omitempty"`
	Accel     *AxisValues `json:"accel"`
	UserAccel *AxisValues `json:"user_accel,omitempty"`
}

// AxisValues is a 3-axis reading in g.
type AxisValues struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// ParseSamplePayload decodes a sample. A missing time is replaced by now.
func ParseSamplePayload(data []byte, now time.Time) (logic.Sample, error) {
	var p SamplePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return logic.Sample{}, fmt.Errorf("decode sample: %w", err)
	}

	s := logic.Sample{Time: now}
	if p.Time != "" {
		ts, err := time.Parse(time.RFC3339Nano, p.Time)
		if err != nil {
			return logic.Sample{}, fmt.Errorf("sample time %q: %w", p.Time, err)
		}
		s.Time = ts
	}

	switch {
	case p.UserAccel != nil:
		s.Accel = logic.Vector{X: p.UserAccel.X, Y: p.UserAccel.Y, Z: p.UserAccel.Z}
		s.GravityRemoved = true
	case p.Accel != nil:
		s.Accel = logic.Vector{X: p.Accel.X, Y: p.Accel.Y, Z: p.Accel.Z}
	default:
		return logic.Sample{}, errors.New("sample has neither accel nor user_accel")
	}
	return s, nil
}

// MQTTSource receives samples published on an MQTT topic.
type MQTTSource struct {
	conn  mqtt.Conn
	topic string
	now   func() time.Time

	mu  sync.Mutex
	sub *mqtt.Subscription[logic.Sample]
}

// NewMQTTSource creates a source reading topic through conn.
func NewMQTTSource(conn mqtt.Conn, topic string) *MQTTSource {
	return &MQTTSource{
		conn:  conn,
		topic: topic,
		now:   time.Now,
	}
}

// Available reports whether the broker connection is up.
func (m *MQTTSource) Available() bool {
	return m.conn != nil && m.conn.IsConnected()
}

// Start subscribes to the sample topic.
func (m *MQTTSource) Start() (<-chan logic.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sub != nil {
		return nil, errors.New("mqtt source already started")
	}

	sub, err := mqtt.Subscribe(m.conn, m.topic, DefaultBuffer, func(b []byte) (logic.Sample, error) {
		return ParseSamplePayload(b, m.now())
	})
	if err != nil {
		return nil, fmt.Errorf("mqtt source: %w", err)
	}
	m.sub = sub
	return sub.C(), nil
}

// Stop unsubscribes.
func (m *MQTTSource) Stop() error {
	m.mu.Lock()
	sub := m.sub
	m.sub = nil
	m.mu.Unlock()

	if sub == nil {
		return nil
	}
	return sub.Close()
}
