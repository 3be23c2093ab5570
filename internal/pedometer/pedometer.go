// Package pedometer provides the authoritative pedometer boundary.
// A pedometer service reports cumulative totals since the session started;
// when one is selected the motion pipeline is not used.
package pedometer

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sweeney/step-sensor/internal/mqtt"
)

// DefaultTopic is the topic a phone pedometer bridge publishes totals to.
const DefaultTopic = "fitness/pedometer/totals"

// Update is one cumulative reading.
type Update struct {
	Time   time.Time
	Steps  uint64
	Floors uint64
}

// Service delivers pedometer updates.
type Service interface {
	Available() bool
	Start() (<-chan Update, error)
	Stop() error
}

type updatePayload struct {
	Time   string `json:"time,omitempty"`
	Steps  *int64 `json:"steps"`
	Floors int64  `json:"floors,omitempty"`
}

// ParseUpdate decodes a totals payload such as
// {"time":"2026-03-01T09:00:00Z","steps":1234,"floors":3}.
func ParseUpdate(data []byte, now time.Time) (Update, error) {
	var p updatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return Update{}, fmt.Errorf("decode pedometer update: %w", err)
	}
	if p.Steps == nil {
		return Update{}, errors.New("pedometer update missing steps")
	}
	if *p.Steps < 0 || p.Floors < 0 {
		return Update{}, fmt.Errorf("negative totals: steps=%d floors=%d", *p.Steps, p.Floors)
	}

	u := Update{Time: now, Steps: uint64(*p.Steps), Floors: uint64(p.Floors)}
	if p.Time != "" {
		ts, err := time.Parse(time.RFC3339Nano, p.Time)
		if err != nil {
			return Update{}, fmt.Errorf("pedometer time %q: %w", p.Time, err)
		}
		u.Time = ts
	}
	return u, nil
}

// MQTTService receives pedometer totals over MQTT.
type MQTTService struct {
	conn  mqtt.Conn
	topic string
	now   func() time.Time

	mu  sync.Mutex
	sub *mqtt.Subscription[Update]
}

// NewMQTTService creates a service reading topic through conn.
func NewMQTTService(conn mqtt.Conn, topic string) *MQTTService {
	return &MQTTService{
		conn:  conn,
		topic: topic,
		now:   time.Now,
	}
}

// Available reports whether the broker connection is up.
func (m *MQTTService) Available() bool {
	return m.conn != nil && m.conn.IsConnected()
}

// Start subscribes to the totals topic.
func (m *MQTTService) Start() (<-chan Update, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sub != nil {
		return nil, errors.New("pedometer: already started")
	}

	sub, err := mqtt.Subscribe(m.conn, m.topic, 16, func(b []byte) (Update, error) {
		return ParseUpdate(b, m.now())
	})
	if err != nil {
		return nil, fmt.Errorf("pedometer: %w", err)
	}
	m.sub = sub
	return sub.C(), nil
}

// Stop unsubscribes.
func (m *MQTTService) Stop() error {
	m.mu.Lock()
	sub := m.sub
	m.sub = nil
	m.mu.Unlock()

	if sub == nil {
		return nil
	}
	return sub.Close()
}
