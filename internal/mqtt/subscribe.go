package mqtt

import (
	"log"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Conn is a broker connection that can carry subscriptions.
// *RealPublisher implements it, keeping subscriptions alive across reconnects.
type Conn interface {
	IsConnected() bool
	Subscribe(topic string, qos byte, handler paho.MessageHandler) error
	Unsubscribe(topic string) error
}

// Subscription decodes messages from one topic and delivers them on a
// buffered channel. Messages arriving while the channel is full are dropped.
type Subscription[T any] struct {
	conn   Conn
	topic  string
	decode func([]byte) (T, error)
	ch     chan T

	mu      sync.Mutex
	closed  bool
	dropped int
}

// Subscribe subscribes conn to topic at QoS 0.
func Subscribe[T any](conn Conn, topic string, buffer int, decode func([]byte) (T, error)) (*Subscription[T], error) {
	s := newSubscription(conn, topic, buffer, decode)
	if err := conn.Subscribe(topic, 0, s.handle); err != nil {
		return nil, err
	}
	return s, nil
}

func newSubscription[T any](conn Conn, topic string, buffer int, decode func([]byte) (T, error)) *Subscription[T] {
	return &Subscription[T]{
		conn:   conn,
		topic:  topic,
		decode: decode,
		ch:     make(chan T, buffer),
	}
}

func (s *Subscription[T]) handle(_ paho.Client, msg paho.Message) {
	v, err := s.decode(msg.Payload())
	if err != nil {
		log.Printf("mqtt: %s: bad payload: %v", s.topic, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- v:
	default:
		if s.dropped == 0 {
			log.Printf("mqtt: %s: consumer behind, dropping messages", s.topic)
		}
		s.dropped++
	}
}

// C returns the delivery channel. It is never closed.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Dropped returns how many messages were discarded because the channel was full.
func (s *Subscription[T]) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close stops delivery immediately and unsubscribes from the broker.
// Safe to call more than once.
func (s *Subscription[T]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	return s.conn.Unsubscribe(s.topic)
}
