package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/step-sensor/internal/logic"
)

// backlogLimit is the number of messages held while disconnected.
const backlogLimit = 500

// ClientOptions returns the connection options shared by every client in the daemon:
// automatic reconnect and retry of the initial connection.
func ClientOptions(broker, clientID string) *paho.ClientOptions {
	return paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)
}

// Connect creates a client from opts and waits up to 10s for the first connection.
func Connect(opts *paho.ClientOptions) (paho.Client, error) {
	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		// Connect retry keeps trying in the background
		return client, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return client, nil
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are held in a backlog and replayed on reconnect.
type RealPublisher struct {
	client paho.Client

	mu        sync.Mutex
	pending   *backlog
	connected bool // set after the first successful connection
	routes    map[string]route
}

// route is an active subscription, reissued on every connection because the
// client uses clean sessions and the broker forgets subscriptions on disconnect.
type route struct {
	qos     byte
	handler paho.MessageHandler
}

// NewRealPublisher creates a publisher for the given broker. It registers a
// retained OFFLINE will on the system topic and announces RECONNECTED after
// every reconnection.
func NewRealPublisher(broker, clientID string) *RealPublisher {
	p := &RealPublisher{pending: newBacklog(backlogLimit)}

	will, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "LWT"})
	opts := ClientOptions(broker, clientID).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	client, err := Connect(opts)
	if err != nil {
		log.Printf("mqtt: %v (will keep retrying)", err)
	}
	if client == nil {
		client = paho.NewClient(opts)
		client.Connect()
	}
	p.client = client
	return p
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	reconnect := p.connected
	p.connected = true
	msgs, dropped := p.pending.drain()
	routes := make(map[string]route, len(p.routes))
	for topic, r := range p.routes {
		routes[topic] = r
	}
	p.mu.Unlock()

	if reconnect {
		log.Printf("mqtt: reconnected, replaying %d messages (%d dropped)", len(msgs), dropped)
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		c.Publish(TopicSystem, 1, false, payload)
	}
	for _, m := range msgs {
		c.Publish(m.topic, m.qos, m.retained, m.payload)
	}
	for topic, r := range routes {
		if err := wait(c.Subscribe(topic, r.qos, r.handler)); err != nil {
			log.Printf("mqtt: resubscribe %s: %v", topic, err)
		}
	}
}

// wait blocks up to 5s for token and returns its error.
func wait(token paho.Token) error {
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("timeout")
	}
	return token.Error()
}

// Subscribe routes messages on topic to handler for as long as the
// publisher lives, across reconnects. While disconnected the subscription
// is recorded and issued on the next connection.
func (p *RealPublisher) Subscribe(topic string, qos byte, handler paho.MessageHandler) error {
	p.mu.Lock()
	if p.routes == nil {
		p.routes = make(map[string]route)
	}
	p.routes[topic] = route{qos: qos, handler: handler}
	p.mu.Unlock()

	if !p.IsConnected() {
		return nil
	}
	if err := wait(p.client.Subscribe(topic, qos, handler)); err != nil {
		p.mu.Lock()
		delete(p.routes, topic)
		p.mu.Unlock()
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// Unsubscribe drops topic so it is not reissued, and unsubscribes from the
// broker if connected.
func (p *RealPublisher) Unsubscribe(topic string) error {
	p.mu.Lock()
	delete(p.routes, topic)
	p.mu.Unlock()

	if !p.IsConnected() {
		return nil
	}
	if err := wait(p.client.Unsubscribe(topic)); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", topic, err)
	}
	return nil
}

func (p *RealPublisher) send(topic string, qos byte, retained bool, payload []byte) error {
	if p.client == nil || !p.client.IsConnected() {
		p.mu.Lock()
		p.pending.push(pendingMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		p.mu.Unlock()
		return nil
	}

	if err := wait(p.client.Publish(topic, qos, retained, payload)); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Publish sends a step or floor event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.send(TopicEvents, 0, false, payload)
}

// PublishProgress sends a retained goal-progress update.
func (p *RealPublisher) PublishProgress(pr Progress) error {
	payload, err := FormatProgressPayload(pr)
	if err != nil {
		return fmt.Errorf("format progress payload: %w", err)
	}
	return p.send(TopicProgress, 0, true, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) - lifecycle events should be delivered
	return p.send(TopicSystem, 1, event.Retained, payload)
}

// IsConnected reports whether the client currently has a broker connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client != nil && p.client.IsConnected()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	if p.client != nil {
		p.client.Disconnect(1000) // 1 second timeout
	}
	return nil
}
