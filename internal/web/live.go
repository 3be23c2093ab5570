package web

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sweeney/step-sensor/internal/tracker"
)

const (
	writeWait  = 5 * time.Second
	clientSend = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // status page may be served through a proxy
	},
}

// LiveMessage is one frame of the live feed.
type LiveMessage struct {
	Type      string `json:"type"` // STEP, FLOOR or COUNTS
	Timestamp string `json:"timestamp"`
	Increment uint64 `json:"increment,omitempty"`
	Steps     uint64 `json:"steps"`
	Floors    uint64 `json:"floors"`
	Source    string `json:"source"`
}

func liveMessage(n tracker.Notification) LiveMessage {
	return LiveMessage{
		Type:      string(n.Kind),
		Timestamp: n.Time.UTC().Format(time.RFC3339Nano),
		Increment: n.Increment,
		Steps:     n.Counts.Steps,
		Floors:    n.Counts.Floors,
		Source:    n.Source.String(),
	}
}

type liveClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans tracker notifications out to websocket clients. Slow clients
// miss frames rather than delay anyone else.
type Hub struct {
	mu      sync.Mutex
	clients map[*liveClient]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*liveClient]struct{})}
}

// Notify broadcasts n. It satisfies tracker.Listener and never blocks.
func (h *Hub) Notify(n tracker.Notification) {
	data, err := json.Marshal(liveMessage(n))
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) add(c *liveClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *liveClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*liveClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.conn.Close()
	}
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}

	c := &liveClient{conn: conn, send: make(chan []byte, clientSend)}
	h.add(c)

	go c.writeLoop()

	// Reads only detect the client going away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(c)
	conn.Close()
}

func (c *liveClient) writeLoop() {
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			c.conn.Close()
			return
		}
	}
}
