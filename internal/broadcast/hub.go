package broadcast

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	clientBuffer = 64
	writeWait    = 10 * time.Second
)

// envelope is the wire shape of one broadcast message.
type envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
	TS      int64  `json:"ts"`
}

// Hub fans world events out to connected websocket observers. Slow clients
// are dropped rather than allowed to stall the engine.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool

	upgrader websocket.Upgrader
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 4 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Emit implements Sink. Marshals the event once and offers it to every
// client without blocking; a client with a full buffer is disconnected.
func (h *Hub) Emit(event string, payload any) {
	msg, err := json.Marshal(envelope{
		Event:   event,
		Payload: payload,
		TS:      time.Now().UnixMilli(),
	})
	if err != nil {
		slog.Warn("broadcast marshal failed", "event", event, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// Handler upgrades observer connections onto the hub.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		c := &client{conn: conn, send: make(chan []byte, clientBuffer)}

		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			conn.Close()
			return
		}
		h.clients[c] = struct{}{}
		n := len(h.clients)
		h.mu.Unlock()
		slog.Info("observer connected", "observers", n)

		go h.writePump(c)
		h.readPump(c)
	}
}

// writePump drains the client's send channel onto the socket.
func (h *Hub) writePump(c *client) {
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			break
		}
	}
	c.conn.Close()
}

// readPump discards inbound frames; it exists to notice disconnects.
func (h *Hub) readPump(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
	h.drop(c)
}

func (h *Hub) observerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Close disconnects all observers and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
