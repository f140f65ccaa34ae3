package stubserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"supportwidget/internal/lib/sl"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 8192
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Event is the wire envelope pushed to connected widgets.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Hub tracks widget connections by the thread they joined and fans events
// out to them.
type Hub struct {
	log *slog.Logger

	mu      sync.RWMutex
	threads map[string]map[*client]bool
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:     log.With(sl.Module("stub hub")),
		threads: make(map[string]map[*client]bool),
	}
}

// Broadcast sends the event to every connection joined to the thread.
func (h *Hub) Broadcast(threadID string, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Error("failed to marshal event", sl.Err(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.threads[threadID] {
		select {
		case c.send <- payload:
		default:
			// slow consumer, drop the frame
		}
	}
}

func (h *Hub) join(threadID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.threads[threadID] == nil {
		h.threads[threadID] = make(map[*client]bool)
	}
	h.threads[threadID][c] = true
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for threadID, clients := range h.threads {
		if clients[c] {
			delete(clients, c)
			if len(clients) == 0 {
				delete(h.threads, threadID)
			}
		}
	}
}

type client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	threadID string // the thread this token authenticates for
}

type joinEnvelope struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// readPump consumes join:thread frames and detects disconnects.
func (c *client) readPump() {
	defer func() {
		c.hub.drop(c)
		close(c.send)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var env joinEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		if env.Type == "join:thread" && env.Data == c.threadID {
			c.hub.join(env.Data, c)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
