package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"supportwidget/entity"
	"supportwidget/internal/lib/sl"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 8192
)

// Event kinds surfaced by the channel. Disconnect is synthesized locally
// when the read side fails; everything else comes off the wire.
const (
	EventMessageNew    = "message:new"
	EventAgentAssigned = "agent:assigned"
	EventChatClosed    = "chat:closed"
	EventDisconnect    = "disconnect"

	eventJoinThread = "join:thread"
)

// Event is the wire envelope for realtime traffic.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// AgentAssignedData is the payload of an agent:assigned event.
type AgentAssignedData struct {
	Agent struct {
		Name string `json:"name"`
	} `json:"agent"`
}

// DecodeMessage unpacks a message:new payload.
func DecodeMessage(e Event) (entity.Message, error) {
	var msg entity.Message
	if err := json.Unmarshal(e.Data, &msg); err != nil {
		return entity.Message{}, fmt.Errorf("decoding message event: %w", err)
	}
	return msg, nil
}

// DecodeAgentAssigned unpacks an agent:assigned payload.
func DecodeAgentAssigned(e Event) (AgentAssignedData, error) {
	var data AgentAssignedData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return AgentAssignedData{}, fmt.Errorf("decoding agent event: %w", err)
	}
	return data, nil
}

// Adapter is a single client connection to the realtime channel. The session
// token is the sole credential; delivery is at-least-once and may be out of
// order, which the conversation store's reconciliation absorbs.
type Adapter struct {
	conn   *websocket.Conn
	send   chan []byte
	events chan Event
	log    *slog.Logger

	mu     sync.Mutex
	joined map[string]bool

	closeOnce sync.Once
	done      chan struct{}
}

// Connect dials the realtime endpoint of the backend base URL.
func Connect(ctx context.Context, baseURL, token string, log *slog.Logger) (*Adapter, error) {
	endpoint, err := wsEndpoint(baseURL, token)
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing realtime channel: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	a := &Adapter{
		conn:   conn,
		send:   make(chan []byte, 32),
		events: make(chan Event, 32),
		log:    log.With(sl.Module("ws adapter")),
		joined: make(map[string]bool),
		done:   make(chan struct{}),
	}

	go a.writePump()
	go a.readPump()

	a.log.Debug("realtime channel connected")
	return a, nil
}

// Events delivers channel events in arrival order. The channel is closed
// after the final disconnect event.
func (a *Adapter) Events() <-chan Event {
	return a.events
}

// JoinThread subscribes to a thread's events. Rejoining an already-joined
// thread is a no-op.
func (a *Adapter) JoinThread(threadID string) error {
	a.mu.Lock()
	if a.joined[threadID] {
		a.mu.Unlock()
		return nil
	}
	a.joined[threadID] = true
	a.mu.Unlock()

	payload, err := json.Marshal(Event{
		Type: eventJoinThread,
		Data: json.RawMessage(fmt.Sprintf("%q", threadID)),
	})
	if err != nil {
		return fmt.Errorf("marshaling join event: %w", err)
	}

	select {
	case a.send <- payload:
		return nil
	case <-a.done:
		return fmt.Errorf("realtime channel closed")
	}
}

// Close tears the connection down. Idempotent.
func (a *Adapter) Close() {
	a.closeOnce.Do(func() {
		close(a.done)
		_ = a.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		_ = a.conn.Close()
	})
}

// readPump pumps events off the wire until the connection dies, then emits
// a final disconnect event and closes the events channel.
func (a *Adapter) readPump() {
	defer func() {
		select {
		case a.events <- Event{Type: EventDisconnect}:
		case <-time.After(writeWait):
		}
		close(a.events)
	}()

	a.conn.SetReadLimit(maxMessageSize)
	_ = a.conn.SetReadDeadline(time.Now().Add(pongWait))
	a.conn.SetPongHandler(func(string) error {
		return a.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := a.conn.ReadMessage()
		if err != nil {
			select {
			case <-a.done:
			default:
				a.log.Debug("realtime channel read failed", sl.Err(err))
			}
			return
		}

		var event Event
		if err := json.Unmarshal(raw, &event); err != nil || event.Type == "" {
			a.log.Debug("ignoring malformed frame")
			continue
		}

		select {
		case a.events <- event:
		case <-a.done:
			return
		}
	}
}

// writePump sends queued frames and keepalive pings.
func (a *Adapter) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = a.conn.Close()
	}()

	for {
		select {
		case payload := <-a.send:
			_ = a.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := a.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			_ = a.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := a.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-a.done:
			return
		}
	}
}

func wsEndpoint(baseURL, token string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}

	switch {
	case u.Scheme == "https":
		u.Scheme = "wss"
	case u.Scheme == "http" || u.Scheme == "":
		u.Scheme = "ws"
	case strings.HasPrefix(u.Scheme, "ws"):
		// already a websocket url
	default:
		return "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
