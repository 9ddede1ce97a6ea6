package web

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dbehnke/oqpsk-sink/pkg/logger"
	"github.com/dbehnke/oqpsk-sink/pkg/pipeline"
)

// Event types sent to WebSocket clients
const (
	EventFrameReceived = "frame_received"
	EventStatusUpdate  = "status_update"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	clientBuffer   = 256
	broadcastQueue = 256
)

// Event is one message on the live feed
type Event struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Marshal converts an event to JSON bytes
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Client is one live feed subscriber
type Client struct {
	ID      string
	conn    *websocket.Conn
	send    chan []byte
	dropped atomic.Uint64
}

// WebSocketHub fans events out to live feed subscribers
type WebSocketHub struct {
	clients    map[*Client]struct{}
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	logger     *logger.Logger
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
}

// NewWebSocketHub creates a hub; call Run before serving Handler
func NewWebSocketHub(log *logger.Logger) *WebSocketHub {
	if log == nil {
		log = logger.Nop()
	}
	return &WebSocketHub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan Event, broadcastQueue),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     log.WithComponent("web.hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Run owns the client set until ctx is cancelled
func (h *WebSocketHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			h.logger.Debug("WebSocket client registered", logger.String("client_id", c.ID))

		case c := <-h.unregister:
			h.remove(c)

		case event := <-h.broadcast:
			data, err := event.Marshal()
			if err != nil {
				h.logger.Error("Failed to marshal event", logger.Error(err))
				continue
			}
			h.fanOut(data)

		case <-ctx.Done():
			h.logger.Info("WebSocket hub shutting down")
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[*Client]struct{})
			h.mu.Unlock()
			return
		}
	}
}

func (h *WebSocketHub) remove(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	if ok {
		h.logger.Debug("WebSocket client unregistered",
			logger.String("client_id", c.ID),
			logger.Uint64("dropped", c.dropped.Load()))
	}
}

// fanOut never blocks on a slow client; its message is dropped instead
func (h *WebSocketHub) fanOut(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			if c.dropped.Add(1) == 1 {
				h.logger.Warn("Client too slow, dropping events", logger.String("client_id", c.ID))
			}
		}
	}
}

// Broadcast queues an event for every client
func (h *WebSocketHub) Broadcast(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("Broadcast queue full, dropping event", logger.String("event_type", event.Type))
	}
}

// HandleFrame broadcasts a received frame; it satisfies pipeline.Handler
func (h *WebSocketHub) HandleFrame(_ context.Context, d pipeline.Decoded) error {
	h.Broadcast(Event{
		Type:      EventFrameReceived,
		Timestamp: d.Received,
		Data:      pipeline.Summarize(d),
	})
	return nil
}

// BroadcastStatusUpdate sends a status snapshot to all clients
func (h *WebSocketHub) BroadcastStatusUpdate(status interface{}) {
	h.Broadcast(Event{Type: EventStatusUpdate, Data: status})
}

// Handler upgrades requests and serves the live feed
func (h *WebSocketHub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already replied to the client
			return
		}
		c := &Client{ID: uuid.NewString(), conn: conn, send: make(chan []byte, clientBuffer)}
		select {
		case h.register <- c:
		case <-h.done:
			_ = conn.Close()
			return
		}

		go h.writePump(c)
		go h.readPump(c)
	})
}

// readPump discards client messages and detects disconnects
func (h *WebSocketHub) readPump(c *Client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only writer on the connection
func (h *WebSocketHub) writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.logger.Debug("WebSocket write failed",
					logger.String("client_id", c.ID),
					logger.Error(err))
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

// GetClientCount returns the number of connected clients
func (h *WebSocketHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

var _ pipeline.Handler = (*WebSocketHub)(nil)
