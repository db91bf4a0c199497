package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/harshul/octo-preview/internal/eventbus"
)

// ReplayLimit is how many past events a new connection receives
const ReplayLimit = 100

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Previews are served to local browsers on other ports
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub tracks WebSocket clients streaming project events.
type Hub struct {
	bus    *eventbus.Bus
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[string]*wsClient
}

type wsClient struct {
	id        string
	projectID string
	conn      *websocket.Conn
	send      chan []byte
	hub       *Hub
	subID     string
	closeOnce sync.Once

	// replaying holds live events back until history has been queued
	replaying sync.Mutex

	mu     sync.Mutex
	closed bool
}

// NewHub creates a hub over bus
func NewHub(bus *eventbus.Bus, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		bus:     bus,
		logger:  logger,
		clients: make(map[string]*wsClient),
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll disconnects every client
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.close()
	}
}

// ServeWS upgrades the request and streams the project's events, starting
// with its recent history.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &wsClient{
		id:        uuid.NewString(),
		projectID: projectID,
		conn:      conn,
		send:      make(chan []byte, 256),
		hub:       h,
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	c.replaying.Lock()
	subID, history := h.bus.SubscribeWithHistory(projectID, ReplayLimit, func(ev eventbus.Event) {
		c.replaying.Lock()
		c.replaying.Unlock()
		c.deliver(ev)
	})
	c.subID = subID
	for _, ev := range history {
		c.deliver(ev)
	}
	c.replaying.Unlock()

	h.logger.Debug("websocket client connected",
		zap.String("client_id", c.id), zap.String("project_id", projectID))

	go c.writePump()
	go c.readPump()
}

// deliver queues an event, dropping it if the client has fallen behind
func (c *wsClient) deliver(ev eventbus.Event) {
	data, err := ev.JSON()
	if err != nil {
		return
	}
	c.queue(data)
}

func (c *wsClient) queue(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		c.hub.bus.Unsubscribe(c.subID)
		c.hub.mu.Lock()
		delete(c.hub.clients, c.id)
		c.hub.mu.Unlock()

		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
		c.hub.logger.Debug("websocket client disconnected", zap.String("client_id", c.id))
	})
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) readPump() {
	defer func() {
		c.close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(64 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read error", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}
		c.handleMessage(message)
	}
}

// ClientMessage is a request sent by a client over the socket
type ClientMessage struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

func (c *wsClient) handleMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}

	var response map[string]any
	switch msg.Type {
	case "ping":
		response = map[string]any{"type": "pong", "timestamp": time.Now().UnixMilli()}
	case "get_history":
		limit := ReplayLimit
		if l, ok := msg.Payload["limit"].(float64); ok {
			limit = int(l)
		}
		response = map[string]any{"type": "history", "events": c.hub.bus.History(c.projectID, limit)}
	default:
		return
	}

	data, err := json.Marshal(response)
	if err != nil {
		return
	}
	c.queue(data)
}
