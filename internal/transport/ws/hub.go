// Package ws serves the dashboard WebSocket endpoint. Each connection is a
// realtime client; its frames drive the subscription registry and the hub
// delivers broadcaster events back to it.
package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"fleet-monitor/realtime/internal/metrics"
	"fleet-monitor/realtime/internal/realtime"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var (
	ErrUnknownClient = errors.New("unknown client")
	ErrSlowClient    = errors.New("client send buffer full")
)

// Frame is the envelope of every server → client message.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// clientMessage is a client → server frame.
type clientMessage struct {
	Action    string `json:"action"`
	VehicleID string `json:"vehicle_id"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

type Hub struct {
	registry   *realtime.Registry
	upgrader   websocket.Upgrader
	sendBuffer int
	logger     *slog.Logger

	mu      sync.RWMutex
	clients map[string]*client
}

func NewHub(registry *realtime.Registry, sendBuffer int, logger *slog.Logger) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		registry:   registry,
		sendBuffer: sendBuffer,
		logger:     logger,
		clients:    make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Deliver implements realtime.Transport. It never blocks: a client whose
// buffer is full misses the event.
func (h *Hub) Deliver(clientID, event string, payload any) error {
	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return ErrUnknownClient
	}

	raw, err := json.Marshal(Frame{Event: event, Data: payload})
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrUnknownClient
	default:
	}
	select {
	case c.send <- raw:
		return nil
	default:
		return ErrSlowClient
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
		done: make(chan struct{}),
	}
	h.register(c)
	defer h.unregister(c)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	h.registry.AddClient(c.id)
	metrics.ClientsConnected.Inc()
	h.logger.Info("client connected", "client_id", c.id)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()

	h.registry.RemoveClient(c.id)
	c.close()
	metrics.ClientsConnected.Dec()
	h.logger.Info("client disconnected", "client_id", c.id)
}

func (h *Hub) readPump(c *client) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", "client_id", c.id, "err", err)
			}
			return
		}
		h.handleMessage(c, raw)
	}
}

func (h *Hub) handleMessage(c *client, raw []byte) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.logger.Debug("ignoring malformed frame", "client_id", c.id, "err", err)
		return
	}
	if msg.VehicleID == "" {
		return
	}

	switch msg.Action {
	case "subscribe":
		h.registry.Subscribe(c.id, msg.VehicleID)
		h.logger.Info("client subscribed", "client_id", c.id, "vehicle_id", msg.VehicleID)
	case "unsubscribe":
		h.registry.Unsubscribe(c.id, msg.VehicleID)
		h.logger.Info("client unsubscribed", "client_id", c.id, "vehicle_id", msg.VehicleID)
	default:
		h.logger.Debug("ignoring unknown action", "client_id", c.id, "action", msg.Action)
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case raw := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close drops every connection. The read loops then unregister the clients.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second),
		)
		c.close()
	}
}
