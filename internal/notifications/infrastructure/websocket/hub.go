// Package websocket pushes notifications to browsers over gorilla/websocket
// connections.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/tracklane/internal/notifications/application/services"
	"github.com/felixgeelhaar/tracklane/internal/notifications/domain"
	"github.com/felixgeelhaar/tracklane/internal/presence"
	"github.com/felixgeelhaar/tracklane/pkg/observability"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	// ErrSendQueueFull means the connection's writer is not keeping up.
	ErrSendQueueFull = errors.New("send queue full")
	// ErrConnectionClosed means the connection is gone from this node.
	ErrConnectionClosed = errors.New("connection closed")
)

const messageTypeNotification = "notification"

// Message is the frame written to clients.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// HubConfig tunes per-connection behaviour.
type HubConfig struct {
	SendBuffer     int
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
}

// DefaultHubConfig returns sensible defaults.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		SendBuffer:     32,
		WriteTimeout:   10 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 4096,
	}
}

// pongWait must exceed the ping interval or healthy clients time out.
func (c HubConfig) pongWait() time.Duration {
	return c.PingInterval * 2
}

func (c HubConfig) withDefaults() HubConfig {
	def := DefaultHubConfig()
	if c.SendBuffer <= 0 {
		c.SendBuffer = def.SendBuffer
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = def.PingInterval
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	return c
}

type connection struct {
	id     presence.ConnectionID
	userID uuid.UUID
	ws     *websocket.Conn
	send   chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

// close signals both pumps. The writer owns closing the socket so it can
// send a close frame first.
func (c *connection) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Hub owns the live connections on this node and implements services.Sender.
type Hub struct {
	registry *presence.Registry
	config   HubConfig
	logger   *slog.Logger
	metrics  observability.Metrics

	mu    sync.RWMutex
	conns map[presence.ConnectionID]*connection
}

var _ services.Sender = (*Hub)(nil)

// NewHub creates a hub that records connections in registry.
func NewHub(registry *presence.Registry, config HubConfig, logger *slog.Logger, metrics observability.Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &Hub{
		registry: registry,
		config:   config.withDefaults(),
		logger:   logger,
		metrics:  metrics,
		conns:    make(map[presence.ConnectionID]*connection),
	}
}

// Send queues payload for one connection without blocking.
func (h *Hub) Send(ctx context.Context, connID presence.ConnectionID, payload domain.Payload) error {
	frame, err := encodeFrame(payload)
	if err != nil {
		return err
	}

	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return ErrConnectionClosed
	}
	return c.enqueue(ctx, frame)
}

func (c *connection) enqueue(ctx context.Context, frame []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		return ErrSendQueueFull
	}
}

func encodeFrame(payload domain.Payload) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: messageTypeNotification, Data: data})
}

// Serve runs a connection until the client leaves, the connection fails, or
// ctx ends. The connection is registered before backlog is read, and backlog
// frames are written ahead of anything sent live while it loads.
func (h *Hub) Serve(ctx context.Context, userID uuid.UUID, ws *websocket.Conn, backlog BacklogSource) {
	c := &connection{
		id:     presence.ConnectionID(uuid.NewString()),
		userID: userID,
		ws:     ws,
		send:   make(chan []byte, h.config.SendBuffer),
		done:   make(chan struct{}),
	}

	h.attach(c)
	defer h.detach(c)

	pending := h.loadBacklog(ctx, userID, backlog)

	h.logger.Info("websocket connected",
		"connection_id", c.id,
		"user_id", userID,
		"backlog", len(pending),
	)

	go h.writePump(c, pending)
	go func() {
		select {
		case <-ctx.Done():
			c.close()
		case <-c.done:
		}
	}()
	h.readPump(c)
}

// loadBacklog encodes the unread notifications for userID, oldest first.
// A failed load only costs the replay; live delivery is already attached.
func (h *Hub) loadBacklog(ctx context.Context, userID uuid.UUID, source BacklogSource) [][]byte {
	if source == nil {
		return nil
	}
	payloads, err := source.Unread(ctx, userID)
	if err != nil {
		h.logger.Warn("failed to load notification backlog", "user_id", userID, "error", err)
		return nil
	}

	frames := make([][]byte, 0, len(payloads))
	for _, p := range payloads {
		frame, err := encodeFrame(p)
		if err != nil {
			h.logger.Warn("skipping unencodable backlog entry", "notification_id", p.ID, "error", err)
			continue
		}
		frames = append(frames, frame)
	}
	return frames
}

func (h *Hub) attach(c *connection) {
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
	h.registry.Register(c.userID, c.id)
	h.recordPresence()
}

func (h *Hub) detach(c *connection) {
	c.close()
	h.registry.Unregister(c.userID, c.id)
	h.mu.Lock()
	delete(h.conns, c.id)
	h.mu.Unlock()
	h.recordPresence()

	h.logger.Info("websocket disconnected",
		"connection_id", c.id,
		"user_id", c.userID,
	)
}

func (h *Hub) recordPresence() {
	stats := h.registry.Stats()
	h.metrics.Gauge(observability.MetricPresenceConnections, float64(stats.Connections))
	h.metrics.Gauge(observability.MetricPresenceUsers, float64(stats.Users))
}

// readPump discards client frames and keeps the read deadline alive on pong.
func (h *Hub) readPump(c *connection) {
	defer c.close()

	pongWait := h.config.pongWait()
	c.ws.SetReadLimit(h.config.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read failed", "connection_id", c.id, "error", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *connection, pending [][]byte) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
		_ = c.ws.Close()
	}()

	for _, frame := range pending {
		_ = c.ws.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
		if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
			h.logger.Debug("websocket write failed", "connection_id", c.id, "error", err)
			return
		}
	}

	for {
		select {
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.config.WriteTimeout))
			return
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.logger.Debug("websocket write failed", "connection_id", c.id, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Count returns the number of live connections on this node.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	conns := make([]*connection, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.close()
	}
}
