// Package realtime carries the websocket transport: it keeps the presence
// registry in sync with live connections and implements the Notifier the
// fan-out path pushes through.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/livechat-service/internal/domain"
	"github.com/spec-kit/livechat-service/internal/events"
	"github.com/spec-kit/livechat-service/internal/presence"
	"github.com/spec-kit/livechat-service/internal/repository"
)

// Transport events consumed from clients.
const (
	frameJoinRoom    = "join-room"
	frameTriggerFire = "trigger-fire"
	frameClientMeta  = "client-meta"
)

// TriggerFirer is the slice of the trigger engine the hub needs.
type TriggerFirer interface {
	Fire(ctx context.Context, businessID, sid, identifier string) (*domain.Message, error)
}

// ClientMetaSyncer applies widget-reported browser/geo metadata.
type ClientMetaSyncer interface {
	SyncClientMeta(ctx context.Context, businessID, sid string, meta repository.SessionClientMeta) error
}

// Frame is the wire envelope in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Client is one live websocket connection with a buffered write queue.
// Slow clients are dropped rather than allowed to stall the hub.
type Client struct {
	ID   string
	conn *websocket.Conn

	// mu orders trySend against close so a concurrent Notify can never
	// write to a closed channel.
	mu     sync.Mutex
	closed bool
	send   chan outbound
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) trySend(msg outbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection gone")
	}
	select {
	case c.send <- msg:
		return nil
	default:
		// Write queue full; treat as undeliverable rather than block.
		return errors.New("send buffer full")
	}
}

// Hub owns all live connections and their presence registrations.
type Hub struct {
	registry   *presence.Registry
	triggers   TriggerFirer
	meta       ClientMetaSyncer
	dispatcher events.Dispatcher
	logger     *zap.Logger
	sendBuf    int

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub constructs the hub. The trigger and metadata collaborators are
// attached afterwards via Bind since they in turn depend on the hub for
// delivery.
func NewHub(registry *presence.Registry, dispatcher events.Dispatcher, logger *zap.Logger, sendBuf int) *Hub {
	if sendBuf <= 0 {
		sendBuf = 256
	}
	return &Hub{
		registry:   registry,
		dispatcher: dispatcher,
		logger:     logger,
		sendBuf:    sendBuf,
		clients:    make(map[string]*Client),
	}
}

// Bind attaches the service collaborators. Must happen before the server
// starts accepting connections.
func (h *Hub) Bind(triggers TriggerFirer, meta ClientMetaSyncer) {
	h.triggers = triggers
	h.meta = meta
}

// Notify pushes one payload to the connection identified by connID.
// Implements the fan-out Notifier contract.
func (h *Hub) Notify(connID, event string, payload any) error {
	h.mu.RLock()
	client, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return errors.New("connection gone")
	}
	return client.trySend(outbound{Event: event, Data: payload})
}

func (h *Hub) addClient(conn *websocket.Conn) *Client {
	client := &Client{
		ID:   uuid.NewString(),
		conn: conn,
		send: make(chan outbound, h.sendBuf),
	}
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()

	go client.writePump()
	return client
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	delete(h.clients, client.ID)
	h.mu.Unlock()
	client.close()
}

func (c *Client) writePump() {
	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

func (h *Hub) publishEvent(event events.Event) {
	if h.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = h.dispatcher.Publish(context.Background(), event)
}
