package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/livechat-service/internal/auth"
	"github.com/spec-kit/livechat-service/internal/domain"
	"github.com/spec-kit/livechat-service/internal/events"
	"github.com/spec-kit/livechat-service/internal/presence"
	"github.com/spec-kit/livechat-service/internal/repository"
)

const (
	localUserAgent = "ws_user_agent"
	localAPIKey    = "ws_api_key"
	localSID       = "ws_sid"
	localToken     = "ws_token"
)

// ConnectionHandler upgrades HTTP requests and runs the per-connection
// loops. A visitor identifies with api_key + sid query params; an agent
// presents a bearer token and then joins its business room.
type ConnectionHandler struct {
	hub        *Hub
	tokens     *auth.TokenManager
	businesses repository.BusinessRepository
	logger     *zap.Logger
}

// NewConnectionHandler constructs the handler.
func NewConnectionHandler(hub *Hub, tokens *auth.TokenManager, businesses repository.BusinessRepository, logger *zap.Logger) *ConnectionHandler {
	return &ConnectionHandler{hub: hub, tokens: tokens, businesses: businesses, logger: logger}
}

// Upgrade gates the websocket route and stashes request data the socket
// handler needs after the protocol switch.
func (h *ConnectionHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	c.Locals(localUserAgent, c.Get("User-Agent"))
	c.Locals(localAPIKey, c.Query("api_key"))
	c.Locals(localSID, c.Query("sid"))
	c.Locals(localToken, c.Query("token"))
	return c.Next()
}

// Handler returns the websocket endpoint.
func (h *ConnectionHandler) Handler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		apiKey, _ := conn.Locals(localAPIKey).(string)
		if apiKey != "" {
			h.serveVisitor(conn, apiKey)
			return
		}
		h.serveAgent(conn)
	})
}

// serveVisitor registers widget presence keyed by sid for the lifetime of
// the connection.
func (h *ConnectionHandler) serveVisitor(conn *websocket.Conn, apiKey string) {
	sid, _ := conn.Locals(localSID).(string)
	if strings.TrimSpace(sid) == "" {
		_ = conn.Close()
		return
	}

	business, err := h.businesses.GetByAPIKey(context.Background(), apiKey)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			h.logger.Warn("resolve api key failed", zap.Error(err))
		}
		_ = conn.Close()
		return
	}

	userAgent, _ := conn.Locals(localUserAgent).(string)
	client := h.hub.addClient(conn)
	visitor := presence.Visitor{
		SID:         sid,
		ConnID:      client.ID,
		UserAgent:   userAgent,
		ConnectedAt: time.Now(),
	}
	h.hub.registry.RegisterVisitor(business.ID, visitor)
	h.hub.publishEvent(events.Event{
		Type:       events.EventVisitorConnected,
		BusinessID: business.ID,
		Actor:      events.Actor{Type: domain.SubjectTypeVisitor, SID: &sid},
		Payload:    events.VisitorPresencePayload{SID: sid, UserAgent: userAgent},
	})

	h.readLoop(conn, client, business.ID, sid)

	h.hub.registry.UnregisterVisitor(business.ID, sid, client.ID)
	h.hub.removeClient(client)
	h.hub.publishEvent(events.Event{
		Type:       events.EventVisitorDisconnected,
		BusinessID: business.ID,
		Actor:      events.Actor{Type: domain.SubjectTypeVisitor, SID: &sid},
		Payload:    events.VisitorPresencePayload{SID: sid},
	})
}

// serveAgent authenticates the dashboard socket and waits for a join-room
// frame before registering business-wide presence.
func (h *ConnectionHandler) serveAgent(conn *websocket.Conn) {
	tokenStr, _ := conn.Locals(localToken).(string)
	claims, err := h.tokens.ParseToken(tokenStr)
	if err != nil || claims.Subject != domain.SubjectTypeAgent || claims.BusinessID == "" {
		_ = conn.Close()
		return
	}

	client := h.hub.addClient(conn)
	joined := false

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}
		switch frame.Event {
		case frameJoinRoom:
			var data struct {
				BusinessID string `json:"business_id"`
			}
			_ = json.Unmarshal(frame.Data, &data)
			// Agents may only join the room their token is scoped to.
			if data.BusinessID != "" && data.BusinessID != claims.BusinessID {
				continue
			}
			h.hub.registry.Register(claims.BusinessID, client.ID)
			joined = true
		case frameTriggerFire:
			h.handleTriggerFire(claims.BusinessID, frame.Data)
		}
	}

	if joined {
		h.hub.registry.Unregister(claims.BusinessID, client.ID)
	}
	h.hub.removeClient(client)
}

// readLoop processes inbound visitor frames until the connection drops.
func (h *ConnectionHandler) readLoop(conn *websocket.Conn, client *Client, businessID, sid string) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}
		switch frame.Event {
		case frameTriggerFire:
			h.handleTriggerFire(businessID, frame.Data)
		case frameClientMeta:
			h.handleClientMeta(businessID, sid, frame.Data)
		}
	}
}

func (h *ConnectionHandler) handleTriggerFire(businessID string, data json.RawMessage) {
	var payload struct {
		SID       string `json:"sid"`
		TriggerID string `json:"trigger_id"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	if payload.SID == "" || payload.TriggerID == "" {
		return
	}
	if _, err := h.hub.triggers.Fire(context.Background(), businessID, payload.SID, payload.TriggerID); err != nil {
		h.logger.Warn("trigger fire failed",
			zap.String("business_id", businessID),
			zap.String("trigger", payload.TriggerID),
			zap.Error(err))
	}
}

func (h *ConnectionHandler) handleClientMeta(businessID, sid string, data json.RawMessage) {
	var payload struct {
		Country *string `json:"country"`
		City    *string `json:"city"`
		Browser *string `json:"browser"`
		OS      *string `json:"os"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	meta := repository.SessionClientMeta{
		Country: payload.Country,
		City:    payload.City,
		Browser: payload.Browser,
		OS:      payload.OS,
	}
	if err := h.hub.meta.SyncClientMeta(context.Background(), businessID, sid, meta); err != nil {
		h.logger.Warn("sync client meta failed", zap.String("sid", sid), zap.Error(err))
	}
}
