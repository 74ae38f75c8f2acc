package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/livechat-service/internal/domain"
	"github.com/spec-kit/livechat-service/internal/observability"
	"github.com/spec-kit/livechat-service/internal/presence"
)

// Transport events produced by the fan-out path.
const (
	EventReceiveMessage = "receiveMessage"
	EventTriggerMessage = "trigger-message"
)

// Notifier pushes a payload to one live transport connection. The realtime
// hub implements it; tests substitute a recording fake.
type Notifier interface {
	Notify(connID, event string, payload any) error
}

// MessagePayload is the enriched wire form of a message pushed over the
// transport. The agent profile is presentation data attached at push time,
// never persisted on the message row.
type MessagePayload struct {
	ID          string                    `json:"id"`
	SessionID   string                    `json:"session_id"`
	SID         string                    `json:"sid"`
	Sender      domain.MessageSender      `json:"sender"`
	ContentType domain.MessageContentType `json:"content_type"`
	Content     string                    `json:"content"`
	CreatedAt   time.Time                 `json:"created_at"`
	Agent       *domain.AgentProfile      `json:"agent,omitempty"`
}

// TriggerMessagePayload wraps a trigger-injected message together with the
// rule that produced it.
type TriggerMessagePayload struct {
	Message MessagePayload `json:"message"`
	Trigger TriggerPayload `json:"trigger"`
}

// TriggerPayload is the widget-facing slice of a trigger rule.
type TriggerPayload struct {
	Identifier string               `json:"identifier"`
	Action     domain.TriggerAction `json:"action"`
}

// Fanout delivers persisted messages to their live recipient connection, if
// any. Delivery is best-effort and non-blocking: an offline recipient or a
// failed push is never an error, the message stays durably stored and the
// next history fetch returns it.
type Fanout struct {
	registry *presence.Registry
	notifier Notifier
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewFanout constructs the fan-out component.
func NewFanout(registry *presence.Registry, notifier Notifier, metrics *observability.Metrics, logger *zap.Logger) *Fanout {
	return &Fanout{registry: registry, notifier: notifier, metrics: metrics, logger: logger}
}

// RecipientKey resolves where a message should be pushed: customer messages
// go to the business inbox channel, business messages to the visitor sid.
func RecipientKey(msg *domain.Message, sid string) string {
	if msg.Sender == domain.SenderCustomer {
		return msg.BusinessID
	}
	return sid
}

// Push attempts delivery of payload to the connection currently registered
// under key. Returns whether the payload was handed to the transport.
func (f *Fanout) Push(key, event string, payload any) bool {
	connID, ok := f.registry.Lookup(key)
	if !ok {
		f.metrics.RecordPush("offline")
		return false
	}
	if err := f.notifier.Notify(connID, event, payload); err != nil {
		f.metrics.RecordPush("failed")
		f.logger.Debug("push failed", zap.String("key", key), zap.Error(err))
		return false
	}
	f.metrics.RecordPush("delivered")
	return true
}

func messagePayload(msg *domain.Message, sid string, agent *domain.AgentProfile) MessagePayload {
	return MessagePayload{
		ID:          msg.ID,
		SessionID:   msg.SessionID,
		SID:         sid,
		Sender:      msg.Sender,
		ContentType: msg.ContentType,
		Content:     msg.Content,
		CreatedAt:   msg.CreatedAt,
		Agent:       agent,
	}
}
