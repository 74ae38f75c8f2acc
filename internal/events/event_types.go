package events

import (
	"time"

	"github.com/spec-kit/livechat-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventSessionCreated      EventType = "session_created"
	EventMessageCreated      EventType = "message_created"
	EventEmailCaptured       EventType = "email_captured"
	EventSessionUpdated      EventType = "session_updated"
	EventTriggerFired        EventType = "trigger_fired"
	EventVisitorConnected    EventType = "visitor_connected"
	EventVisitorDisconnected EventType = "visitor_disconnected"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type    domain.SubjectType `json:"type"`
	AgentID *string            `json:"agent_id,omitempty"`
	SID     *string            `json:"sid,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID         string      `json:"id"`
	Type       EventType   `json:"type"`
	BusinessID string      `json:"business_id"`
	SessionID  string      `json:"session_id,omitempty"`
	Actor      Actor       `json:"actor"`
	Timestamp  time.Time   `json:"timestamp"`
	Payload    interface{} `json:"payload"`
}

// SessionCreatedPayload payload.
type SessionCreatedPayload struct {
	SID           string  `json:"sid"`
	CustomerEmail *string `json:"customer_email,omitempty"`
}

// MessageCreatedPayload payload.
type MessageCreatedPayload struct {
	MessageID   string                    `json:"message_id"`
	Sender      domain.MessageSender      `json:"sender"`
	SenderID    *string                   `json:"sender_id,omitempty"`
	ContentType domain.MessageContentType `json:"content_type"`
	Delivered   bool                      `json:"delivered"`
}

// EmailCapturedPayload payload.
type EmailCapturedPayload struct {
	SID   string `json:"sid"`
	Email string `json:"email"`
}

// SessionUpdatedPayload payload.
type SessionUpdatedPayload struct {
	Segments *[]string `json:"segments,omitempty"`
	Notes    *string   `json:"notes,omitempty"`
	Resolved *bool     `json:"resolved,omitempty"`
	Rating   *int16    `json:"rating,omitempty"`
}

// TriggerFiredPayload payload.
type TriggerFiredPayload struct {
	TriggerID  string `json:"trigger_id"`
	Identifier string `json:"identifier"`
	MessageID  string `json:"message_id"`
	Delivered  bool   `json:"delivered"`
}

// VisitorPresencePayload payload for connect/disconnect events.
type VisitorPresencePayload struct {
	SID       string `json:"sid"`
	UserAgent string `json:"user_agent,omitempty"`
}
