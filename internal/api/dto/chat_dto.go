package dto

import (
	"time"

	"github.com/spec-kit/livechat-service/internal/domain"
)

// SendWidgetMessageRequest is the visitor-side send payload. Image/audio
// sends arrive as multipart with the binary under the "file" field instead.
type SendWidgetMessageRequest struct {
	SID           string                    `json:"sid"`
	Content       string                    `json:"content"`
	ContentType   domain.MessageContentType `json:"content_type"`
	CustomerEmail *string                   `json:"customer_email,omitempty"`
}

// SendAgentMessageRequest is the dashboard reply payload.
type SendAgentMessageRequest struct {
	Content     string                    `json:"content"`
	ContentType domain.MessageContentType `json:"content_type"`
}

// UpdateEmailRequest attaches an email to an anonymous session.
type UpdateEmailRequest struct {
	SID   string `json:"sid"`
	Email string `json:"email"`
}

// MarkReadRequest carries a comma-separated list of message ids.
type MarkReadRequest struct {
	MessageIDs string `json:"message_ids"`
}

// UpdateSessionMetaRequest carries agent-editable session fields; nil
// fields are left unchanged.
type UpdateSessionMetaRequest struct {
	Segments *[]string `json:"segments,omitempty"`
	Notes    *string   `json:"notes,omitempty"`
}

// ResolveSessionRequest flips the resolution flag.
type ResolveSessionRequest struct {
	Resolved bool `json:"resolved"`
}

// RateConversationRequest carries the visitor's conversation rating.
type RateConversationRequest struct {
	SID    string `json:"sid"`
	Rating int16  `json:"rating"`
}

// MessageResponse is the REST view of a message.
type MessageResponse struct {
	ID          string                    `json:"id"`
	SessionID   string                    `json:"session_id"`
	Sender      domain.MessageSender      `json:"sender"`
	SenderID    *string                   `json:"sender_id,omitempty"`
	ContentType domain.MessageContentType `json:"content_type"`
	Content     string                    `json:"content"`
	IsRead      bool                      `json:"is_read"`
	CreatedAt   time.Time                 `json:"created_at"`
}

// CustomerMessagesResponse is the widget-facing read model.
type CustomerMessagesResponse struct {
	Messages      []MessageResponse    `json:"messages"`
	CustomerEmail *string              `json:"customer_email,omitempty"`
	IsResolved    bool                 `json:"is_resolved"`
	CurrentAgent  *domain.AgentProfile `json:"current_agent,omitempty"`
}

// SessionResponse is the REST view of a session.
type SessionResponse struct {
	ID              string    `json:"id"`
	SID             string    `json:"sid"`
	CustomerEmail   *string   `json:"customer_email,omitempty"`
	AssignedAgentID *string   `json:"assigned_agent_id,omitempty"`
	IsResolved      bool      `json:"is_resolved"`
	Notes           string    `json:"notes"`
	Segments        []string  `json:"segments"`
	Country         *string   `json:"country,omitempty"`
	City            *string   `json:"city,omitempty"`
	Browser         *string   `json:"browser,omitempty"`
	OS              *string   `json:"os,omitempty"`
	Rating          *int16    `json:"rating,omitempty"`
	LastActive      time.Time `json:"last_active"`
	CreatedAt       time.Time `json:"created_at"`
}

// LiveVisitorResponse is one online widget connection.
type LiveVisitorResponse struct {
	SID         string    `json:"sid"`
	UserAgent   string    `json:"user_agent"`
	ConnectedAt time.Time `json:"connected_at"`
}
