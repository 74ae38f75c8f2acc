package domain

import "time"

// MessageSender indicates which side of the conversation authored a message.
type MessageSender string

const (
	SenderCustomer MessageSender = "customer"
	SenderBusiness MessageSender = "business"
)

// MessageContentType differentiates message payload kinds. For image and
// audio the content holds a relative resource path, never raw bytes.
type MessageContentType string

const (
	ContentTypeText        MessageContentType = "text"
	ContentTypeImage       MessageContentType = "image"
	ContentTypeAudio       MessageContentType = "audio"
	ContentTypeEmailPrompt MessageContentType = "email_prompt"
)

// Message is one chat event. Immutable once created except for the IsRead
// flag, which only transitions false to true.
type Message struct {
	ID          string
	BusinessID  string
	SessionID   string
	Sender      MessageSender
	SenderID    *string
	ContentType MessageContentType
	Content     string
	IsRead      bool
	CreatedAt   time.Time
}

// RequiresBinary reports whether the content type must carry an uploaded
// resource.
func (t MessageContentType) RequiresBinary() bool {
	return t == ContentTypeImage || t == ContentTypeAudio
}

// Valid reports whether the content type is one of the supported kinds.
func (t MessageContentType) Valid() bool {
	switch t {
	case ContentTypeText, ContentTypeImage, ContentTypeAudio, ContentTypeEmailPrompt:
		return true
	}
	return false
}
