package service

import (
	"context"
	"errors"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/livechat-service/internal/domain"
	"github.com/spec-kit/livechat-service/internal/events"
	"github.com/spec-kit/livechat-service/internal/repository"
	"github.com/spec-kit/livechat-service/internal/storage"
	apperrors "github.com/spec-kit/livechat-service/pkg/util/errorutil"
)

// MessageService persists chat messages and fans them out to live
// recipients.
type MessageService struct {
	sessions        *SessionService
	sessionRepo     repository.SessionRepository
	messages        repository.MessageRepository
	businesses      repository.BusinessRepository
	agents          repository.AgentRepository
	store           storage.Store
	fanout          *Fanout
	dispatcher      events.Dispatcher
	logger          *zap.Logger
	emailPromptText string
}

// MessageDependencies bundles collaborators for the message service.
type MessageDependencies struct {
	Sessions        *SessionService
	SessionRepo     repository.SessionRepository
	MessageRepo     repository.MessageRepository
	BusinessRepo    repository.BusinessRepository
	AgentRepo       repository.AgentRepository
	Store           storage.Store
	Fanout          *Fanout
	Dispatcher      events.Dispatcher
	Logger          *zap.Logger
	EmailPromptText string
}

// SendInput describes a message send request after boundary validation.
type SendInput struct {
	BusinessID    string
	Sender        domain.MessageSender
	SenderID      *string
	ContentType   domain.MessageContentType
	Content       string
	Upload        *UploadInput
	SID           string
	CustomerEmail *string
}

// UploadInput carries the binary resource attached to image/audio messages.
type UploadInput struct {
	Filename string
	Reader   io.Reader
}

// InboxRow is one dashboard inbox entry. The display name is presentation
// data only and stable within a single call, not across calls.
type InboxRow struct {
	SessionID       string                    `json:"session_id"`
	SID             string                    `json:"sid"`
	DisplayName     string                    `json:"display_name"`
	CustomerEmail   *string                   `json:"customer_email,omitempty"`
	IsResolved      bool                      `json:"is_resolved"`
	LastContent     string                    `json:"last_content"`
	LastContentType domain.MessageContentType `json:"last_content_type"`
	LastMessageAt   time.Time                 `json:"last_message_at"`
	TotalMessages   int                       `json:"total_messages"`
	UnreadMessages  int                       `json:"unread_messages"`
}

// CustomerView is the widget-facing read model for one session.
type CustomerView struct {
	Messages      []domain.Message
	CustomerEmail *string
	IsResolved    bool
	CurrentAgent  *domain.AgentProfile
}

// NewMessageService constructs the service.
func NewMessageService(deps MessageDependencies) *MessageService {
	return &MessageService{
		sessions:        deps.Sessions,
		sessionRepo:     deps.SessionRepo,
		messages:        deps.MessageRepo,
		businesses:      deps.BusinessRepo,
		agents:          deps.AgentRepo,
		store:           deps.Store,
		fanout:          deps.Fanout,
		dispatcher:      deps.Dispatcher,
		logger:          deps.Logger,
		emailPromptText: deps.EmailPromptText,
	}
}

// Send persists one message and attempts synchronous delivery to the
// counterpart if online. Persistence failures fail the call; a missing or
// failed push never does. The first anonymous customer message additionally
// injects a persisted email prompt addressed to the visitor.
func (s *MessageService) Send(ctx context.Context, input SendInput) (*domain.Message, error) {
	if input.Sender != domain.SenderCustomer && input.Sender != domain.SenderBusiness {
		return nil, apperrors.NewValidationError("sender must be customer or business", nil)
	}
	if !input.ContentType.Valid() {
		return nil, apperrors.NewValidationError("unsupported content type", nil)
	}

	session, _, err := s.sessions.Resolve(ctx, input.BusinessID, input.CustomerEmail, input.SID)
	if err != nil {
		return nil, err
	}

	priorCount, err := s.messages.CountBySession(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	content := strings.TrimSpace(input.Content)
	if input.ContentType.RequiresBinary() {
		if input.Upload == nil {
			return nil, apperrors.NewValidationError("image and audio messages require an attached file", nil)
		}
		path, err := s.store.Save(ctx, input.Upload.Filename, input.Upload.Reader)
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		content = path
	} else if content == "" {
		return nil, apperrors.NewValidationError("content is required", nil)
	}

	msg := &domain.Message{
		BusinessID:  session.BusinessID,
		SessionID:   session.ID,
		Sender:      input.Sender,
		SenderID:    nil,
		ContentType: input.ContentType,
		Content:     content,
	}
	if input.Sender == domain.SenderBusiness {
		msg.SenderID = input.SenderID
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}

	// First responder claims the session; later agents overwrite the claim.
	if input.Sender == domain.SenderBusiness && input.SenderID != nil {
		if err := s.sessionRepo.UpdateAssignedAgent(ctx, session.ID, *input.SenderID); err != nil {
			s.logger.Warn("assign agent failed", zap.String("session_id", session.ID), zap.Error(err))
		}
	}

	isFirstMessage := priorCount == 0 && input.Sender == domain.SenderCustomer && session.CustomerEmail == nil
	if isFirstMessage {
		s.injectEmailPrompt(ctx, session)
	}

	delivered := s.deliver(ctx, msg, session)

	s.publishEvent(ctx, events.Event{
		Type:       events.EventMessageCreated,
		BusinessID: session.BusinessID,
		SessionID:  session.ID,
		Actor:      senderActor(input.Sender, input.SenderID, session.SID),
		Payload: events.MessageCreatedPayload{
			MessageID:   msg.ID,
			Sender:      msg.Sender,
			SenderID:    msg.SenderID,
			ContentType: msg.ContentType,
			Delivered:   delivered,
		},
	})
	return msg, nil
}

// injectEmailPrompt synthesizes and persists the email prompt companion of
// the first anonymous message, then pushes it to the visitor if online.
func (s *MessageService) injectEmailPrompt(ctx context.Context, session *domain.Session) {
	prompt := &domain.Message{
		BusinessID:  session.BusinessID,
		SessionID:   session.ID,
		Sender:      domain.SenderBusiness,
		ContentType: domain.ContentTypeEmailPrompt,
		Content:     s.emailPromptText,
	}
	if err := s.messages.Create(ctx, prompt); err != nil {
		s.logger.Error("persist email prompt failed", zap.String("session_id", session.ID), zap.Error(err))
		return
	}
	s.fanout.Push(session.SID, EventReceiveMessage, messagePayload(prompt, session.SID, nil))
}

// deliver resolves the recipient key, enriches business messages with the
// sending agent's public profile, and pushes best-effort.
func (s *MessageService) deliver(ctx context.Context, msg *domain.Message, session *domain.Session) bool {
	var profile *domain.AgentProfile
	if msg.Sender == domain.SenderBusiness && msg.SenderID != nil {
		profile = s.agentProfile(ctx, *msg.SenderID)
	}
	key := RecipientKey(msg, session.SID)
	return s.fanout.Push(key, EventReceiveMessage, messagePayload(msg, session.SID, profile))
}

func (s *MessageService) agentProfile(ctx context.Context, agentID string) *domain.AgentProfile {
	agent, err := s.agents.GetByID(ctx, agentID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			s.logger.Warn("load agent profile failed", zap.String("agent_id", agentID), zap.Error(err))
		}
		return nil
	}
	profile := agent.Profile()
	return &profile
}

// GetForCustomer serves the widget-initiated message fetch, authenticated
// only by the tenant API key. A first fetch for an unseen sid bootstraps the
// session with the tenant's configured welcome message; a tenant without
// welcome text yields an explicit widget-not-configured condition so the
// visitor sees "assistance unavailable" rather than an error.
func (s *MessageService) GetForCustomer(ctx context.Context, apiKey, sid string) (*CustomerView, error) {
	if strings.TrimSpace(sid) == "" {
		return nil, apperrors.NewValidationError("sid is required", nil)
	}
	business, err := s.businesses.GetByAPIKey(ctx, apiKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("business", map[string]any{"api_key": apiKey})
		}
		return nil, err
	}

	session, err := s.sessionRepo.GetBySID(ctx, business.ID, sid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s.bootstrapWelcome(ctx, business, sid)
		}
		return nil, err
	}

	msgs, err := s.messages.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	return &CustomerView{
		Messages:      msgs,
		CustomerEmail: session.CustomerEmail,
		IsResolved:    session.IsResolved,
		CurrentAgent:  s.latestRespondingAgent(ctx, msgs),
	}, nil
}

func (s *MessageService) bootstrapWelcome(ctx context.Context, business *domain.Business, sid string) (*CustomerView, error) {
	if business.WidgetWelcomeMessage == nil || strings.TrimSpace(*business.WidgetWelcomeMessage) == "" {
		return nil, apperrors.NewNotFound("widget", map[string]any{"business_id": business.ID})
	}
	session, _, err := s.sessions.Resolve(ctx, business.ID, nil, sid)
	if err != nil {
		return nil, err
	}
	welcome := &domain.Message{
		BusinessID:  business.ID,
		SessionID:   session.ID,
		Sender:      domain.SenderBusiness,
		ContentType: domain.ContentTypeText,
		Content:     *business.WidgetWelcomeMessage,
	}
	if err := s.messages.Create(ctx, welcome); err != nil {
		return nil, err
	}
	return &CustomerView{
		Messages:   []domain.Message{*welcome},
		IsResolved: session.IsResolved,
	}, nil
}

// latestRespondingAgent scans business-sent messages newest-first for the
// first non-null sender and returns that agent's public profile.
func (s *MessageService) latestRespondingAgent(ctx context.Context, msgs []domain.Message) *domain.AgentProfile {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Sender == domain.SenderBusiness && msgs[i].SenderID != nil {
			return s.agentProfile(ctx, *msgs[i].SenderID)
		}
	}
	return nil
}

// FetchConversations builds the dashboard inbox: one row per session that
// has messages, newest conversation first. A nil result means the business
// has no sessions at all; an empty non-nil result means sessions exist but
// none has messages yet.
func (s *MessageService) FetchConversations(ctx context.Context, businessID string) ([]InboxRow, error) {
	sessions, err := s.sessionRepo.ListByBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}

	msgs, err := s.messages.ListByBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}

	type sessionStats struct {
		last   *domain.Message
		total  int
		unread int
	}
	stats := make(map[string]*sessionStats, len(sessions))
	for i := range msgs {
		msg := &msgs[i]
		st, ok := stats[msg.SessionID]
		if !ok {
			st = &sessionStats{last: msg}
			stats[msg.SessionID] = st
		}
		st.total++
		if !msg.IsRead {
			st.unread++
		}
	}

	rows := make([]InboxRow, 0, len(sessions))
	anonCounter := 0
	for i := range sessions {
		session := &sessions[i]
		st, ok := stats[session.ID]
		if !ok {
			continue
		}
		name := ""
		if session.CustomerEmail != nil {
			name = emailLocalPart(*session.CustomerEmail)
		}
		if name == "" {
			anonCounter++
			name = "visitor" + strconv.Itoa(anonCounter)
		}
		rows = append(rows, InboxRow{
			SessionID:       session.ID,
			SID:             session.SID,
			DisplayName:     name,
			CustomerEmail:   session.CustomerEmail,
			IsResolved:      session.IsResolved,
			LastContent:     st.last.Content,
			LastContentType: st.last.ContentType,
			LastMessageAt:   st.last.CreatedAt,
			TotalMessages:   st.total,
			UnreadMessages:  st.unread,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].LastMessageAt.After(rows[j].LastMessageAt)
	})
	return rows, nil
}

// FetchBySession returns a session's full ordered history for the
// dashboard.
func (s *MessageService) FetchBySession(ctx context.Context, businessID, sessionID string) ([]domain.Message, error) {
	session, err := s.sessionRepo.GetByID(ctx, businessID, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("session", map[string]any{"id": sessionID})
		}
		return nil, err
	}
	return s.messages.ListBySession(ctx, session.ID)
}

// MarkRead flips is_read for the given message ids. Idempotent; ids that are
// already read or unknown are ignored.
func (s *MessageService) MarkRead(ctx context.Context, ids []string) error {
	cleaned := make([]string, 0, len(ids))
	for _, id := range ids {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	if len(cleaned) == 0 {
		return apperrors.NewValidationError("message ids required", nil)
	}
	return s.messages.MarkRead(ctx, cleaned)
}

func (s *MessageService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func senderActor(sender domain.MessageSender, senderID *string, sid string) events.Actor {
	if sender == domain.SenderBusiness {
		if senderID != nil {
			return events.Actor{Type: domain.SubjectTypeAgent, AgentID: senderID}
		}
		return events.Actor{Type: domain.SubjectTypeAgent}
	}
	return visitorActor(sid)
}

func emailLocalPart(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}
