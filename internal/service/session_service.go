package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/livechat-service/internal/domain"
	"github.com/spec-kit/livechat-service/internal/events"
	"github.com/spec-kit/livechat-service/internal/repository"
	apperrors "github.com/spec-kit/livechat-service/pkg/util/errorutil"
)

// SessionService resolves inbound actors to durable sessions and owns
// session mutations.
type SessionService struct {
	sessions   repository.SessionRepository
	dispatcher events.Dispatcher
}

// SessionDependencies bundles repositories for the session service.
type SessionDependencies struct {
	SessionRepo repository.SessionRepository
	Dispatcher  events.Dispatcher
}

// SessionMetaInput describes agent-editable session fields. Nil fields are
// left unchanged.
type SessionMetaInput struct {
	Segments *[]string
	Notes    *string
}

// NewSessionService constructs the service.
func NewSessionService(deps SessionDependencies) *SessionService {
	return &SessionService{
		sessions:   deps.SessionRepo,
		dispatcher: deps.Dispatcher,
	}
}

// Resolve maps an inbound identity to exactly one session, creating it
// lazily. Lookup order: (businessID, customerEmail) when an email is
// present, then (businessID, sid). A sid hit with a fresh email attaches the
// email to the found session, so a visitor identifying mid-conversation
// never splits into a second session under the same sid. The returned bool
// reports whether a new session was created. When sid is empty a
// server-generated opaque token is assigned.
func (s *SessionService) Resolve(ctx context.Context, businessID string, customerEmail *string, sid string) (*domain.Session, bool, error) {
	email := normalizeEmail(customerEmail)
	if email == nil && strings.TrimSpace(sid) == "" {
		return nil, false, apperrors.NewValidationError("either customer_email or session sid is required", nil)
	}

	if email != nil {
		session, err := s.sessions.GetByEmail(ctx, businessID, *email)
		if err == nil {
			_ = s.sessions.TouchLastActive(ctx, session.ID)
			return session, false, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, false, err
		}
	}

	if strings.TrimSpace(sid) != "" {
		session, err := s.sessions.GetBySID(ctx, businessID, sid)
		if err == nil {
			if email != nil && (session.CustomerEmail == nil || *session.CustomerEmail != *email) {
				if err := s.sessions.UpdateEmail(ctx, businessID, sid, *email); err != nil {
					return nil, false, err
				}
				session.CustomerEmail = email
				s.publishEvent(ctx, events.Event{
					Type:       events.EventEmailCaptured,
					BusinessID: businessID,
					SessionID:  session.ID,
					Actor:      visitorActor(sid),
					Payload:    events.EmailCapturedPayload{SID: sid, Email: *email},
				})
			}
			_ = s.sessions.TouchLastActive(ctx, session.ID)
			return session, false, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, false, err
		}
	}

	if strings.TrimSpace(sid) == "" {
		sid = uuid.NewString()
	}
	session := &domain.Session{
		SID:           sid,
		BusinessID:    businessID,
		CustomerEmail: email,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, false, err
	}

	s.publishEvent(ctx, events.Event{
		Type:       events.EventSessionCreated,
		BusinessID: businessID,
		SessionID:  session.ID,
		Actor:      visitorActor(sid),
		Payload: events.SessionCreatedPayload{
			SID:           session.SID,
			CustomerEmail: session.CustomerEmail,
		},
	})
	return session, true, nil
}

// GetByID loads one session scoped to a business.
func (s *SessionService) GetByID(ctx context.Context, businessID, sessionID string) (*domain.Session, error) {
	session, err := s.sessions.GetByID(ctx, businessID, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("session", map[string]any{"id": sessionID})
		}
		return nil, err
	}
	return session, nil
}

// UpdateEmail attaches a customer email to the session identified by sid,
// moving it from the anonymous to the identified state. Later lookups by
// (businessID, email) resolve the same session.
func (s *SessionService) UpdateEmail(ctx context.Context, businessID, sid, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return apperrors.NewValidationError("email is required", nil)
	}
	if err := s.sessions.UpdateEmail(ctx, businessID, sid, email); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("session", map[string]any{"sid": sid})
		}
		return err
	}
	s.publishEvent(ctx, events.Event{
		Type:       events.EventEmailCaptured,
		BusinessID: businessID,
		Actor:      visitorActor(sid),
		Payload:    events.EmailCapturedPayload{SID: sid, Email: email},
	})
	return nil
}

// UpdateMeta applies segment/notes edits and returns the updated session.
func (s *SessionService) UpdateMeta(ctx context.Context, businessID, sessionID string, input SessionMetaInput, agentID string) (*domain.Session, error) {
	if input.Segments == nil && input.Notes == nil {
		return nil, apperrors.NewValidationError("nothing to update", nil)
	}
	if err := s.sessions.UpdateMeta(ctx, businessID, sessionID, input.Segments, input.Notes); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("session", map[string]any{"id": sessionID})
		}
		return nil, err
	}
	session, err := s.sessions.GetByID(ctx, businessID, sessionID)
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.Event{
		Type:       events.EventSessionUpdated,
		BusinessID: businessID,
		SessionID:  sessionID,
		Actor:      agentActor(agentID),
		Payload: events.SessionUpdatedPayload{
			Segments: input.Segments,
			Notes:    input.Notes,
		},
	})
	return session, nil
}

// SetResolved flips the orthogonal resolution flag. Resolved sessions keep
// accepting messages.
func (s *SessionService) SetResolved(ctx context.Context, businessID, sessionID string, resolved bool, agentID string) error {
	if err := s.sessions.SetResolved(ctx, businessID, sessionID, resolved); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("session", map[string]any{"id": sessionID})
		}
		return err
	}
	s.publishEvent(ctx, events.Event{
		Type:       events.EventSessionUpdated,
		BusinessID: businessID,
		SessionID:  sessionID,
		Actor:      agentActor(agentID),
		Payload:    events.SessionUpdatedPayload{Resolved: &resolved},
	})
	return nil
}

// SetRating stores the visitor's 1 to 5 conversation rating.
func (s *SessionService) SetRating(ctx context.Context, businessID, sid string, rating int16) error {
	if rating < 1 || rating > 5 {
		return apperrors.NewValidationError("rating must be between 1 and 5", nil)
	}
	if err := s.sessions.SetRating(ctx, businessID, sid, rating); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("session", map[string]any{"sid": sid})
		}
		return err
	}
	s.publishEvent(ctx, events.Event{
		Type:       events.EventSessionUpdated,
		BusinessID: businessID,
		Actor:      visitorActor(sid),
		Payload:    events.SessionUpdatedPayload{Rating: &rating},
	})
	return nil
}

// SyncClientMeta records browser and geolocation fields reported by the
// widget. Unknown sessions are ignored: metadata sync never creates one.
func (s *SessionService) SyncClientMeta(ctx context.Context, businessID, sid string, meta repository.SessionClientMeta) error {
	err := s.sessions.UpdateClientMeta(ctx, businessID, sid, meta)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	return err
}

func (s *SessionService) publishEvent(ctx context.Context, event events.Event) {
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

func normalizeEmail(email *string) *string {
	if email == nil {
		return nil
	}
	trimmed := strings.TrimSpace(strings.ToLower(*email))
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func visitorActor(sid string) events.Actor {
	return events.Actor{Type: domain.SubjectTypeVisitor, SID: &sid}
}

func agentActor(agentID string) events.Actor {
	if agentID == "" {
		return events.Actor{Type: domain.SubjectTypeAgent}
	}
	return events.Actor{Type: domain.SubjectTypeAgent, AgentID: &agentID}
}
