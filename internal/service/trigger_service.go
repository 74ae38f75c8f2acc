package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/livechat-service/internal/domain"
	"github.com/spec-kit/livechat-service/internal/events"
	"github.com/spec-kit/livechat-service/internal/repository"
	apperrors "github.com/spec-kit/livechat-service/pkg/util/errorutil"
)

// TriggerService manages tenant-configured automated rules and handles the
// firing consequence. Condition evaluation (page match, leave intent, link
// click, elapsed delay) happens in the widget client; the service only
// reacts to reported fires.
type TriggerService struct {
	triggers   repository.TriggerRepository
	sessions   repository.SessionRepository
	messages   repository.MessageRepository
	businesses repository.BusinessRepository
	agents     repository.AgentRepository
	fanout     *Fanout
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// TriggerDependencies bundles collaborators for the trigger service.
type TriggerDependencies struct {
	TriggerRepo  repository.TriggerRepository
	SessionRepo  repository.SessionRepository
	MessageRepo  repository.MessageRepository
	BusinessRepo repository.BusinessRepository
	AgentRepo    repository.AgentRepository
	Fanout       *Fanout
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
}

// TriggerInput describes trigger create/update payloads.
type TriggerInput struct {
	Name         string
	Identifier   string
	Action       domain.TriggerAction
	Message      string
	Conditions   []domain.TriggerCondition
	OnlyIfOnline bool
	ExecuteOnce  bool
	DelaySeconds int
}

// NewTriggerService constructs the service.
func NewTriggerService(deps TriggerDependencies) *TriggerService {
	return &TriggerService{
		triggers:   deps.TriggerRepo,
		sessions:   deps.SessionRepo,
		messages:   deps.MessageRepo,
		businesses: deps.BusinessRepo,
		agents:     deps.AgentRepo,
		fanout:     deps.Fanout,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
	}
}

// Create stores a new trigger rule. The identifier must be globally unique;
// it is the stable reference the widget script fires by.
func (s *TriggerService) Create(ctx context.Context, businessID string, input TriggerInput) (*domain.Trigger, error) {
	if err := validateTriggerInput(input); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Identifier) == "" {
		return nil, apperrors.NewValidationError("identifier required", nil)
	}
	trigger := &domain.Trigger{
		BusinessID:   businessID,
		Name:         strings.TrimSpace(input.Name),
		Identifier:   strings.TrimSpace(input.Identifier),
		Action:       input.Action,
		Message:      strings.TrimSpace(input.Message),
		Conditions:   input.Conditions,
		OnlyIfOnline: input.OnlyIfOnline,
		ExecuteOnce:  input.ExecuteOnce,
		DelaySeconds: input.DelaySeconds,
	}
	if trigger.Conditions == nil {
		trigger.Conditions = []domain.TriggerCondition{}
	}
	if err := s.triggers.Create(ctx, trigger); err != nil {
		if errors.Is(err, repository.ErrDuplicateIdentifier) {
			return nil, apperrors.NewConflict("trigger identifier already in use", map[string]any{"identifier": trigger.Identifier})
		}
		return nil, err
	}
	return trigger, nil
}

// Update rewrites a trigger's rule fields. The identifier is immutable.
func (s *TriggerService) Update(ctx context.Context, businessID, id string, input TriggerInput) (*domain.Trigger, error) {
	if err := validateTriggerInput(input); err != nil {
		return nil, err
	}
	trigger := &domain.Trigger{
		ID:           id,
		BusinessID:   businessID,
		Name:         strings.TrimSpace(input.Name),
		Action:       input.Action,
		Message:      strings.TrimSpace(input.Message),
		Conditions:   input.Conditions,
		OnlyIfOnline: input.OnlyIfOnline,
		ExecuteOnce:  input.ExecuteOnce,
		DelaySeconds: input.DelaySeconds,
	}
	if trigger.Conditions == nil {
		trigger.Conditions = []domain.TriggerCondition{}
	}
	if err := s.triggers.Update(ctx, trigger); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("trigger", map[string]any{"id": id})
		}
		return nil, err
	}
	return trigger, nil
}

// Delete removes a trigger rule.
func (s *TriggerService) Delete(ctx context.Context, businessID, id string) error {
	if err := s.triggers.Delete(ctx, businessID, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("trigger", map[string]any{"id": id})
		}
		return err
	}
	return nil
}

// ListByBusiness returns all triggers of a business for the dashboard.
func (s *TriggerService) ListByBusiness(ctx context.Context, businessID string) ([]domain.Trigger, error) {
	return s.triggers.ListByBusiness(ctx, businessID)
}

// ListForWidget resolves the tenant by API key and returns its triggers for
// the client-side evaluator.
func (s *TriggerService) ListForWidget(ctx context.Context, apiKey string) ([]domain.Trigger, error) {
	business, err := s.businesses.GetByAPIKey(ctx, apiKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("business", map[string]any{"api_key": apiKey})
		}
		return nil, err
	}
	return s.triggers.ListByBusiness(ctx, business.ID)
}

// Fire injects the trigger's automated message into the session identified
// by sid. A fire for a session that does not exist yet is a silent no-op: a
// trigger cannot start a conversation. The onlyIfOnline precondition is the
// caller's responsibility; delivery is still presence-conditioned at push
// time either way. With executeOnce set, repeat fires for the same session
// are suppressed via the fire log.
func (s *TriggerService) Fire(ctx context.Context, businessID, sid, identifier string) (*domain.Message, error) {
	trigger, err := s.triggers.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("trigger", map[string]any{"identifier": identifier})
		}
		return nil, err
	}
	if trigger.BusinessID != businessID {
		return nil, apperrors.NewNotFound("trigger", map[string]any{"identifier": identifier})
	}

	session, err := s.sessions.GetBySID(ctx, businessID, sid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if trigger.ExecuteOnce {
		fired, err := s.triggers.HasFired(ctx, trigger.ID, session.ID)
		if err != nil {
			return nil, err
		}
		if fired {
			return nil, nil
		}
	}

	msg := &domain.Message{
		BusinessID:  businessID,
		SessionID:   session.ID,
		Sender:      domain.SenderBusiness,
		SenderID:    session.AssignedAgentID,
		ContentType: domain.ContentTypeText,
		Content:     trigger.Message,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}

	var profile *domain.AgentProfile
	if msg.SenderID != nil {
		if agent, err := s.agents.GetByID(ctx, *msg.SenderID); err == nil {
			p := agent.Profile()
			profile = &p
		}
	}
	delivered := s.fanout.Push(session.SID, EventTriggerMessage, TriggerMessagePayload{
		Message: messagePayload(msg, session.SID, profile),
		Trigger: TriggerPayload{Identifier: trigger.Identifier, Action: trigger.Action},
	})

	if err := s.triggers.RecordFire(ctx, trigger.ID, session.ID); err != nil {
		s.logger.Warn("record trigger fire failed", zap.String("trigger_id", trigger.ID), zap.Error(err))
	}

	s.publishEvent(ctx, events.Event{
		Type:       events.EventTriggerFired,
		BusinessID: businessID,
		SessionID:  session.ID,
		Actor:      visitorActor(sid),
		Payload: events.TriggerFiredPayload{
			TriggerID:  trigger.ID,
			Identifier: trigger.Identifier,
			MessageID:  msg.ID,
			Delivered:  delivered,
		},
	})
	return msg, nil
}

func (s *TriggerService) publishEvent(ctx context.Context, event events.Event) {
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

func validateTriggerInput(input TriggerInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return apperrors.NewValidationError("name required", nil)
	}
	if input.Action != domain.TriggerActionShowMessage && input.Action != domain.TriggerActionOpenChatbox {
		return apperrors.NewValidationError("unsupported trigger action", nil)
	}
	if strings.TrimSpace(input.Message) == "" {
		return apperrors.NewValidationError("message required", nil)
	}
	for _, cond := range input.Conditions {
		switch cond.Type {
		case domain.ConditionOnLeaveIntent, domain.ConditionOnClickLink, domain.ConditionOnPage, domain.ConditionAfterDelay:
		default:
			return apperrors.NewValidationError("unsupported condition type", map[string]any{"type": string(cond.Type)})
		}
	}
	if input.DelaySeconds < 0 {
		return apperrors.NewValidationError("delay must not be negative", nil)
	}
	return nil
}
