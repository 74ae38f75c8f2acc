package service

import (
	"context"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/livechat-service/internal/domain"
	"github.com/spec-kit/livechat-service/internal/events"
	"github.com/spec-kit/livechat-service/internal/observability"
	"github.com/spec-kit/livechat-service/internal/presence"
	"github.com/spec-kit/livechat-service/internal/repository"
)

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions []*domain.Session
	nextID   int
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{}
}

func (r *fakeSessionRepo) Create(ctx context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	session.ID = "session-" + strconv.Itoa(r.nextID)
	now := time.Now()
	session.LastActive = now
	session.CreatedAt = now
	session.UpdatedAt = now
	if session.Segments == nil {
		session.Segments = []string{}
	}
	stored := *session
	r.sessions = append(r.sessions, &stored)
	return nil
}

func (r *fakeSessionRepo) find(match func(*domain.Session) bool) *domain.Session {
	for _, s := range r.sessions {
		if match(s) {
			return s
		}
	}
	return nil
}

func (r *fakeSessionRepo) GetByID(ctx context.Context, businessID, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.find(func(s *domain.Session) bool { return s.BusinessID == businessID && s.ID == id }); s != nil {
		copied := *s
		return &copied, nil
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeSessionRepo) GetBySID(ctx context.Context, businessID, sid string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.find(func(s *domain.Session) bool { return s.BusinessID == businessID && s.SID == sid }); s != nil {
		copied := *s
		return &copied, nil
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeSessionRepo) GetByEmail(ctx context.Context, businessID, email string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.find(func(s *domain.Session) bool {
		return s.BusinessID == businessID && s.CustomerEmail != nil && *s.CustomerEmail == email
	}); s != nil {
		copied := *s
		return &copied, nil
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeSessionRepo) ListByBusiness(ctx context.Context, businessID string) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Session
	for _, s := range r.sessions {
		if s.BusinessID == businessID {
			result = append(result, *s)
		}
	}
	return result, nil
}

func (r *fakeSessionRepo) UpdateEmail(ctx context.Context, businessID, sid, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.find(func(s *domain.Session) bool { return s.BusinessID == businessID && s.SID == sid })
	if s == nil {
		return pgx.ErrNoRows
	}
	s.CustomerEmail = &email
	return nil
}

func (r *fakeSessionRepo) UpdateAssignedAgent(ctx context.Context, id string, agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.find(func(s *domain.Session) bool { return s.ID == id })
	if s == nil {
		return pgx.ErrNoRows
	}
	s.AssignedAgentID = &agentID
	return nil
}

func (r *fakeSessionRepo) UpdateMeta(ctx context.Context, businessID, id string, segments *[]string, notes *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.find(func(s *domain.Session) bool { return s.BusinessID == businessID && s.ID == id })
	if s == nil {
		return pgx.ErrNoRows
	}
	if segments != nil {
		s.Segments = *segments
	}
	if notes != nil {
		s.Notes = *notes
	}
	return nil
}

func (r *fakeSessionRepo) SetResolved(ctx context.Context, businessID, id string, resolved bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.find(func(s *domain.Session) bool { return s.BusinessID == businessID && s.ID == id })
	if s == nil {
		return pgx.ErrNoRows
	}
	s.IsResolved = resolved
	return nil
}

func (r *fakeSessionRepo) UpdateClientMeta(ctx context.Context, businessID, sid string, meta repository.SessionClientMeta) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.find(func(s *domain.Session) bool { return s.BusinessID == businessID && s.SID == sid })
	if s == nil {
		return pgx.ErrNoRows
	}
	if meta.Country != nil {
		s.Country = meta.Country
	}
	if meta.City != nil {
		s.City = meta.City
	}
	if meta.Browser != nil {
		s.Browser = meta.Browser
	}
	if meta.OS != nil {
		s.OS = meta.OS
	}
	return nil
}

func (r *fakeSessionRepo) SetRating(ctx context.Context, businessID, sid string, rating int16) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.find(func(s *domain.Session) bool { return s.BusinessID == businessID && s.SID == sid })
	if s == nil {
		return pgx.ErrNoRows
	}
	s.Rating = &rating
	return nil
}

func (r *fakeSessionRepo) TouchLastActive(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.find(func(s *domain.Session) bool { return s.ID == id }); s != nil {
		s.LastActive = time.Now()
	}
	return nil
}

type fakeMessageRepo struct {
	mu     sync.Mutex
	msgs   []*domain.Message
	nextID int
	clock  time.Time
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{clock: time.Now()}
}

func (r *fakeMessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	msg.ID = "message-" + strconv.Itoa(r.nextID)
	r.clock = r.clock.Add(time.Millisecond)
	msg.CreatedAt = r.clock
	stored := *msg
	r.msgs = append(r.msgs, &stored)
	return nil
}

func (r *fakeMessageRepo) ListBySession(ctx context.Context, sessionID string) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Message
	for _, m := range r.msgs {
		if m.SessionID == sessionID {
			result = append(result, *m)
		}
	}
	return result, nil
}

func (r *fakeMessageRepo) ListByBusiness(ctx context.Context, businessID string) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Message
	for i := len(r.msgs) - 1; i >= 0; i-- {
		if r.msgs[i].BusinessID == businessID {
			result = append(result, *r.msgs[i])
		}
	}
	return result, nil
}

func (r *fakeMessageRepo) CountBySession(ctx context.Context, sessionID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, m := range r.msgs {
		if m.SessionID == sessionID {
			count++
		}
	}
	return count, nil
}

func (r *fakeMessageRepo) MarkRead(ctx context.Context, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		for _, m := range r.msgs {
			if m.ID == id {
				m.IsRead = true
			}
		}
	}
	return nil
}

type fakeBusinessRepo struct {
	businesses []*domain.Business
}

func (r *fakeBusinessRepo) GetByID(ctx context.Context, id string) (*domain.Business, error) {
	for _, b := range r.businesses {
		if b.ID == id {
			copied := *b
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeBusinessRepo) GetByAPIKey(ctx context.Context, apiKey string) (*domain.Business, error) {
	for _, b := range r.businesses {
		if b.APIKey == apiKey {
			copied := *b
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

type fakeAgentRepo struct {
	agents []*domain.Agent
}

func (r *fakeAgentRepo) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	for _, a := range r.agents {
		if a.ID == id {
			copied := *a
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeAgentRepo) ListByBusiness(ctx context.Context, businessID string) ([]domain.Agent, error) {
	var result []domain.Agent
	for _, a := range r.agents {
		if a.BusinessID == businessID {
			result = append(result, *a)
		}
	}
	return result, nil
}

type fakeTriggerRepo struct {
	mu       sync.Mutex
	triggers []*domain.Trigger
	fires    map[string]bool
	nextID   int
}

func newFakeTriggerRepo() *fakeTriggerRepo {
	return &fakeTriggerRepo{fires: make(map[string]bool)}
}

func (r *fakeTriggerRepo) Create(ctx context.Context, trigger *domain.Trigger) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.triggers {
		if t.Identifier == trigger.Identifier {
			return repository.ErrDuplicateIdentifier
		}
	}
	r.nextID++
	trigger.ID = "trigger-" + strconv.Itoa(r.nextID)
	now := time.Now()
	trigger.CreatedAt = now
	trigger.UpdatedAt = now
	stored := *trigger
	r.triggers = append(r.triggers, &stored)
	return nil
}

func (r *fakeTriggerRepo) Update(ctx context.Context, trigger *domain.Trigger) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.triggers {
		if t.BusinessID == trigger.BusinessID && t.ID == trigger.ID {
			trigger.Identifier = t.Identifier
			*t = *trigger
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (r *fakeTriggerRepo) Delete(ctx context.Context, businessID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, t := range r.triggers {
		if t.BusinessID == businessID && t.ID == id {
			r.triggers = append(r.triggers[:i], r.triggers[i+1:]...)
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (r *fakeTriggerRepo) GetByIdentifier(ctx context.Context, identifier string) (*domain.Trigger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.triggers {
		if t.Identifier == identifier {
			copied := *t
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeTriggerRepo) ListByBusiness(ctx context.Context, businessID string) ([]domain.Trigger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Trigger
	for _, t := range r.triggers {
		if t.BusinessID == businessID {
			result = append(result, *t)
		}
	}
	return result, nil
}

func (r *fakeTriggerRepo) RecordFire(ctx context.Context, triggerID, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fires[triggerID+"/"+sessionID] = true
	return nil
}

func (r *fakeTriggerRepo) HasFired(ctx context.Context, triggerID, sessionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fires[triggerID+"/"+sessionID], nil
}

type fakeStore struct {
	saved []string
}

func (s *fakeStore) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	_, _ = io.Copy(io.Discard, r)
	path := "/uploads/" + filename
	s.saved = append(s.saved, path)
	return path, nil
}

type notification struct {
	ConnID  string
	Event   string
	Payload any
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
	fail error
}

func (n *fakeNotifier) Notify(connID, event string, payload any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail != nil {
		return n.fail
	}
	n.sent = append(n.sent, notification{ConnID: connID, Event: event, Payload: payload})
	return nil
}

func (n *fakeNotifier) byEvent(event string) []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var result []notification
	for _, s := range n.sent {
		if s.Event == event {
			result = append(result, s)
		}
	}
	return result
}

// testEnv wires the full service graph against in-memory fakes.
type testEnv struct {
	sessions   *fakeSessionRepo
	messages   *fakeMessageRepo
	businesses *fakeBusinessRepo
	agents     *fakeAgentRepo
	triggers   *fakeTriggerRepo
	store      *fakeStore
	notifier   *fakeNotifier
	registry   *presence.Registry
	dispatcher events.Dispatcher

	sessionSvc *SessionService
	messageSvc *MessageService
	triggerSvc *TriggerService
}

func newTestEnv() *testEnv {
	env := &testEnv{
		sessions:   newFakeSessionRepo(),
		messages:   newFakeMessageRepo(),
		businesses: &fakeBusinessRepo{},
		agents:     &fakeAgentRepo{},
		triggers:   newFakeTriggerRepo(),
		store:      &fakeStore{},
		notifier:   &fakeNotifier{},
		dispatcher: events.NewInMemoryDispatcher(),
	}
	env.registry = presence.NewRegistry(nil)
	logger := zap.NewNop()
	fanout := NewFanout(env.registry, env.notifier, observability.NewMetrics(), logger)

	env.sessionSvc = NewSessionService(SessionDependencies{
		SessionRepo: env.sessions,
		Dispatcher:  env.dispatcher,
	})
	env.messageSvc = NewMessageService(MessageDependencies{
		Sessions:        env.sessionSvc,
		SessionRepo:     env.sessions,
		MessageRepo:     env.messages,
		BusinessRepo:    env.businesses,
		AgentRepo:       env.agents,
		Store:           env.store,
		Fanout:          fanout,
		Dispatcher:      env.dispatcher,
		Logger:          logger,
		EmailPromptText: "Mind sharing your email?",
	})
	env.triggerSvc = NewTriggerService(TriggerDependencies{
		TriggerRepo:  env.triggers,
		SessionRepo:  env.sessions,
		MessageRepo:  env.messages,
		BusinessRepo: env.businesses,
		AgentRepo:    env.agents,
		Fanout:       fanout,
		Dispatcher:   env.dispatcher,
		Logger:       logger,
	})
	return env
}

func (e *testEnv) addBusiness(id, apiKey string, welcome *string) {
	e.businesses.businesses = append(e.businesses.businesses, &domain.Business{
		ID:                   id,
		Name:                 "Acme",
		APIKey:               apiKey,
		WidgetWelcomeMessage: welcome,
	})
}

func (e *testEnv) addAgent(id, businessID, name string) {
	e.agents.agents = append(e.agents.agents, &domain.Agent{
		ID:         id,
		BusinessID: businessID,
		Name:       name,
		Email:      name + "@example.com",
	})
}

func strPtr(s string) *string {
	return &s
}
