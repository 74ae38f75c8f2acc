package service

import (
	"context"
	"strings"
	"testing"

	"github.com/spec-kit/livechat-service/internal/domain"
	apperrors "github.com/spec-kit/livechat-service/pkg/util/errorutil"
)

func TestSendDeliversToOnlineAgentInbox(t *testing.T) {
	env := newTestEnv()
	env.addBusiness("biz-1", "key-1", nil)
	env.registry.Register("biz-1", "conn-agent")

	msg, err := env.messageSvc.Send(context.Background(), SendInput{
		BusinessID:  "biz-1",
		Sender:      domain.SenderCustomer,
		ContentType: domain.ContentTypeText,
		Content:     "hello there",
		SID:         "sid-1",
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if msg.ID == "" {
		t.Fatalf("expected persisted message id")
	}

	sent := env.notifier.byEvent(EventReceiveMessage)
	if len(sent) != 1 {
		t.Fatalf("expected 1 push, got %d", len(sent))
	}
	if sent[0].ConnID != "conn-agent" {
		t.Fatalf("pushed to %q, want conn-agent", sent[0].ConnID)
	}
	payload, ok := sent[0].Payload.(MessagePayload)
	if !ok {
		t.Fatalf("unexpected payload type %T", sent[0].Payload)
	}
	if payload.Content != "hello there" || payload.SID != "sid-1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestSendOfflineRecipientStillPersists(t *testing.T) {
	env := newTestEnv()
	env.addBusiness("biz-1", "key-1", nil)

	if _, err := env.messageSvc.Send(context.Background(), SendInput{
		BusinessID:  "biz-1",
		Sender:      domain.SenderCustomer,
		ContentType: domain.ContentTypeText,
		Content:     "anyone home?",
		SID:         "sid-1",
	}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if got := env.notifier.byEvent(EventReceiveMessage); len(got) != 0 {
		t.Fatalf("expected no pushes for offline recipient, got %d", len(got))
	}
	count, _ := env.messages.CountBySession(context.Background(), "session-1")
	// Customer message plus the injected email prompt.
	if count != 2 {
		t.Fatalf("expected 2 stored messages, got %d", count)
	}
}

func TestFirstAnonymousMessageInjectsEmailPromptOnce(t *testing.T) {
	env := newTestEnv()
	env.addBusiness("biz-1", "key-1", nil)
	ctx := context.Background()

	send := func(content string) {
		t.Helper()
		if _, err := env.messageSvc.Send(ctx, SendInput{
			BusinessID:  "biz-1",
			Sender:      domain.SenderCustomer,
			ContentType: domain.ContentTypeText,
			Content:     content,
			SID:         "sid-1",
		}); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}

	send("first")
	msgs, _ := env.messages.ListBySession(ctx, "session-1")
	if len(msgs) != 2 {
		t.Fatalf("expected message plus prompt, got %d messages", len(msgs))
	}
	if msgs[1].ContentType != domain.ContentTypeEmailPrompt {
		t.Fatalf("expected email prompt, got %s", msgs[1].ContentType)
	}
	if msgs[1].Sender != domain.SenderBusiness {
		t.Fatalf("prompt should come from the business side")
	}

	send("second")
	msgs, _ = env.messages.ListBySession(ctx, "session-1")
	if len(msgs) != 3 {
		t.Fatalf("prompt injected more than once: %d messages", len(msgs))
	}
}

func TestNoEmailPromptForIdentifiedSession(t *testing.T) {
	env := newTestEnv()
	env.addBusiness("biz-1", "key-1", nil)
	ctx := context.Background()

	if _, err := env.messageSvc.Send(ctx, SendInput{
		BusinessID:    "biz-1",
		Sender:        domain.SenderCustomer,
		ContentType:   domain.ContentTypeText,
		Content:       "hi",
		SID:           "sid-1",
		CustomerEmail: strPtr("jane@example.com"),
	}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	msgs, _ := env.messages.ListBySession(ctx, "session-1")
	if len(msgs) != 1 {
		t.Fatalf("expected no prompt for identified session, got %d messages", len(msgs))
	}
}

func TestSendWithEmailKeepsSingleSessionPerSID(t *testing.T) {
	env := newTestEnv()
	env.addBusiness("biz-1", "key-1", nil)
	ctx := context.Background()

	if _, err := env.messageSvc.Send(ctx, SendInput{
		BusinessID:  "biz-1",
		Sender:      domain.SenderCustomer,
		ContentType: domain.ContentTypeText,
		Content:     "hi",
		SID:         "sid-1",
	}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	// Later send from the same device now carries an email.
	if _, err := env.messageSvc.Send(ctx, SendInput{
		BusinessID:    "biz-1",
		Sender:        domain.SenderCustomer,
		ContentType:   domain.ContentTypeText,
		Content:       "me again",
		SID:           "sid-1",
		CustomerEmail: strPtr("jane@example.com"),
	}); err != nil {
		t.Fatalf("Send with email failed: %v", err)
	}

	sessions, _ := env.sessions.ListByBusiness(ctx, "biz-1")
	if len(sessions) != 1 {
		t.Fatalf("expected a single session for (biz-1, sid-1), got %d", len(sessions))
	}
	if sessions[0].CustomerEmail == nil || *sessions[0].CustomerEmail != "jane@example.com" {
		t.Fatalf("expected email attached, got %v", sessions[0].CustomerEmail)
	}

	msgs, _ := env.messages.ListBySession(ctx, sessions[0].ID)
	// Two customer messages plus the prompt injected on the first one.
	if len(msgs) != 3 {
		t.Fatalf("expected both messages on one thread, got %d", len(msgs))
	}
}

func TestAgentReplyClaimsSessionAndEnrichesPayload(t *testing.T) {
	env := newTestEnv()
	env.addBusiness("biz-1", "key-1", nil)
	env.addAgent("agent-7", "biz-1", "Dana")
	ctx := context.Background()

	session, _, err := env.sessionSvc.Resolve(ctx, "biz-1", nil, "sid-1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	env.registry.Register("sid-1", "conn-visitor")

	agentID := "agent-7"
	if _, err := env.messageSvc.Send(ctx, SendInput{
		BusinessID:  "biz-1",
		Sender:      domain.SenderBusiness,
		SenderID:    &agentID,
		ContentType: domain.ContentTypeText,
		Content:     "how can I help?",
		SID:         "sid-1",
	}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	updated, err := env.sessions.GetByID(ctx, "biz-1", session.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.AssignedAgentID == nil || *updated.AssignedAgentID != "agent-7" {
		t.Fatalf("expected session claimed by agent-7, got %v", updated.AssignedAgentID)
	}

	sent := env.notifier.byEvent(EventReceiveMessage)
	if len(sent) != 1 || sent[0].ConnID != "conn-visitor" {
		t.Fatalf("expected push to visitor, got %+v", sent)
	}
	payload := sent[0].Payload.(MessagePayload)
	if payload.Agent == nil || payload.Agent.Name != "Dana" {
		t.Fatalf("expected agent profile on payload, got %+v", payload.Agent)
	}
}

func TestSendBinaryRequiresUpload(t *testing.T) {
	env := newTestEnv()
	env.addBusiness("biz-1", "key-1", nil)

	_, err := env.messageSvc.Send(context.Background(), SendInput{
		BusinessID:  "biz-1",
		Sender:      domain.SenderCustomer,
		ContentType: domain.ContentTypeImage,
		SID:         "sid-1",
	})
	if err == nil {
		t.Fatalf("expected validation error for missing upload")
	}
}

func TestSendImageStoresUploadPath(t *testing.T) {
	env := newTestEnv()
	env.addBusiness("biz-1", "key-1", nil)

	msg, err := env.messageSvc.Send(context.Background(), SendInput{
		BusinessID:  "biz-1",
		Sender:      domain.SenderCustomer,
		ContentType: domain.ContentTypeImage,
		SID:         "sid-1",
		Upload:      &UploadInput{Filename: "cat.png", Reader: strings.NewReader("bytes")},
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if msg.Content != "/uploads/cat.png" {
		t.Fatalf("expected stored path as content, got %q", msg.Content)
	}
}

func TestGetForCustomerBootstrapsWelcome(t *testing.T) {
	env := newTestEnv()
	env.addBusiness("biz-1", "key-1", strPtr("Welcome to Acme!"))

	view, err := env.messageSvc.GetForCustomer(context.Background(), "key-1", "sid-new")
	if err != nil {
		t.Fatalf("GetForCustomer failed: %v", err)
	}
	if len(view.Messages) != 1 {
		t.Fatalf("expected single welcome message, got %d", len(view.Messages))
	}
	if view.Messages[0].Content != "Welcome to Acme!" {
		t.Fatalf("unexpected welcome content %q", view.Messages[0].Content)
	}
	if _, err := env.sessions.GetBySID(context.Background(), "biz-1", "sid-new"); err != nil {
		t.Fatalf("expected session created by bootstrap: %v", err)
	}
}

func TestGetForCustomerWidgetUnconfigured(t *testing.T) {
	env := newTestEnv()
	env.addBusiness("biz-1", "key-1", nil)

	_, err := env.messageSvc.GetForCustomer(context.Background(), "key-1", "sid-new")
	if !apperrors.IsNotFound(err) {
		t.Fatalf("expected not-found for unconfigured widget, got %v", err)
	}
}

func TestGetForCustomerUnknownAPIKey(t *testing.T) {
	env := newTestEnv()

	_, err := env.messageSvc.GetForCustomer(context.Background(), "bogus", "sid-1")
	if !apperrors.IsNotFound(err) {
		t.Fatalf("expected not-found for unknown api key, got %v", err)
	}
}

func TestGetForCustomerReturnsOrderedHistory(t *testing.T) {
	env := newTestEnv()
	env.addBusiness("biz-1", "key-1", nil)
	env.addAgent("agent-7", "biz-1", "Dana")
	ctx := context.Background()

	if _, err := env.messageSvc.Send(ctx, SendInput{
		BusinessID:    "biz-1",
		Sender:        domain.SenderCustomer,
		ContentType:   domain.ContentTypeText,
		Content:       "question",
		SID:           "sid-1",
		CustomerEmail: strPtr("jane@example.com"),
	}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	agentID := "agent-7"
	if _, err := env.messageSvc.Send(ctx, SendInput{
		BusinessID:  "biz-1",
		Sender:      domain.SenderBusiness,
		SenderID:    &agentID,
		ContentType: domain.ContentTypeText,
		Content:     "answer",
		SID:         "sid-1",
	}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	view, err := env.messageSvc.GetForCustomer(ctx, "key-1", "sid-1")
	if err != nil {
		t.Fatalf("GetForCustomer failed: %v", err)
	}
	if len(view.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(view.Messages))
	}
	if view.Messages[0].Content != "question" || view.Messages[1].Content != "answer" {
		t.Fatalf("history out of order: %+v", view.Messages)
	}
	if view.CurrentAgent == nil || view.CurrentAgent.ID != "agent-7" {
		t.Fatalf("expected responding agent profile, got %+v", view.CurrentAgent)
	}
	if view.CustomerEmail == nil || *view.CustomerEmail != "jane@example.com" {
		t.Fatalf("expected customer email on view")
	}
}

func TestFetchConversations(t *testing.T) {
	env := newTestEnv()
	env.addBusiness("biz-1", "key-1", nil)
	ctx := context.Background()

	// No sessions at all yet.
	rows, err := env.messageSvc.FetchConversations(ctx, "biz-1")
	if err != nil {
		t.Fatalf("FetchConversations failed: %v", err)
	}
	if rows != nil {
		t.Fatalf("expected nil for business without sessions, got %+v", rows)
	}

	// A session without messages is skipped.
	if _, _, err := env.sessionSvc.Resolve(ctx, "biz-1", nil, "sid-empty"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	rows, err = env.messageSvc.FetchConversations(ctx, "biz-1")
	if err != nil {
		t.Fatalf("FetchConversations failed: %v", err)
	}
	if len(rows) != 0 || rows == nil {
		t.Fatalf("expected empty non-nil result, got %+v", rows)
	}

	for _, content := range []string{"one", "two"} {
		if _, err := env.messageSvc.Send(ctx, SendInput{
			BusinessID:  "biz-1",
			Sender:      domain.SenderCustomer,
			ContentType: domain.ContentTypeText,
			Content:     content,
			SID:         "sid-1",
		}); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}

	rows, err = env.messageSvc.FetchConversations(ctx, "biz-1")
	if err != nil {
		t.Fatalf("FetchConversations failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 inbox row, got %d", len(rows))
	}
	row := rows[0]
	// Two customer messages plus the injected email prompt.
	if row.TotalMessages != 3 {
		t.Fatalf("expected 3 total messages, got %d", row.TotalMessages)
	}
	if row.UnreadMessages != 3 {
		t.Fatalf("expected 3 unread messages, got %d", row.UnreadMessages)
	}
	if row.LastContent != "two" {
		t.Fatalf("expected last content to win, got %q", row.LastContent)
	}
	if row.DisplayName != "visitor1" {
		t.Fatalf("expected anonymous display name visitor1, got %q", row.DisplayName)
	}
}

func TestFetchConversationsUsesEmailLocalPart(t *testing.T) {
	env := newTestEnv()
	env.addBusiness("biz-1", "key-1", nil)
	ctx := context.Background()

	if _, err := env.messageSvc.Send(ctx, SendInput{
		BusinessID:    "biz-1",
		Sender:        domain.SenderCustomer,
		ContentType:   domain.ContentTypeText,
		Content:       "hi",
		SID:           "sid-1",
		CustomerEmail: strPtr("jane.doe@example.com"),
	}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	rows, err := env.messageSvc.FetchConversations(ctx, "biz-1")
	if err != nil {
		t.Fatalf("FetchConversations failed: %v", err)
	}
	if len(rows) != 1 || rows[0].DisplayName != "jane.doe" {
		t.Fatalf("expected email local part display name, got %+v", rows)
	}
}

func TestMarkRead(t *testing.T) {
	env := newTestEnv()
	env.addBusiness("biz-1", "key-1", nil)
	ctx := context.Background()

	msg, err := env.messageSvc.Send(ctx, SendInput{
		BusinessID:  "biz-1",
		Sender:      domain.SenderCustomer,
		ContentType: domain.ContentTypeText,
		Content:     "hi",
		SID:         "sid-1",
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if err := env.messageSvc.MarkRead(ctx, []string{msg.ID, " ", ""}); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	msgs, _ := env.messages.ListBySession(ctx, "session-1")
	if !msgs[0].IsRead {
		t.Fatalf("expected message marked read")
	}

	// Marking again is a no-op.
	if err := env.messageSvc.MarkRead(ctx, []string{msg.ID}); err != nil {
		t.Fatalf("MarkRead second pass failed: %v", err)
	}

	if err := env.messageSvc.MarkRead(ctx, []string{"", "  "}); err == nil {
		t.Fatalf("expected validation error for empty id list")
	}
}
