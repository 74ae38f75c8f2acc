package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/livechat-service/internal/config"
	"github.com/spec-kit/livechat-service/internal/events"
)

// NotificationService handles emitting notifications for domain events.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventSessionCreated, n.handleSessionCreated)
	n.dispatcher.Subscribe(events.EventMessageCreated, n.handleMessageCreated)
	n.dispatcher.Subscribe(events.EventEmailCaptured, n.handleEmailCaptured)
	n.dispatcher.Subscribe(events.EventTriggerFired, n.handleTriggerFired)
}

func (n *NotificationService) handleSessionCreated(ctx context.Context, event events.Event) error {
	n.logger.Info("SessionCreated", zap.String("session_id", event.SessionID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleMessageCreated(ctx context.Context, event events.Event) error {
	n.logger.Info("MessageCreated", zap.String("session_id", event.SessionID), zap.Any("payload", event.Payload))
	n.sendEmailNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleEmailCaptured(ctx context.Context, event events.Event) error {
	n.logger.Info("EmailCaptured", zap.String("business_id", event.BusinessID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleTriggerFired(ctx context.Context, event events.Event) error {
	n.logger.Info("TriggerFired", zap.String("session_id", event.SessionID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) sendEmailNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("session_id", event.SessionID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("session_id", event.SessionID),
		zap.String("event_type", string(event.Type)))
}
