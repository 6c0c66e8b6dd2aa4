package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/concern-service/internal/config"
	"github.com/spec-kit/concern-service/internal/events"
)

// NotificationService handles emitting notifications for domain events.
// Delivery is external; this service only hands events to the stubs.
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
	n.dispatcher.Subscribe(events.EventConcernSubmitted, n.handleWithEmail)
	n.dispatcher.Subscribe(events.EventConcernApproved, n.handleWithEmail)
	n.dispatcher.Subscribe(events.EventConcernRejected, n.handleWithEmail)
	n.dispatcher.Subscribe(events.EventConcernStatusChanged, n.handleWebhookOnly)
	n.dispatcher.Subscribe(events.EventConcernAssigned, n.handleWithEmail)
	n.dispatcher.Subscribe(events.EventConcernEscalated, n.handleWithEmail)
	n.dispatcher.Subscribe(events.EventConcernReminderSent, n.handleWithEmail)
	n.dispatcher.Subscribe(events.EventResolutionConfirmed, n.handleWebhookOnly)
	n.dispatcher.Subscribe(events.EventResolutionDisputed, n.handleWithEmail)
	n.dispatcher.Subscribe(events.EventEmergencyActivated, n.handleWithEmail)
}

func (n *NotificationService) handleWithEmail(ctx context.Context, event events.Event) error {
	n.logger.Info(string(event.Type),
		zap.String("concern_id", event.ConcernID),
		zap.Any("payload", event.Payload))
	n.sendEmailNotificationStub(ctx, event)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleWebhookOnly(ctx context.Context, event events.Event) error {
	n.logger.Info(string(event.Type),
		zap.String("concern_id", event.ConcernID),
		zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) sendEmailNotificationStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("concern_id", event.ConcernID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookNotificationStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("concern_id", event.ConcernID),
		zap.String("event_type", string(event.Type)))
}
