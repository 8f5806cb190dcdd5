package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/exchange-bridge/internal/domain/audit"
	"github.com/exchange-bridge/internal/domain/shared"
	"github.com/exchange-bridge/internal/platform/messaging/producers"
	"github.com/google/uuid"
)

// WebhookServiceImpl implements the WebhookService interface
type WebhookServiceImpl struct {
	events producers.MessagePublisher
	audit  audit.Recorder
	logger *slog.Logger
}

var _ WebhookService = (*WebhookServiceImpl)(nil)

// NewWebhookService creates a new webhook service
func NewWebhookService(logger *slog.Logger, events producers.MessagePublisher, recorder audit.Recorder) *WebhookServiceImpl {
	return &WebhookServiceImpl{
		events: events,
		audit:  recorder,
		logger: logger,
	}
}

// Accept publishes the event keyed by its leg reference so redeliveries for a
// leg stay ordered on one partition
func (s *WebhookServiceImpl) Accept(ctx context.Context, event *shared.ProviderEvent) error {
	logger := s.logger.With(
		"provider", event.Provider,
		"reference", event.Reference,
		"event_id", event.EventID,
		"correlation_id", event.CorrelationID,
	)

	s.audit.Record(ctx, audit.NewEvent(audit.ActionExternalAPICall, "", uuid.Nil, map[string]string{
		"direction": "inbound",
		"provider":  event.Provider,
		"event_id":  event.EventID,
		"reference": event.Reference,
		"receipt":   event.Receipt,
		"outcome":   string(event.Outcome),
		"code":      event.Code,
	}).WithCorrelationID(event.CorrelationID))

	if err := s.events.Publish(ctx, event.Reference, event); err != nil {
		logger.Error("Failed to publish provider event", "error", err)
		return fmt.Errorf("%w: %v", ErrEventNotAccepted, err)
	}

	logger.Info("Provider event accepted", "outcome", event.Outcome)
	return nil
}
