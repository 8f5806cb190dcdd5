package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/exchange-bridge/internal/domain/shared"
	"github.com/exchange-bridge/internal/platform/messaging/producers"
	"github.com/exchange-bridge/internal/transaction_processor/service"
)

var errIncompleteEvent = errors.New("provider, reference and outcome are required")

// ProviderEventHandler feeds normalized webhook callbacks to the reconciler.
// Infrastructure failures leave the offset uncommitted so the event is redelivered;
// the reconciler is idempotent.
type ProviderEventHandler struct {
	reconciler service.Reconciler
	dlq        producers.DeadLetterPublisher
	logger     *slog.Logger
}

func NewProviderEventHandler(
	logger *slog.Logger,
	reconciler service.Reconciler,
	dlq producers.DeadLetterPublisher,
) *ProviderEventHandler {
	return &ProviderEventHandler{
		reconciler: reconciler,
		dlq:        dlq,
		logger:     logger,
	}
}

// HandleMessage processes Kafka messages
func (h *ProviderEventHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var event shared.ProviderEvent
	if err := json.Unmarshal(value, &event); err != nil {
		h.logger.Error("Failed to unmarshal provider event", "error", err, "message_key", string(key))
		return deadLetter(ctx, h.logger, h.dlq, key, value, "failed to unmarshal provider event", err)
	}
	if event.Provider == "" || event.Reference == "" || event.Outcome == "" {
		h.logger.Error("Incomplete provider event", "message_key", string(key), "event_id", event.EventID)
		return deadLetter(ctx, h.logger, h.dlq, key, value, "invalid provider event", errIncompleteEvent)
	}

	if err := h.reconciler.Reconcile(ctx, &event); err != nil {
		h.logger.Error("Failed to reconcile provider event",
			"event_id", event.EventID,
			"provider", event.Provider,
			"reference", event.Reference,
			"error", err,
		)
		return fmt.Errorf("reconciling event %s failed: %w", event.EventID, err)
	}
	return nil
}
