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
	"github.com/google/uuid"
)

var errMissingTransactionID = errors.New("missing transaction id")

// SagaRequestHandler starts sagas for confirmed transactions. The message is a
// latency hint only: the durable saga job is picked up by the poller if the
// run submitted here never finishes.
type SagaRequestHandler struct {
	sagas  service.SagaSubmitter
	dlq    producers.DeadLetterPublisher
	logger *slog.Logger
}

func NewSagaRequestHandler(
	logger *slog.Logger,
	sagas service.SagaSubmitter,
	dlq producers.DeadLetterPublisher,
) *SagaRequestHandler {
	return &SagaRequestHandler{
		sagas:  sagas,
		dlq:    dlq,
		logger: logger,
	}
}

// HandleMessage processes Kafka messages
func (h *SagaRequestHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var request shared.SagaRequest
	if err := json.Unmarshal(value, &request); err != nil {
		h.logger.Error("Failed to unmarshal saga request", "error", err, "message_key", string(key))
		return deadLetter(ctx, h.logger, h.dlq, key, value, "failed to unmarshal saga request", err)
	}
	if request.TransactionID == uuid.Nil {
		h.logger.Error("Saga request without transaction id", "message_key", string(key))
		return deadLetter(ctx, h.logger, h.dlq, key, value, "invalid saga request", errMissingTransactionID)
	}

	logger := h.logger.With("transaction_id", request.TransactionID.String())
	if request.CorrelationID != "" {
		logger = logger.With("correlation_id", request.CorrelationID)
	}
	logger.Info("Received saga request")

	// runs outlive the consumer's fetch context; shutdown waits on the pool instead
	if err := h.sagas.Submit(context.WithoutCancel(ctx), &request); err != nil {
		logger.Error("Failed to submit saga", "error", err)
		return fmt.Errorf("submitting saga for %s failed: %w", request.TransactionID.String(), err)
	}
	return nil
}
