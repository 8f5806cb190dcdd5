package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/exchange-bridge/internal/platform/messaging/producers"
)

// deadLetter moves an unprocessable message to the DLQ. It returns nil when the
// message is parked there and the offset may be committed.
func deadLetter(ctx context.Context, logger *slog.Logger, dlq producers.DeadLetterPublisher, key, value []byte, reason string, cause error) error {
	dlqReason := fmt.Sprintf("%s: %s", reason, cause.Error())
	if dlq != nil {
		if err := dlq.PublishToDLQ(ctx, string(key), value, dlqReason); err != nil {
			logger.Error("Failed to publish message to DLQ",
				"dlq_error", err,
				"original_error", cause,
				"message_key", string(key),
			)
		} else {
			logger.Info("Published unprocessable message to DLQ", "message_key", string(key), "reason", dlqReason)
			return nil
		}
	}
	// Allow Kafka retries
	return fmt.Errorf("%s: %w", reason, cause)
}
