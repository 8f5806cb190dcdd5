package components

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/exchange-bridge/internal/domain/audit"
	"github.com/exchange-bridge/internal/domain/shared"
	"github.com/exchange-bridge/internal/domain/transfer"
	"github.com/exchange-bridge/internal/platform/messaging/producers"
	"github.com/exchange-bridge/internal/transaction_processor/service"
	"github.com/google/uuid"
)

const notificationChannel = "sms"

// Notification templates rendered by the external notification service
const (
	TemplateTransferCompleted = "transfer_completed"
	TemplateTransferFailed    = "transfer_failed"
	TemplateTransferCancelled = "transfer_cancelled"
)

// NotifierImpl fans committed state changes out to the audit log, the
// notification topic and the reconciliation queue
type NotifierImpl struct {
	audit          audit.Recorder
	notifications  producers.MessagePublisher
	reconciliation producers.MessagePublisher
	logger         *slog.Logger
	now            func() time.Time
}

var _ service.Notifier = (*NotifierImpl)(nil)

func NewNotifier(
	recorder audit.Recorder,
	notifications producers.MessagePublisher,
	reconciliation producers.MessagePublisher,
	logger *slog.Logger,
) *NotifierImpl {
	return &NotifierImpl{
		audit:          recorder,
		notifications:  notifications,
		reconciliation: reconciliation,
		logger:         logger,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// StatusChanged runs after the new state is committed. Nothing here can undo it,
// so failures are logged and dropped, except a partial settlement whose case
// must reach an operator.
func (n *NotifierImpl) StatusChanged(ctx context.Context, before, after *transfer.Transaction, correlationID string) {
	logger := n.logger.With("transaction_id", after.ID.String(), "status", string(after.Status))

	details := map[string]string{
		"from":    string(before.Status),
		"to":      string(after.Status),
		"version": strconv.Itoa(after.Version),
	}
	if after.FailureReason != "" {
		details["failure_reason"] = string(after.FailureReason)
	}

	action, template := actionFor(after)
	if action != "" {
		n.audit.Record(ctx, audit.NewEvent(action, after.UserID, after.ID, details).WithCorrelationID(correlationID))
	}
	if template != "" {
		n.notify(ctx, logger, after, template, correlationID)
	}

	if after.FailureReason == shared.FailureReasonPartialSettlement {
		if err := n.RaiseCase(ctx, after, shared.ReconciliationPartialSettlement, correlationID); err != nil {
			logger.Error("Partial settlement case not published, operator action required", "error", err)
		}
	}
}

// RaiseCase publishes the transfer to the manual reconciliation queue
func (n *NotifierImpl) RaiseCase(ctx context.Context, tx *transfer.Transaction, reason shared.ReconciliationReason, correlationID string) error {
	c := shared.ReconciliationCase{
		TransactionID:       tx.ID,
		UserID:              tx.UserID,
		Reason:              reason,
		Status:              tx.Status,
		Source:              snapshot(tx.Source),
		Destination:         snapshot(tx.Destination),
		SourceAmount:        tx.SourceAmount,
		SourceCurrency:      tx.SourceCurrency,
		DestinationAmount:   tx.DestinationAmount,
		DestinationCurrency: tx.DestinationCurrency,
		NetAmount:           tx.NetAmount,
		CorrelationID:       correlationID,
		Timestamp:           n.now(),
	}

	if err := n.reconciliation.Publish(context.WithoutCancel(ctx), tx.ID.String(), c); err != nil {
		return err
	}
	n.logger.Warn("Reconciliation case raised",
		"transaction_id", tx.ID.String(),
		"reason", string(reason),
		"source_status", string(tx.Source.Status),
		"destination_status", string(tx.Destination.Status),
	)
	return nil
}

// Mismatch records a provider event that could not be applied
func (n *NotifierImpl) Mismatch(ctx context.Context, event *shared.ProviderEvent, mismatch shared.ReconciliationMismatchError) {
	details := map[string]string{
		"provider":  event.Provider,
		"reference": event.Reference,
		"outcome":   string(event.Outcome),
		"reason":    mismatch.Reason,
	}
	if event.EventID != "" {
		details["event_id"] = event.EventID
	}
	n.audit.Record(ctx, audit.NewEvent(audit.ActionReconciliationMismatch, "", uuid.Nil, details).WithCorrelationID(event.CorrelationID))
}

func (n *NotifierImpl) notify(ctx context.Context, logger *slog.Logger, tx *transfer.Transaction, template, correlationID string) {
	req := shared.NotificationRequest{
		UserID:   tx.UserID,
		Channel:  notificationChannel,
		Template: template,
		Params: map[string]string{
			"amount":               tx.SourceAmount.StringFixed(2),
			"currency":             tx.SourceCurrency,
			"destination_amount":   tx.NetAmount.StringFixed(2),
			"destination_currency": tx.DestinationCurrency,
		},
		TransactionID: tx.ID,
		CorrelationID: correlationID,
		Timestamp:     n.now(),
	}
	if tx.FailureReason != "" {
		req.Params["reason"] = string(tx.FailureReason)
	}

	if err := n.notifications.Publish(context.WithoutCancel(ctx), tx.UserID, req); err != nil {
		logger.Error("Failed to publish notification", "template", template, "error", err)
	}
}

func actionFor(tx *transfer.Transaction) (audit.Action, string) {
	switch tx.Status {
	case shared.TransactionStatusCompleted:
		return audit.ActionTransactionCompleted, TemplateTransferCompleted
	case shared.TransactionStatusFailed:
		if tx.FailureReason == shared.FailureReasonPartialSettlement {
			return audit.ActionTransactionPartialSettlement, TemplateTransferFailed
		}
		return audit.ActionTransactionFailed, TemplateTransferFailed
	case shared.TransactionStatusCancelled:
		return audit.ActionTransactionCancelled, TemplateTransferCancelled
	case shared.TransactionStatusProcessing:
		return audit.ActionTransactionProcessing, ""
	}
	return "", ""
}

func snapshot(leg transfer.Leg) shared.LegSnapshot {
	return shared.LegSnapshot{
		Provider:  leg.Provider,
		Account:   leg.AccountIdentifier,
		Reference: leg.ProviderTransactionID,
		Receipt:   leg.Receipt,
		Status:    leg.Status,
		LastError: leg.LastError,
	}
}
