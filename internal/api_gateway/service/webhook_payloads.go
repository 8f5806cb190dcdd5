package service

import (
	"time"

	"github.com/exchange-bridge/internal/domain/shared"
	"github.com/google/uuid"
)

// E-wallet notification event types
const (
	EWalletCaptureCompleted  = "PAYMENT.CAPTURE.COMPLETED"
	EWalletCaptureDenied     = "PAYMENT.CAPTURE.DENIED"
	EWalletCaptureDeclined   = "PAYMENT.CAPTURE.DECLINED"
	EWalletPayoutSucceeded   = "PAYMENT.PAYOUTS-ITEM.SUCCEEDED"
	EWalletPayoutFailed      = "PAYMENT.PAYOUTS-ITEM.FAILED"
	MobileMoneySuccessCode   = "INS-0"
	MobileMoneyCallbackReply = "Callback received successfully"
)

// EWalletNotification is the e-wallet network's webhook body
type EWalletNotification struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Summary   string          `json:"summary,omitempty"`
	Resource  EWalletResource `json:"resource"`
}

// EWalletResource is the capture or payout item the notification is about
type EWalletResource struct {
	ID           string             `json:"id"`
	InvoiceID    string             `json:"invoice_id"`
	Status       string             `json:"status"`
	PayoutItemID string             `json:"payout_item_id"`
	PayoutItem   EWalletPayoutItem  `json:"payout_item"`
	Errors       *EWalletErrorField `json:"errors,omitempty"`
}

// EWalletPayoutItem echoes the payout request
type EWalletPayoutItem struct {
	SenderItemID string `json:"sender_item_id"`
}

// EWalletErrorField describes why a payout failed
type EWalletErrorField struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// ToEvent normalizes the notification. Unknown event types return ErrIgnoredEvent.
func (n EWalletNotification) ToEvent(correlationID string, receivedAt time.Time) (*shared.ProviderEvent, error) {
	event := &shared.ProviderEvent{
		EventID:       n.ID,
		Provider:      string(shared.NetworkEWallet),
		CorrelationID: correlationID,
		ReceivedAt:    receivedAt,
	}

	switch n.EventType {
	case EWalletCaptureCompleted:
		event.Reference, event.Receipt = n.Resource.InvoiceID, n.Resource.ID
		event.Outcome = shared.EventOutcomeSucceeded
	case EWalletCaptureDenied, EWalletCaptureDeclined:
		event.Reference, event.Receipt = n.Resource.InvoiceID, n.Resource.ID
		event.Outcome = shared.EventOutcomeFailed
		event.Code = n.EventType
		event.Message = n.Summary
	case EWalletPayoutSucceeded:
		event.Reference, event.Receipt = n.Resource.PayoutItem.SenderItemID, n.Resource.PayoutItemID
		event.Outcome = shared.EventOutcomeSucceeded
	case EWalletPayoutFailed:
		event.Reference, event.Receipt = n.Resource.PayoutItem.SenderItemID, n.Resource.PayoutItemID
		event.Outcome = shared.EventOutcomeFailed
		event.Code = n.EventType
		if n.Resource.Errors != nil {
			event.Code = n.Resource.Errors.Name
			event.Message = n.Resource.Errors.Message
		}
	case "":
		return nil, shared.ValidationError{Field: "event_type", Message: "is required"}
	default:
		return nil, ErrIgnoredEvent
	}

	if event.Reference == "" {
		return nil, shared.ValidationError{Field: "resource", Message: "missing transaction reference"}
	}
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	return event, nil
}

// MobileMoneyCallback is the mobile-money network's callback body
type MobileMoneyCallback struct {
	ConversationID      string `json:"input_OriginalConversationID"`
	TransactionID       string `json:"input_TransactionID"`
	ThirdPartyReference string `json:"input_ThirdPartyReference"`
	ResultCode          string `json:"output_ResponseCode"`
	ResultDescription   string `json:"output_ResponseDesc"`
	OutputTransactionID string `json:"output_TransactionID,omitempty"`
}

// ToEvent normalizes the callback. INS-0 is the only success code.
func (c MobileMoneyCallback) ToEvent(correlationID string, receivedAt time.Time) (*shared.ProviderEvent, error) {
	if c.ThirdPartyReference == "" {
		return nil, shared.ValidationError{Field: "input_ThirdPartyReference", Message: "is required"}
	}
	if c.ResultCode == "" {
		return nil, shared.ValidationError{Field: "output_ResponseCode", Message: "is required"}
	}

	receipt := c.TransactionID
	if receipt == "" {
		receipt = c.OutputTransactionID
	}
	event := &shared.ProviderEvent{
		EventID:       c.ConversationID,
		Provider:      string(shared.NetworkMobileMoney),
		Reference:     c.ThirdPartyReference,
		Receipt:       receipt,
		Outcome:       shared.EventOutcomeSucceeded,
		CorrelationID: correlationID,
		ReceivedAt:    receivedAt,
	}
	if c.ResultCode != MobileMoneySuccessCode {
		event.Outcome = shared.EventOutcomeFailed
		event.Code = c.ResultCode
		event.Message = c.ResultDescription
	}
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	return event, nil
}
