package handler

import (
	"time"

	"github.com/exchange-bridge/internal/domain/shared"
	"github.com/exchange-bridge/internal/domain/transfer"
	"github.com/shopspring/decimal"
)

// QuoteQuery represents the query string of a quote request
type QuoteQuery struct {
	Direction string `form:"direction" binding:"required,oneof=WALLET_TO_MOBILE MOBILE_TO_WALLET"`
	Amount    string `form:"amount" binding:"required"`
}

// InitiateRequest represents a request to start a transfer
type InitiateRequest struct {
	Direction          string          `json:"direction" binding:"required,oneof=WALLET_TO_MOBILE MOBILE_TO_WALLET"`
	Amount             decimal.Decimal `json:"amount"`
	SourceAccount      string          `json:"source_account" binding:"required,max=64"`
	DestinationAccount string          `json:"destination_account" binding:"required,max=64"`
}

// ConfirmRequest represents a confirmation code submission
type ConfirmRequest struct {
	TransactionID string `json:"transaction_id" binding:"required,uuid"`
	OTP           string `json:"otp" binding:"required,len=6,numeric"`
}

// ResendRequest represents a request for a fresh confirmation code
type ResendRequest struct {
	TransactionID string `json:"transaction_id" binding:"required,uuid"`
}

// InitiateResponse is returned when a transfer is created or its code is reissued
type InitiateResponse struct {
	TransactionID string       `json:"transaction_id"`
	Status        string       `json:"status"`
	Quote         QuoteSummary `json:"quote"`
	OTPExpiresAt  string       `json:"otp_expires_at"`
}

// QuoteSummary carries the amounts fixed at initiation
type QuoteSummary struct {
	SourceAmount        decimal.Decimal `json:"source_amount"`
	SourceCurrency      string          `json:"source_currency"`
	DestinationAmount   decimal.Decimal `json:"destination_amount"`
	DestinationCurrency string          `json:"destination_currency"`
	ExchangeRate        decimal.Decimal `json:"exchange_rate"`
	FeeTotal            decimal.Decimal `json:"fee_total"`
	FeeCurrency         string          `json:"fee_currency"`
	NetAmount           decimal.Decimal `json:"net_amount"`
}

// LegResponse represents one side of a transfer
type LegResponse struct {
	Provider          string `json:"provider"`
	AccountIdentifier string `json:"account_identifier"`
	Reference         string `json:"reference"`
	Receipt           string `json:"receipt,omitempty"`
	Status            string `json:"status"`
	LastError         string `json:"last_error,omitempty"`
}

// StatusChangeResponse represents one status history entry
type StatusChangeResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	At      string `json:"at"`
}

// TransactionResponse represents a transfer in API responses
type TransactionResponse struct {
	TransactionID string                 `json:"transaction_id"`
	Direction     string                 `json:"direction"`
	Status        string                 `json:"status"`
	FailureReason string                 `json:"failure_reason,omitempty"`
	StatusMessage string                 `json:"status_message,omitempty"`
	Quote         QuoteSummary           `json:"quote"`
	Source        LegResponse            `json:"source"`
	Destination   LegResponse            `json:"destination"`
	History       []StatusChangeResponse `json:"status_history,omitempty"`
	CreatedAt     string                 `json:"created_at"`
	UpdatedAt     string                 `json:"updated_at"`
	CompletedAt   string                 `json:"completed_at,omitempty"`
	FailedAt      string                 `json:"failed_at,omitempty"`
}

// ListParams represents the filters and pagination of a transaction listing
type ListParams struct {
	Page      int    `form:"page,default=1" binding:"min=1"`
	PerPage   int    `form:"per_page,default=20" binding:"min=1,max=100"`
	Status    string `form:"status" binding:"omitempty,oneof=PENDING PROCESSING AWAITING_SOURCE SOURCE_COMPLETED AWAITING_DESTINATION COMPLETED FAILED CANCELLED"`
	Direction string `form:"direction" binding:"omitempty,oneof=WALLET_TO_MOBILE MOBILE_TO_WALLET"`
	From      string `form:"from"`
	To        string `form:"to"`
}

// Filter converts the params into a repository filter for userID
func (p ListParams) Filter(userID string) (transfer.ListFilter, error) {
	filter := transfer.ListFilter{
		UserID:    userID,
		Status:    shared.TransactionStatus(p.Status),
		Direction: shared.Direction(p.Direction),
	}
	var err error
	if filter.From, err = parseOptionalTime("from", p.From); err != nil {
		return filter, err
	}
	if filter.To, err = parseOptionalTime("to", p.To); err != nil {
		return filter, err
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return filter, shared.ValidationError{Field: "to", Message: "must not be before from"}
	}
	return filter, nil
}

func parseOptionalTime(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, shared.ValidationError{Field: field, Message: "must be an RFC3339 timestamp"}
	}
	return &t, nil
}

func mapQuoteSummary(a transfer.Amounts) QuoteSummary {
	return QuoteSummary{
		SourceAmount:        a.SourceAmount,
		SourceCurrency:      a.SourceCurrency,
		DestinationAmount:   a.DestinationAmount,
		DestinationCurrency: a.DestinationCurrency,
		ExchangeRate:        a.ExchangeRate,
		FeeTotal:            a.Fee.Total,
		FeeCurrency:         a.Fee.Currency,
		NetAmount:           a.NetAmount,
	}
}

func mapLeg(l transfer.Leg) LegResponse {
	return LegResponse{
		Provider:          l.Provider,
		AccountIdentifier: l.AccountIdentifier,
		Reference:         l.ProviderTransactionID,
		Receipt:           l.Receipt,
		Status:            string(l.Status),
		LastError:         l.LastError,
	}
}

// mapTransactionToResponse maps a transfer to its response DTO
func mapTransactionToResponse(tx *transfer.Transaction) TransactionResponse {
	response := TransactionResponse{
		TransactionID: tx.ID.String(),
		Direction:     string(tx.Direction),
		Status:        string(tx.Status),
		FailureReason: string(tx.FailureReason),
		StatusMessage: tx.StatusMessage,
		Quote:         mapQuoteSummary(tx.Amounts),
		Source:        mapLeg(tx.Source),
		Destination:   mapLeg(tx.Destination),
		CreatedAt:     tx.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     tx.UpdatedAt.Format(time.RFC3339),
	}
	for _, h := range tx.History {
		response.History = append(response.History, StatusChangeResponse{
			Status:  string(h.Status),
			Message: h.Message,
			At:      h.At.Format(time.RFC3339),
		})
	}
	if tx.CompletedAt != nil {
		response.CompletedAt = tx.CompletedAt.Format(time.RFC3339)
	}
	if tx.FailedAt != nil {
		response.FailedAt = tx.FailedAt.Format(time.RFC3339)
	}
	return response
}

func mapInitiateResult(tx *transfer.Transaction, expiresAt time.Time) InitiateResponse {
	return InitiateResponse{
		TransactionID: tx.ID.String(),
		Status:        string(tx.Status),
		Quote:         mapQuoteSummary(tx.Amounts),
		OTPExpiresAt:  expiresAt.Format(time.RFC3339),
	}
}
