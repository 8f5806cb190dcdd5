package handler

import (
	"log/slog"

	"github.com/exchange-bridge/internal/api_gateway/middleware"
	"github.com/exchange-bridge/internal/api_gateway/service"
	"github.com/exchange-bridge/internal/domain/shared"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ExchangeHandler handles HTTP requests for the transfer lifecycle
type ExchangeHandler struct {
	exchangeService service.ExchangeService
	logger          *slog.Logger
}

// NewExchangeHandler creates a new exchange handler
func NewExchangeHandler(logger *slog.Logger, exchangeService service.ExchangeService) *ExchangeHandler {
	return &ExchangeHandler{
		exchangeService: exchangeService,
		logger:          logger,
	}
}

// Quote prices a transfer and reports the caller's limit headroom without reserving it
func (h *ExchangeHandler) Quote(c *gin.Context) {
	var query QuoteQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		RespondBadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}

	amount, err := decimal.NewFromString(query.Amount)
	if err != nil {
		RespondBadRequest(c, "Invalid amount")
		return
	}

	result, err := h.exchangeService.Quote(c.Request.Context(), middleware.GetUserID(c), shared.Direction(query.Direction), amount)
	if err != nil {
		respondServiceError(c, h.logger, "quote", err)
		return
	}

	RespondOK(c, result)
}

// Rates lists the configured currency pairs
func (h *ExchangeHandler) Rates(c *gin.Context) {
	RespondOK(c, gin.H{"rates": h.exchangeService.Rates(c.Request.Context())})
}

// Initiate creates a PENDING transfer and sends its confirmation code
func (h *ExchangeHandler) Initiate(c *gin.Context) {
	var req InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.exchangeService.Initiate(c.Request.Context(), &service.InitiateRequest{
		UserID:             middleware.GetUserID(c),
		Direction:          shared.Direction(req.Direction),
		Amount:             req.Amount,
		SourceAccount:      req.SourceAccount,
		DestinationAccount: req.DestinationAccount,
		CorrelationID:      middleware.GetCorrelationID(c),
	})
	if err != nil {
		respondServiceError(c, h.logger, "initiate", err)
		return
	}

	RespondCreated(c, mapInitiateResult(result.Transaction, result.OTPExpiresAt))
}

// Confirm verifies the code and schedules the transfer. Settlement continues asynchronously.
func (h *ExchangeHandler) Confirm(c *gin.Context) {
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	transactionID := uuid.MustParse(req.TransactionID)

	tx, err := h.exchangeService.Confirm(c.Request.Context(), middleware.GetUserID(c), transactionID, req.OTP, middleware.GetCorrelationID(c))
	if err != nil {
		respondServiceError(c, h.logger, "confirm", err)
		return
	}

	RespondAccepted(c, gin.H{
		"transaction_id": tx.ID.String(),
		"status":         string(tx.Status),
	})
}

// ResendOTP replaces the confirmation code of a PENDING transfer
func (h *ExchangeHandler) ResendOTP(c *gin.Context) {
	var req ResendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.exchangeService.ResendOTP(c.Request.Context(), middleware.GetUserID(c), uuid.MustParse(req.TransactionID), middleware.GetCorrelationID(c))
	if err != nil {
		respondServiceError(c, h.logger, "resend_otp", err)
		return
	}

	RespondOK(c, mapInitiateResult(result.Transaction, result.OTPExpiresAt))
}

// Status returns the transfer with its status history
func (h *ExchangeHandler) Status(c *gin.Context) {
	transactionID, ok := parseTransactionID(c)
	if !ok {
		return
	}

	tx, err := h.exchangeService.Status(c.Request.Context(), middleware.GetUserID(c), transactionID)
	if err != nil {
		respondServiceError(c, h.logger, "status", err)
		return
	}

	RespondOK(c, mapTransactionToResponse(tx))
}

// Cancel ends a PENDING transfer
func (h *ExchangeHandler) Cancel(c *gin.Context) {
	transactionID, ok := parseTransactionID(c)
	if !ok {
		return
	}

	tx, err := h.exchangeService.Cancel(c.Request.Context(), middleware.GetUserID(c), transactionID, middleware.GetCorrelationID(c))
	if err != nil {
		respondServiceError(c, h.logger, "cancel", err)
		return
	}

	RespondOK(c, mapTransactionToResponse(tx))
}

// parseTransactionID reads the :id path parameter, responding 400 when it is not a UUID
func parseTransactionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondBadRequest(c, "Invalid transaction ID")
		return uuid.Nil, false
	}
	return id, true
}
