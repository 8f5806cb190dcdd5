package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/exchange-bridge/internal/api_gateway/middleware"
	"github.com/exchange-bridge/internal/api_gateway/service"
	"github.com/exchange-bridge/internal/domain/shared"
	"github.com/gin-gonic/gin"
)

// WebhookHandler receives provider callbacks. It acks as soon as the event is
// handed to the processor; reconciliation happens there.
type WebhookHandler struct {
	webhookService service.WebhookService
	logger         *slog.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(logger *slog.Logger, webhookService service.WebhookService) *WebhookHandler {
	return &WebhookHandler{
		webhookService: webhookService,
		logger:         logger,
	}
}

// EWallet handles e-wallet capture and payout notifications
func (h *WebhookHandler) EWallet(c *gin.Context) {
	var notification service.EWalletNotification
	if err := c.ShouldBindJSON(&notification); err != nil {
		h.logger.Warn("Dropping malformed e-wallet webhook", "error", err)
		RespondBadRequest(c, "Invalid webhook payload")
		return
	}

	event, err := notification.ToEvent(middleware.GetCorrelationID(c), time.Now().UTC())
	if !h.accept(c, "ewallet", event, err) {
		return
	}

	RespondOK(c, gin.H{"status": "received"})
}

// MobileMoney handles mobile money transaction callbacks
func (h *WebhookHandler) MobileMoney(c *gin.Context) {
	var callback service.MobileMoneyCallback
	if err := c.ShouldBindJSON(&callback); err != nil {
		h.logger.Warn("Dropping malformed mobile money webhook", "error", err)
		RespondBadRequest(c, "Invalid webhook payload")
		return
	}

	event, err := callback.ToEvent(middleware.GetCorrelationID(c), time.Now().UTC())
	if !h.accept(c, "mobile-money", event, err) {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"output_ResponseCode": service.MobileMoneySuccessCode,
		"output_ResponseDesc": service.MobileMoneyCallbackReply,
	})
}

// accept publishes a normalized event. It writes the response and returns false
// unless the caller should send its success reply.
func (h *WebhookHandler) accept(c *gin.Context, provider string, event *shared.ProviderEvent, parseErr error) bool {
	var validationErr shared.ValidationError
	switch {
	case errors.Is(parseErr, service.ErrIgnoredEvent):
		h.logger.Info("Ignoring webhook event", "provider", provider, "error", parseErr)
		RespondOK(c, gin.H{"status": "ignored"})
		return false
	case errors.As(parseErr, &validationErr):
		h.logger.Warn("Dropping invalid webhook", "provider", provider, "error", parseErr)
		RespondBadRequest(c, validationErr.Error())
		return false
	case parseErr != nil:
		h.logger.Error("Failed to parse webhook", "provider", provider, "error", parseErr)
		RespondBadRequest(c, "Invalid webhook payload")
		return false
	}

	if err := h.webhookService.Accept(c.Request.Context(), event); err != nil {
		if errors.Is(err, service.ErrEventNotAccepted) {
			RespondServiceUnavailable(c, "Event could not be queued, retry later")
			return false
		}
		respondServiceError(c, h.logger, "webhook_"+provider, err)
		return false
	}
	return true
}
