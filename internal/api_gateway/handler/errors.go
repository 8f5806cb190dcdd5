package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/exchange-bridge/internal/api_gateway/middleware"
	"github.com/exchange-bridge/internal/domain/quote"
	"github.com/exchange-bridge/internal/domain/shared"
	"github.com/exchange-bridge/internal/domain/transfer"
	"github.com/gin-gonic/gin"
)

// LimitDetails is the headroom reported with a LIMIT_EXCEEDED error
type LimitDetails struct {
	Requested       string `json:"requested"`
	DailyAvailable  string `json:"daily_available"`
	WeeklyAvailable string `json:"weekly_available"`
}

// respondServiceError maps a service error onto the response envelope.
// Unclassified errors are logged and reported as 500.
func respondServiceError(c *gin.Context, logger *slog.Logger, op string, err error) {
	var (
		validationErr shared.ValidationError
		otpErr        shared.OTPError
		limitErr      shared.LimitExceededError
		notFoundErr   transfer.ErrTransactionNotFound
		conflictErr   transfer.ErrConcurrentModification
	)

	switch {
	case errors.As(err, &validationErr):
		RespondBadRequest(c, validationErr.Error())
	case errors.As(err, &otpErr):
		RespondUnprocessable(c, string(otpErr.Kind), otpErr.Error())
	case errors.As(err, &limitErr):
		RespondWithErrorDetails(c, http.StatusUnprocessableEntity, "LIMIT_EXCEEDED", "Transfer exceeds the remaining limit", LimitDetails{
			Requested:       limitErr.Requested.StringFixed(2),
			DailyAvailable:  limitErr.DailyAvailable.StringFixed(2),
			WeeklyAvailable: limitErr.WeeklyAvailable.StringFixed(2),
		})
	case errors.As(err, &notFoundErr):
		RespondNotFound(c, "Transaction not found")
	case errors.Is(err, transfer.ErrInvalidTransition), errors.Is(err, transfer.ErrAlreadyTerminal):
		RespondConflict(c, "Transaction is not in a state that allows this operation")
	case errors.As(err, &conflictErr):
		RespondConflict(c, "Transaction was modified concurrently, retry the request")
	case errors.Is(err, quote.ErrRateUnavailable):
		RespondServiceUnavailable(c, "Exchange rate unavailable")
	default:
		logger.Error("Request failed",
			"operation", op,
			"correlation_id", middleware.GetCorrelationID(c),
			"error", err)
		RespondInternalError(c)
	}
}
