package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/exchange-bridge/internal/api_gateway/service"
	"github.com/exchange-bridge/internal/domain/limits"
	"github.com/exchange-bridge/internal/domain/quote"
	"github.com/exchange-bridge/internal/domain/shared"
	"github.com/exchange-bridge/internal/domain/transfer"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func pendingTransaction() *transfer.Transaction {
	id := uuid.New()
	now := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	return &transfer.Transaction{
		ID:        id,
		UserID:    testUserID,
		Direction: shared.DirectionWalletToMobile,
		Amounts: transfer.Amounts{
			SourceAmount:        decimal.NewFromInt(100),
			SourceCurrency:      "USD",
			DestinationAmount:   decimal.NewFromInt(6350),
			DestinationCurrency: "MZN",
			ExchangeRate:        decimal.RequireFromString("63.5"),
			Fee:                 transfer.Fee{Total: decimal.RequireFromString("2.5"), Currency: "USD"},
			NetAmount:           decimal.RequireFromString("6191.25"),
		},
		Status: shared.TransactionStatusPending,
		Source: transfer.Leg{Provider: "ewallet", AccountIdentifier: "buyer@example.com",
			ProviderTransactionID: transfer.LegReference(id, transfer.LegSource), Status: shared.LegStatusNotStarted},
		Destination: transfer.Leg{Provider: "mobile-money", AccountIdentifier: "258841234567",
			ProviderTransactionID: transfer.LegReference(id, transfer.LegDestination), Status: shared.LegStatusNotStarted},
		History:   []transfer.StatusChange{{Version: 1, Status: shared.TransactionStatusPending, At: now}},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func decodeBody(t *testing.T, body []byte) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	errorField, ok := decodeBody(t, body)["error"].(map[string]interface{})
	require.True(t, ok, "'error' field should be a map")
	return errorField["code"].(string)
}

func newExchangeRouter(svc service.ExchangeService) *gin.Engine {
	h := NewExchangeHandler(newTestLogger(), svc)
	router := newTestRouter()
	router.GET("/quote", h.Quote)
	router.GET("/rates", h.Rates)
	router.POST("/initiate", h.Initiate)
	router.POST("/confirm", h.Confirm)
	router.POST("/resend-otp", h.ResendOTP)
	router.GET("/status/:id", h.Status)
	router.POST("/cancel/:id", h.Cancel)
	return router
}

func TestExchangeHandler_Quote(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		svc := new(MockExchangeService)
		amount := decimal.NewFromInt(100)
		svc.On("Quote", mock.Anything, testUserID, shared.DirectionWalletToMobile, mock.MatchedBy(amount.Equal)).
			Return(&service.QuoteResult{
				Quote:  &quote.Quote{Direction: shared.DirectionWalletToMobile, Amounts: pendingTransaction().Amounts},
				Limits: &limits.Decision{Allowed: true, Requested: amount, DailyAvailable: decimal.NewFromInt(500), WeeklyAvailable: decimal.NewFromInt(2000)},
			}, nil)

		rr := serve(newExchangeRouter(svc), http.MethodGet, "/quote?direction=WALLET_TO_MOBILE&amount=100", nil)

		assert.Equal(t, http.StatusOK, rr.Code)
		data := decodeBody(t, rr.Body.Bytes())["data"].(map[string]interface{})
		assert.Equal(t, true, data["limits"].(map[string]interface{})["can_proceed"])
		svc.AssertExpectations(t)
	})

	t.Run("InvalidAmount", func(t *testing.T) {
		svc := new(MockExchangeService)
		rr := serve(newExchangeRouter(svc), http.MethodGet, "/quote?direction=WALLET_TO_MOBILE&amount=ten", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		svc.AssertNotCalled(t, "Quote")
	})

	t.Run("InvalidDirection", func(t *testing.T) {
		svc := new(MockExchangeService)
		rr := serve(newExchangeRouter(svc), http.MethodGet, "/quote?direction=SIDEWAYS&amount=10", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("RateUnavailable", func(t *testing.T) {
		svc := new(MockExchangeService)
		svc.On("Quote", mock.Anything, testUserID, shared.DirectionMobileToWallet, mock.Anything).
			Return(nil, fmt.Errorf("failed to price transfer: %w", quote.ErrRateUnavailable))

		rr := serve(newExchangeRouter(svc), http.MethodGet, "/quote?direction=MOBILE_TO_WALLET&amount=1000", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})
}

func TestExchangeHandler_Rates(t *testing.T) {
	svc := new(MockExchangeService)
	svc.On("Rates", mock.Anything).Return([]quote.Rate{{Base: "USD", Target: "MZN", Rate: decimal.RequireFromString("63.5")}})

	rr := serve(newExchangeRouter(svc), http.MethodGet, "/rates", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	data := decodeBody(t, rr.Body.Bytes())["data"].(map[string]interface{})
	assert.Len(t, data["rates"], 1)
}

func TestExchangeHandler_Initiate(t *testing.T) {
	body := func() *bytes.Buffer {
		return bytes.NewBufferString(`{"direction":"WALLET_TO_MOBILE","amount":"100","source_account":"buyer@example.com","destination_account":"258841234567"}`)
	}

	t.Run("Success", func(t *testing.T) {
		svc := new(MockExchangeService)
		tx := pendingTransaction()
		expires := time.Date(2026, 5, 1, 9, 35, 0, 0, time.UTC)
		svc.On("Initiate", mock.Anything, mock.MatchedBy(func(req *service.InitiateRequest) bool {
			return req.UserID == testUserID &&
				req.Direction == shared.DirectionWalletToMobile &&
				req.Amount.Equal(decimal.NewFromInt(100)) &&
				req.DestinationAccount == "258841234567" &&
				req.CorrelationID != ""
		})).Return(&service.InitiateResult{Transaction: tx, OTPExpiresAt: expires}, nil)

		rr := serve(newExchangeRouter(svc), http.MethodPost, "/initiate", body())

		assert.Equal(t, http.StatusCreated, rr.Code)
		data := decodeBody(t, rr.Body.Bytes())["data"].(map[string]interface{})
		assert.Equal(t, tx.ID.String(), data["transaction_id"])
		assert.Equal(t, "PENDING", data["status"])
		assert.Equal(t, "2026-05-01T09:35:00Z", data["otp_expires_at"])
		svc.AssertExpectations(t)
	})

	t.Run("LimitExceeded", func(t *testing.T) {
		svc := new(MockExchangeService)
		svc.On("Initiate", mock.Anything, mock.Anything).Return(nil, shared.LimitExceededError{
			Requested:       decimal.NewFromInt(100),
			DailyAvailable:  decimal.NewFromInt(40),
			WeeklyAvailable: decimal.NewFromInt(900),
		})

		rr := serve(newExchangeRouter(svc), http.MethodPost, "/initiate", body())

		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		errorField := decodeBody(t, rr.Body.Bytes())["error"].(map[string]interface{})
		assert.Equal(t, "LIMIT_EXCEEDED", errorField["code"])
		details := errorField["details"].(map[string]interface{})
		assert.Equal(t, "40.00", details["daily_available"])
		assert.Equal(t, "900.00", details["weekly_available"])
	})

	t.Run("ValidationError", func(t *testing.T) {
		svc := new(MockExchangeService)
		svc.On("Initiate", mock.Anything, mock.Anything).Return(nil, shared.ValidationError{Field: "amount", Message: "must be at least 1"})

		rr := serve(newExchangeRouter(svc), http.MethodPost, "/initiate", body())
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("MissingAccount", func(t *testing.T) {
		svc := new(MockExchangeService)
		rr := serve(newExchangeRouter(svc), http.MethodPost, "/initiate",
			bytes.NewBufferString(`{"direction":"WALLET_TO_MOBILE","amount":"100","source_account":"buyer@example.com"}`))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		svc.AssertNotCalled(t, "Initiate")
	})

	t.Run("ServiceError", func(t *testing.T) {
		svc := new(MockExchangeService)
		svc.On("Initiate", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

		rr := serve(newExchangeRouter(svc), http.MethodPost, "/initiate", body())
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.NotEmpty(t, decodeBody(t, rr.Body.Bytes())["correlation_id"])
	})
}

func TestExchangeHandler_Confirm(t *testing.T) {
	tx := pendingTransaction()
	body := func(code string) *bytes.Buffer {
		return bytes.NewBufferString(fmt.Sprintf(`{"transaction_id":%q,"otp":%q}`, tx.ID, code))
	}

	t.Run("Accepted", func(t *testing.T) {
		svc := new(MockExchangeService)
		processing := *tx
		processing.Status = shared.TransactionStatusProcessing
		svc.On("Confirm", mock.Anything, testUserID, tx.ID, "482913", mock.Anything).Return(&processing, nil)

		rr := serve(newExchangeRouter(svc), http.MethodPost, "/confirm", body("482913"))

		assert.Equal(t, http.StatusAccepted, rr.Code)
		data := decodeBody(t, rr.Body.Bytes())["data"].(map[string]interface{})
		assert.Equal(t, "PROCESSING", data["status"])
		assert.Equal(t, tx.ID.String(), data["transaction_id"])
	})

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"InvalidCode", shared.OTPError{Kind: shared.OTPInvalid}, http.StatusUnprocessableEntity, "OTP_INVALID"},
		{"ExpiredCode", shared.OTPError{Kind: shared.OTPExpired}, http.StatusUnprocessableEntity, "OTP_EXPIRED"},
		{"UsedCode", shared.OTPError{Kind: shared.OTPAlreadyUsed}, http.StatusUnprocessableEntity, "OTP_ALREADY_USED"},
		{"NotFound", transfer.ErrTransactionNotFound{TransactionID: tx.ID}, http.StatusNotFound, "NOT_FOUND"},
		{"ConcurrentConfirm", fmt.Errorf("failed to confirm: %w", transfer.ErrConcurrentModification{TransactionID: tx.ID}), http.StatusConflict, "CONFLICT"},
		{"WrongState", transfer.InvalidTransitionError{From: shared.TransactionStatusCancelled, To: shared.TransactionStatusProcessing}, http.StatusConflict, "CONFLICT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockExchangeService)
			svc.On("Confirm", mock.Anything, testUserID, tx.ID, "482913", mock.Anything).Return(nil, tt.err)

			rr := serve(newExchangeRouter(svc), http.MethodPost, "/confirm", body("482913"))

			assert.Equal(t, tt.wantCode, rr.Code)
			assert.Equal(t, tt.wantErr, errorCode(t, rr.Body.Bytes()))
		})
	}

	t.Run("MalformedCode", func(t *testing.T) {
		svc := new(MockExchangeService)
		rr := serve(newExchangeRouter(svc), http.MethodPost, "/confirm", body("12ab56"))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		svc.AssertNotCalled(t, "Confirm")
	})
}

func TestExchangeHandler_ResendOTP(t *testing.T) {
	svc := new(MockExchangeService)
	tx := pendingTransaction()
	svc.On("ResendOTP", mock.Anything, testUserID, tx.ID, mock.Anything).
		Return(&service.InitiateResult{Transaction: tx, OTPExpiresAt: time.Date(2026, 5, 1, 9, 40, 0, 0, time.UTC)}, nil)

	rr := serve(newExchangeRouter(svc), http.MethodPost, "/resend-otp",
		bytes.NewBufferString(fmt.Sprintf(`{"transaction_id":%q}`, tx.ID)))

	assert.Equal(t, http.StatusOK, rr.Code)
	data := decodeBody(t, rr.Body.Bytes())["data"].(map[string]interface{})
	assert.Equal(t, "2026-05-01T09:40:00Z", data["otp_expires_at"])
}

func TestExchangeHandler_Status(t *testing.T) {
	t.Run("IncludesHistory", func(t *testing.T) {
		svc := new(MockExchangeService)
		tx := pendingTransaction()
		svc.On("Status", mock.Anything, testUserID, tx.ID).Return(tx, nil)

		rr := serve(newExchangeRouter(svc), http.MethodGet, "/status/"+tx.ID.String(), nil)

		assert.Equal(t, http.StatusOK, rr.Code)
		data := decodeBody(t, rr.Body.Bytes())["data"].(map[string]interface{})
		assert.Len(t, data["status_history"], 1)
		assert.Equal(t, tx.ID.String()+"-SRC", data["source"].(map[string]interface{})["reference"])
	})

	t.Run("InvalidID", func(t *testing.T) {
		svc := new(MockExchangeService)
		rr := serve(newExchangeRouter(svc), http.MethodGet, "/status/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("OtherUsersTransaction", func(t *testing.T) {
		svc := new(MockExchangeService)
		id := uuid.New()
		svc.On("Status", mock.Anything, testUserID, id).Return(nil, transfer.ErrTransactionNotFound{TransactionID: id})

		rr := serve(newExchangeRouter(svc), http.MethodGet, "/status/"+id.String(), nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestExchangeHandler_Cancel(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		svc := new(MockExchangeService)
		tx := pendingTransaction()
		cancelled := *tx
		cancelled.Status = shared.TransactionStatusCancelled
		cancelled.FailureReason = shared.FailureReasonUserCancelled
		svc.On("Cancel", mock.Anything, testUserID, tx.ID, mock.Anything).Return(&cancelled, nil)

		rr := serve(newExchangeRouter(svc), http.MethodPost, "/cancel/"+tx.ID.String(), nil)

		assert.Equal(t, http.StatusOK, rr.Code)
		data := decodeBody(t, rr.Body.Bytes())["data"].(map[string]interface{})
		assert.Equal(t, "CANCELLED", data["status"])
		assert.Equal(t, "USER_CANCELLED", data["failure_reason"])
	})

	t.Run("AlreadyProcessing", func(t *testing.T) {
		svc := new(MockExchangeService)
		id := uuid.New()
		svc.On("Cancel", mock.Anything, testUserID, id, mock.Anything).Return(nil,
			transfer.InvalidTransitionError{From: shared.TransactionStatusProcessing, To: shared.TransactionStatusCancelled})

		rr := serve(newExchangeRouter(svc), http.MethodPost, "/cancel/"+id.String(), nil)
		assert.Equal(t, http.StatusConflict, rr.Code)
	})
}
