package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"

	"github.com/exchange-bridge/internal/api_gateway/middleware"
	"github.com/exchange-bridge/internal/api_gateway/service"
	"github.com/exchange-bridge/internal/domain/quote"
	"github.com/exchange-bridge/internal/domain/shared"
	"github.com/exchange-bridge/internal/domain/transfer"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

const testUserID = "user-1"

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

// newTestRouter mirrors the production middleware order for authenticated routes
func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequireUser())
	return router
}

func serve(router *gin.Engine, method, path string, body io.Reader) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.UserIDHeader, testUserID)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

type MockExchangeService struct {
	mock.Mock
}

func (m *MockExchangeService) Quote(ctx context.Context, userID string, direction shared.Direction, amount decimal.Decimal) (*service.QuoteResult, error) {
	args := m.Called(ctx, userID, direction, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.QuoteResult), args.Error(1)
}

func (m *MockExchangeService) Rates(ctx context.Context) []quote.Rate {
	args := m.Called(ctx)
	return args.Get(0).([]quote.Rate)
}

func (m *MockExchangeService) Initiate(ctx context.Context, req *service.InitiateRequest) (*service.InitiateResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.InitiateResult), args.Error(1)
}

func (m *MockExchangeService) Confirm(ctx context.Context, userID string, transactionID uuid.UUID, code, correlationID string) (*transfer.Transaction, error) {
	args := m.Called(ctx, userID, transactionID, code, correlationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transfer.Transaction), args.Error(1)
}

func (m *MockExchangeService) ResendOTP(ctx context.Context, userID string, transactionID uuid.UUID, correlationID string) (*service.InitiateResult, error) {
	args := m.Called(ctx, userID, transactionID, correlationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.InitiateResult), args.Error(1)
}

func (m *MockExchangeService) Cancel(ctx context.Context, userID string, transactionID uuid.UUID, correlationID string) (*transfer.Transaction, error) {
	args := m.Called(ctx, userID, transactionID, correlationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transfer.Transaction), args.Error(1)
}

func (m *MockExchangeService) Status(ctx context.Context, userID string, transactionID uuid.UUID) (*transfer.Transaction, error) {
	args := m.Called(ctx, userID, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transfer.Transaction), args.Error(1)
}

type MockQueryService struct {
	mock.Mock
}

func (m *MockQueryService) List(ctx context.Context, filter transfer.ListFilter, page, perPage int) ([]*transfer.Transaction, int64, error) {
	args := m.Called(ctx, filter, page, perPage)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*transfer.Transaction), args.Get(1).(int64), args.Error(2)
}

func (m *MockQueryService) Get(ctx context.Context, userID string, transactionID uuid.UUID) (*transfer.Transaction, error) {
	args := m.Called(ctx, userID, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transfer.Transaction), args.Error(1)
}

func (m *MockQueryService) Stats(ctx context.Context, userID string) (*transfer.Stats, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transfer.Stats), args.Error(1)
}

func (m *MockQueryService) Export(ctx context.Context, filter transfer.ListFilter, w io.Writer) error {
	args := m.Called(ctx, filter, w)
	if content := args.String(1); content != "" {
		_, _ = io.WriteString(w, content)
	}
	return args.Error(0)
}

type MockWebhookService struct {
	mock.Mock
}

func (m *MockWebhookService) Accept(ctx context.Context, event *shared.ProviderEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}
