package handler

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/exchange-bridge/internal/api_gateway/middleware"
	"github.com/exchange-bridge/internal/api_gateway/service"
	"github.com/gin-gonic/gin"
)

// TransactionHandler handles HTTP requests for transaction history
type TransactionHandler struct {
	queryService service.TransactionQueryService
	logger       *slog.Logger
}

// NewTransactionHandler creates a new transaction handler
func NewTransactionHandler(logger *slog.Logger, queryService service.TransactionQueryService) *TransactionHandler {
	return &TransactionHandler{
		queryService: queryService,
		logger:       logger,
	}
}

// List returns the caller's transactions, newest first
func (h *TransactionHandler) List(c *gin.Context) {
	var params ListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		RespondBadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}
	filter, err := params.Filter(middleware.GetUserID(c))
	if err != nil {
		RespondBadRequest(c, err.Error())
		return
	}

	items, total, err := h.queryService.List(c.Request.Context(), filter, params.Page, params.PerPage)
	if err != nil {
		respondServiceError(c, h.logger, "list_transactions", err)
		return
	}

	transactions := make([]TransactionResponse, 0, len(items))
	for _, tx := range items {
		transactions = append(transactions, mapTransactionToResponse(tx))
	}

	RespondWithPaginatedData(c, http.StatusOK, transactions, params.Page, params.PerPage, int(total))
}

// Stats returns aggregate counters over the caller's transactions
func (h *TransactionHandler) Stats(c *gin.Context) {
	stats, err := h.queryService.Stats(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondServiceError(c, h.logger, "transaction_stats", err)
		return
	}

	RespondOK(c, stats)
}

// Export streams the caller's transactions as CSV
func (h *TransactionHandler) Export(c *gin.Context) {
	var params ListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		RespondBadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}
	filter, err := params.Filter(middleware.GetUserID(c))
	if err != nil {
		RespondBadRequest(c, err.Error())
		return
	}

	// Buffered so a failed read can still be reported as JSON
	var buf bytes.Buffer
	if err := h.queryService.Export(c.Request.Context(), filter, &buf); err != nil {
		respondServiceError(c, h.logger, "export_transactions", err)
		return
	}

	filename := fmt.Sprintf("transactions-%s.csv", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// GetByID returns one of the caller's transactions with its status history
func (h *TransactionHandler) GetByID(c *gin.Context) {
	id, ok := parseTransactionID(c)
	if !ok {
		return
	}

	tx, err := h.queryService.Get(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		respondServiceError(c, h.logger, "get_transaction", err)
		return
	}

	RespondOK(c, mapTransactionToResponse(tx))
}
