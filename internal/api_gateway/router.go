package api_gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/exchange-bridge/internal/api_gateway/handler"
	"github.com/exchange-bridge/internal/api_gateway/middleware"
	"github.com/gin-gonic/gin"
)

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	exchangeHandler *handler.ExchangeHandler,
	transactionHandler *handler.TransactionHandler,
	webhookHandler *handler.WebhookHandler,
) {
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))

	// API v1 endpoints, caller identity required
	v1 := r.Group("/api/v1", middleware.RequireUser())
	{
		exchange := v1.Group("/exchange")
		{
			exchange.GET("/quote", exchangeHandler.Quote)
			exchange.GET("/rates", exchangeHandler.Rates)
			exchange.POST("/initiate", exchangeHandler.Initiate)
			exchange.POST("/confirm", exchangeHandler.Confirm)
			exchange.POST("/resend-otp", exchangeHandler.ResendOTP)
			exchange.GET("/status/:id", exchangeHandler.Status)
			exchange.POST("/cancel/:id", exchangeHandler.Cancel)
		}

		transactions := v1.Group("/transactions")
		{
			transactions.GET("", transactionHandler.List)
			transactions.GET("/stats", transactionHandler.Stats)
			transactions.GET("/export", transactionHandler.Export)
			transactions.GET("/:id", transactionHandler.GetByID)
		}
	}

	// Provider callbacks
	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("/ewallet", webhookHandler.EWallet)
		webhooks.POST("/mobile-money", webhookHandler.MobileMoney)
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
