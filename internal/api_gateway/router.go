package api_gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/remitbridge-transfer-orchestrator/internal/api_gateway/handler"
	"github.com/remitbridge-transfer-orchestrator/internal/api_gateway/middleware"
)

// handlers groups everything the router mounts
type handlers struct {
	transfers *handler.TransferHandler
	rates     *handler.RateHandler
	webhooks  *handler.WebhookHandler
	realtime  *handler.RealtimeHandler
}

// setupRouter configures API routes and middleware for the application
func setupRouter(logger *slog.Logger, r *gin.Engine, h handlers) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Logger(logger))

	// API v1 endpoints
	v1 := r.Group("/api/v1")
	{
		transfers := v1.Group("/transfers")
		{
			transfers.POST("", h.transfers.Create)
			transfers.GET("/:id", h.transfers.GetByID)
			transfers.POST("/:id/retry", h.transfers.Retry)
			transfers.GET("/:id/events", h.realtime.Events)
		}

		v1.GET("/rates/:currency", h.rates.Get)
	}

	// Provider callbacks
	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("/checkout", h.webhooks.Checkout)
		webhooks.POST("/mpesa/result", h.webhooks.PayoutResult)
		webhooks.POST("/mpesa/timeout", h.webhooks.PayoutTimeout)
	}

	r.GET("/ws", h.realtime.WebSocket)

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
