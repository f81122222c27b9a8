package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/remitbridge-transfer-orchestrator/internal/api_gateway/middleware"
	"github.com/remitbridge-transfer-orchestrator/internal/api_gateway/service"
	"github.com/remitbridge-transfer-orchestrator/internal/providers/checkout"
	"github.com/remitbridge-transfer-orchestrator/internal/providers/mpesa"
	"github.com/remitbridge-transfer-orchestrator/internal/reconciler"
)

const (
	// SignatureHeader carries the checkout provider's HMAC signature
	SignatureHeader = "Stripe-Signature"

	maxWebhookBody = 64 << 10
)

// WebhookHandler receives provider callbacks. Once a delivery is
// authenticated it is acknowledged even when it changed nothing, so the
// provider does not redeliver it.
type WebhookHandler struct {
	webhookService service.WebhookService
	logger         *slog.Logger
}

func NewWebhookHandler(logger *slog.Logger, webhookService service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhookService: webhookService, logger: logger}
}

// Checkout handles a completed card checkout
func (h *WebhookHandler) Checkout(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		RespondBadRequest(c, "Unreadable request body")
		return
	}

	outcome, err := h.webhookService.HandleCheckoutCompleted(
		c.Request.Context(),
		payload,
		c.GetHeader(SignatureHeader),
		middleware.GetCorrelationID(c),
	)
	if err != nil {
		if errors.Is(err, checkout.ErrInvalidSignature) {
			h.logger.Warn("Rejected checkout webhook", "error", err)
			RespondBadRequest(c, "Invalid signature")
			return
		}
		h.logger.Error("Failed to handle checkout webhook", "action", string(outcome.Action), "error", err)
		RespondInternalError(c)
		return
	}

	c.JSON(http.StatusOK, WebhookAck{
		Received:      true,
		Action:        string(outcome.Action),
		TransactionID: outcome.TransactionID,
	})
}

// PayoutResult handles the asynchronous payout result
func (h *WebhookHandler) PayoutResult(c *gin.Context) {
	h.payoutCallback(c, h.webhookService.HandlePayoutResult)
}

// PayoutTimeout handles the provider's queue timeout notice
func (h *WebhookHandler) PayoutTimeout(c *gin.Context) {
	h.payoutCallback(c, h.webhookService.HandlePayoutTimeout)
}

func (h *WebhookHandler) payoutCallback(c *gin.Context, handle func(ctx context.Context, body mpesa.PayoutResult) (reconciler.Outcome, error)) {
	var body mpesa.PayoutResult
	if err := c.ShouldBindJSON(&body); err != nil {
		h.logger.Warn("Invalid payout callback body", "path", c.FullPath(), "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	outcome, err := handle(c.Request.Context(), body)
	if err != nil {
		if RespondDomainError(c, err) {
			h.logger.Warn("Payout callback not applied",
				"conversation_id", body.Result.ConversationID,
				"error", err,
			)
			return
		}
		h.logger.Error("Failed to handle payout callback",
			"conversation_id", body.Result.ConversationID,
			"error", err,
		)
		RespondInternalError(c)
		return
	}

	h.logger.Info("Payout callback applied",
		"conversation_id", body.Result.ConversationID,
		"transaction_id", outcome.TransactionID,
		"action", string(outcome.Action),
	)
	c.JSON(http.StatusOK, PayoutAck{ResultCode: 0, ResultDesc: "Accepted"})
}
