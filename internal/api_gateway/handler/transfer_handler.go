package handler

import (
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/remitbridge-transfer-orchestrator/internal/api_gateway/middleware"
	"github.com/remitbridge-transfer-orchestrator/internal/api_gateway/service"
	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
	"github.com/remitbridge-transfer-orchestrator/internal/orchestrator"
)

// IdempotencyKeyHeader lets clients make create requests safe to repeat
const IdempotencyKeyHeader = "Idempotency-Key"

// TransferHandler handles HTTP requests for transfer operations
type TransferHandler struct {
	transferService service.TransferService
	logger          *slog.Logger
}

// NewTransferHandler creates a new transfer handler
func NewTransferHandler(logger *slog.Logger, transferService service.TransferService) *TransferHandler {
	return &TransferHandler{
		transferService: transferService,
		logger:          logger,
	}
}

// Create validates the request, persists a pending transfer and queues it.
// A repeated Idempotency-Key returns the original transfer with 200.
func (h *TransferHandler) Create(c *gin.Context) {
	var req CreateTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	idempotencyKey := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
	if idempotencyKey == "" {
		idempotencyKey = uuid.New().String()
	}

	createReq := orchestrator.CreateRequest{
		IdempotencyKey: idempotencyKey,
		Sender:         transfer.Sender{Name: req.Sender.Name, Email: req.Sender.Email},
		Receiver: transfer.Receiver{
			Name:    req.Receiver.Name,
			Phone:   req.Receiver.Phone,
			Country: strings.ToUpper(req.Receiver.Country),
		},
		AmountUSD:     req.Amounts.USD,
		CorrelationID: middleware.GetCorrelationID(c),
	}
	if req.Vault != nil {
		createReq.Vault = &transfer.Vault{Enabled: req.Vault.Enabled}
	}
	if req.FXRate != nil {
		createReq.LocalCurrency = req.FXRate.LocalCurrency
		createReq.USDToLocal = req.FXRate.USDToLocal
	}

	t, duplicate, err := h.transferService.CreateTransfer(c.Request.Context(), createReq)
	if err != nil {
		if RespondDomainError(c, err) {
			return
		}
		h.logger.Error("Failed to create transfer", "idempotency_key", idempotencyKey, "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, TransferResponse{
		TransactionID: t.TransactionID,
		Status:        t.Status,
		Steps:         t.Steps,
		Duplicate:     duplicate,
	})
}

// GetByID returns the full status projection, or 404
func (h *TransferHandler) GetByID(c *gin.Context) {
	id := c.Param("id")

	t, err := h.transferService.GetTransfer(c.Request.Context(), id)
	if err != nil {
		if RespondDomainError(c, err) {
			return
		}
		h.logger.Error("Failed to get transfer", "transaction_id", id, "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, t.View())
}

// Retry reopens a failed transfer from its first incomplete stage
func (h *TransferHandler) Retry(c *gin.Context) {
	id := c.Param("id")

	var req RetryTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Warn("Invalid retry body", "transaction_id", id, "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if req.TransactionID != "" && req.TransactionID != id {
		RespondBadRequest(c, "transactionId does not match the path")
		return
	}

	t, err := h.transferService.RetryTransfer(c.Request.Context(), id)
	if err != nil {
		if RespondDomainError(c, err) {
			return
		}
		h.logger.Error("Failed to retry transfer", "transaction_id", id, "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, TransferResponse{
		TransactionID: t.TransactionID,
		Status:        t.Status,
		Steps:         t.Steps,
	})
}
