package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/remitbridge-transfer-orchestrator/internal/api_gateway/service"
	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
	"github.com/remitbridge-transfer-orchestrator/internal/realtime"
)

// RealtimeHandler opens subscription channels onto the local hub
type RealtimeHandler struct {
	hub             *realtime.Hub
	transferService service.TransferService
	upgrader        websocket.Upgrader
	logger          *slog.Logger
}

func NewRealtimeHandler(logger *slog.Logger, hub *realtime.Hub, transferService service.TransferService) *RealtimeHandler {
	return &RealtimeHandler{
		hub:             hub,
		transferService: transferService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients are served from other origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// WebSocket upgrades the connection and serves it until it closes
func (h *RealtimeHandler) WebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	realtime.NewClient(h.logger, h.hub, conn).Run()
}

// Events streams status events for one transfer as Server-Sent Events,
// starting with its current projection
func (h *RealtimeHandler) Events(c *gin.Context) {
	id := c.Param("id")

	t, err := h.transferService.GetTransfer(c.Request.Context(), id)
	if err != nil {
		if RespondDomainError(c, err) {
			return
		}
		h.logger.Error("Failed to load transfer for event stream", "transaction_id", id, "error", err)
		RespondInternalError(c)
		return
	}

	realtime.ServeSSE(c, h.hub, id, transfer.NewStatusEvent(transfer.EventStatusUpdate, t, ""))
}
