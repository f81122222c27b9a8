package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/remitbridge-transfer-orchestrator/internal/api_gateway/service"
	"github.com/remitbridge-transfer-orchestrator/internal/rates"
)

// RateHandler serves current quotes for operators and remitctl
type RateHandler struct {
	rateService service.RateService
	logger      *slog.Logger
}

func NewRateHandler(logger *slog.Logger, rateService service.RateService) *RateHandler {
	return &RateHandler{rateService: rateService, logger: logger}
}

func (h *RateHandler) Get(c *gin.Context) {
	currency := c.Param("currency")

	snap, err := h.rateService.Rates(c.Request.Context(), currency)
	if err != nil {
		if RespondDomainError(c, err) {
			return
		}
		h.logger.Error("Failed to read rates", "currency", currency, "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, RateResponse{
		Currency:   snap.Currency,
		BridgeUSD:  mapQuote(snap.BridgeUSD),
		USDToLocal: mapQuote(snap.USDToLocal),
	})
}

func mapQuote(q rates.Quote) RateQuoteResponse {
	r := RateQuoteResponse{Rate: q.Rate, Source: q.Source}
	if !q.FetchedAt.IsZero() {
		at := q.FetchedAt.UTC()
		r.FetchedAt = &at
	}
	return r
}
