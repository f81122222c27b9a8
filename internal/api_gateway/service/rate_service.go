package service

import (
	"context"
	"strings"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
	"github.com/remitbridge-transfer-orchestrator/internal/orchestrator"
)

// RateServiceImpl reads the same caches the orchestrator quotes from
type RateServiceImpl struct {
	bridge orchestrator.BridgeRates
	local  orchestrator.LocalRates
}

func NewRateService(bridge orchestrator.BridgeRates, local orchestrator.LocalRates) RateService {
	return &RateServiceImpl{bridge: bridge, local: local}
}

func (s *RateServiceImpl) Rates(ctx context.Context, currency string) (RateSnapshot, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if len(currency) != 3 {
		return RateSnapshot{}, transfer.ValidationError{Field: "currency", Reason: "must be a 3-letter code"}
	}

	local, err := s.local.Rate(ctx, currency)
	if err != nil {
		return RateSnapshot{}, err
	}

	return RateSnapshot{
		Currency:   currency,
		BridgeUSD:  s.bridge.Quote(ctx),
		USDToLocal: local,
	}, nil
}
