package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"
)

// PriceService returns the cached ETH/USD price.
type PriceService interface {
	EthUsd(ctx context.Context) (decimal.Decimal, bool)
}

// PriceHandler serves reference prices.
type PriceHandler struct {
	prices PriceService
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler.
func NewPriceHandler(prices PriceService, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{prices: prices, logger: logger}
}

// EthPrice returns the ETH/USD price, or loading=true while none is cached.
// GET /api/price/eth
func (h *PriceHandler) EthPrice(w http.ResponseWriter, r *http.Request) {
	price, loading := h.prices.EthUsd(r.Context())
	if loading {
		writeJSON(w, http.StatusOK, map[string]any{"loading": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"loading": false,
		"usd":     price,
	})
}
