package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/bondd/internal/domain"
	"github.com/alanyoungcy/bondd/internal/pricing"
	"github.com/alanyoungcy/bondd/internal/service"
)

// BondService defines the catalog methods the bond handler requires.
type BondService interface {
	List(ctx context.Context, sort pricing.Sort) ([]domain.Bond, error)
	Get(ctx context.Context, id string) (domain.Bond, error)
}

// QuoteService defines the pricing and swap methods the bond handler requires.
type QuoteService interface {
	Quote(ctx context.Context, bondID string, side domain.Side, amount decimal.Decimal) (service.QuoteResult, error)
	Swap(ctx context.Context, bondID string, in service.SwapInput) (domain.SwapState, error)
	Execute(ctx context.Context, bondID string, req service.TradeRequest) (service.TradeResult, error)
}

// bondView is a catalog entry with its display symbol.
type bondView struct {
	domain.Bond
	Symbol string `json:"symbol"`
}

// BondHandler serves the bond catalog, quotes and swaps.
type BondHandler struct {
	bonds  BondService
	quotes QuoteService
	logger *slog.Logger
}

// NewBondHandler creates a BondHandler with the given services and logger.
func NewBondHandler(bonds BondService, quotes QuoteService, logger *slog.Logger) *BondHandler {
	return &BondHandler{bonds: bonds, quotes: quotes, logger: logger}
}

// ListBonds returns the catalog ordered by ?sort=maturity|liquidity|price and
// ?order=asc|desc.
// GET /api/bonds
func (h *BondHandler) ListBonds(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sort, err := pricing.ParseSort(q.Get("sort"), q.Get("order"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bonds, err := h.bonds.List(r.Context(), sort)
	if err != nil {
		writeServiceError(w, r, h.logger, "list bonds", err)
		return
	}

	views := make([]bondView, 0, len(bonds))
	for _, b := range bonds {
		views = append(views, bondView{Bond: b, Symbol: b.Symbol()})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bonds": views,
		"count": len(views),
		"sort":  sort.Field,
		"order": sort.Order,
	})
}

// GetBond returns a single bond by ID.
// GET /api/bonds/{id}
func (h *BondHandler) GetBond(w http.ResponseWriter, r *http.Request) {
	bond, err := h.bonds.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get bond", err)
		return
	}
	writeJSON(w, http.StatusOK, bondView{Bond: bond, Symbol: bond.Symbol()})
}

// Quote converts ?amount= on ?side=eth|bond to the other leg.
// GET /api/bonds/{id}/quote
func (h *BondHandler) Quote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	side := domain.Side(q.Get("side"))
	if side == "" {
		side = domain.SideETH
	}
	amount, err := pricing.ParseAmount(q.Get("amount"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount must be a decimal number with at most 60 integer and 18 decimal digits")
		return
	}

	res, err := h.quotes.Quote(r.Context(), r.PathValue("id"), side, amount)
	if err != nil {
		writeServiceError(w, r, h.logger, "quote", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Swap applies one edit of the swap form and returns both fields.
// POST /api/bonds/{id}/swap
func (h *BondHandler) Swap(w http.ResponseWriter, r *http.Request) {
	var in service.SwapInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	state, err := h.quotes.Swap(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeServiceError(w, r, h.logger, "swap", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"swap":  state,
		"ready": state.SellAmount != "" && state.BuyAmount != "",
	})
}

// Trade executes a swap from the operator wallet.
// POST /api/bonds/{id}/trades
func (h *BondHandler) Trade(w http.ResponseWriter, r *http.Request) {
	var req service.TradeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := pricing.CheckAmount(req.SellAmount); err != nil {
		writeError(w, http.StatusBadRequest, "sell_amount: "+err.Error())
		return
	}

	res, err := h.quotes.Execute(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, r, h.logger, "trade", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
