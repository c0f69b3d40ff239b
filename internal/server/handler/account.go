package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/bondd/internal/service"
)

// AccountService defines the methods the account handler requires.
type AccountService interface {
	Balances(ctx context.Context, address string) (service.Balances, error)
	Limits(ctx context.Context, address, bondID string) (service.Limits, error)
}

// AccountHandler serves balances and issuance limits per address.
type AccountHandler struct {
	accounts AccountService
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(accounts AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logger}
}

// Balances returns wallet, deposit, bond and available balances.
// GET /api/accounts/{address}
func (h *AccountHandler) Balances(w http.ResponseWriter, r *http.Request) {
	bal, err := h.accounts.Balances(r.Context(), r.PathValue("address"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get balances", err)
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

// Limits returns the largest issuance of ?bond_id= the address can make.
// GET /api/accounts/{address}/limits
func (h *AccountHandler) Limits(w http.ResponseWriter, r *http.Request) {
	bondID := r.URL.Query().Get("bond_id")
	if bondID == "" {
		writeError(w, http.StatusBadRequest, "missing bond_id")
		return
	}
	lim, err := h.accounts.Limits(r.Context(), r.PathValue("address"), bondID)
	if err != nil {
		writeServiceError(w, r, h.logger, "get limits", err)
		return
	}
	writeJSON(w, http.StatusOK, lim)
}
