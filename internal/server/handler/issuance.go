package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/bondd/internal/domain"
	"github.com/alanyoungcy/bondd/internal/pricing"
)

// IssuanceService defines the methods the issuance handler requires.
type IssuanceService interface {
	Issue(ctx context.Context, bondID string, amount decimal.Decimal) (domain.Issuance, error)
	Retry(ctx context.Context, id string) (domain.Issuance, error)
	Get(ctx context.Context, id string) (domain.Issuance, error)
	List(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.Issuance, error)
}

type issueRequest struct {
	BondID string          `json:"bond_id"`
	Amount decimal.Decimal `json:"amount"`
}

// IssuanceHandler serves bond issuance endpoints.
type IssuanceHandler struct {
	issuances IssuanceService
	logger    *slog.Logger
}

// NewIssuanceHandler creates an IssuanceHandler.
func NewIssuanceHandler(issuances IssuanceService, logger *slog.Logger) *IssuanceHandler {
	return &IssuanceHandler{issuances: issuances, logger: logger}
}

// Issue submits an issuance and waits for its confirmation.
// POST /api/issuances
func (h *IssuanceHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.BondID == "" {
		writeError(w, http.StatusBadRequest, "missing bond_id")
		return
	}
	if err := pricing.CheckAmount(req.Amount); err != nil {
		writeError(w, http.StatusBadRequest, "amount: "+err.Error())
		return
	}

	iss, err := h.issuances.Issue(r.Context(), req.BondID, req.Amount)
	h.writeAttempt(w, r, "issue", iss, err, http.StatusCreated)
}

// Retry re-submits a failed issuance with the same bond and amount.
// POST /api/issuances/{id}/retry
func (h *IssuanceHandler) Retry(w http.ResponseWriter, r *http.Request) {
	iss, err := h.issuances.Retry(r.Context(), r.PathValue("id"))
	h.writeAttempt(w, r, "retry issuance", iss, err, http.StatusOK)
}

// writeAttempt renders the outcome of a submission. A failed transaction
// still carries the recorded issuance so clients can offer a retry.
func (h *IssuanceHandler) writeAttempt(w http.ResponseWriter, r *http.Request, op string, iss domain.Issuance, err error, okStatus int) {
	if err == nil {
		writeJSON(w, okStatus, iss)
		return
	}
	if errors.Is(err, domain.ErrTransactionFailed) && iss.ID != "" {
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":    err.Error(),
			"issuance": iss,
		})
		return
	}
	writeServiceError(w, r, h.logger, op, err)
}

// GetIssuance returns one issuance.
// GET /api/issuances/{id}
func (h *IssuanceHandler) GetIssuance(w http.ResponseWriter, r *http.Request) {
	iss, err := h.issuances.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get issuance", err)
		return
	}
	writeJSON(w, http.StatusOK, iss)
}

// ListIssuances returns issuances of ?wallet= (default: the operator wallet).
// GET /api/issuances
func (h *IssuanceHandler) ListIssuances(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := h.issuances.List(r.Context(), r.URL.Query().Get("wallet"), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "list issuances", err)
		return
	}
	if out == nil {
		out = []domain.Issuance{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"issuances": out,
		"count":     len(out),
		"limit":     opts.Limit,
		"offset":    opts.Offset,
	})
}
