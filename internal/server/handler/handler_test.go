package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bondd/internal/domain"
	"github.com/alanyoungcy/bondd/internal/pricing"
	"github.com/alanyoungcy/bondd/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var maturity = time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)

type stubBonds struct {
	bonds    []domain.Bond
	lastSort pricing.Sort
}

func (s *stubBonds) List(_ context.Context, sort pricing.Sort) ([]domain.Bond, error) {
	s.lastSort = sort
	return s.bonds, nil
}

func (s *stubBonds) Get(_ context.Context, id string) (domain.Bond, error) {
	for _, b := range s.bonds {
		if b.ID == id {
			return b, nil
		}
	}
	return domain.Bond{}, fmt.Errorf("catalog: bond %s: %w", id, domain.ErrNotFound)
}

type stubQuotes struct {
	swapIn   service.SwapInput
	tradeErr error
}

func (s *stubQuotes) Quote(_ context.Context, bondID string, side domain.Side, amount decimal.Decimal) (service.QuoteResult, error) {
	if amount.IsNegative() {
		return service.QuoteResult{}, domain.ErrNegativeAmount
	}
	return service.QuoteResult{BondID: bondID, Side: side, Input: amount, Output: amount.Mul(decimal.NewFromInt(2)).String()}, nil
}

func (s *stubQuotes) Swap(_ context.Context, _ string, in service.SwapInput) (domain.SwapState, error) {
	s.swapIn = in
	return domain.SwapState{SellAmount: in.Amount, BuyAmount: "", Direction: in.Direction}, nil
}

func (s *stubQuotes) Execute(_ context.Context, bondID string, req service.TradeRequest) (service.TradeResult, error) {
	if s.tradeErr != nil {
		return service.TradeResult{}, s.tradeErr
	}
	return service.TradeResult{BondID: bondID, Direction: req.Direction, SellAmount: req.SellAmount, TxHash: "0xabc"}, nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func bondMux(bonds *stubBonds, quotes *stubQuotes) *http.ServeMux {
	h := NewBondHandler(bonds, quotes, testLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/bonds", h.ListBonds)
	mux.HandleFunc("GET /api/bonds/{id}", h.GetBond)
	mux.HandleFunc("GET /api/bonds/{id}/quote", h.Quote)
	mux.HandleFunc("POST /api/bonds/{id}/swap", h.Swap)
	mux.HandleFunc("POST /api/bonds/{id}/trades", h.Trade)
	return mux
}

func TestListBonds(t *testing.T) {
	bonds := &stubBonds{bonds: []domain.Bond{{ID: "b1", Name: "vETH", Maturity: maturity}}}
	mux := bondMux(bonds, &stubQuotes{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/bonds?sort=price&order=desc", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 1, body["count"])
	assert.Equal(t, "price", body["sort"])
	assert.Equal(t, pricing.Sort{Field: pricing.SortByPrice, Order: pricing.Desc}, bonds.lastSort)

	list := body["bonds"].([]any)
	assert.Equal(t, "vETH_20250630", list[0].(map[string]any)["symbol"])
}

func TestListBondsRejectsUnknownSort(t *testing.T) {
	mux := bondMux(&stubBonds{}, &stubQuotes{})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/bonds?sort=colour", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetBondNotFound(t *testing.T) {
	mux := bondMux(&stubBonds{}, &stubQuotes{})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/bonds/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQuote(t *testing.T) {
	mux := bondMux(&stubBonds{}, &stubQuotes{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/bonds/b1/quote?amount=1.5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "eth", body["side"])
	assert.Equal(t, "3", body["output"])

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/bonds/b1/quote?amount=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/bonds/b1/quote?amount=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/bonds/b1/quote?amount=1e5000000", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOversizedAmountsRejected(t *testing.T) {
	quotes := &stubQuotes{}
	bonds := bondMux(&stubBonds{}, quotes)
	rec := httptest.NewRecorder()
	bonds.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/bonds/b1/trades",
		strings.NewReader(`{"direction":"sell_eth","sell_amount":"1e2000000000"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc := &stubIssuances{}
	issuances := issuanceMux(svc)
	rec = httptest.NewRecorder()
	issuances.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/issuances",
		strings.NewReader(`{"bond_id":"b1","amount":"1e-5000000"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.iss.BondID, "service not called")
}

func TestSwapReportsReadiness(t *testing.T) {
	quotes := &stubQuotes{}
	mux := bondMux(&stubBonds{}, quotes)

	req := httptest.NewRequest(http.MethodPost, "/api/bonds/b1/swap",
		strings.NewReader(`{"action":"sell","direction":"sell_eth","amount":"1"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["ready"])
	assert.Equal(t, service.SwapAction("sell"), quotes.swapIn.Action)
	assert.Equal(t, domain.SellIsETH, quotes.swapIn.Direction)
}

func TestSwapRejectsUnknownFields(t *testing.T) {
	mux := bondMux(&stubBonds{}, &stubQuotes{})
	req := httptest.NewRequest(http.MethodPost, "/api/bonds/b1/swap", strings.NewReader(`{"colour":"red"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTrade(t *testing.T) {
	quotes := &stubQuotes{}
	mux := bondMux(&stubBonds{}, quotes)

	req := httptest.NewRequest(http.MethodPost, "/api/bonds/b1/trades",
		strings.NewReader(`{"direction":"sell_eth","sell_amount":"1"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "0xabc", decodeBody(t, rec)["tx_hash"])

	quotes.tradeErr = fmt.Errorf("%w: %w", domain.ErrTransactionFailed, errors.New("reverted"))
	req = httptest.NewRequest(http.MethodPost, "/api/bonds/b1/trades",
		strings.NewReader(`{"direction":"sell_eth","sell_amount":"1"}`))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

type stubIssuances struct {
	iss domain.Issuance
	err error
}

func (s *stubIssuances) Issue(_ context.Context, bondID string, amount decimal.Decimal) (domain.Issuance, error) {
	s.iss.BondID, s.iss.Amount = bondID, amount
	return s.iss, s.err
}

func (s *stubIssuances) Retry(_ context.Context, id string) (domain.Issuance, error) {
	if id != s.iss.ID {
		return domain.Issuance{}, domain.ErrNotFound
	}
	return s.iss, s.err
}

func (s *stubIssuances) Get(_ context.Context, id string) (domain.Issuance, error) {
	if id != s.iss.ID {
		return domain.Issuance{}, domain.ErrNotFound
	}
	return s.iss, nil
}

func (s *stubIssuances) List(context.Context, string, domain.ListOpts) ([]domain.Issuance, error) {
	return nil, nil
}

func issuanceMux(svc *stubIssuances) *http.ServeMux {
	h := NewIssuanceHandler(svc, testLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/issuances", h.Issue)
	mux.HandleFunc("GET /api/issuances", h.ListIssuances)
	mux.HandleFunc("GET /api/issuances/{id}", h.GetIssuance)
	mux.HandleFunc("POST /api/issuances/{id}/retry", h.Retry)
	return mux
}

func TestIssue(t *testing.T) {
	svc := &stubIssuances{iss: domain.Issuance{ID: "i1", State: domain.TxSuccess}}
	mux := issuanceMux(svc)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/issuances",
		strings.NewReader(`{"bond_id":"b1","amount":"2.5"}`)))

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "b1", body["bond_id"])
	assert.Equal(t, "success", body["state"])
}

func TestIssueMissingBond(t *testing.T) {
	mux := issuanceMux(&stubIssuances{})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/issuances", strings.NewReader(`{"amount":"1"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIssueFailureCarriesRecord(t *testing.T) {
	svc := &stubIssuances{
		iss: domain.Issuance{ID: "i1", State: domain.TxError, Error: "reverted"},
		err: fmt.Errorf("issuance: i1: %w: %w", domain.ErrTransactionFailed, errors.New("reverted")),
	}
	mux := issuanceMux(svc)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/issuances/i1/retry", nil))

	require.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeBody(t, rec)
	iss := body["issuance"].(map[string]any)
	assert.Equal(t, "error", iss["state"])
}

func TestIssueStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrAmountExceedsMargin, http.StatusUnprocessableEntity},
		{domain.ErrSubmissionInFlight, http.StatusConflict},
		{domain.ErrLockHeld, http.StatusConflict},
		{domain.ErrZeroAmount, http.StatusBadRequest},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			mux := issuanceMux(&stubIssuances{err: fmt.Errorf("issuance: %w", tt.err)})
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/issuances",
				strings.NewReader(`{"bond_id":"b1","amount":"1"}`)))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestInternalErrorsAreHidden(t *testing.T) {
	mux := issuanceMux(&stubIssuances{err: errors.New("pq: password authentication failed")})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/issuances",
		strings.NewReader(`{"bond_id":"b1","amount":"1"}`)))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestListIssuancesEmpty(t *testing.T) {
	mux := issuanceMux(&stubIssuances{})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/issuances?limit=10", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, []any{}, body["issuances"])
	assert.EqualValues(t, 10, body["limit"])
}

func TestParseListOpts(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=9999&offset=-3&since=2025-01-02T00:00:00Z", nil)
	opts, err := parseListOpts(r)
	require.NoError(t, err)
	assert.Equal(t, 500, opts.Limit)
	assert.Equal(t, 0, opts.Offset)
	require.NotNil(t, opts.Since)
	assert.Equal(t, 2025, opts.Since.Year())
	assert.Nil(t, opts.Until)

	_, err = parseListOpts(httptest.NewRequest(http.MethodGet, "/?until=yesterday", nil))
	assert.Error(t, err)
}

type stubAccounts struct{}

func (stubAccounts) Balances(_ context.Context, address string) (service.Balances, error) {
	if address == "bad" {
		return service.Balances{}, domain.ErrInvalidAddress
	}
	return service.Balances{Address: address, Total: decimal.NewFromInt(3), PriceLoading: true}, nil
}

func (stubAccounts) Limits(_ context.Context, address, bondID string) (service.Limits, error) {
	return service.Limits{Address: address, BondID: bondID}, nil
}

func TestAccountHandler(t *testing.T) {
	h := NewAccountHandler(stubAccounts{}, testLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/accounts/{address}", h.Balances)
	mux.HandleFunc("GET /api/accounts/{address}/limits", h.Limits)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/accounts/0xabc", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["price_loading"])
	assert.NotContains(t, body, "total_usd")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/accounts/bad", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/accounts/0xabc/limits", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/accounts/0xabc/limits?bond_id=b1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "b1", decodeBody(t, rec)["bond_id"])
}

type stubPrice struct {
	price   decimal.Decimal
	loading bool
}

func (s stubPrice) EthUsd(context.Context) (decimal.Decimal, bool) { return s.price, s.loading }

func TestEthPrice(t *testing.T) {
	rec := httptest.NewRecorder()
	NewPriceHandler(stubPrice{loading: true}, testLogger()).EthPrice(rec, httptest.NewRequest(http.MethodGet, "/api/price/eth", nil))
	assert.JSONEq(t, `{"loading":true}`, rec.Body.String())

	rec = httptest.NewRecorder()
	NewPriceHandler(stubPrice{price: decimal.RequireFromString("3120.5")}, testLogger()).EthPrice(rec, httptest.NewRequest(http.MethodGet, "/api/price/eth", nil))
	assert.JSONEq(t, `{"loading":false,"usd":"3120.5"}`, rec.Body.String())
}

func TestHealthCheck(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("refused") }

	rec := httptest.NewRecorder()
	NewHealthHandler(map[string]Check{"postgres": ok}, testLogger()).HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])

	rec = httptest.NewRecorder()
	NewHealthHandler(map[string]Check{"postgres": ok, "redis": down}, testLogger()).HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, map[string]any{"postgres": "up", "redis": "down"}, body["dependencies"])
}

type stubAudit struct{ opts domain.ListOpts }

func (s *stubAudit) Log(context.Context, string, map[string]any) error { return nil }

func (s *stubAudit) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.opts = opts
	return []domain.AuditEntry{{ID: 1, Event: domain.AuditSwapExecuted}}, nil
}

func TestListAudit(t *testing.T) {
	audit := &stubAudit{}
	rec := httptest.NewRecorder()
	NewAuditHandler(audit, testLogger()).ListAudit(rec, httptest.NewRequest(http.MethodGet, "/api/audit?offset=5", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, audit.opts.Offset)
	assert.EqualValues(t, 1, decodeBody(t, rec)["count"])
}

func TestDecodeJSONLimitsBody(t *testing.T) {
	big := bytes.Repeat([]byte("a"), maxBodyBytes+1)
	r := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(append(append([]byte(`{"bond_id":"`), big...), '"', '}')))
	var req issueRequest
	assert.Error(t, decodeJSON(httptest.NewRecorder(), r, &req))
}

type memBlobs struct {
	objects  map[string]string
	prefixes []string
}

func (m *memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	body, ok := m.objects[path]
	if !ok {
		return nil, fmt.Errorf("s3blob: get %s: %w", path, domain.ErrNotFound)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (m *memBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	m.prefixes = append(m.prefixes, prefix)
	var out []domain.BlobInfo
	for p, body := range m.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, domain.BlobInfo{Path: p, Size: int64(len(body))})
		}
	}
	return out, nil
}

func TestArchiveHandler(t *testing.T) {
	blobs := &memBlobs{objects: map[string]string{
		"issuances/2025/06/30/1.jsonl": `{"id":"i1"}` + "\n",
	}}
	h := NewArchiveHandler(blobs, testLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/archives", h.ListArchives)
	mux.HandleFunc("GET /api/archives/{path...}", h.GetArchive)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/archives?day=2025/06/30", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decodeBody(t, rec)["count"])
	assert.Equal(t, []string{"issuances/2025/06/30/"}, blobs.prefixes)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/archives/2025/06/30/1.jsonl", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	assert.Equal(t, `{"id":"i1"}`+"\n", rec.Body.String())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/archives/2025/06/30/2.jsonl", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/archives/secrets.txt", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
