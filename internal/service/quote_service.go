package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/bondd/internal/domain"
	"github.com/alanyoungcy/bondd/internal/notify"
	"github.com/alanyoungcy/bondd/internal/pricing"
)

// Alerter delivers operator notifications.
type Alerter interface {
	Notify(ctx context.Context, msg notify.Message) error
}

// WalletReader returns the native balance of an address in wei.
type WalletReader interface {
	WalletBalance(ctx context.Context, address string) (*big.Int, error)
}

// QuoteResult is a single conversion between the ETH and bond legs.
type QuoteResult struct {
	BondID string          `json:"bond_id"`
	Side   domain.Side     `json:"side"`
	Input  decimal.Decimal `json:"input"`
	Output string          `json:"output"`
	Price  decimal.Decimal `json:"price"`
}

// SwapAction is the form edit a client reports.
type SwapAction string

const (
	SwapEditSell SwapAction = "sell"
	SwapEditBuy  SwapAction = "buy"
	SwapFlip     SwapAction = "flip"
	SwapMax      SwapAction = "max"
)

// SwapInput is one form edit: the current direction, the edited field value
// and, for max, the wallet to read.
type SwapInput struct {
	Action    SwapAction       `json:"action"`
	Direction domain.Direction `json:"direction"`
	Amount    string           `json:"amount"`
	Address   string           `json:"address,omitempty"`
}

// TradeRequest executes a swap selling SellAmount in the direction's sell asset.
type TradeRequest struct {
	Direction  domain.Direction `json:"direction"`
	SellAmount decimal.Decimal  `json:"sell_amount"`
}

// TradeResult is a confirmed swap.
type TradeResult struct {
	BondID      string           `json:"bond_id"`
	Direction   domain.Direction `json:"direction"`
	SellAmount  decimal.Decimal  `json:"sell_amount"`
	BuyAmount   string           `json:"buy_amount"`
	TxHash      string           `json:"tx_hash"`
	BlockNumber uint64           `json:"block_number"`
}

// QuoteService converts amounts at the listed bond price and executes swaps
// against the pool.
type QuoteService struct {
	catalog   BondLookup
	wallets   WalletReader
	submitter domain.SwapSubmitter
	audit     domain.AuditStore
	alerts    Alerter
	logger    *slog.Logger
}

// NewQuoteService creates a QuoteService. submitter, audit and alerts may be
// nil; Execute needs a submitter.
func NewQuoteService(
	catalog BondLookup,
	wallets WalletReader,
	submitter domain.SwapSubmitter,
	audit domain.AuditStore,
	alerts Alerter,
	logger *slog.Logger,
) *QuoteService {
	return &QuoteService{
		catalog:   catalog,
		wallets:   wallets,
		submitter: submitter,
		audit:     audit,
		alerts:    alerts,
		logger:    logger.With(slog.String("component", "quote_service")),
	}
}

// Quote converts amount, denominated in side, to the other leg.
func (s *QuoteService) Quote(ctx context.Context, bondID string, side domain.Side, amount decimal.Decimal) (QuoteResult, error) {
	if !side.Valid() {
		return QuoteResult{}, fmt.Errorf("quote: side %q: %w", side, domain.ErrInvalidAmount)
	}
	bond, err := s.catalog.Get(ctx, bondID)
	if err != nil {
		return QuoteResult{}, err
	}
	out, err := pricing.Quote(amount, side, bond.Price)
	if err != nil {
		return QuoteResult{}, fmt.Errorf("quote: %w", err)
	}
	return QuoteResult{
		BondID: bond.ID,
		Side:   side,
		Input:  amount,
		Output: pricing.FormatQuote(out),
		Price:  bond.Price,
	}, nil
}

// Swap applies one form edit and returns the resulting fields.
func (s *QuoteService) Swap(ctx context.Context, bondID string, in SwapInput) (domain.SwapState, error) {
	bond, err := s.catalog.Get(ctx, bondID)
	if err != nil {
		return domain.SwapState{}, err
	}
	sw, err := pricing.NewSwap(bond)
	if err != nil {
		return domain.SwapState{}, fmt.Errorf("quote: swap: %w", err)
	}
	switch in.Direction {
	case "":
	case domain.SellIsETH, domain.SellIsBond:
		sw.SetDirection(in.Direction)
	default:
		return domain.SwapState{}, fmt.Errorf("quote: direction %q: %w", in.Direction, domain.ErrInvalidAmount)
	}

	switch in.Action {
	case SwapEditSell:
		err = sw.SetSellAmount(in.Amount)
	case SwapEditBuy:
		err = sw.SetBuyAmount(in.Amount)
	case SwapFlip:
		sw.Flip()
	case SwapMax:
		var bal *big.Int
		bal, err = s.wallets.WalletBalance(ctx, in.Address)
		if err == nil {
			err = sw.Max(bal)
		}
	default:
		err = fmt.Errorf("action %q: %w", in.Action, domain.ErrInvalidAmount)
	}
	if err != nil {
		return domain.SwapState{}, fmt.Errorf("quote: swap: %w", err)
	}
	return sw.State(), nil
}

// Execute sends the swap from the operator wallet and waits for it to be
// mined.
func (s *QuoteService) Execute(ctx context.Context, bondID string, req TradeRequest) (TradeResult, error) {
	if s.submitter == nil {
		return TradeResult{}, fmt.Errorf("quote: execute: no submitter configured")
	}
	if req.Direction != domain.SellIsETH && req.Direction != domain.SellIsBond {
		return TradeResult{}, fmt.Errorf("quote: direction %q: %w", req.Direction, domain.ErrInvalidAmount)
	}
	if req.SellAmount.IsNegative() {
		return TradeResult{}, domain.ErrNegativeAmount
	}
	if !req.SellAmount.IsPositive() {
		return TradeResult{}, domain.ErrZeroAmount
	}
	bond, err := s.catalog.Get(ctx, bondID)
	if err != nil {
		return TradeResult{}, err
	}
	buy, err := pricing.Quote(req.SellAmount, req.Direction.SellSide(), bond.Price)
	if err != nil {
		return TradeResult{}, fmt.Errorf("quote: execute: %w", err)
	}

	receipt, err := s.submitter.SubmitSwap(ctx, bond.ID, req.Direction, req.SellAmount)
	if err != nil {
		s.logger.WarnContext(ctx, "swap failed",
			slog.String("bond_id", bond.ID),
			slog.String("direction", string(req.Direction)),
			slog.String("error", err.Error()),
		)
		return TradeResult{}, fmt.Errorf("quote: execute: %w", err)
	}

	res := TradeResult{
		BondID:      bond.ID,
		Direction:   req.Direction,
		SellAmount:  req.SellAmount,
		BuyAmount:   pricing.FormatQuote(buy),
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber,
	}
	s.logger.InfoContext(ctx, "swap executed",
		slog.String("bond_id", bond.ID),
		slog.String("direction", string(req.Direction)),
		slog.String("sell", req.SellAmount.String()),
		slog.String("tx_hash", receipt.TxHash),
	)

	if s.audit != nil {
		if err := s.audit.Log(ctx, domain.AuditSwapExecuted, map[string]any{
			"bond_id":   bond.ID,
			"direction": string(req.Direction),
			"sell":      req.SellAmount.String(),
			"buy":       res.BuyAmount,
			"tx_hash":   receipt.TxHash,
		}); err != nil {
			s.logger.WarnContext(ctx, "audit swap failed", slog.String("error", err.Error()))
		}
	}
	if s.alerts != nil {
		_ = s.alerts.Notify(ctx, notify.Message{
			Event: notify.EventSwapExecuted,
			Title: "Swap executed",
			Body: fmt.Sprintf("sold %s %s for %s %s of bond %s\ntx %s",
				req.SellAmount, req.Direction.SellSide(), res.BuyAmount,
				req.Direction.SellSide().Opposite(), bond.ID, receipt.TxHash),
		})
	}
	return res, nil
}
