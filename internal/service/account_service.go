package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/bondd/internal/domain"
	"github.com/alanyoungcy/bondd/internal/pricing"
)

// BondLookup resolves a bond by id.
type BondLookup interface {
	Get(ctx context.Context, id string) (domain.Bond, error)
}

// EthPricer returns the ETH/USD price, or loading while it is unknown.
type EthPricer interface {
	EthUsd(ctx context.Context) (price decimal.Decimal, loading bool)
}

// Balances is the collateral picture of one address, in ETH.
type Balances struct {
	Address      string           `json:"address"`
	Wallet       decimal.Decimal  `json:"wallet"`
	Deposit      decimal.Decimal  `json:"deposit"`
	BondBalance  decimal.Decimal  `json:"bond_balance"`
	Available    decimal.Decimal  `json:"available"`
	Total        decimal.Decimal  `json:"total"`
	TotalUSD     *decimal.Decimal `json:"total_usd,omitempty"`
	PriceLoading bool             `json:"price_loading"`
	CanIssue     bool             `json:"can_issue"`
}

// Limits is how much of one bond an address can issue.
type Limits struct {
	Address     string          `json:"address"`
	BondID      string          `json:"bond_id"`
	Available   decimal.Decimal `json:"available"`
	MarginRatio decimal.Decimal `json:"margin_ratio"`
	MaxIssuable decimal.Decimal `json:"max_issuable"`
	CanIssue    bool            `json:"can_issue"`
}

// AccountService reads balances from the vault and sizes issuances against
// them.
type AccountService struct {
	reader  domain.BalanceReader
	catalog BondLookup
	prices  EthPricer
	logger  *slog.Logger
}

// NewAccountService creates an AccountService. prices may be nil, in which
// case USD estimates are always loading.
func NewAccountService(reader domain.BalanceReader, catalog BondLookup, prices EthPricer, logger *slog.Logger) *AccountService {
	return &AccountService{
		reader:  reader,
		catalog: catalog,
		prices:  prices,
		logger:  logger.With(slog.String("component", "account_service")),
	}
}

// Balances reads the wallet, deposit and bond balances of address.
func (s *AccountService) Balances(ctx context.Context, address string) (Balances, error) {
	var wallet, deposit, bonds *big.Int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		wallet, err = s.reader.WalletBalance(gctx, address)
		return err
	})
	g.Go(func() error {
		var err error
		deposit, err = s.reader.DepositOf(gctx, address)
		return err
	})
	g.Go(func() error {
		var err error
		bonds, err = s.reader.BondBalanceOf(gctx, address)
		return err
	})
	if err := g.Wait(); err != nil {
		return Balances{}, fmt.Errorf("account: balances of %s: %w", address, err)
	}

	available := pricing.AvailableCollateral(deposit, bonds)
	out := Balances{
		Address:      address,
		Wallet:       pricing.WeiToEther(wallet),
		Deposit:      pricing.WeiToEther(deposit),
		BondBalance:  pricing.WeiToEther(bonds),
		Available:    available,
		Total:        pricing.TotalBalance(deposit, bonds),
		PriceLoading: true,
		CanIssue:     pricing.CanIssue(available),
	}
	if s.prices != nil {
		if price, loading := s.prices.EthUsd(ctx); !loading {
			usd := out.Total.Mul(price).Round(2)
			out.TotalUSD = &usd
			out.PriceLoading = false
		}
	}
	return out, nil
}

// Available returns the collateral of address not yet backing bonds.
func (s *AccountService) Available(ctx context.Context, address string) (decimal.Decimal, error) {
	deposit, err := s.reader.DepositOf(ctx, address)
	if err != nil {
		return decimal.Zero, fmt.Errorf("account: deposit of %s: %w", address, err)
	}
	bonds, err := s.reader.BondBalanceOf(ctx, address)
	if err != nil {
		return decimal.Zero, fmt.Errorf("account: bond balance of %s: %w", address, err)
	}
	return pricing.AvailableCollateral(deposit, bonds), nil
}

// Limits sizes the largest issuance of bondID address can make.
func (s *AccountService) Limits(ctx context.Context, address, bondID string) (Limits, error) {
	bond, err := s.catalog.Get(ctx, bondID)
	if err != nil {
		return Limits{}, err
	}
	available, err := s.Available(ctx, address)
	if err != nil {
		return Limits{}, err
	}
	max := pricing.MaxIssuable(available, bond)
	return Limits{
		Address:     address,
		BondID:      bond.ID,
		Available:   available,
		MarginRatio: bond.MarginRatio,
		MaxIssuable: max,
		CanIssue:    pricing.CanIssue(available) && max.IsPositive(),
	}, nil
}

// WalletBalance returns the native balance of address in wei.
func (s *AccountService) WalletBalance(ctx context.Context, address string) (*big.Int, error) {
	bal, err := s.reader.WalletBalance(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("account: wallet balance of %s: %w", address, err)
	}
	return bal, nil
}
