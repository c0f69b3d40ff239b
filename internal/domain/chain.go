package domain

import (
	"context"
	"math/big"

	"github.com/shopspring/decimal"
)

// BalanceReader reads per-address balances in wei.
type BalanceReader interface {
	WalletBalance(ctx context.Context, address string) (*big.Int, error)
	DepositOf(ctx context.Context, address string) (*big.Int, error)
	BondBalanceOf(ctx context.Context, address string) (*big.Int, error)
}

// BondSource lists the bonds currently offered on chain.
type BondSource interface {
	ListBonds(ctx context.Context) ([]Bond, error)
}

// BondSubmitter sends an issuance transaction and waits for its confirmation.
// Confirmation reports on a transaction sent earlier: the receipt when it
// succeeded, ErrTransactionFailed when it reverted, ErrSubmissionInFlight while
// it is pending and ErrNotFound when the node does not know it.
type BondSubmitter interface {
	Address() string
	SubmitIssuance(ctx context.Context, req IssuanceRequest) (TxReceipt, error)
	Confirmation(ctx context.Context, txHash string) (TxReceipt, error)
}

// EthPriceSource returns the current ETH/USD price.
type EthPriceSource interface {
	EthUsd(ctx context.Context) (decimal.Decimal, error)
}

// SwapSubmitter executes a swap against the pool and waits for confirmation.
// sell is denominated in the asset being sold.
type SwapSubmitter interface {
	SubmitSwap(ctx context.Context, bondID string, dir Direction, sell decimal.Decimal) (TxReceipt, error)
}
