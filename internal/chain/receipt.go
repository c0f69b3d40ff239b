package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/bondd/internal/domain"
)

// DefaultPollInterval is how often WaitConfirmed asks for a receipt.
const DefaultPollInterval = 2 * time.Second

// ReceiptFetcher fetches transaction receipts.
type ReceiptFetcher interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// WaitConfirmed polls until hash is mined. A reverted transaction or an
// expired context both return an error wrapping ErrTransactionFailed.
func WaitConfirmed(ctx context.Context, b ReceiptFetcher, hash common.Hash, interval time.Duration) (*types.Receipt, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := b.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("chain: tx %s reverted: %w", hash.Hex(), domain.ErrTransactionFailed)
			}
			return receipt, nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			if ctx.Err() == nil {
				return nil, fmt.Errorf("chain: receipt %s: %w", hash.Hex(), err)
			}
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("chain: waiting for %s: %w: %w", hash.Hex(), domain.ErrTransactionFailed, ctx.Err())
		case <-ticker.C:
		}
	}
}
