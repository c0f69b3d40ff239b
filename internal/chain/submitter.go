package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/bondd/internal/domain"
	"github.com/alanyoungcy/bondd/internal/pricing"
)

// Submitter issues and swaps bonds from the operator account and waits for
// the transactions to be mined. It implements domain.BondSubmitter and
// domain.SwapSubmitter.
type Submitter struct {
	tx       *Transactor
	receipts TxLookup
	poll     time.Duration
}

// TxLookup finds sent transactions and their receipts. *ethclient.Client
// satisfies it.
type TxLookup interface {
	ReceiptFetcher
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, isPending bool, err error)
}

// NewSubmitter returns a Submitter polling receipts every poll.
func NewSubmitter(tx *Transactor, receipts TxLookup, poll time.Duration) *Submitter {
	return &Submitter{tx: tx, receipts: receipts, poll: poll}
}

// Address is the operator wallet the bonds are issued from.
func (s *Submitter) Address() string { return s.tx.From().Hex() }

// SubmitIssuance sends issueBond for req and blocks until confirmation.
func (s *Submitter) SubmitIssuance(ctx context.Context, req domain.IssuanceRequest) (domain.TxReceipt, error) {
	hash, err := s.tx.IssueBond(ctx, req.Bond.ID, pricing.EtherToWei(req.Amount))
	if err != nil {
		return domain.TxReceipt{}, err
	}
	return s.wait(ctx, hash)
}

// SubmitSwap buys bond with ETH or sells bond for ETH depending on dir.
func (s *Submitter) SubmitSwap(ctx context.Context, bondID string, dir domain.Direction, sell decimal.Decimal) (domain.TxReceipt, error) {
	if !sell.IsPositive() {
		return domain.TxReceipt{}, domain.ErrZeroAmount
	}
	var (
		hash common.Hash
		err  error
		wei  = pricing.EtherToWei(sell)
	)
	if dir == domain.SellIsBond {
		hash, err = s.tx.SellBond(ctx, bondID, wei)
	} else {
		hash, err = s.tx.BuyBond(ctx, bondID, wei)
	}
	if err != nil {
		return domain.TxReceipt{}, err
	}
	return s.wait(ctx, hash)
}

// Confirmation looks up a transaction sent earlier without waiting.
func (s *Submitter) Confirmation(ctx context.Context, txHash string) (domain.TxReceipt, error) {
	if len(common.FromHex(txHash)) != common.HashLength {
		return domain.TxReceipt{}, fmt.Errorf("chain: tx hash %q: %w", txHash, domain.ErrNotFound)
	}
	hash := common.HexToHash(txHash)

	receipt, err := s.receipts.TransactionReceipt(ctx, hash)
	switch {
	case err == nil && receipt != nil:
		if receipt.Status != types.ReceiptStatusSuccessful {
			return domain.TxReceipt{TxHash: hash.Hex()}, fmt.Errorf("chain: tx %s reverted: %w", hash.Hex(), domain.ErrTransactionFailed)
		}
		return toReceipt(hash, receipt), nil
	case err != nil && !errors.Is(err, ethereum.NotFound):
		return domain.TxReceipt{}, fmt.Errorf("chain: receipt %s: %w", hash.Hex(), err)
	}

	_, _, err = s.receipts.TransactionByHash(ctx, hash)
	switch {
	case err == nil:
		return domain.TxReceipt{TxHash: hash.Hex()}, fmt.Errorf("chain: tx %s: %w", hash.Hex(), domain.ErrSubmissionInFlight)
	case errors.Is(err, ethereum.NotFound):
		return domain.TxReceipt{}, fmt.Errorf("chain: tx %s: %w", hash.Hex(), domain.ErrNotFound)
	default:
		return domain.TxReceipt{}, fmt.Errorf("chain: tx %s: %w", hash.Hex(), err)
	}
}

func (s *Submitter) wait(ctx context.Context, hash common.Hash) (domain.TxReceipt, error) {
	receipt, err := WaitConfirmed(ctx, s.receipts, hash, s.poll)
	if err != nil {
		return domain.TxReceipt{TxHash: hash.Hex()}, err
	}
	return toReceipt(hash, receipt), nil
}

func toReceipt(hash common.Hash, receipt *types.Receipt) domain.TxReceipt {
	out := domain.TxReceipt{TxHash: hash.Hex(), GasUsed: receipt.GasUsed}
	if receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return out
}
