package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/bondd/internal/crypto"
)

// gasHeadroomPct is added on top of the node's gas estimate.
const gasHeadroomPct = 20

// Transactor sends signed EIP-1559 transactions to the vault from the
// operator account. Sends are serialized so nonces never collide.
type Transactor struct {
	backend Backend
	signer  *crypto.Signer
	vault   common.Address

	mu sync.Mutex
}

// NewTransactor returns a Transactor for vault.
func NewTransactor(backend Backend, signer *crypto.Signer, vault common.Address) *Transactor {
	return &Transactor{backend: backend, signer: signer, vault: vault}
}

// From is the operator address.
func (t *Transactor) From() common.Address { return t.signer.Address() }

// IssueBond issues amountWei of bond against the operator's collateral.
func (t *Transactor) IssueBond(ctx context.Context, bondID string, amountWei *big.Int) (common.Hash, error) {
	id, err := parseBondID(bondID)
	if err != nil {
		return common.Hash{}, err
	}
	return t.send(ctx, "issueBond", nil, id, amountWei)
}

// BuyBond pays valueWei of ETH for bond tokens.
func (t *Transactor) BuyBond(ctx context.Context, bondID string, valueWei *big.Int) (common.Hash, error) {
	id, err := parseBondID(bondID)
	if err != nil {
		return common.Hash{}, err
	}
	return t.send(ctx, "buyBond", valueWei, id)
}

// SellBond sells amountWei of bond tokens back to the pool.
func (t *Transactor) SellBond(ctx context.Context, bondID string, amountWei *big.Int) (common.Hash, error) {
	id, err := parseBondID(bondID)
	if err != nil {
		return common.Hash{}, err
	}
	return t.send(ctx, "sellBond", nil, id, amountWei)
}

func (t *Transactor) send(ctx context.Context, method string, value *big.Int, args ...any) (common.Hash, error) {
	data, err := parsedVault.Pack(method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: pack %s: %w", method, err)
	}
	if value == nil {
		value = new(big.Int)
	}
	from := t.signer.Address()

	t.mu.Lock()
	defer t.mu.Unlock()

	nonce, err := t.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: nonce: %w", err)
	}
	tip, err := t.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: gas tip: %w", err)
	}
	head, err := t.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: head: %w", err)
	}
	if head.BaseFee == nil {
		return common.Hash{}, fmt.Errorf("chain: node does not report a base fee")
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	gas, err := t.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &t.vault,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: estimate %s: %w", method, err)
	}
	gas += gas * gasHeadroomPct / 100

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   t.signer.ChainID(),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &t.vault,
		Value:     value,
		Data:      data,
	})
	signed, err := t.signer.SignTx(tx)
	if err != nil {
		return common.Hash{}, err
	}
	if err := t.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("chain: send %s: %w", method, err)
	}
	return signed.Hash(), nil
}
