package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/bondd/internal/domain"
)

// Reader reads balances and the bond catalog from the vault.
type Reader struct {
	backend Backend
	vault   common.Address
}

// NewReader returns a Reader for the vault at vault.
func NewReader(backend Backend, vault common.Address) *Reader {
	return &Reader{backend: backend, vault: vault}
}

// WalletBalance returns the native ETH balance of address.
func (r *Reader) WalletBalance(ctx context.Context, address string) (*big.Int, error) {
	addr, err := parseAddress(address)
	if err != nil {
		return nil, err
	}
	bal, err := r.backend.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: balance of %s: %w", addr.Hex(), err)
	}
	return bal, nil
}

// DepositOf returns the validator collateral deposited by address.
func (r *Reader) DepositOf(ctx context.Context, address string) (*big.Int, error) {
	return r.uintByAccount(ctx, "depositOf", address)
}

// BondBalanceOf returns the bond amount already issued by address.
func (r *Reader) BondBalanceOf(ctx context.Context, address string) (*big.Int, error) {
	return r.uintByAccount(ctx, "bondBalanceOf", address)
}

// ListBonds reads every bond the vault offers.
func (r *Reader) ListBonds(ctx context.Context) ([]domain.Bond, error) {
	out, err := r.call(ctx, "bondCount")
	if err != nil {
		return nil, err
	}
	count := out[0].(*big.Int)
	if !count.IsInt64() {
		return nil, fmt.Errorf("chain: bondCount out of range: %s", count)
	}
	now := time.Now().UTC()
	bonds := make([]domain.Bond, 0, count.Int64())
	for i := int64(0); i < count.Int64(); i++ {
		vals, err := r.call(ctx, "bondAt", big.NewInt(i))
		if err != nil {
			return nil, err
		}
		bonds = append(bonds, domain.Bond{
			ID:          vals[0].(*big.Int).String(),
			Name:        vals[1].(string),
			Maturity:    time.Unix(int64(vals[2].(uint64)), 0).UTC(),
			Price:       fixed(vals[3].(*big.Int)),
			TotalSupply: fixed(vals[4].(*big.Int)),
			MarginRatio: fixed(vals[5].(*big.Int)),
			FixedAPY:    fixed(vals[6].(*big.Int)),
			UpdatedAt:   now,
		})
	}
	return bonds, nil
}

func (r *Reader) uintByAccount(ctx context.Context, method, address string) (*big.Int, error) {
	addr, err := parseAddress(address)
	if err != nil {
		return nil, err
	}
	out, err := r.call(ctx, method, addr)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func (r *Reader) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := parsedVault.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}
	raw, err := r.backend.CallContract(ctx, ethereum.CallMsg{To: &r.vault, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: call %s: %w", method, err)
	}
	out, err := parsedVault.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack %s: %w", method, err)
	}
	return out, nil
}

func fixed(v *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(v, -fixedPointDecimals)
}
