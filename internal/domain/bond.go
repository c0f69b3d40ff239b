package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Bond is a standardized zero-coupon validator bond listed in the liquidity
// pool. Prices and supplies are denominated in ETH.
type Bond struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Maturity    time.Time       `json:"maturity"`
	Price       decimal.Decimal `json:"price"`
	TotalSupply decimal.Decimal `json:"total_supply"`
	MarginRatio decimal.Decimal `json:"margin_ratio"`
	FixedAPY    decimal.Decimal `json:"fixed_apy"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Validate reports whether the bond can be priced and issued against.
func (b Bond) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("bond: missing id")
	}
	if !b.Price.IsPositive() {
		return fmt.Errorf("bond %s: %w", b.ID, ErrInvalidPrice)
	}
	if !b.MarginRatio.IsPositive() || b.MarginRatio.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("bond %s: %w", b.ID, ErrInvalidMarginRatio)
	}
	return nil
}

// Symbol is the display ticker of the bond token, e.g. "vETH_20250630".
func (b Bond) Symbol() string {
	return b.Name + "_" + b.Maturity.UTC().Format("20060102")
}

// Matured reports whether the bond has reached maturity at t.
func (b Bond) Matured(t time.Time) bool {
	return !t.Before(b.Maturity)
}
