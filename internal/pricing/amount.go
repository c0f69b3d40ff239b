package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/bondd/internal/domain"
)

// Amounts are stored as NUMERIC(78,18). Anything outside that range is
// rejected before arithmetic expands its exponent.
const (
	MaxIntegerDigits  = 60
	MaxFractionDigits = 18

	maxAmountLength = 128
)

// ParseAmount parses a decimal amount within the stored range.
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) > maxAmountLength {
		return decimal.Zero, fmt.Errorf("pricing: amount is %d bytes long: %w", len(raw), domain.ErrInvalidAmount)
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("pricing: parse amount %q: %w", raw, domain.ErrInvalidAmount)
	}
	if err := CheckAmount(amount); err != nil {
		return decimal.Zero, fmt.Errorf("pricing: amount %q: %w", raw, err)
	}
	return amount, nil
}

// CheckAmount rejects amounts with more than MaxIntegerDigits integer digits
// or more than MaxFractionDigits fractional digits.
func CheckAmount(amount decimal.Decimal) error {
	exp := int64(amount.Exponent())
	if exp < -MaxFractionDigits {
		return fmt.Errorf("more than %d decimal places: %w", MaxFractionDigits, domain.ErrInvalidAmount)
	}
	if int64(amount.NumDigits())+exp > MaxIntegerDigits {
		return fmt.Errorf("more than %d integer digits: %w", MaxIntegerDigits, domain.ErrInvalidAmount)
	}
	return nil
}
