package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/bondd/internal/domain"
)

// QuoteDecimals is the display precision of quoted amounts.
const QuoteDecimals = 6

// Quote converts input on side into the amount on the opposite leg at price
// (ETH per bond unit). Results are rounded to QuoteDecimals places. Inputs
// outside the CheckAmount range are rejected with ErrInvalidAmount.
func Quote(input decimal.Decimal, side domain.Side, price decimal.Decimal) (decimal.Decimal, error) {
	if !price.IsPositive() {
		return decimal.Zero, domain.ErrInvalidPrice
	}
	if input.IsNegative() {
		return decimal.Zero, domain.ErrNegativeAmount
	}
	if err := CheckAmount(input); err != nil {
		return decimal.Zero, err
	}
	switch side {
	case domain.SideETH:
		return input.DivRound(price, QuoteDecimals), nil
	case domain.SideBond:
		return input.Mul(price).Round(QuoteDecimals), nil
	default:
		return decimal.Zero, fmt.Errorf("pricing: side %q: %w", side, domain.ErrInvalidAmount)
	}
}

// FormatQuote renders a quoted amount with exactly QuoteDecimals places.
func FormatQuote(d decimal.Decimal) string {
	return d.StringFixed(QuoteDecimals)
}
