package pricing

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/bondd/internal/domain"
)

// Swap keeps the sell and buy fields of a swap form consistent. Whichever
// field was edited last drives the other one through Quote.
type Swap struct {
	price decimal.Decimal
	state domain.SwapState
}

// NewSwap starts an empty swap selling ETH for bond at the bond's price.
func NewSwap(bond domain.Bond) (*Swap, error) {
	if !bond.Price.IsPositive() {
		return nil, domain.ErrInvalidPrice
	}
	return &Swap{
		price: bond.Price,
		state: domain.SwapState{Direction: domain.SellIsETH},
	}, nil
}

// State returns a copy of the current fields.
func (s *Swap) State() domain.SwapState { return s.state }

// SetDirection sets the direction without touching the fields. It is used to
// restore a form from a client; interactive reversals go through Flip.
func (s *Swap) SetDirection(d domain.Direction) {
	s.state.Direction = d
}

// SetSellAmount edits the sell field and re-derives the buy field.
func (s *Swap) SetSellAmount(raw string) error {
	sell := s.state.Direction.SellSide()
	derived, err := s.derive(raw, sell)
	if err != nil {
		return err
	}
	s.state.SellAmount = strings.TrimSpace(raw)
	s.state.BuyAmount = derived
	return nil
}

// SetBuyAmount edits the buy field and re-derives the sell field.
func (s *Swap) SetBuyAmount(raw string) error {
	buy := s.state.Direction.SellSide().Opposite()
	derived, err := s.derive(raw, buy)
	if err != nil {
		return err
	}
	s.state.BuyAmount = strings.TrimSpace(raw)
	s.state.SellAmount = derived
	return nil
}

// Flip reverses the direction and clears both fields.
func (s *Swap) Flip() {
	if s.state.Direction == domain.SellIsETH {
		s.state.Direction = domain.SellIsBond
	} else {
		s.state.Direction = domain.SellIsETH
	}
	s.state.SellAmount = ""
	s.state.BuyAmount = ""
}

// Max puts the whole wallet balance on the ETH leg and derives the bond leg.
func (s *Swap) Max(balanceWei *big.Int) error {
	eth := FormatEther(balanceWei)
	if s.state.Direction == domain.SellIsETH {
		return s.SetSellAmount(eth)
	}
	return s.SetBuyAmount(eth)
}

// Ready reports whether the swap can be submitted.
func (s *Swap) Ready(connected bool) bool {
	return connected && s.state.SellAmount != "" && s.state.BuyAmount != ""
}

func (s *Swap) derive(raw string, side domain.Side) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	amount, err := ParseAmount(raw)
	if err != nil {
		return "", err
	}
	out, err := Quote(amount, side, s.price)
	if err != nil {
		return "", err
	}
	return FormatQuote(out), nil
}
