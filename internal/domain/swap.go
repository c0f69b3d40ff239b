package domain

// Side names the leg an amount is denominated in.
type Side string

const (
	SideETH  Side = "eth"
	SideBond Side = "bond"
)

// Valid reports whether s is one of the two legs.
func (s Side) Valid() bool { return s == SideETH || s == SideBond }

// Opposite returns the other leg.
func (s Side) Opposite() Side {
	if s == SideETH {
		return SideBond
	}
	return SideETH
}

// Direction says which asset the user is selling.
type Direction string

const (
	SellIsETH  Direction = "sell_eth"
	SellIsBond Direction = "sell_bond"
)

// SellSide returns the leg of the sell field for d.
func (d Direction) SellSide() Side {
	if d == SellIsBond {
		return SideBond
	}
	return SideETH
}

// SwapState is the pair of linked amount fields of a swap form. Empty strings
// mean the field is cleared.
type SwapState struct {
	SellAmount string    `json:"sell_amount"`
	BuyAmount  string    `json:"buy_amount"`
	Direction  Direction `json:"direction"`
}
