package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TxState is the state of an issuance transaction.
type TxState string

const (
	TxIdle    TxState = "idle"
	TxLoading TxState = "loading"
	TxSuccess TxState = "success"
	TxError   TxState = "error"
)

// Terminal reports whether no further automatic transition follows.
func (s TxState) Terminal() bool {
	return s == TxSuccess || s == TxError
}

// IssuanceRequest is a single attempt to issue Amount ETH of Bond.
type IssuanceRequest struct {
	Bond   Bond
	Amount decimal.Decimal
}

// TxReceipt is the confirmed outcome of an on-chain submission.
type TxReceipt struct {
	TxHash      string
	BlockNumber uint64
	GasUsed     uint64
}

// Issuance is the persisted record of an issuance attempt.
type Issuance struct {
	ID        string          `json:"id"`
	BondID    string          `json:"bond_id"`
	Wallet    string          `json:"wallet"`
	Amount    decimal.Decimal `json:"amount"`
	State     TxState         `json:"state"`
	TxHash    string          `json:"tx_hash,omitempty"`
	Error     string          `json:"error,omitempty"`
	Attempts  int             `json:"attempts"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
