package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrRateLimited    = errors.New("rate limited")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrLockHeld       = errors.New("lock already held")
	ErrInvalidAddress = errors.New("invalid address")

	// Pricing and sizing.
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrZeroAmount          = errors.New("amount must be greater than zero")
	ErrNegativeAmount      = errors.New("amount must not be negative")
	ErrAmountExceedsMargin = errors.New("amount exceeds margin limit")
	ErrInvalidPrice        = errors.New("invalid bond price")
	ErrInvalidMarginRatio  = errors.New("margin ratio must be in (0, 1]")

	// Issuance lifecycle.
	ErrTransactionFailed  = errors.New("transaction failed")
	ErrSubmissionInFlight = errors.New("submission already in flight")
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrNoBondSelected     = errors.New("no bond selected")
	ErrNoCollateral       = errors.New("no collateral available")
)
