// Package pricing implements bond issuance sizing and swap quoting. Every
// function here is pure; balances and prices are passed in by the caller.
package pricing

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/bondd/internal/domain"
)

// MaxIssuable returns the largest amount of bond that can be issued against
// available collateral: available * bond.MarginRatio.
func MaxIssuable(available decimal.Decimal, bond domain.Bond) decimal.Decimal {
	if available.IsNegative() {
		return decimal.Zero
	}
	return available.Mul(bond.MarginRatio)
}

// Validate checks a requested issuance amount against max.
func Validate(amount, max decimal.Decimal) error {
	if !amount.IsPositive() {
		return domain.ErrZeroAmount
	}
	if amount.GreaterThan(max) {
		return fmt.Errorf("%w: requested %s, max %s", domain.ErrAmountExceedsMargin, amount, max)
	}
	return nil
}

// ValidateRequest sizes and validates req in one step.
func ValidateRequest(req domain.IssuanceRequest, available decimal.Decimal) error {
	if err := req.Bond.Validate(); err != nil {
		return err
	}
	if err := CheckAmount(req.Amount); err != nil {
		return err
	}
	return Validate(req.Amount, MaxIssuable(available, req.Bond))
}

// AvailableCollateral is the deposit not yet backing issued bonds, in ether.
// It never goes below zero.
func AvailableCollateral(depositWei, bondBalanceWei *big.Int) decimal.Decimal {
	avail := WeiToEther(depositWei).Sub(WeiToEther(bondBalanceWei))
	if avail.IsNegative() {
		return decimal.Zero
	}
	return avail
}

// CanIssue reports whether any issuance is possible; callers disable
// submission when it is false.
func CanIssue(available decimal.Decimal) bool {
	return available.IsPositive()
}

// TotalBalance is deposit plus bond balance, in ether.
func TotalBalance(depositWei, bondBalanceWei *big.Int) decimal.Decimal {
	return WeiToEther(depositWei).Add(WeiToEther(bondBalanceWei))
}
