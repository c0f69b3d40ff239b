package pricing

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// EtherDecimals is the number of decimals between wei and ether.
const EtherDecimals = 18

// WeiToEther converts a wei amount to ether. A nil amount is zero.
func WeiToEther(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -EtherDecimals)
}

// EtherToWei converts an ether amount to wei, truncating sub-wei digits.
func EtherToWei(eth decimal.Decimal) *big.Int {
	return eth.Shift(EtherDecimals).Truncate(0).BigInt()
}

// FormatEther renders a wei amount as ether without trailing zeros.
func FormatEther(wei *big.Int) string {
	return WeiToEther(wei).String()
}
