package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// vaultABI covers the calls made against the bond vault. Prices, ratios and
// APYs are 1e18 fixed point; maturity is a unix timestamp.
const vaultABI = `[
 {"type":"function","name":"depositOf","stateMutability":"view",
  "inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"bondBalanceOf","stateMutability":"view",
  "inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"bondCount","stateMutability":"view",
  "inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"bondAt","stateMutability":"view",
  "inputs":[{"name":"index","type":"uint256"}],
  "outputs":[
   {"name":"id","type":"uint256"},
   {"name":"name","type":"string"},
   {"name":"maturity","type":"uint64"},
   {"name":"price","type":"uint256"},
   {"name":"totalSupply","type":"uint256"},
   {"name":"marginRatio","type":"uint256"},
   {"name":"fixedApy","type":"uint256"}]},
 {"type":"function","name":"issueBond","stateMutability":"nonpayable",
  "inputs":[{"name":"bondId","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"buyBond","stateMutability":"payable",
  "inputs":[{"name":"bondId","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"sellBond","stateMutability":"nonpayable",
  "inputs":[{"name":"bondId","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[]}
]`

// fixedPointDecimals is the scale of on-chain fixed point values.
const fixedPointDecimals = 18

var parsedVault abi.ABI

func init() {
	var err error
	parsedVault, err = abi.JSON(strings.NewReader(vaultABI))
	if err != nil {
		panic(fmt.Sprintf("chain: parse vault abi: %v", err))
	}
}

func parseBondID(id string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(id, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("chain: bond id %q is not an unsigned integer", id)
	}
	return n, nil
}
