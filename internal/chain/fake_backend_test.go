package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type bondRow struct {
	id          *big.Int
	name        string
	maturity    uint64
	price       *big.Int
	totalSupply *big.Int
	marginRatio *big.Int
	fixedAPY    *big.Int
}

// fakeBackend answers vault calls from in-memory state and mines every sent
// transaction after pendingPolls receipt lookups.
type fakeBackend struct {
	mu sync.Mutex

	balances     map[common.Address]*big.Int
	deposits     map[common.Address]*big.Int
	bondBalances map[common.Address]*big.Int
	bonds        []bondRow

	nonce        uint64
	sent         []*types.Transaction
	receiptErr   error
	pendingPolls int
	status       uint64
	polls        int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		balances:     map[common.Address]*big.Int{},
		deposits:     map[common.Address]*big.Int{},
		bondBalances: map[common.Address]*big.Int{},
		status:       types.ReceiptStatusSuccessful,
	}
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	method, err := parsedVault.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	switch method.Name {
	case "depositOf":
		return method.Outputs.Pack(orZero(f.deposits[args[0].(common.Address)]))
	case "bondBalanceOf":
		return method.Outputs.Pack(orZero(f.bondBalances[args[0].(common.Address)]))
	case "bondCount":
		return method.Outputs.Pack(big.NewInt(int64(len(f.bonds))))
	case "bondAt":
		b := f.bonds[args[0].(*big.Int).Int64()]
		return method.Outputs.Pack(b.id, b.name, b.maturity, b.price, b.totalSupply, b.marginRatio, b.fixedAPY)
	}
	return nil, errors.New("unexpected call " + method.Name)
}

func (f *fakeBackend) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return orZero(f.balances[account]), nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(2), nil
}

func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(99), BaseFee: big.NewInt(10)}, nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	f.nonce++
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	if f.polls <= f.pendingPolls {
		return nil, ethereum.NotFound
	}
	for _, tx := range f.sent {
		if tx.Hash() == hash {
			return &types.Receipt{
				TxHash:      hash,
				Status:      f.status,
				BlockNumber: big.NewInt(100),
				GasUsed:     84_000,
			}, nil
		}
	}
	return nil, ethereum.NotFound
}

func (f *fakeBackend) TransactionByHash(_ context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.sent {
		if tx.Hash() == hash {
			return tx, true, nil
		}
	}
	return nil, false, ethereum.NotFound
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(17000), nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
