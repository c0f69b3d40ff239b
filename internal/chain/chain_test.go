package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bondd/internal/crypto"
	"github.com/alanyoungcy/bondd/internal/domain"
)

var (
	vaultAddr = common.HexToAddress("0x000000000000000000000000000000000000b0dd")
	userAddr  = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func testSigner(t *testing.T) *crypto.Signer {
	t.Helper()
	key, err := crypto.ParseKey("b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291")
	require.NoError(t, err)
	s, err := crypto.NewSigner(key, big.NewInt(17000))
	require.NoError(t, err)
	return s
}

func TestReader_Balances(t *testing.T) {
	fb := newFakeBackend()
	fb.balances[userAddr] = ether(3)
	fb.deposits[userAddr] = ether(32)
	fb.bondBalances[userAddr] = ether(8)
	r := NewReader(fb, vaultAddr)
	ctx := context.Background()

	bal, err := r.WalletBalance(ctx, userAddr.Hex())
	require.NoError(t, err)
	assert.Zero(t, ether(3).Cmp(bal))

	dep, err := r.DepositOf(ctx, userAddr.Hex())
	require.NoError(t, err)
	assert.Zero(t, ether(32).Cmp(dep))

	bond, err := r.BondBalanceOf(ctx, userAddr.Hex())
	require.NoError(t, err)
	assert.Zero(t, ether(8).Cmp(bond))

	_, err = r.DepositOf(ctx, "not-an-address")
	require.Error(t, err)
}

func TestReader_ListBonds(t *testing.T) {
	fb := newFakeBackend()
	maturity := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	price, _ := new(big.Int).SetString("970000000000000000", 10)
	ratio, _ := new(big.Int).SetString("500000000000000000", 10)
	apy, _ := new(big.Int).SetString("35000000000000000", 10)
	fb.bonds = []bondRow{{
		id: big.NewInt(7), name: "vETH", maturity: uint64(maturity.Unix()),
		price: price, totalSupply: ether(1200), marginRatio: ratio, fixedAPY: apy,
	}}

	bonds, err := NewReader(fb, vaultAddr).ListBonds(context.Background())
	require.NoError(t, err)
	require.Len(t, bonds, 1)
	b := bonds[0]
	assert.Equal(t, "7", b.ID)
	assert.Equal(t, "vETH", b.Name)
	assert.True(t, maturity.Equal(b.Maturity))
	assert.True(t, decimal.RequireFromString("0.97").Equal(b.Price))
	assert.True(t, decimal.NewFromInt(1200).Equal(b.TotalSupply))
	assert.True(t, decimal.RequireFromString("0.5").Equal(b.MarginRatio))
	assert.True(t, decimal.RequireFromString("0.035").Equal(b.FixedAPY))
	require.NoError(t, b.Validate())
}

func TestTransactor_IssueBond(t *testing.T) {
	fb := newFakeBackend()
	signer := testSigner(t)
	tr := NewTransactor(fb, signer, vaultAddr)

	hash, err := tr.IssueBond(context.Background(), "7", ether(2))
	require.NoError(t, err)
	require.Len(t, fb.sent, 1)
	tx := fb.sent[0]
	assert.Equal(t, hash, tx.Hash())
	assert.Equal(t, vaultAddr, *tx.To())
	assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
	assert.Equal(t, uint64(120_000), tx.Gas())
	assert.Zero(t, big.NewInt(22).Cmp(tx.GasFeeCap()))
	assert.Zero(t, big.NewInt(2).Cmp(tx.GasTipCap()))
	assert.Zero(t, tx.Value().Sign())

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(17000)), tx)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), from)

	method, err := parsedVault.MethodById(tx.Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, "issueBond", method.Name)
	args, err := method.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Zero(t, big.NewInt(7).Cmp(args[0].(*big.Int)))
	assert.Zero(t, ether(2).Cmp(args[1].(*big.Int)))

	_, err = tr.IssueBond(context.Background(), "seven", ether(1))
	require.Error(t, err)
}

func TestTransactor_NoncesAdvance(t *testing.T) {
	fb := newFakeBackend()
	tr := NewTransactor(fb, testSigner(t), vaultAddr)
	_, err := tr.BuyBond(context.Background(), "1", ether(1))
	require.NoError(t, err)
	_, err = tr.SellBond(context.Background(), "1", ether(1))
	require.NoError(t, err)
	require.Len(t, fb.sent, 2)
	assert.Equal(t, uint64(0), fb.sent[0].Nonce())
	assert.Equal(t, uint64(1), fb.sent[1].Nonce())
	assert.Zero(t, ether(1).Cmp(fb.sent[0].Value()))
	assert.Zero(t, fb.sent[1].Value().Sign())
}

func TestWaitConfirmed(t *testing.T) {
	fb := newFakeBackend()
	fb.pendingPolls = 2
	tr := NewTransactor(fb, testSigner(t), vaultAddr)
	hash, err := tr.IssueBond(context.Background(), "1", ether(1))
	require.NoError(t, err)

	receipt, err := WaitConfirmed(context.Background(), fb, hash, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, hash, receipt.TxHash)
	assert.Equal(t, 3, fb.polls)
}

func TestWaitConfirmed_Reverted(t *testing.T) {
	fb := newFakeBackend()
	fb.status = types.ReceiptStatusFailed
	tr := NewTransactor(fb, testSigner(t), vaultAddr)
	hash, err := tr.IssueBond(context.Background(), "1", ether(1))
	require.NoError(t, err)

	_, err = WaitConfirmed(context.Background(), fb, hash, time.Millisecond)
	require.ErrorIs(t, err, domain.ErrTransactionFailed)
}

func TestWaitConfirmed_Timeout(t *testing.T) {
	fb := newFakeBackend()
	fb.pendingPolls = 1 << 30
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := WaitConfirmed(ctx, fb, common.HexToHash("0x01"), time.Millisecond)
	require.ErrorIs(t, err, domain.ErrTransactionFailed)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitConfirmed_RPCError(t *testing.T) {
	fb := newFakeBackend()
	fb.receiptErr = errors.New("connection refused")
	_, err := WaitConfirmed(context.Background(), fb, common.HexToHash("0x01"), time.Millisecond)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrTransactionFailed)
}

func TestSubmitter(t *testing.T) {
	fb := newFakeBackend()
	fb.pendingPolls = 1
	signer := testSigner(t)
	sub := NewSubmitter(NewTransactor(fb, signer, vaultAddr), fb, time.Millisecond)
	assert.Equal(t, signer.Address().Hex(), sub.Address())

	req := domain.IssuanceRequest{
		Bond:   domain.Bond{ID: "3", Price: decimal.NewFromInt(1), MarginRatio: decimal.NewFromInt(1)},
		Amount: decimal.RequireFromString("1.5"),
	}
	receipt, err := sub.SubmitIssuance(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), receipt.BlockNumber)
	assert.Equal(t, uint64(84_000), receipt.GasUsed)
	assert.Equal(t, fb.sent[0].Hash().Hex(), receipt.TxHash)

	_, err = sub.SubmitSwap(context.Background(), "3", domain.SellIsETH, decimal.RequireFromString("0.25"))
	require.NoError(t, err)
	buy, err := parsedVault.MethodById(fb.sent[1].Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, "buyBond", buy.Name)

	_, err = sub.SubmitSwap(context.Background(), "3", domain.SellIsBond, decimal.NewFromInt(1))
	require.NoError(t, err)
	sell, err := parsedVault.MethodById(fb.sent[2].Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, "sellBond", sell.Name)

	_, err = sub.SubmitSwap(context.Background(), "3", domain.SellIsBond, decimal.Zero)
	require.ErrorIs(t, err, domain.ErrZeroAmount)
}

func TestSubmitter_Confirmation(t *testing.T) {
	fb := newFakeBackend()
	tx := NewTransactor(fb, testSigner(t), vaultAddr)
	sub := NewSubmitter(tx, fb, time.Millisecond)
	ctx := context.Background()

	hash, err := tx.IssueBond(ctx, "3", big.NewInt(1))
	require.NoError(t, err)

	receipt, err := sub.Confirmation(ctx, hash.Hex())
	require.NoError(t, err)
	assert.Equal(t, hash.Hex(), receipt.TxHash)
	assert.Equal(t, uint64(100), receipt.BlockNumber)

	fb.status = types.ReceiptStatusFailed
	_, err = sub.Confirmation(ctx, hash.Hex())
	require.ErrorIs(t, err, domain.ErrTransactionFailed)
	fb.status = types.ReceiptStatusSuccessful

	fb.pendingPolls = fb.polls + 1
	_, err = sub.Confirmation(ctx, hash.Hex())
	require.ErrorIs(t, err, domain.ErrSubmissionInFlight)

	_, err = sub.Confirmation(ctx, common.HexToHash("0x01").Hex())
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = sub.Confirmation(ctx, "0xdead")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
