package service

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/bondd/internal/domain"
	"github.com/alanyoungcy/bondd/internal/notify"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ether(s string) *big.Int {
	return d(s).Shift(18).BigInt()
}

func testBond(id, price, ratio string, maturity time.Time) domain.Bond {
	return domain.Bond{
		ID:          id,
		Name:        "vETH",
		Maturity:    maturity,
		Price:       d(price),
		TotalSupply: d("100"),
		MarginRatio: d(ratio),
		FixedAPY:    d("0.04"),
	}
}

type memBondStore struct {
	mu    sync.Mutex
	bonds []domain.Bond
	lists int
}

func (m *memBondStore) Upsert(ctx context.Context, b domain.Bond) error {
	return m.UpsertBatch(ctx, []domain.Bond{b})
}

func (m *memBondStore) UpsertBatch(_ context.Context, bonds []domain.Bond) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range bonds {
		i := slices.IndexFunc(m.bonds, func(x domain.Bond) bool { return x.ID == b.ID })
		if i >= 0 {
			m.bonds[i] = b
		} else {
			m.bonds = append(m.bonds, b)
		}
	}
	return nil
}

func (m *memBondStore) GetByID(_ context.Context, id string) (domain.Bond, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bonds {
		if b.ID == id {
			return b, nil
		}
	}
	return domain.Bond{}, domain.ErrNotFound
}

func (m *memBondStore) List(context.Context) ([]domain.Bond, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	return slices.Clone(m.bonds), nil
}

type memBondCache struct {
	bonds       []domain.Bond
	set         bool
	invalidated int
}

func (c *memBondCache) SetAll(_ context.Context, bonds []domain.Bond) error {
	c.bonds, c.set = slices.Clone(bonds), true
	return nil
}

func (c *memBondCache) GetAll(context.Context) ([]domain.Bond, error) {
	if !c.set {
		return nil, domain.ErrNotFound
	}
	return slices.Clone(c.bonds), nil
}

func (c *memBondCache) Invalidate(context.Context) error {
	c.bonds, c.set = nil, false
	c.invalidated++
	return nil
}

type staticSource struct{ bonds []domain.Bond }

func (s staticSource) ListBonds(context.Context) ([]domain.Bond, error) { return s.bonds, nil }

type memBus struct {
	mu   sync.Mutex
	msgs map[string][][]byte
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.msgs == nil {
		b.msgs = make(map[string][][]byte)
	}
	b.msgs[channel] = append(b.msgs[channel], payload)
	return nil
}

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func (b *memBus) count(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.msgs[channel])
}

type memAudit struct {
	mu     sync.Mutex
	events []string
}

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func (a *memAudit) all() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.events)
}

type fakeBalances struct {
	wallet, deposit, bonds *big.Int
	err                    error
}

func (f fakeBalances) WalletBalance(context.Context, string) (*big.Int, error) {
	return f.wallet, f.err
}

func (f fakeBalances) DepositOf(context.Context, string) (*big.Int, error) {
	return f.deposit, f.err
}

func (f fakeBalances) BondBalanceOf(context.Context, string) (*big.Int, error) {
	return f.bonds, f.err
}

type fixedPrice struct {
	price   decimal.Decimal
	loading bool
}

func (p fixedPrice) EthUsd(context.Context) (decimal.Decimal, bool) { return p.price, p.loading }

type memIssuances struct {
	mu     sync.Mutex
	rows   map[string]domain.Issuance
	states []domain.TxState
}

func newMemIssuances() *memIssuances {
	return &memIssuances{rows: make(map[string]domain.Issuance)}
}

func (m *memIssuances) Create(_ context.Context, iss domain.Issuance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[iss.ID] = iss
	m.states = append(m.states, iss.State)
	return nil
}

func (m *memIssuances) UpdateState(_ context.Context, id string, state domain.TxState, txHash, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	iss, ok := m.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	iss.State, iss.TxHash, iss.Error = state, txHash, errMsg
	if state == domain.TxLoading {
		iss.Attempts++
	}
	m.rows[id] = iss
	m.states = append(m.states, state)
	return nil
}

func (m *memIssuances) GetByID(_ context.Context, id string) (domain.Issuance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	iss, ok := m.rows[id]
	if !ok {
		return domain.Issuance{}, domain.ErrNotFound
	}
	return iss, nil
}

func (m *memIssuances) ListByWallet(_ context.Context, wallet string, _ domain.ListOpts) ([]domain.Issuance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Issuance
	for _, iss := range m.rows {
		if iss.Wallet == wallet {
			out = append(out, iss)
		}
	}
	return out, nil
}

func (m *memIssuances) ListBefore(context.Context, time.Time, int) ([]domain.Issuance, error) {
	return nil, nil
}

func (m *memIssuances) DeleteByIDs(context.Context, []string) (int64, error) { return 0, nil }

func (m *memIssuances) history() []domain.TxState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.states)
}

type fakeSubmitter struct {
	mu      sync.Mutex
	address string
	err     error
	calls   []domain.IssuanceRequest
	swaps   []decimal.Decimal
	block   chan struct{}
	started chan struct{}

	// confirmAtDeadline holds the submission until ctx expires and then
	// reports it mined.
	confirmAtDeadline bool
	mined             map[string]domain.TxReceipt
	pending           map[string]bool
	lookups           []string
}

func (f *fakeSubmitter) Address() string { return f.address }

func (f *fakeSubmitter) SubmitIssuance(ctx context.Context, req domain.IssuanceRequest) (domain.TxReceipt, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	err := f.err
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.confirmAtDeadline {
		<-ctx.Done()
		return domain.TxReceipt{TxHash: "0xmined", BlockNumber: 7}, nil
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return domain.TxReceipt{}, ctx.Err()
		}
	}
	if err != nil {
		return domain.TxReceipt{TxHash: "0xdead"}, err
	}
	return domain.TxReceipt{TxHash: "0xbeef", BlockNumber: 7, GasUsed: 21000}, nil
}

func (f *fakeSubmitter) Confirmation(_ context.Context, txHash string) (domain.TxReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups = append(f.lookups, txHash)
	if r, ok := f.mined[txHash]; ok {
		return r, nil
	}
	if f.pending[txHash] {
		return domain.TxReceipt{TxHash: txHash}, domain.ErrSubmissionInFlight
	}
	return domain.TxReceipt{}, domain.ErrNotFound
}

func (f *fakeSubmitter) SubmitSwap(_ context.Context, _ string, _ domain.Direction, sell decimal.Decimal) (domain.TxReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.swaps = append(f.swaps, sell)
	if f.err != nil {
		return domain.TxReceipt{}, f.err
	}
	return domain.TxReceipt{TxHash: "0xswap", BlockNumber: 9}, nil
}

func (f *fakeSubmitter) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type recordingAlerts struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingAlerts) Notify(_ context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, msg.Event)
	return nil
}

type heldLocks struct{ held map[string]bool }

func (l *heldLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	return func() {}, nil
}
