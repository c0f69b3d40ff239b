package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bondd/internal/domain"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := New(context.Background(), ClientConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestPriceCache(t *testing.T) {
	c, mr := newTestClient(t)
	pc := NewPriceCache(c, time.Minute)
	ctx := context.Background()

	_, _, err := pc.GetPrice(ctx, "ETH")
	require.ErrorIs(t, err, domain.ErrNotFound)

	ts := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, pc.SetPrice(ctx, "ETH", decimal.RequireFromString("3120.55"), ts))

	price, got, err := pc.GetPrice(ctx, "ETH")
	require.NoError(t, err)
	assert.Equal(t, "3120.55", price.String())
	assert.True(t, ts.Equal(got))

	mr.FastForward(2 * time.Minute)
	_, _, err = pc.GetPrice(ctx, "ETH")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBondCache(t *testing.T) {
	c, _ := newTestClient(t)
	bc := NewBondCache(c, time.Minute)
	ctx := context.Background()

	_, err := bc.GetAll(ctx)
	require.ErrorIs(t, err, domain.ErrNotFound)

	bonds := []domain.Bond{{
		ID:          "1",
		Name:        "vETH",
		Maturity:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Price:       decimal.RequireFromString("0.97"),
		MarginRatio: decimal.RequireFromString("0.5"),
	}}
	require.NoError(t, bc.SetAll(ctx, bonds))

	got, err := bc.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)
	assert.True(t, bonds[0].Price.Equal(got[0].Price))
	assert.True(t, bonds[0].Maturity.Equal(got[0].Maturity))

	require.NoError(t, bc.Invalidate(ctx))
	_, err = bc.GetAll(ctx)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLockManager(t *testing.T) {
	c, _ := newTestClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "issuance:0xabc", time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "issuance:0xabc", time.Minute)
	require.ErrorIs(t, err, domain.ErrLockHeld)

	other, err := lm.Acquire(ctx, "issuance:0xdef", time.Minute)
	require.NoError(t, err)
	other()

	unlock()
	unlock()
	again, err := lm.Acquire(ctx, "issuance:0xabc", time.Minute)
	require.NoError(t, err)
	again()
}

func TestLockManager_ExpiredLockNotReleasedByOldHolder(t *testing.T) {
	c, mr := newTestClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	stale, err := lm.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	_, err = lm.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	stale()
	_, err = lm.Acquire(ctx, "k", time.Minute)
	require.ErrorIs(t, err, domain.ErrLockHeld)
}

func TestRateLimiter(t *testing.T) {
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "ip:1", 3, time.Second)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := rl.Allow(ctx, "ip:1", 3, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rl.Allow(ctx, "ip:2", 3, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(1100 * time.Millisecond)
	ok, err = rl.Allow(ctx, "ip:1", 3, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSignalBus(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, domain.ChannelIssuances)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, domain.ChannelIssuances, []byte(`{"id":"1"}`)))

	select {
	case msg := <-ch:
		assert.JSONEq(t, `{"id":"1"}`, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
