package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bondd/internal/domain"
	"github.com/alanyoungcy/bondd/internal/notify"
)

func newQuoteService(sub domain.SwapSubmitter, audit domain.AuditStore, alerts Alerter) *QuoteService {
	bond := testBond("b1", "2", "0.5", june)
	wallets := fakeBalances{wallet: ether("3")}
	return NewQuoteService(catalogWith(bond), wallets, sub, audit, alerts, testLogger())
}

func TestQuoteService_Quote(t *testing.T) {
	svc := newQuoteService(nil, nil, nil)
	ctx := context.Background()

	q, err := svc.Quote(ctx, "b1", domain.SideETH, d("10"))
	require.NoError(t, err)
	assert.Equal(t, "5.000000", q.Output)

	q, err = svc.Quote(ctx, "b1", domain.SideBond, d("5"))
	require.NoError(t, err)
	assert.Equal(t, "10.000000", q.Output)

	_, err = svc.Quote(ctx, "b1", domain.Side("usd"), d("5"))
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Quote(ctx, "missing", domain.SideETH, d("5"))
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestQuoteService_Swap(t *testing.T) {
	svc := newQuoteService(nil, nil, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		in   SwapInput
		want domain.SwapState
	}{
		{
			name: "edit sell",
			in:   SwapInput{Action: SwapEditSell, Amount: "10"},
			want: domain.SwapState{SellAmount: "10", BuyAmount: "5.000000", Direction: domain.SellIsETH},
		},
		{
			name: "edit buy",
			in:   SwapInput{Action: SwapEditBuy, Amount: "5"},
			want: domain.SwapState{SellAmount: "10.000000", BuyAmount: "5", Direction: domain.SellIsETH},
		},
		{
			name: "flip clears",
			in:   SwapInput{Action: SwapFlip, Direction: domain.SellIsETH, Amount: "10"},
			want: domain.SwapState{Direction: domain.SellIsBond},
		},
		{
			name: "max sells the wallet",
			in:   SwapInput{Action: SwapMax, Address: addr},
			want: domain.SwapState{SellAmount: "3", BuyAmount: "1.500000", Direction: domain.SellIsETH},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Swap(ctx, "b1", tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuoteService_SwapRejectsBadInput(t *testing.T) {
	svc := newQuoteService(nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Swap(ctx, "b1", SwapInput{Action: "bogus"})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Swap(ctx, "b1", SwapInput{Action: SwapEditSell, Amount: "abc"})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Swap(ctx, "b1", SwapInput{Action: SwapEditSell, Amount: "-1"})
	require.ErrorIs(t, err, domain.ErrNegativeAmount)
}

func TestQuoteService_Execute(t *testing.T) {
	sub := &fakeSubmitter{address: addr}
	audit := &memAudit{}
	alerts := &recordingAlerts{}
	svc := newQuoteService(sub, audit, alerts)

	res, err := svc.Execute(context.Background(), "b1", TradeRequest{Direction: domain.SellIsETH, SellAmount: d("10")})
	require.NoError(t, err)
	assert.Equal(t, "5.000000", res.BuyAmount)
	assert.Equal(t, "0xswap", res.TxHash)
	assert.Equal(t, []string{domain.AuditSwapExecuted}, audit.all())
	assert.Equal(t, []string{notify.EventSwapExecuted}, alerts.events)

	_, err = svc.Execute(context.Background(), "b1", TradeRequest{Direction: domain.SellIsBond, SellAmount: d("0")})
	require.ErrorIs(t, err, domain.ErrZeroAmount)
	assert.Len(t, sub.swaps, 1)
}
