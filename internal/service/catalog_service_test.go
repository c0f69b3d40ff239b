package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bondd/internal/domain"
	"github.com/alanyoungcy/bondd/internal/pricing"
)

var (
	june  = time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	march = time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC)
)

func TestCatalogService_ListReadsThroughCache(t *testing.T) {
	store := &memBondStore{bonds: []domain.Bond{
		testBond("b-june", "0.98", "0.5", june),
		testBond("b-march", "0.99", "0.5", march),
	}}
	cache := &memBondCache{}
	svc := NewCatalogService(store, cache, nil, nil, nil, testLogger())
	ctx := context.Background()

	bonds, err := svc.List(ctx, pricing.DefaultSort)
	require.NoError(t, err)
	require.Len(t, bonds, 2)
	assert.Equal(t, "b-march", bonds[0].ID)
	assert.True(t, cache.set)

	_, err = svc.List(ctx, pricing.Sort{Field: pricing.SortByPrice, Order: pricing.Desc})
	require.NoError(t, err)
	assert.Equal(t, 1, store.lists, "second call is served from cache")
}

func TestCatalogService_Get(t *testing.T) {
	store := &memBondStore{bonds: []domain.Bond{testBond("b1", "0.98", "0.5", june)}}
	svc := NewCatalogService(store, nil, nil, nil, nil, testLogger())

	b, err := svc.Get(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, "b1", b.ID)

	_, err = svc.Get(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCatalogService_Sync(t *testing.T) {
	store := &memBondStore{}
	cache := &memBondCache{}
	bus := &memBus{}
	audit := &memAudit{}
	bad := testBond("b-bad", "0", "0.5", june)
	matured := testBond("b-old", "0.99", "0.5", june.AddDate(0, -2, 0))
	src := staticSource{bonds: []domain.Bond{testBond("b1", "0.98", "0.5", june), bad, matured}}
	svc := NewCatalogService(store, cache, src, bus, audit, testLogger())
	svc.now = func() time.Time { return june.AddDate(0, -1, 0) }

	n, err := svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, store.bonds, 1)
	assert.Equal(t, "b1", store.bonds[0].ID)
	assert.Equal(t, 1, cache.invalidated)
	assert.Equal(t, 1, bus.count(domain.ChannelBonds))
	assert.Equal(t, []string{domain.AuditCatalogSynced}, audit.all())
}

func TestCatalogService_SyncWithoutSource(t *testing.T) {
	svc := NewCatalogService(&memBondStore{}, nil, nil, nil, nil, testLogger())
	_, err := svc.Sync(context.Background())
	require.Error(t, err)
}

func TestCatalogService_RunStopsOnCancel(t *testing.T) {
	store := &memBondStore{}
	src := staticSource{bonds: []domain.Bond{testBond("b1", "0.98", "0.5", june)}}
	svc := NewCatalogService(store, nil, src, nil, nil, testLogger())
	svc.now = func() time.Time { return june.AddDate(0, -1, 0) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx, time.Hour) }()

	require.Eventually(t, func() bool {
		_, err := store.GetByID(context.Background(), "b1")
		return err == nil
	}, time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
