package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/bondd/internal/domain"
)

// EthAsset is the price cache key of the ETH/USD reference price.
const EthAsset = "ETH"

// PriceService polls the ETH/USD reference price into the price cache and
// announces every update on the eth_price channel.
type PriceService struct {
	source domain.EthPriceSource
	cache  domain.PriceCache
	bus    domain.SignalBus
	maxAge time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewPriceService creates a PriceService. A cached price older than maxAge is
// reported as loading; maxAge <= 0 never expires it.
func NewPriceService(
	source domain.EthPriceSource,
	cache domain.PriceCache,
	bus domain.SignalBus,
	maxAge time.Duration,
	logger *slog.Logger,
) *PriceService {
	return &PriceService{
		source: source,
		cache:  cache,
		bus:    bus,
		maxAge: maxAge,
		now:    time.Now,
		logger: logger.With(slog.String("component", "price_service")),
	}
}

// Refresh fetches the current price, caches it and publishes it.
func (s *PriceService) Refresh(ctx context.Context) (decimal.Decimal, error) {
	price, err := s.source.EthUsd(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price_service: fetch: %w", err)
	}
	ts := s.now().UTC()
	if err := s.cache.SetPrice(ctx, EthAsset, price, ts); err != nil {
		return decimal.Zero, fmt.Errorf("price_service: cache: %w", err)
	}

	if s.bus != nil {
		evt, _ := json.Marshal(map[string]any{
			"event":     "eth_price",
			"price":     price.String(),
			"timestamp": ts.Format(time.RFC3339Nano),
		})
		if pubErr := s.bus.Publish(ctx, domain.ChannelEthPrice, evt); pubErr != nil {
			s.logger.WarnContext(ctx, "publish eth price failed", slog.String("error", pubErr.Error()))
		}
	}
	s.logger.DebugContext(ctx, "eth price updated", slog.String("price", price.String()))
	return price, nil
}

// EthUsd returns the cached price. loading is true while no fresh price is
// available; callers then omit USD estimates instead of failing.
func (s *PriceService) EthUsd(ctx context.Context) (price decimal.Decimal, loading bool) {
	price, ts, err := s.cache.GetPrice(ctx, EthAsset)
	if err != nil {
		return decimal.Zero, true
	}
	if s.maxAge > 0 && s.now().Sub(ts) > s.maxAge {
		return decimal.Zero, true
	}
	return price, false
}

// Run refreshes once immediately and then every interval until ctx is done.
func (s *PriceService) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if _, err := s.Refresh(ctx); err != nil {
		s.logger.ErrorContext(ctx, "eth price refresh failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Refresh(ctx); err != nil {
				s.logger.ErrorContext(ctx, "eth price refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}
