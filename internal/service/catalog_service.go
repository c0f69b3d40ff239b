package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/bondd/internal/domain"
	"github.com/alanyoungcy/bondd/internal/pricing"
)

// CatalogService serves the bond catalog from the Redis cache, falling back
// to Postgres, and keeps it in step with the vault contract.
type CatalogService struct {
	store  domain.BondStore
	cache  domain.BondCache
	source domain.BondSource
	bus    domain.SignalBus
	audit  domain.AuditStore
	logger *slog.Logger

	now func() time.Time
}

// NewCatalogService creates a CatalogService. cache, source, bus and audit may
// be nil; Sync needs a source.
func NewCatalogService(
	store domain.BondStore,
	cache domain.BondCache,
	source domain.BondSource,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *CatalogService {
	return &CatalogService{
		store:  store,
		cache:  cache,
		source: source,
		bus:    bus,
		audit:  audit,
		logger: logger.With(slog.String("component", "catalog_service")),
		now:    time.Now,
	}
}

// List returns every listed bond ordered by sort.
func (s *CatalogService) List(ctx context.Context, sort pricing.Sort) ([]domain.Bond, error) {
	bonds, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	return pricing.SortBonds(bonds, sort), nil
}

// Get returns one bond by id.
func (s *CatalogService) Get(ctx context.Context, id string) (domain.Bond, error) {
	bonds, err := s.all(ctx)
	if err != nil {
		return domain.Bond{}, err
	}
	for _, b := range bonds {
		if b.ID == id {
			return b, nil
		}
	}
	return domain.Bond{}, fmt.Errorf("catalog: bond %q: %w", id, domain.ErrNotFound)
}

func (s *CatalogService) all(ctx context.Context) ([]domain.Bond, error) {
	if s.cache != nil {
		bonds, err := s.cache.GetAll(ctx)
		if err == nil {
			return bonds, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "bond cache read failed", slog.String("error", err.Error()))
		}
	}

	bonds, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.SetAll(ctx, bonds); err != nil {
			s.logger.WarnContext(ctx, "bond cache write failed", slog.String("error", err.Error()))
		}
	}
	return bonds, nil
}

// Sync pulls the on-chain catalog into the store and drops the cached copy.
// Bonds that fail validation or have matured are skipped. It returns how many
// were stored.
func (s *CatalogService) Sync(ctx context.Context) (int, error) {
	if s.source == nil {
		return 0, errors.New("catalog: sync: no bond source configured")
	}
	onchain, err := s.source.ListBonds(ctx)
	if err != nil {
		return 0, fmt.Errorf("catalog: sync: %w", err)
	}

	now := s.now()
	valid := make([]domain.Bond, 0, len(onchain))
	for _, b := range onchain {
		if b.Matured(now) {
			s.logger.DebugContext(ctx, "skipping matured bond", slog.String("bond_id", b.ID))
			continue
		}
		if err := b.Validate(); err != nil {
			s.logger.WarnContext(ctx, "skipping invalid bond",
				slog.String("bond_id", b.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		valid = append(valid, b)
	}
	if len(valid) == 0 {
		return 0, nil
	}

	if err := s.store.UpsertBatch(ctx, valid); err != nil {
		return 0, fmt.Errorf("catalog: sync: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logger.WarnContext(ctx, "bond cache invalidate failed", slog.String("error", err.Error()))
		}
	}

	if s.bus != nil {
		evt, _ := json.Marshal(map[string]any{
			"event": "catalog_synced",
			"count": len(valid),
		})
		if err := s.bus.Publish(ctx, domain.ChannelBonds, evt); err != nil {
			s.logger.WarnContext(ctx, "publish catalog event failed", slog.String("error", err.Error()))
		}
	}
	if s.audit != nil {
		if err := s.audit.Log(ctx, domain.AuditCatalogSynced, map[string]any{"count": len(valid)}); err != nil {
			s.logger.WarnContext(ctx, "audit catalog sync failed", slog.String("error", err.Error()))
		}
	}

	s.logger.InfoContext(ctx, "catalog synced", slog.Int("bonds", len(valid)))
	return len(valid), nil
}

// Run syncs once immediately and then every interval until ctx is done.
func (s *CatalogService) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	if _, err := s.Sync(ctx); err != nil {
		s.logger.ErrorContext(ctx, "catalog sync failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sync(ctx); err != nil {
				s.logger.ErrorContext(ctx, "catalog sync failed", slog.String("error", err.Error()))
			}
		}
	}
}
