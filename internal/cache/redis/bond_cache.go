package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/bondd/internal/domain"
)

const (
	bondCatalogKey      = "bonds:catalog"
	defaultBondCacheTTL = 30 * time.Second
)

// BondCache implements domain.BondCache by storing the whole catalog as one
// JSON value with a TTL.
type BondCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewBondCache creates a BondCache. ttl <= 0 uses 30s.
func NewBondCache(c *Client, ttl time.Duration) *BondCache {
	if ttl <= 0 {
		ttl = defaultBondCacheTTL
	}
	return &BondCache{rdb: c.Underlying(), ttl: ttl}
}

// SetAll replaces the cached catalog.
func (bc *BondCache) SetAll(ctx context.Context, bonds []domain.Bond) error {
	data, err := json.Marshal(bonds)
	if err != nil {
		return fmt.Errorf("redis: marshal bonds: %w", err)
	}
	if err := bc.rdb.Set(ctx, bondCatalogKey, data, bc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set bonds: %w", err)
	}
	return nil
}

// GetAll returns the cached catalog or domain.ErrNotFound on a miss.
func (bc *BondCache) GetAll(ctx context.Context) ([]domain.Bond, error) {
	data, err := bc.rdb.Get(ctx, bondCatalogKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get bonds: %w", err)
	}
	var bonds []domain.Bond
	if err := json.Unmarshal(data, &bonds); err != nil {
		return nil, fmt.Errorf("redis: unmarshal bonds: %w", err)
	}
	return bonds, nil
}

// Invalidate drops the cached catalog.
func (bc *BondCache) Invalidate(ctx context.Context) error {
	if err := bc.rdb.Del(ctx, bondCatalogKey).Err(); err != nil {
		return fmt.Errorf("redis: invalidate bonds: %w", err)
	}
	return nil
}

var _ domain.BondCache = (*BondCache)(nil)
