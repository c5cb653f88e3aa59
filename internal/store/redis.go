package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/productlab/catalog-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateProduct(ctx context.Context, p *model.Product) error {
	if err := s.primary.CreateProduct(ctx, p); err != nil {
		return err
	}
	s.cache(ctx, productKey(p.ID), p)
	return nil
}

func (s *CachedStore) BulkCreateProducts(ctx context.Context, products []model.Product) error {
	return s.primary.BulkCreateProducts(ctx, products)
}

func (s *CachedStore) UpdateProduct(ctx context.Context, p *model.Product) error {
	if err := s.primary.UpdateProduct(ctx, p); err != nil {
		return err
	}
	s.rdb.Del(ctx, productKey(p.ID))
	return nil
}

func (s *CachedStore) SetPricing(ctx context.Context, id string, demandForecast int64, optimizedPrice decimal.Decimal) error {
	if err := s.primary.SetPricing(ctx, id, demandForecast, optimizedPrice); err != nil {
		return err
	}
	s.rdb.Del(ctx, productKey(id))
	return nil
}

func (s *CachedStore) DeleteProduct(ctx context.Context, id string) error {
	if err := s.primary.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.rdb.Del(ctx, productKey(id), salesKey(id))
	return nil
}

func (s *CachedStore) UpsertSale(ctx context.Context, obs *model.SalesObservation) error {
	if err := s.primary.UpsertSale(ctx, obs); err != nil {
		return err
	}
	// Invalidate the history; the next forecast re-reads it.
	s.rdb.Del(ctx, salesKey(obs.ProductID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	data, err := s.rdb.Get(ctx, productKey(id)).Bytes()
	if err == nil {
		var p model.Product
		if json.Unmarshal(data, &p) == nil {
			return &p, nil
		}
	}

	// Cache miss: read from primary.
	p, err := s.primary.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cache(ctx, productKey(id), p)
	return p, nil
}

func (s *CachedStore) ListSales(ctx context.Context, productID string) ([]model.SalesObservation, error) {
	data, err := s.rdb.Get(ctx, salesKey(productID)).Bytes()
	if err == nil {
		var sales []model.SalesObservation
		if json.Unmarshal(data, &sales) == nil {
			return sales, nil
		}
	}

	sales, err := s.primary.ListSales(ctx, productID)
	if err != nil {
		return nil, err
	}

	s.cache(ctx, salesKey(productID), sales)
	return sales, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListProducts(ctx context.Context, f model.ProductFilter) ([]model.Product, error) {
	return s.primary.ListProducts(ctx, f)
}

// --- Cache helpers ---

func (s *CachedStore) cache(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func productKey(id string) string { return fmt.Sprintf("product:%s", id) }
func salesKey(id string) string   { return fmt.Sprintf("sales:%s", id) }
