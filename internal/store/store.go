// Package store defines the persistence interface for the catalog engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
//
// The forecast and pricing packages never see a Store: the catalog service
// materializes sales history here and hands plain slices to the core.
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/productlab/catalog-engine/internal/model"
)

var (
	// ErrNotFound is returned when a product does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("store: conflict")
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Product operations ---

	// CreateProduct persists a new product.
	CreateProduct(ctx context.Context, p *model.Product) error

	// BulkCreateProducts persists many products atomically.
	BulkCreateProducts(ctx context.Context, products []model.Product) error

	// GetProduct retrieves a product by its ID.
	GetProduct(ctx context.Context, id string) (*model.Product, error)

	// ListProducts returns products matching the filter, ordered by name
	// unless the filter says otherwise.
	ListProducts(ctx context.Context, f model.ProductFilter) ([]model.Product, error)

	// UpdateProduct replaces every mutable field of an existing product.
	UpdateProduct(ctx context.Context, p *model.Product) error

	// SetPricing records the latest demand forecast and optimized price.
	SetPricing(ctx context.Context, id string, demandForecast int64, optimizedPrice decimal.Decimal) error

	// DeleteProduct removes a product and its sales history.
	DeleteProduct(ctx context.Context, id string) error

	// --- Sales history ---

	// UpsertSale inserts or replaces the observation for (product, date).
	UpsertSale(ctx context.Context, s *model.SalesObservation) error

	// ListSales returns a product's observations ordered by date.
	ListSales(ctx context.Context, productID string) ([]model.SalesObservation, error)
}

// orderColumns whitelists the fields a listing may be ordered by.
var orderColumns = map[string]string{
	"name":            "name",
	"selling_price":   "selling_price",
	"customer_rating": "customer_rating",
}

// ValidOrderField reports whether an ordering term (with optional "-")
// names a sortable field.
func ValidOrderField(term string) bool {
	_, ok := orderColumns[trimDesc(term)]
	return ok
}

func trimDesc(term string) string {
	if len(term) > 0 && term[0] == '-' {
		return term[1:]
	}
	return term
}
