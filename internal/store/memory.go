package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/productlab/catalog-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	products map[string]*model.Product
	sales    map[string]map[time.Time]model.SalesObservation
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[string]*model.Product),
		sales:    make(map[string]map[time.Time]model.SalesObservation),
	}
}

func (s *MemoryStore) CreateProduct(_ context.Context, p *model.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[p.ID]; exists {
		return fmt.Errorf("%w: product %s already exists", ErrConflict, p.ID)
	}
	// Store a copy to avoid external mutation.
	s.products[p.ID] = cloneProduct(p)
	return nil
}

func (s *MemoryStore) BulkCreateProducts(_ context.Context, products []model.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(products))
	for _, p := range products {
		if _, exists := s.products[p.ID]; exists || seen[p.ID] {
			return fmt.Errorf("%w: product %s already exists", ErrConflict, p.ID)
		}
		seen[p.ID] = true
	}
	for i := range products {
		s.products[products[i].ID] = cloneProduct(&products[i])
	}
	return nil
}

func (s *MemoryStore) GetProduct(_ context.Context, id string) (*model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: product %s", ErrNotFound, id)
	}
	return cloneProduct(p), nil
}

func (s *MemoryStore) ListProducts(_ context.Context, f model.ProductFilter) ([]model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(f.Search)
	products := make([]model.Product, 0, len(s.products))
	for _, p := range s.products {
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		if f.CustomerRating != nil && p.CustomerRating != *f.CustomerRating {
			continue
		}
		if f.SellingPrice != nil && !p.SellingPrice.Equal(*f.SellingPrice) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.Description), search) {
			continue
		}
		if len(f.IDs) > 0 && !slices.Contains(f.IDs, p.ID) {
			continue
		}
		products = append(products, *cloneProduct(p))
	}

	ordering := append(slices.Clone(f.Ordering), "name", "product_id")
	sort.SliceStable(products, func(i, j int) bool {
		for _, term := range ordering {
			if c := compareField(&products[i], &products[j], trimDesc(term)); c != 0 {
				if strings.HasPrefix(term, "-") {
					return c > 0
				}
				return c < 0
			}
		}
		return false
	})
	return products, nil
}

func compareField(a, b *model.Product, field string) int {
	switch field {
	case "name":
		return strings.Compare(a.Name, b.Name)
	case "selling_price":
		return a.SellingPrice.Cmp(b.SellingPrice)
	case "customer_rating":
		return a.CustomerRating - b.CustomerRating
	case "product_id":
		return strings.Compare(a.ID, b.ID)
	}
	return 0
}

func (s *MemoryStore) UpdateProduct(_ context.Context, p *model.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[p.ID]; !ok {
		return fmt.Errorf("%w: product %s", ErrNotFound, p.ID)
	}
	s.products[p.ID] = cloneProduct(p)
	return nil
}

func (s *MemoryStore) SetPricing(_ context.Context, id string, demandForecast int64, optimizedPrice decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return fmt.Errorf("%w: product %s", ErrNotFound, id)
	}
	p.DemandForecast = demandForecast
	p.OptimizedPrice = &optimizedPrice
	return nil
}

func (s *MemoryStore) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return fmt.Errorf("%w: product %s", ErrNotFound, id)
	}
	delete(s.products, id)
	delete(s.sales, id)
	return nil
}

func (s *MemoryStore) UpsertSale(_ context.Context, obs *model.SalesObservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[obs.ProductID]; !ok {
		return fmt.Errorf("%w: product %s", ErrNotFound, obs.ProductID)
	}
	byDay, ok := s.sales[obs.ProductID]
	if !ok {
		byDay = make(map[time.Time]model.SalesObservation)
		s.sales[obs.ProductID] = byDay
	}
	o := *obs
	o.Date = model.Day(o.Date)
	byDay[o.Date] = o
	return nil
}

func (s *MemoryStore) ListSales(_ context.Context, productID string) ([]model.SalesObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.SalesObservation, 0, len(s.sales[productID]))
	for _, obs := range s.sales[productID] {
		result = append(result, obs)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

func cloneProduct(p *model.Product) *model.Product {
	c := *p
	if p.OptimizedPrice != nil {
		op := *p.OptimizedPrice
		c.OptimizedPrice = &op
	}
	return &c
}
