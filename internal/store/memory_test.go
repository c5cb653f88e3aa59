package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/productlab/catalog-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func seed(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	products := []model.Product{
		{ID: "a", Name: "Kettle", Description: "steel", Category: "kitchen", SellingPrice: d(30), CostPrice: d(12), CustomerRating: 4},
		{ID: "b", Name: "Blender", Description: "glass jug", Category: "kitchen", SellingPrice: d(80), CostPrice: d(40), CustomerRating: 5},
		{ID: "c", Name: "Lamp", Description: "desk lamp", Category: "office", SellingPrice: d(30), CostPrice: d(9), CustomerRating: 3},
	}
	require.NoError(t, s.BulkCreateProducts(context.Background(), products))
	return s
}

func ids(products []model.Product) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = p.ID
	}
	return out
}

func TestMemoryStore_CreateGetConflict(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p := &model.Product{ID: "x", Name: "Mug", SellingPrice: d(5)}

	require.NoError(t, s.CreateProduct(ctx, p))
	assert.ErrorIs(t, s.CreateProduct(ctx, p), ErrConflict)

	got, err := s.GetProduct(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "Mug", got.Name)

	// Stored values are copies.
	got.Name = "changed"
	again, _ := s.GetProduct(ctx, "x")
	assert.Equal(t, "Mug", again.Name)

	_, err = s.GetProduct(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_BulkCreateIsAtomic(t *testing.T) {
	s := seed(t)
	err := s.BulkCreateProducts(context.Background(), []model.Product{
		{ID: "new", Name: "Fan"},
		{ID: "a", Name: "Duplicate"},
	})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = s.GetProduct(context.Background(), "new")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ListFilters(t *testing.T) {
	ctx := context.Background()
	s := seed(t)
	rating := 5
	price := d(30)

	tests := []struct {
		name   string
		filter model.ProductFilter
		want   []string
	}{
		{"all ordered by name", model.ProductFilter{}, []string{"b", "a", "c"}},
		{"category", model.ProductFilter{Category: "kitchen"}, []string{"b", "a"}},
		{"rating", model.ProductFilter{CustomerRating: &rating}, []string{"b"}},
		{"price", model.ProductFilter{SellingPrice: &price}, []string{"a", "c"}},
		{"search name", model.ProductFilter{Search: "LAMP"}, []string{"c"}},
		{"search description", model.ProductFilter{Search: "jug"}, []string{"b"}},
		{"ids", model.ProductFilter{IDs: []string{"c", "a"}}, []string{"a", "c"}},
		{"price desc", model.ProductFilter{Ordering: []string{"-selling_price"}}, []string{"b", "a", "c"}},
		{"rating asc", model.ProductFilter{Ordering: []string{"customer_rating"}}, []string{"c", "a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListProducts(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestMemoryStore_UpdateAndPricing(t *testing.T) {
	ctx := context.Background()
	s := seed(t)

	p, _ := s.GetProduct(ctx, "a")
	p.StockAvailable = 42
	require.NoError(t, s.UpdateProduct(ctx, p))
	assert.ErrorIs(t, s.UpdateProduct(ctx, &model.Product{ID: "zz"}), ErrNotFound)

	require.NoError(t, s.SetPricing(ctx, "a", 120, d(33.5)))
	got, _ := s.GetProduct(ctx, "a")
	assert.Equal(t, int64(42), got.StockAvailable)
	assert.Equal(t, int64(120), got.DemandForecast)
	require.NotNil(t, got.OptimizedPrice)
	assert.True(t, got.OptimizedPrice.Equal(d(33.5)))
}

func TestMemoryStore_SalesUpsertAndCascade(t *testing.T) {
	ctx := context.Background()
	s := seed(t)
	day := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertSale(ctx, &model.SalesObservation{ProductID: "a", Date: day.AddDate(0, 0, 1), UnitsSold: 3}))
	require.NoError(t, s.UpsertSale(ctx, &model.SalesObservation{ProductID: "a", Date: day.Add(15 * time.Hour), UnitsSold: 1}))
	require.NoError(t, s.UpsertSale(ctx, &model.SalesObservation{ProductID: "a", Date: day, UnitsSold: 7}))

	sales, err := s.ListSales(ctx, "a")
	require.NoError(t, err)
	require.Len(t, sales, 2)
	assert.Equal(t, day, sales[0].Date)
	assert.Equal(t, int64(7), sales[0].UnitsSold)

	err = s.UpsertSale(ctx, &model.SalesObservation{ProductID: "ghost", Date: day})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.DeleteProduct(ctx, "a"))
	sales, err = s.ListSales(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, sales)
	assert.ErrorIs(t, s.DeleteProduct(ctx, "a"), ErrNotFound)
}
