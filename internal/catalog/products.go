package catalog

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/productlab/catalog-engine/internal/metrics"
	"github.com/productlab/catalog-engine/internal/model"
)

// --- Request/Response types ---

// ProductInput is the JSON body for product create and replace.
type ProductInput struct {
	Name           string           `json:"name" validate:"required,max=100"`
	Description    string           `json:"description" validate:"max=500"`
	CostPrice      decimal.Decimal  `json:"cost_price" validate:"gte=0,lt=100000000"`
	SellingPrice   decimal.Decimal  `json:"selling_price" validate:"gt=0,lt=100000000"`
	Category       string           `json:"category" validate:"max=100"`
	StockAvailable int64            `json:"stock_available" validate:"gte=0"`
	UnitsSold      int64            `json:"units_sold" validate:"gte=0"`
	CustomerRating int              `json:"customer_rating" validate:"gte=0,lte=5"`
	DemandForecast int64            `json:"demand_forecast" validate:"gte=0"`
	OptimizedPrice *decimal.Decimal `json:"optimized_price" validate:"omitempty,gt=0,lt=100000000"`
}

// Validate applies the field rules and the two-decimal money rule.
func (in *ProductInput) Validate() error {
	if err := check(in); err != nil {
		return err
	}
	return in.checkCents()
}

// NewProduct builds a catalog product from validated input.
func (in *ProductInput) NewProduct(id string) model.Product {
	p := model.Product{ID: id}
	in.apply(&p)
	return p
}

// checkCents rejects money with more than two fractional digits.
func (in *ProductInput) checkCents() error {
	details := map[string]string{}
	for name, v := range map[string]decimal.Decimal{
		"cost_price":    in.CostPrice,
		"selling_price": in.SellingPrice,
	} {
		if !v.Equal(v.Round(2)) {
			details[name] = "must have at most 2 decimal places"
		}
	}
	if in.OptimizedPrice != nil && !in.OptimizedPrice.Equal(in.OptimizedPrice.Round(2)) {
		details["optimized_price"] = "must have at most 2 decimal places"
	}
	if len(details) > 0 {
		return &ValidationError{Details: details}
	}
	return nil
}

func (in *ProductInput) apply(p *model.Product) {
	p.Name = in.Name
	p.Description = in.Description
	p.CostPrice = in.CostPrice
	p.SellingPrice = in.SellingPrice
	p.Category = in.Category
	p.StockAvailable = in.StockAvailable
	p.UnitsSold = in.UnitsSold
	p.CustomerRating = in.CustomerRating
	p.DemandForecast = in.DemandForecast
	p.OptimizedPrice = in.OptimizedPrice
}

// ProductWithForecast is a listing row with a forecast view attached.
// Forecast is null when history is shorter than the requested horizon.
type ProductWithForecast struct {
	model.Product
	Forecast *model.ForecastResult `json:"forecast"`
}

// ProductWithSales is a product with its complete sales history.
type ProductWithSales struct {
	model.Product
	CompleteSales []SaleView `json:"complete_sales"`
}

// SaleView renders one sales observation with a calendar date.
type SaleView struct {
	ProductID    string `json:"product_id"`
	Date         string `json:"date"` // YYYY-MM-DD
	UnitsSold    int64  `json:"units_sold"`
	SellingPrice string `json:"selling_price"`
}

func saleViews(history []model.SalesObservation) []SaleView {
	return lo.Map(history, func(obs model.SalesObservation, _ int) SaleView {
		return SaleView{
			ProductID:    obs.ProductID,
			Date:         obs.Date.Format("2006-01-02"),
			UnitsSold:    obs.UnitsSold,
			SellingPrice: money(obs.SellingPrice),
		}
	})
}

// --- HTTP Handlers ---

// CreateProduct handles POST /api/v1/products
// Records today's sales snapshot alongside the new product.
func (s *Service) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var in ProductInput
	if err := decodeJSON(r, &in); err != nil {
		writeFailure(w, err)
		return
	}
	if err := in.checkCents(); err != nil {
		writeFailure(w, err)
		return
	}

	created := in.NewProduct(uuid.New().String())
	p := &created

	ctx := r.Context()
	if err := s.store.CreateProduct(ctx, p); err != nil {
		writeFailure(w, err)
		return
	}
	if err := s.snapshot(r, p); err != nil {
		writeError(w, "failed to record sales snapshot", http.StatusInternalServerError)
		return
	}

	slog.Info("product created",
		"id", p.ID,
		"name", p.Name,
		"selling_price", p.SellingPrice.String(),
	)

	s.broadcast(Event{
		Type:         EventProductCreated,
		ProductID:    p.ID,
		Name:         p.Name,
		SellingPrice: money(p.SellingPrice),
	})

	writeJSON(w, http.StatusCreated, p)
}

// GetProduct handles GET /api/v1/products/{productID}
func (s *Service) GetProduct(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")

	p, err := s.store.GetProduct(r.Context(), productID)
	if err != nil {
		writeFailure(w, err)
		return
	}

	on, horizon := forecastParams(r.URL.Query(), s.horizon)
	if !on {
		writeJSON(w, http.StatusOK, p)
		return
	}
	res, err := s.forecastFor(r.Context(), p, horizon)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ProductWithForecast{Product: *p, Forecast: res})
}

// ListProducts handles GET /api/v1/products
// Supports category, customer_rating, selling_price, search and ordering
// filters, and with_demand_forecast / demand_forecast_interval.
func (s *Service) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, err := parseFilter(q)
	if err != nil {
		writeFailure(w, err)
		return
	}

	ctx := r.Context()
	products, err := s.store.ListProducts(ctx, filter)
	if err != nil {
		writeError(w, "failed to list products", http.StatusInternalServerError)
		return
	}
	if products == nil {
		products = []model.Product{}
	}
	if unfiltered(filter) {
		metrics.CatalogProducts.Set(float64(len(products)))
	}

	on, horizon := forecastParams(q, s.horizon)
	if !on {
		writeJSON(w, http.StatusOK, products)
		return
	}

	rows := make([]ProductWithForecast, len(products))
	for i := range products {
		res, err := s.forecastFor(ctx, &products[i], horizon)
		if err != nil {
			writeFailure(w, err)
			return
		}
		rows[i] = ProductWithForecast{Product: products[i], Forecast: res}
	}
	writeJSON(w, http.StatusOK, rows)
}

// UpdateProduct handles PUT /api/v1/products/{productID}
// Replaces the product and upserts today's sales snapshot.
func (s *Service) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")

	var in ProductInput
	if err := decodeJSON(r, &in); err != nil {
		writeFailure(w, err)
		return
	}
	if err := in.checkCents(); err != nil {
		writeFailure(w, err)
		return
	}

	ctx := r.Context()
	p, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	in.apply(p)

	if err := s.store.UpdateProduct(ctx, p); err != nil {
		writeFailure(w, err)
		return
	}
	if err := s.snapshot(r, p); err != nil {
		writeError(w, "failed to record sales snapshot", http.StatusInternalServerError)
		return
	}

	slog.Info("product updated", "id", p.ID, "units_sold", p.UnitsSold)

	s.broadcast(Event{
		Type:         EventProductUpdated,
		ProductID:    p.ID,
		Name:         p.Name,
		SellingPrice: money(p.SellingPrice),
	})

	writeJSON(w, http.StatusOK, p)
}

// DeleteProduct handles DELETE /api/v1/products/{productID}
func (s *Service) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")

	if err := s.store.DeleteProduct(r.Context(), productID); err != nil {
		writeFailure(w, err)
		return
	}
	slog.Info("product deleted", "id", productID)
	w.WriteHeader(http.StatusNoContent)
}

// GetSales handles GET /api/v1/products/{productID}/sales
func (s *Service) GetSales(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	ctx := r.Context()

	if _, err := s.store.GetProduct(ctx, productID); err != nil {
		writeFailure(w, err)
		return
	}
	history, err := s.store.ListSales(ctx, productID)
	if err != nil {
		writeError(w, "failed to load sales", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, saleViews(history))
}

// ListProductsWithSales handles GET /api/v1/products/sales?product_ids=…
// Products named by product_ids, each with its complete sales history.
func (s *Service) ListProductsWithSales(w http.ResponseWriter, r *http.Request) {
	ids := splitList(r.URL.Query()["product_ids"])
	if len(ids) == 0 {
		writeJSON(w, http.StatusOK, []ProductWithSales{})
		return
	}

	ctx := r.Context()
	products, err := s.store.ListProducts(ctx, model.ProductFilter{IDs: ids})
	if err != nil {
		writeError(w, "failed to list products", http.StatusInternalServerError)
		return
	}

	rows := make([]ProductWithSales, 0, len(products))
	for _, p := range products {
		history, err := s.store.ListSales(ctx, p.ID)
		if err != nil {
			writeError(w, "failed to load sales", http.StatusInternalServerError)
			return
		}
		rows = append(rows, ProductWithSales{Product: p, CompleteSales: saleViews(history)})
	}
	writeJSON(w, http.StatusOK, rows)
}

func unfiltered(f model.ProductFilter) bool {
	return f.Category == "" && f.CustomerRating == nil && f.SellingPrice == nil && f.Search == ""
}

// snapshot upserts today's observation from the product's counters.
func (s *Service) snapshot(r *http.Request, p *model.Product) error {
	obs := &model.SalesObservation{
		ProductID:    p.ID,
		Date:         s.today(),
		UnitsSold:    p.UnitsSold,
		SellingPrice: p.SellingPrice,
	}
	if err := s.store.UpsertSale(r.Context(), obs); err != nil {
		slog.Error("sales snapshot failed", "product_id", p.ID, "err", err)
		return fmt.Errorf("snapshot %s: %w", p.ID, err)
	}
	return nil
}
