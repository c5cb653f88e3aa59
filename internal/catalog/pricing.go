package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/productlab/catalog-engine/internal/config"
	"github.com/productlab/catalog-engine/internal/metrics"
	"github.com/productlab/catalog-engine/internal/model"
	"github.com/productlab/catalog-engine/internal/pricing"
)

const maxOptimizeBody = 4 << 20

// OptimizeItem is one element of the POST /products/price-optimize body.
// ID is any JSON scalar and is echoed back verbatim.
type OptimizeItem struct {
	ID                    json.RawMessage `json:"id" validate:"required"`
	CurrentPrice          decimal.Decimal `json:"current_price"`
	TotalForecastedDemand decimal.Decimal `json:"total_forecasted_demand"`
	CostPrice             decimal.Decimal `json:"cost_price"`
	Elasticity            *float64        `json:"elasticity,omitempty"`
}

// OptimizeResult is one element of the price-optimize response. Money is
// rendered with two decimal places.
type OptimizeResult struct {
	ID           json.RawMessage `json:"id"`
	OptimalPrice string          `json:"optimal_price"`
	MaxProfit    string          `json:"max_profit"`
}

// ProductPricingResponse is the JSON body of POST /products/{productID}/optimize-price.
type ProductPricingResponse struct {
	ProductID    string                `json:"product_id"`
	HorizonDays  int                   `json:"horizon_days"`
	Elasticity   float64               `json:"elasticity"`
	Forecast     *model.ForecastResult `json:"forecast"`
	OptimalPrice string                `json:"optimal_price"`
	MaxProfit    string                `json:"max_profit"`
}

// OptimizePrices handles POST /api/v1/products/price-optimize
// Accepts a single item or an array; the response mirrors the shape.
// A batch is all-or-nothing: one invalid item rejects the request.
func (s *Service) OptimizePrices(w http.ResponseWriter, r *http.Request) {
	items, isList, err := s.readOptimizeItems(r)
	if err != nil {
		metrics.OptimizationErrors.WithLabelValues("decode").Inc()
		writeFailure(w, err)
		return
	}

	reqs := lo.Map(items, func(it OptimizeItem, _ int) model.OptimizationRequest {
		e := s.elasticity
		if it.Elasticity != nil {
			e = *it.Elasticity
		}
		return model.OptimizationRequest{
			ID:                    string(it.ID),
			CurrentPrice:          it.CurrentPrice,
			TotalForecastedDemand: it.TotalForecastedDemand,
			CostPrice:             it.CostPrice,
			Elasticity:            e,
		}
	})

	metrics.OptimizationBatchSize.Observe(float64(len(reqs)))
	start := time.Now()
	results, err := s.optimizer.OptimizeBatch(r.Context(), reqs)
	metrics.OptimizationLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.OptimizationErrors.WithLabelValues(errorReason(err)).Inc()
		writeFailure(w, err)
		return
	}

	out := lo.Map(results, func(res model.OptimizationResult, _ int) OptimizeResult {
		return OptimizeResult{
			ID:           json.RawMessage(res.ID),
			OptimalPrice: money(res.OptimalPrice),
			MaxProfit:    money(res.MaxProfit),
		}
	})

	if !isList {
		writeJSON(w, http.StatusOK, out[0])
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// readOptimizeItems decodes either one object or an array of objects.
func (s *Service) readOptimizeItems(r *http.Request) ([]OptimizeItem, bool, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxOptimizeBody))
	if err != nil {
		return nil, false, fmt.Errorf("%w: read body: %v", errBadRequest, err)
	}
	body = bytes.TrimSpace(body)
	isList := len(body) > 0 && body[0] == '['

	var items []OptimizeItem
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if isList {
		err = dec.Decode(&items)
	} else {
		var one OptimizeItem
		err = dec.Decode(&one)
		items = []OptimizeItem{one}
	}
	if err != nil {
		return nil, isList, fmt.Errorf("%w: invalid request body: %v", errBadRequest, err)
	}

	for i := range items {
		if string(items[i].ID) == "null" {
			items[i].ID = nil
		}
		if err := check(&items[i]); err != nil {
			var verr *ValidationError
			if isList && errors.As(err, &verr) {
				verr.Details = lo.MapKeys(verr.Details, func(_ string, field string) string {
					return fmt.Sprintf("[%d].%s", i, field)
				})
			}
			return nil, isList, err
		}
	}
	return items, isList, nil
}

// OptimizeProductPrice handles POST /api/v1/products/{productID}/optimize-price
// Forecasts demand over ?horizon= days, searches the price grid with that
// demand, then persists demand_forecast and optimized_price.
func (s *Service) OptimizeProductPrice(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	q := r.URL.Query()

	horizon, err := config.ParseHorizon(q.Get("horizon"), s.horizon)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	elasticity := s.elasticity
	if raw := q.Get("elasticity"); raw != "" {
		elasticity, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, "elasticity must be a number", http.StatusBadRequest)
			return
		}
	}

	ctx := r.Context()
	p, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		writeFailure(w, err)
		return
	}

	fc, err := s.forecastFor(ctx, p, horizon)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if fc == nil {
		writeFailure(w, fmt.Errorf("%w: product %s over %d days", errNoForecast, p.ID, horizon))
		return
	}

	start := time.Now()
	res, err := s.optimizer.Optimize(model.OptimizationRequest{
		ID:                    p.ID,
		CurrentPrice:          p.SellingPrice,
		TotalForecastedDemand: decimal.NewFromInt(fc.UnitsForecast),
		CostPrice:             p.CostPrice,
		Elasticity:            elasticity,
	})
	metrics.OptimizationLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.OptimizationErrors.WithLabelValues(errorReason(err)).Inc()
		writeFailure(w, err)
		return
	}

	optimal := res.OptimalPrice.Round(2)
	if err := s.store.SetPricing(ctx, p.ID, fc.UnitsForecast, optimal); err != nil {
		writeFailure(w, err)
		return
	}

	slog.Info("price optimized",
		"product_id", p.ID,
		"horizon_days", horizon,
		"units_forecast", fc.UnitsForecast,
		"method", fc.Method,
		"current_price", p.SellingPrice.String(),
		"optimal_price", optimal.String(),
	)

	units := fc.UnitsForecast
	s.broadcast(Event{
		Type:           EventPriceOptimized,
		ProductID:      p.ID,
		Name:           p.Name,
		SellingPrice:   money(p.SellingPrice),
		OptimizedPrice: money(optimal),
		DemandForecast: &units,
	})

	writeJSON(w, http.StatusOK, ProductPricingResponse{
		ProductID:    p.ID,
		HorizonDays:  horizon,
		Elasticity:   elasticity,
		Forecast:     fc,
		OptimalPrice: money(res.OptimalPrice),
		MaxProfit:    money(res.MaxProfit),
	})
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, pricing.ErrInvalidPriceBasis):
		return "invalid_price"
	case errors.Is(err, pricing.ErrNegativeDemand):
		return "negative_demand"
	case errors.Is(err, pricing.ErrNegativeCost):
		return "negative_cost"
	case errors.Is(err, pricing.ErrInvalidElasticity):
		return "invalid_elasticity"
	case errors.Is(err, pricing.ErrNonFiniteProfit):
		return "non_finite"
	case errors.Is(err, pricing.ErrBatchTooLarge):
		return "batch_too_large"
	}
	return "other"
}
