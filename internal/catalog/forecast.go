package catalog

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/productlab/catalog-engine/internal/config"
	"github.com/productlab/catalog-engine/internal/forecast"
	"github.com/productlab/catalog-engine/internal/metrics"
	"github.com/productlab/catalog-engine/internal/model"
)

// ForecastResponse is the JSON body of GET /products/{productID}/forecast.
// Forecast is null when the history is shorter than the horizon.
type ForecastResponse struct {
	ProductID   string                `json:"product_id"`
	HorizonDays int                   `json:"horizon_days"`
	Forecast    *model.ForecastResult `json:"forecast"`
}

// GetForecast handles GET /api/v1/products/{productID}/forecast?horizon=N
func (s *Service) GetForecast(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")

	horizon, err := config.ParseHorizon(r.URL.Query().Get("horizon"), s.horizon)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	p, err := s.store.GetProduct(r.Context(), productID)
	if err != nil {
		writeFailure(w, err)
		return
	}

	res, err := s.forecastFor(r.Context(), p, horizon)
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ForecastResponse{
		ProductID:   p.ID,
		HorizonDays: horizon,
		Forecast:    res,
	})
}

// forecastFor loads the product's history and runs the engine. Results,
// including absent ones, are memoized by product, horizon and a
// fingerprint of every input so a new sale or price change misses.
func (s *Service) forecastFor(ctx context.Context, p *model.Product, horizon int) (*model.ForecastResult, error) {
	history, err := s.store.ListSales(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("load sales for %s: %w", p.ID, err)
	}

	key := forecastKey(p, horizon, history)
	if s.forecasts != nil {
		if v, ok := s.forecasts.Get(key); ok {
			metrics.ForecastCacheHits.Inc()
			return v.(*model.ForecastResult), nil
		}
	}

	res, err := s.engine.Forecast(model.ForecastRequest{
		SellingPrice: p.SellingPrice,
		CostPrice:    p.CostPrice,
		History:      history,
		HorizonDays:  horizon,
	})
	if err != nil {
		return nil, err
	}

	switch {
	case res == nil:
		metrics.ForecastsTotal.WithLabelValues("absent", "").Inc()
		slog.Debug("forecast absent",
			"product_id", p.ID,
			"horizon_days", horizon,
			"observations", len(history),
		)
	case res.FallbackReason != "":
		metrics.ForecastsTotal.WithLabelValues("fallback", res.Method).Inc()
		slog.Warn("forecast fell back to flat rate",
			"product_id", p.ID,
			"model", s.engine.ModelName(),
			"reason", res.FallbackReason,
		)
	default:
		metrics.ForecastsTotal.WithLabelValues("model", res.Method).Inc()
	}

	if s.forecasts != nil {
		s.forecasts.SetDefault(key, res)
	}
	return res, nil
}

func forecastKey(p *model.Product, horizon int, history []model.SalesObservation) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s", p.SellingPrice.String(), p.CostPrice.String())
	for _, obs := range history {
		fmt.Fprintf(h, "|%d:%d", obs.Date.Unix(), obs.UnitsSold)
	}
	return fmt.Sprintf("%s:%d:%x", p.ID, horizon, h.Sum64())
}

// NewEngineFromConfig builds the forecast engine described by cfg.
func NewEngineFromConfig(cfg config.ForecastConfig) (*forecast.Engine, error) {
	m, err := forecast.ModelByName(cfg.Model, cfg.MAWindow)
	if err != nil {
		return nil, err
	}
	fill, err := forecast.ParseFillPolicy(cfg.FillPolicy)
	if err != nil {
		return nil, err
	}
	return forecast.NewEngine(
		forecast.WithModel(m),
		forecast.WithFillPolicy(fill),
		forecast.WithMaxHistoryDays(cfg.MaxHistoryDays),
	), nil
}
