// Package model defines the core domain types shared across the catalog engine.
// All monetary values use shopspring/decimal, never float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultHorizonDays is the forecast horizon used when the caller supplies none.
const DefaultHorizonDays = 30

// DefaultElasticity is the constant price elasticity of demand assumed by the
// optimizer when a request does not carry its own.
const DefaultElasticity = -1.2

// Product is a catalog row. It is the only durable owner of forecast and
// optimization outputs; the core never persists anything itself.
type Product struct {
	ID             string           `json:"product_id" db:"product_id"`
	Name           string           `json:"name" db:"name"`
	Description    string           `json:"description" db:"description"`
	CostPrice      decimal.Decimal  `json:"cost_price" db:"cost_price"`
	SellingPrice   decimal.Decimal  `json:"selling_price" db:"selling_price"`
	Category       string           `json:"category" db:"category"`
	StockAvailable int64            `json:"stock_available" db:"stock_available"`
	UnitsSold      int64            `json:"units_sold" db:"units_sold"`
	CustomerRating int              `json:"customer_rating" db:"customer_rating"` // 0..5
	DemandForecast int64            `json:"demand_forecast" db:"demand_forecast"`
	OptimizedPrice *decimal.Decimal `json:"optimized_price" db:"optimized_price"`
}

// SalesObservation is one day of sales for one product.
// (ProductID, Date) is a uniqueness key.
type SalesObservation struct {
	ProductID    string          `json:"product_id" db:"product_id"`
	Date         time.Time       `json:"date" db:"date"` // calendar day, UTC midnight
	UnitsSold    int64           `json:"units_sold" db:"units_sold"`
	SellingPrice decimal.Decimal `json:"selling_price" db:"selling_price"`
}

// ForecastRequest carries everything the forecast engine needs for one product.
type ForecastRequest struct {
	SellingPrice decimal.Decimal
	CostPrice    decimal.Decimal
	History      []SalesObservation
	HorizonDays  int
}

// ForecastResult is the projected demand over a horizon. A nil *ForecastResult
// means no forecast is available (history shorter than the horizon).
type ForecastResult struct {
	UnitsForecast   int64           `json:"units_forecast"`
	RevenueForecast decimal.Decimal `json:"revenue_forecast"`
	ProfitForecast  decimal.Decimal `json:"profit_forecast"`
	HorizonDays     int             `json:"horizon_days"`
	Method          string          `json:"method"`                    // model name or "flat_rate"
	FallbackReason  string          `json:"fallback_reason,omitempty"` // set when the flat-rate fallback replaced a model fit
}

// OptimizationRequest asks for the profit-maximizing price of one item.
// ID is opaque to the optimizer and echoed back unchanged.
type OptimizationRequest struct {
	ID                    string
	CurrentPrice          decimal.Decimal
	TotalForecastedDemand decimal.Decimal
	CostPrice             decimal.Decimal
	Elasticity            float64
}

// OptimizationResult is the best price found on the candidate grid.
type OptimizationResult struct {
	ID           string          `json:"id"`
	OptimalPrice decimal.Decimal `json:"optimal_price"`
	MaxProfit    decimal.Decimal `json:"max_profit"`
}

// ProductFilter narrows a product listing. Zero values mean "no filter".
type ProductFilter struct {
	Category       string
	CustomerRating *int
	SellingPrice   *decimal.Decimal
	Search         string
	Ordering       []string // field names, "-" prefix for descending
	IDs            []string
}

// Day truncates t to its calendar day in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
