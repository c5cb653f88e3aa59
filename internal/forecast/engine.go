// Package forecast turns a product's daily sales history into a unit-demand,
// revenue and profit projection over a horizon.
//
// The engine is a pure function of its inputs: it reads no clock, does no
// I/O and keeps no state between calls. Histories shorter than the horizon
// produce no forecast (a nil result, not an error). Model failures are
// absorbed by a flat-rate projection of the last observed day, and the
// result says so in FallbackReason.
package forecast

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/productlab/catalog-engine/internal/model"
)

// ErrInvalidRequest wraps every caller-contract violation.
var ErrInvalidRequest = errors.New("forecast: invalid request")

// MethodFlatRate is reported when the flat-rate projection produced the result.
const MethodFlatRate = "flat_rate"

// Fallback reasons.
const (
	ReasonSinglePoint = "fewer than 2 daily points"
	ReasonNonFinite   = "model produced a non-finite forecast"
)

// Engine projects demand with a pluggable Model. It is immutable after
// construction and safe for concurrent use.
type Engine struct {
	model      Model
	fill       FillPolicy
	maxHistory int
}

// Option customizes an Engine.
type Option func(*Engine)

// WithModel replaces the default Holt linear model.
func WithModel(m Model) Option {
	return func(e *Engine) {
		if m != nil {
			e.model = m
		}
	}
}

// WithFillPolicy sets how reindexing fills days without an observation.
func WithFillPolicy(p FillPolicy) Option {
	return func(e *Engine) { e.fill = p }
}

// WithMaxHistoryDays keeps only the most recent n calendar days of history
// before fitting. Zero keeps everything.
func WithMaxHistoryDays(n int) Option {
	return func(e *Engine) { e.maxHistory = n }
}

// NewEngine creates an engine using Holt linear smoothing with forward fill.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		model: HoltLinear{},
		fill:  FillForward,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ModelName reports the configured model.
func (e *Engine) ModelName() string {
	return e.model.Name()
}

// Forecast projects req.HorizonDays days of demand.
//
// It returns (nil, nil) when the de-duplicated history holds fewer
// observations than the horizon. Per-day projected units are clamped at
// zero before summing, so a declining trend never yields negative demand,
// and the sum is floored to whole units.
func (e *Engine) Forecast(req model.ForecastRequest) (*model.ForecastResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	history := Normalize(req.History)
	if len(history) < req.HorizonDays {
		return nil, nil
	}
	history = Trim(history, e.maxHistory)

	series := Reindex(history, e.fill)
	last := float64(history[len(history)-1].UnitsSold)

	if len(series) < 2 {
		return e.result(req, flatRate(last, req.HorizonDays), MethodFlatRate, ReasonSinglePoint), nil
	}

	fitted, err := e.model.Fit(series)
	if err != nil {
		return e.result(req, flatRate(last, req.HorizonDays), MethodFlatRate, err.Error()), nil
	}

	var total float64
	for _, v := range fitted.Forecast(req.HorizonDays) {
		if v > 0 {
			total += v
		}
	}
	if math.IsNaN(total) || math.IsInf(total, 0) || total >= math.MaxInt64 {
		return e.result(req, flatRate(last, req.HorizonDays), MethodFlatRate, ReasonNonFinite), nil
	}

	return e.result(req, floorUnits(total), e.model.Name(), ""), nil
}

// floorUnits floors a projected total to whole units. Totals within a
// relative 1e-9 below an integer are treated as that integer so smoothing
// round-off on a flat series does not lose a unit.
func floorUnits(total float64) int64 {
	return int64(math.Floor(total + 1e-9*math.Max(1, total)))
}

func (e *Engine) result(req model.ForecastRequest, units int64, method, reason string) *model.ForecastResult {
	if units < 0 {
		units = 0
	}
	u := decimal.NewFromInt(units)
	return &model.ForecastResult{
		UnitsForecast:   units,
		RevenueForecast: u.Mul(req.SellingPrice),
		ProfitForecast:  u.Mul(req.SellingPrice.Sub(req.CostPrice)),
		HorizonDays:     req.HorizonDays,
		Method:          method,
		FallbackReason:  reason,
	}
}

// flatRate projects the last observed daily rate over the horizon.
func flatRate(last float64, horizon int) int64 {
	total := math.Floor(last * float64(horizon))
	if total <= 0 || math.IsNaN(total) {
		return 0
	}
	if total >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(total)
}

func validate(req model.ForecastRequest) error {
	if req.HorizonDays < 1 {
		return fmt.Errorf("%w: horizon_days must be at least 1, got %d", ErrInvalidRequest, req.HorizonDays)
	}
	if !req.SellingPrice.IsPositive() {
		return fmt.Errorf("%w: selling_price must be positive, got %s", ErrInvalidRequest, req.SellingPrice)
	}
	if req.CostPrice.IsNegative() {
		return fmt.Errorf("%w: cost_price must not be negative, got %s", ErrInvalidRequest, req.CostPrice)
	}
	for i, obs := range req.History {
		if obs.UnitsSold < 0 {
			return fmt.Errorf("%w: history[%d].units_sold must not be negative, got %d", ErrInvalidRequest, i, obs.UnitsSold)
		}
	}
	return nil
}
