// Package pricing searches a bounded price grid for the profit-maximizing
// price of a product under a constant-elasticity demand model:
//
//	demand(p) = D × (p / p0) ^ e
//	profit(p) = (p − cost) × demand(p)
//
// where p0 is the current price, D the forecasted demand at p0 and e the
// price elasticity of demand. The grid spans [0.8·p0, 1.2·p0] inclusive and
// is walked in ascending order; the first maximum wins.
//
// Money crosses the API as shopspring/decimal. The grid search itself runs
// in float64 and results are converted back to decimal.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/productlab/catalog-engine/internal/model"
)

var (
	// ErrInvalidPriceBasis is returned when current_price <= 0.
	ErrInvalidPriceBasis = errors.New("pricing: current_price must be positive")

	// ErrNegativeDemand is returned when total_forecasted_demand < 0.
	ErrNegativeDemand = errors.New("pricing: total_forecasted_demand must not be negative")

	// ErrNegativeCost is returned when cost_price < 0.
	ErrNegativeCost = errors.New("pricing: cost_price must not be negative")

	// ErrInvalidElasticity is returned for NaN or infinite elasticity.
	ErrInvalidElasticity = errors.New("pricing: elasticity must be a finite number")

	// ErrInvalidGrid is returned by NewOptimizer for an unusable grid.
	ErrInvalidGrid = errors.New("pricing: grid needs at least 2 points and lower < upper")

	// ErrNonFiniteProfit is returned when the demand model overflows, e.g. for
	// an extreme elasticity.
	ErrNonFiniteProfit = errors.New("pricing: profit is not a finite number")

	// ErrBatchTooLarge is returned when a batch exceeds the configured maximum.
	ErrBatchTooLarge = errors.New("pricing: batch exceeds maximum size")
)

const (
	// DefaultGridSize is the number of candidate prices evaluated.
	DefaultGridSize = 50

	// DefaultLowerFactor and DefaultUpperFactor bound the grid relative to
	// the current price.
	DefaultLowerFactor = 0.8
	DefaultUpperFactor = 1.2

	// DefaultWorkers caps concurrent items in OptimizeBatch.
	DefaultWorkers = 8
)

// Optimizer holds the grid configuration. It is immutable after
// construction and safe for concurrent use.
type Optimizer struct {
	gridSize int
	lower    float64
	upper    float64
	workers  int
	maxBatch int
}

// Option customizes an Optimizer.
type Option func(*Optimizer)

// WithGridSize sets the number of candidate prices.
func WithGridSize(n int) Option {
	return func(o *Optimizer) { o.gridSize = n }
}

// WithBounds sets the grid bounds as multiples of the current price.
func WithBounds(lower, upper float64) Option {
	return func(o *Optimizer) {
		o.lower = lower
		o.upper = upper
	}
}

// WithWorkers caps the number of items optimized concurrently by OptimizeBatch.
func WithWorkers(n int) Option {
	return func(o *Optimizer) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithMaxBatch rejects batches larger than n. Zero disables the limit.
func WithMaxBatch(n int) Option {
	return func(o *Optimizer) { o.maxBatch = n }
}

// NewOptimizer creates an optimizer with a 50-point grid over
// [0.8, 1.2] × current price unless overridden.
func NewOptimizer(opts ...Option) (*Optimizer, error) {
	o := &Optimizer{
		gridSize: DefaultGridSize,
		lower:    DefaultLowerFactor,
		upper:    DefaultUpperFactor,
		workers:  DefaultWorkers,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.gridSize < 2 || !(o.lower > 0) || !(o.lower < o.upper) || math.IsInf(o.upper, 0) {
		return nil, ErrInvalidGrid
	}
	return o, nil
}

// GridSize returns the number of candidate prices.
func (o *Optimizer) GridSize() int {
	return o.gridSize
}

// Grid returns the ascending candidate prices for currentPrice, matching
// numpy.linspace: lo + i·step with the last point pinned to hi.
func (o *Optimizer) Grid(currentPrice float64) []float64 {
	lo := currentPrice * o.lower
	hi := currentPrice * o.upper
	step := (hi - lo) / float64(o.gridSize-1)

	grid := make([]float64, o.gridSize)
	for i := range grid {
		grid[i] = lo + float64(i)*step
	}
	grid[len(grid)-1] = hi
	return grid
}

// Demand evaluates the constant-elasticity model at price p.
func Demand(p, currentPrice, baseDemand, elasticity float64) float64 {
	return baseDemand * math.Pow(p/currentPrice, elasticity)
}

// Profit evaluates (p − cost) × demand(p).
func Profit(p, currentPrice, baseDemand, cost, elasticity float64) float64 {
	return (p - cost) * Demand(p, currentPrice, baseDemand, elasticity)
}

// Validate checks the caller contract for a single request.
func Validate(req model.OptimizationRequest) error {
	if !req.CurrentPrice.IsPositive() {
		return fmt.Errorf("%w: id=%s current_price=%s", ErrInvalidPriceBasis, req.ID, req.CurrentPrice)
	}
	if req.TotalForecastedDemand.IsNegative() {
		return fmt.Errorf("%w: id=%s total_forecasted_demand=%s", ErrNegativeDemand, req.ID, req.TotalForecastedDemand)
	}
	if req.CostPrice.IsNegative() {
		return fmt.Errorf("%w: id=%s cost_price=%s", ErrNegativeCost, req.ID, req.CostPrice)
	}
	if math.IsNaN(req.Elasticity) || math.IsInf(req.Elasticity, 0) {
		return fmt.Errorf("%w: id=%s elasticity=%v", ErrInvalidElasticity, req.ID, req.Elasticity)
	}
	return nil
}

// Optimize returns the grid price with the highest profit.
//
// Elasticity is a modeling input and is not required to be negative. With
// e >= -1 and prices above cost, profit is non-decreasing in price and the
// result sits on the upper bound of the grid; with zero demand every
// candidate ties at zero and the lower bound wins.
func (o *Optimizer) Optimize(req model.OptimizationRequest) (model.OptimizationResult, error) {
	if err := Validate(req); err != nil {
		return model.OptimizationResult{}, err
	}

	p0 := req.CurrentPrice.InexactFloat64()
	demand := req.TotalForecastedDemand.InexactFloat64()
	cost := req.CostPrice.InexactFloat64()

	bestPrice := math.NaN()
	bestProfit := math.Inf(-1)
	for _, p := range o.Grid(p0) {
		profit := Profit(p, p0, demand, cost, req.Elasticity)
		// Strict comparison keeps the first maximum in ascending order.
		if profit > bestProfit {
			bestPrice = p
			bestProfit = profit
		}
	}
	if math.IsNaN(bestPrice) || math.IsInf(bestProfit, 0) {
		return model.OptimizationResult{}, fmt.Errorf("%w: id=%s elasticity=%v", ErrNonFiniteProfit, req.ID, req.Elasticity)
	}

	return model.OptimizationResult{
		ID:           req.ID,
		OptimalPrice: decimal.NewFromFloat(bestPrice),
		MaxProfit:    decimal.NewFromFloat(bestProfit),
	}, nil
}

// OptimizeBatch solves every request independently and returns results in
// input order. Items run concurrently up to the worker limit. The batch is
// all-or-nothing: the first invalid item fails the whole call with its index.
func (o *Optimizer) OptimizeBatch(ctx context.Context, reqs []model.OptimizationRequest) ([]model.OptimizationResult, error) {
	if o.maxBatch > 0 && len(reqs) > o.maxBatch {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(reqs), o.maxBatch)
	}

	// Validate up front so the reported error is the lowest failing index.
	for i, req := range reqs {
		if err := Validate(req); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
	}

	results := make([]model.OptimizationResult, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i := range reqs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := o.Optimize(reqs[i])
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
