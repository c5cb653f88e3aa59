package forecast

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrFitFailed is returned by a Model that cannot produce a forecaster
	// for the given series. The engine recovers from it with the flat-rate
	// projection.
	ErrFitFailed = errors.New("forecast: model fit failed")

	// ErrUnknownModel is returned by ModelByName.
	ErrUnknownModel = errors.New("forecast: unknown model")
)

// Model fits a daily series and returns something that can project it.
type Model interface {
	Name() string
	Fit(series []float64) (Forecaster, error)
}

// Forecaster projects a fitted series forward one value per day.
type Forecaster interface {
	Forecast(steps int) []float64
}

// Model names accepted by ModelByName.
const (
	ModelHolt          = "holt"
	ModelMovingAverage = "moving_average"
	ModelLinear        = "linear"
)

// ModelByName builds a Model from its config name. window only applies to
// the moving average.
func ModelByName(name string, window int) (Model, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ModelHolt:
		return HoltLinear{}, nil
	case ModelMovingAverage:
		return MovingAverage{Window: window}, nil
	case ModelLinear:
		return LinearTrend{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
}

func checkSeries(series []float64, minLen int) error {
	if len(series) < minLen {
		return fmt.Errorf("%w: need at least %d points, got %d", ErrFitFailed, minLen, len(series))
	}
	for i, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value at index %d", ErrFitFailed, i)
		}
	}
	return nil
}

// --- Holt linear (additive trend, no seasonality) ---

// HoltLinear is additive-trend exponential smoothing:
//
//	l_t = α·y_t + (1−α)·(l_{t−1} + b_{t−1})
//	b_t = β·(l_t − l_{t−1}) + (1−β)·b_{t−1}
//	ŷ_{t+h} = l_t + h·b_t
//
// Zero Alpha or Beta are estimated by minimizing the one-step-ahead squared
// error over a coarse grid followed by a finer pass around the best pair.
// The search is exhaustive and deterministic; ties keep the first pair found.
type HoltLinear struct {
	Alpha float64
	Beta  float64
}

func (HoltLinear) Name() string { return ModelHolt }

func (h HoltLinear) Fit(series []float64) (Forecaster, error) {
	if err := checkSeries(series, 2); err != nil {
		return nil, err
	}
	if h.Alpha < 0 || h.Alpha > 1 || h.Beta < 0 || h.Beta > 1 {
		return nil, fmt.Errorf("%w: smoothing parameters must lie in [0, 1]", ErrFitFailed)
	}

	alphas := candidates(h.Alpha, 0.05, 1, 0.05)
	betas := candidates(h.Beta, 0.05, 1, 0.05)
	alpha, beta, sse := bestPair(series, alphas, betas)

	// Refine around the coarse optimum for the estimated parameters.
	if h.Alpha == 0 || h.Beta == 0 {
		alphas = candidates(h.Alpha, math.Max(0.01, alpha-0.05), math.Min(1, alpha+0.05), 0.01)
		betas = candidates(h.Beta, math.Max(0.01, beta-0.05), math.Min(1, beta+0.05), 0.01)
		if a, b, s := bestPair(series, alphas, betas); s < sse {
			alpha, beta, sse = a, b, s
		}
	}
	if math.IsNaN(sse) || math.IsInf(sse, 0) {
		return nil, fmt.Errorf("%w: holt smoothing did not converge", ErrFitFailed)
	}

	level, trend, _ := holtRun(series, alpha, beta)
	if math.IsNaN(level) || math.IsInf(level, 0) || math.IsNaN(trend) || math.IsInf(trend, 0) {
		return nil, fmt.Errorf("%w: holt state is not finite", ErrFitFailed)
	}
	return holtForecaster{level: level, trend: trend}, nil
}

// candidates returns {fixed} when fixed is set, otherwise from..to by step.
func candidates(fixed, from, to, step float64) []float64 {
	if fixed > 0 {
		return []float64{fixed}
	}
	var out []float64
	n := int(math.Round((to-from)/step)) + 1
	for i := 0; i < n; i++ {
		out = append(out, math.Round((from+float64(i)*step)*1e6)/1e6)
	}
	return out
}

func bestPair(series, alphas, betas []float64) (float64, float64, float64) {
	bestA, bestB, bestSSE := alphas[0], betas[0], math.Inf(1)
	for _, a := range alphas {
		for _, b := range betas {
			_, _, sse := holtRun(series, a, b)
			if sse < bestSSE {
				bestA, bestB, bestSSE = a, b, sse
			}
		}
	}
	return bestA, bestB, bestSSE
}

// holtRun smooths the whole series and returns the final state and the sum
// of squared one-step-ahead errors. The state starts at l_0 = y_0,
// b_0 = y_1 − y_0.
func holtRun(series []float64, alpha, beta float64) (level, trend, sse float64) {
	level = series[0]
	trend = series[1] - series[0]
	for _, y := range series[1:] {
		e := y - (level + trend)
		sse += e * e
		prev := level
		level = alpha*y + (1-alpha)*(level+trend)
		trend = beta*(level-prev) + (1-beta)*trend
	}
	return level, trend, sse
}

type holtForecaster struct {
	level, trend float64
}

func (f holtForecaster) Forecast(steps int) []float64 {
	out := make([]float64, steps)
	for h := range out {
		out[h] = f.level + float64(h+1)*f.trend
	}
	return out
}

// --- Moving average ---

// MovingAverage projects the mean of the last Window days flat.
type MovingAverage struct {
	Window int
}

func (MovingAverage) Name() string { return ModelMovingAverage }

func (m MovingAverage) Fit(series []float64) (Forecaster, error) {
	if err := checkSeries(series, 1); err != nil {
		return nil, err
	}
	w := m.Window
	if w <= 0 || w > len(series) {
		w = len(series)
	}
	var sum float64
	for _, v := range series[len(series)-w:] {
		sum += v
	}
	return flatForecaster(sum / float64(w)), nil
}

type flatForecaster float64

func (f flatForecaster) Forecast(steps int) []float64 {
	out := make([]float64, steps)
	for i := range out {
		out[i] = float64(f)
	}
	return out
}

// --- Linear regression ---

// LinearTrend fits y = a + b·t by ordinary least squares over day indices.
type LinearTrend struct{}

func (LinearTrend) Name() string { return ModelLinear }

func (LinearTrend) Fit(series []float64) (Forecaster, error) {
	if err := checkSeries(series, 2); err != nil {
		return nil, err
	}
	n := float64(len(series))
	var sumT, sumY, sumTT, sumTY float64
	for i, y := range series {
		t := float64(i)
		sumT += t
		sumY += y
		sumTT += t * t
		sumTY += t * y
	}
	den := n*sumTT - sumT*sumT
	if den == 0 {
		return nil, fmt.Errorf("%w: singular design matrix", ErrFitFailed)
	}
	slope := (n*sumTY - sumT*sumY) / den
	intercept := (sumY - slope*sumT) / n
	return linearForecaster{intercept: intercept, slope: slope, origin: len(series)}, nil
}

type linearForecaster struct {
	intercept, slope float64
	origin           int
}

func (f linearForecaster) Forecast(steps int) []float64 {
	out := make([]float64, steps)
	for i := range out {
		out[i] = f.intercept + f.slope*float64(f.origin+i)
	}
	return out
}
