package forecast

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/productlab/catalog-engine/internal/model"
)

var start = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// daily builds consecutive daily observations starting at start.
func daily(units ...int64) []model.SalesObservation {
	out := make([]model.SalesObservation, len(units))
	for i, u := range units {
		out[i] = model.SalesObservation{
			ProductID:    "p1",
			Date:         start.AddDate(0, 0, i),
			UnitsSold:    u,
			SellingPrice: d(10),
		}
	}
	return out
}

func repeat(v int64, n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func request(history []model.SalesObservation, horizon int) model.ForecastRequest {
	return model.ForecastRequest{
		SellingPrice: d(25.5),
		CostPrice:    d(10.25),
		History:      history,
		HorizonDays:  horizon,
	}
}

func assertMoneyIdentities(t *testing.T, req model.ForecastRequest, res *model.ForecastResult) {
	t.Helper()
	units := decimal.NewFromInt(res.UnitsForecast)
	assert.True(t, res.RevenueForecast.Equal(units.Mul(req.SellingPrice)),
		"revenue %s != units × price", res.RevenueForecast)
	assert.True(t, res.ProfitForecast.Equal(units.Mul(req.SellingPrice.Sub(req.CostPrice))),
		"profit %s != units × margin", res.ProfitForecast)
}

func TestForecast_InsufficientHistoryIsAbsent(t *testing.T) {
	e := NewEngine()
	for n := 0; n < 30; n++ {
		res, err := e.Forecast(request(daily(repeat(4, n)...), 30))
		require.NoError(t, err)
		assert.Nil(t, res, "history of %d days must not forecast 30", n)
	}
}

func TestForecast_DuplicateDaysCountOnce(t *testing.T) {
	history := daily(repeat(3, 5)...)
	// Five copies of the same day are one observation.
	for i := range history {
		history[i].Date = start
	}
	res, err := NewEngine().Forecast(request(history, 2))
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestForecast_ConstantHistory(t *testing.T) {
	for _, name := range []string{ModelHolt, ModelMovingAverage, ModelLinear} {
		t.Run(name, func(t *testing.T) {
			m, err := ModelByName(name, 7)
			require.NoError(t, err)
			e := NewEngine(WithModel(m))

			req := request(daily(repeat(7, 30)...), 30)
			res, err := e.Forecast(req)
			require.NoError(t, err)
			require.NotNil(t, res)

			assert.Equal(t, int64(7*30), res.UnitsForecast)
			assert.Equal(t, name, res.Method)
			assert.Empty(t, res.FallbackReason)
			assertMoneyIdentities(t, req, res)
		})
	}
}

func TestForecast_SingleDayUsesFlatRate(t *testing.T) {
	req := request(daily(12), 1)
	res, err := NewEngine().Forecast(req)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, int64(12), res.UnitsForecast)
	assert.Equal(t, MethodFlatRate, res.Method)
	assert.Equal(t, ReasonSinglePoint, res.FallbackReason)
	assertMoneyIdentities(t, req, res)
}

func TestForecast_LinearGrowthFollowsTrend(t *testing.T) {
	units := make([]int64, 40)
	for i := range units {
		units[i] = int64(10 + 2*i)
	}
	req := request(daily(units...), 10)
	res, err := NewEngine().Forecast(req)
	require.NoError(t, err)
	require.NotNil(t, res)

	// A perfect line is reproduced exactly: days 40..49 → 90..108.
	var want int64
	for i := 40; i < 50; i++ {
		want += int64(10 + 2*i)
	}
	assert.Equal(t, want, res.UnitsForecast)
	assertMoneyIdentities(t, req, res)
}

func TestForecast_DecliningHistoryClampsAtZero(t *testing.T) {
	units := make([]int64, 30)
	for i := range units {
		units[i] = int64(300 - 10*i) // 300 → 10
	}
	for _, name := range []string{ModelHolt, ModelLinear} {
		t.Run(name, func(t *testing.T) {
			m, err := ModelByName(name, 0)
			require.NoError(t, err)

			req := request(daily(units...), 30)
			res, err := NewEngine(WithModel(m)).Forecast(req)
			require.NoError(t, err)
			require.NotNil(t, res)

			assert.GreaterOrEqual(t, res.UnitsForecast, int64(0))
			// Only day 1 (value 0) and below remain, all clamped.
			assert.Equal(t, int64(0), res.UnitsForecast)
			assert.True(t, res.RevenueForecast.IsZero())
			assert.True(t, res.ProfitForecast.IsZero())
		})
	}
}

func TestForecast_NeverNegative(t *testing.T) {
	e := NewEngine()
	histories := [][]int64{
		{100, 0, 100, 0, 100, 0},
		{0, 0, 0, 0, 0, 0},
		{1000, 1, 1, 1, 1, 1},
		{5, 4, 3, 2, 1, 0},
	}
	for i, h := range histories {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			res, err := e.Forecast(request(daily(h...), len(h)))
			require.NoError(t, err)
			require.NotNil(t, res)
			assert.GreaterOrEqual(t, res.UnitsForecast, int64(0))
		})
	}
}

func TestForecast_UnsortedInputIsSorted(t *testing.T) {
	ordered := daily(1, 2, 3, 4, 5, 6, 7, 8)
	shuffled := []model.SalesObservation{
		ordered[5], ordered[0], ordered[7], ordered[2], ordered[1], ordered[6], ordered[4], ordered[3],
	}
	e := NewEngine()

	want, err := e.Forecast(request(ordered, 4))
	require.NoError(t, err)
	got, err := e.Forecast(request(shuffled, 4))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestForecast_ModelFailureFallsBack(t *testing.T) {
	req := request(daily(3, 5, 9), 3)
	res, err := NewEngine(WithModel(failingModel{})).Forecast(req)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, int64(9*3), res.UnitsForecast)
	assert.Equal(t, MethodFlatRate, res.Method)
	assert.Contains(t, res.FallbackReason, "model fit failed")
	assertMoneyIdentities(t, req, res)
}

func TestForecast_NonFiniteForecastFallsBack(t *testing.T) {
	req := request(daily(3, 5, 9), 3)
	res, err := NewEngine(WithModel(constModel(math.Inf(1)))).Forecast(req)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, int64(27), res.UnitsForecast)
	assert.Equal(t, ReasonNonFinite, res.FallbackReason)
}

func TestForecast_FlooredSum(t *testing.T) {
	req := request(daily(1, 1, 1), 3)
	res, err := NewEngine(WithModel(constModel(1.7))).Forecast(req)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, int64(5), res.UnitsForecast) // floor(5.1)
}

func TestForecast_GapsAreFilled(t *testing.T) {
	history := []model.SalesObservation{
		{Date: start, UnitsSold: 4},
		{Date: start.AddDate(0, 0, 3), UnitsSold: 4},
		{Date: start.AddDate(0, 0, 5), UnitsSold: 4},
	}
	for _, p := range []FillPolicy{FillForward, FillLinear} {
		res, err := NewEngine(WithFillPolicy(p)).Forecast(request(history, 3))
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, int64(12), res.UnitsForecast, "policy %s", p)
	}
}

func TestForecast_MaxHistoryDays(t *testing.T) {
	units := append(repeat(100, 20), repeat(2, 10)...)
	req := request(daily(units...), 5)

	res, err := NewEngine(WithMaxHistoryDays(10)).Forecast(req)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, int64(10), res.UnitsForecast)
}

func TestForecast_Validation(t *testing.T) {
	e := NewEngine()
	tests := []struct {
		name string
		req  model.ForecastRequest
	}{
		{"zero horizon", model.ForecastRequest{SellingPrice: d(1), HorizonDays: 0}},
		{"zero price", model.ForecastRequest{SellingPrice: d(0), HorizonDays: 1}},
		{"negative cost", model.ForecastRequest{SellingPrice: d(1), CostPrice: d(-1), HorizonDays: 1}},
		{"negative units", model.ForecastRequest{SellingPrice: d(1), HorizonDays: 1, History: daily(-3)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Forecast(tt.req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.Nil(t, res)
		})
	}
}

func TestForecast_DoesNotMutateInput(t *testing.T) {
	history := daily(5, 1, 3)
	history[0].Date = start.Add(13 * time.Hour)
	before := append([]model.SalesObservation(nil), history...)

	_, err := NewEngine().Forecast(request(history, 2))
	require.NoError(t, err)
	assert.Equal(t, before, history)
}

type failingModel struct{}

func (failingModel) Name() string { return "failing" }

func (failingModel) Fit([]float64) (Forecaster, error) {
	return nil, fmt.Errorf("%w: did not converge", ErrFitFailed)
}

type constModel float64

func (constModel) Name() string { return "const" }

func (c constModel) Fit([]float64) (Forecaster, error) {
	return flatForecaster(c), nil
}
