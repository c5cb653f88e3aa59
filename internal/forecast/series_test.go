package forecast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/productlab/catalog-engine/internal/model"
)

func gappy() []model.SalesObservation {
	return []model.SalesObservation{
		{Date: start, UnitsSold: 2},
		{Date: start.AddDate(0, 0, 3), UnitsSold: 8},
		{Date: start.AddDate(0, 0, 4), UnitsSold: 5},
	}
}

func TestReindex_Policies(t *testing.T) {
	tests := []struct {
		policy FillPolicy
		want   []float64
	}{
		{FillForward, []float64{2, 2, 2, 8, 5}},
		{FillZero, []float64{2, 0, 0, 8, 5}},
		{FillLinear, []float64{2, 4, 6, 8, 5}},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			assert.Equal(t, tt.want, Reindex(gappy(), tt.policy))
		})
	}
}

func TestReindex_Empty(t *testing.T) {
	assert.Nil(t, Reindex(nil, FillForward))
}

func TestNormalize_LastWinsAndSorted(t *testing.T) {
	history := []model.SalesObservation{
		{Date: start.AddDate(0, 0, 2), UnitsSold: 1},
		{Date: start.Add(9 * time.Hour), UnitsSold: 3},
		{Date: start, UnitsSold: 4},
	}
	got := Normalize(history)
	require.Len(t, got, 2)
	assert.Equal(t, start, got[0].Date)
	assert.Equal(t, int64(4), got[0].UnitsSold)
	assert.Equal(t, start.AddDate(0, 0, 2), got[1].Date)
}

func TestTrim(t *testing.T) {
	h := Normalize(gappy())
	assert.Len(t, Trim(h, 0), 3)
	assert.Len(t, Trim(h, 2), 2)
	assert.Len(t, Trim(h, 1), 1)
	assert.Len(t, Trim(h, 5), 3)
}

func TestParseFillPolicy(t *testing.T) {
	p, err := ParseFillPolicy("")
	require.NoError(t, err)
	assert.Equal(t, FillForward, p)

	p, err = ParseFillPolicy(" Linear ")
	require.NoError(t, err)
	assert.Equal(t, FillLinear, p)

	_, err = ParseFillPolicy("spline")
	assert.Error(t, err)
}

func TestModelByName(t *testing.T) {
	m, err := ModelByName("", 0)
	require.NoError(t, err)
	assert.Equal(t, ModelHolt, m.Name())

	m, err = ModelByName("moving_average", 3)
	require.NoError(t, err)
	assert.Equal(t, MovingAverage{Window: 3}, m)

	_, err = ModelByName("arima", 0)
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestHoltLinear_FixedParameters(t *testing.T) {
	f, err := HoltLinear{Alpha: 1, Beta: 1}.Fit([]float64{1, 3, 4})
	require.NoError(t, err)
	// α = β = 1 tracks the last value and the last difference exactly.
	assert.InDeltaSlice(t, []float64{5, 6}, f.Forecast(2), 1e-12)
}

func TestHoltLinear_RejectsShortOrInvalid(t *testing.T) {
	_, err := HoltLinear{}.Fit([]float64{1})
	assert.ErrorIs(t, err, ErrFitFailed)

	_, err = HoltLinear{Alpha: 1.5}.Fit([]float64{1, 2})
	assert.ErrorIs(t, err, ErrFitFailed)
}

func TestMovingAverage_Window(t *testing.T) {
	f, err := MovingAverage{Window: 2}.Fit([]float64{10, 2, 4})
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 3}, f.Forecast(2))
}

func TestLinearTrend_Extrapolates(t *testing.T) {
	f, err := LinearTrend{}.Fit([]float64{1, 3, 5})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{7, 9}, f.Forecast(2), 1e-12)
}
