package forecast

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/productlab/catalog-engine/internal/model"
)

// FillPolicy decides the value of a calendar day with no observation once a
// history is reindexed onto a daily frequency.
type FillPolicy string

const (
	// FillForward repeats the last observed value. A product with no sales
	// snapshot on a day is assumed to have kept selling at its last rate.
	FillForward FillPolicy = "forward"

	// FillZero treats a missing day as a day with no sales.
	FillZero FillPolicy = "zero"

	// FillLinear interpolates linearly between the surrounding observations.
	FillLinear FillPolicy = "linear"
)

// ParseFillPolicy maps a config string to a FillPolicy. Empty means forward.
func ParseFillPolicy(s string) (FillPolicy, error) {
	switch p := FillPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return FillForward, nil
	case FillForward, FillZero, FillLinear:
		return p, nil
	default:
		return "", fmt.Errorf("forecast: unknown fill policy %q", s)
	}
}

// Normalize returns the history keyed by calendar day and sorted ascending.
// When two observations share a day the later one in input order wins,
// matching an upsert of the day's snapshot.
func Normalize(history []model.SalesObservation) []model.SalesObservation {
	byDay := make(map[time.Time]model.SalesObservation, len(history))
	for _, obs := range history {
		obs.Date = model.Day(obs.Date)
		byDay[obs.Date] = obs
	}

	out := make([]model.SalesObservation, 0, len(byDay))
	for _, obs := range byDay {
		out = append(out, obs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// Trim keeps the observations that fall within the last maxDays calendar
// days of a normalized history. maxDays <= 0 keeps everything.
func Trim(sorted []model.SalesObservation, maxDays int) []model.SalesObservation {
	if maxDays <= 0 || len(sorted) == 0 {
		return sorted
	}
	cutoff := sorted[len(sorted)-1].Date.AddDate(0, 0, -(maxDays - 1))
	i := sort.Search(len(sorted), func(i int) bool { return !sorted[i].Date.Before(cutoff) })
	return sorted[i:]
}

// Reindex spreads a normalized history over every calendar day from its
// first to its last date and fills the gaps according to policy.
func Reindex(sorted []model.SalesObservation, policy FillPolicy) []float64 {
	if len(sorted) == 0 {
		return nil
	}

	first := sorted[0].Date
	last := sorted[len(sorted)-1].Date
	days := daysBetween(first, last) + 1

	series := make([]float64, days)
	known := make([]bool, days)
	for _, obs := range sorted {
		i := daysBetween(first, obs.Date)
		series[i] = float64(obs.UnitsSold)
		known[i] = true
	}

	switch policy {
	case FillZero:
		// Gaps are already zero.
	case FillLinear:
		prev := 0
		for i := 1; i < days; i++ {
			if !known[i] {
				continue
			}
			if gap := i - prev; gap > 1 {
				slope := (series[i] - series[prev]) / float64(gap)
				for k := prev + 1; k < i; k++ {
					series[k] = series[prev] + slope*float64(k-prev)
				}
			}
			prev = i
		}
	default:
		for i := 1; i < days; i++ {
			if !known[i] {
				series[i] = series[i-1]
			}
		}
	}
	return series
}

// daysBetween counts calendar days from a to b. Both must be UTC midnights.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Round(time.Hour).Hours() / 24)
}
