package catalog

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/productlab/catalog-engine/internal/config"
	"github.com/productlab/catalog-engine/internal/model"
	"github.com/productlab/catalog-engine/internal/store"
)

// parseFilter reads listing filters from the query string. Unknown
// ordering fields are dropped rather than rejected.
func parseFilter(q url.Values) (model.ProductFilter, error) {
	f := model.ProductFilter{
		Category: q.Get("category"),
		Search:   strings.TrimSpace(q.Get("search")),
	}

	if raw := q.Get("customer_rating"); raw != "" {
		rating, err := strconv.Atoi(raw)
		if err != nil {
			return f, fmt.Errorf("%w: customer_rating must be an integer", errBadRequest)
		}
		f.CustomerRating = &rating
	}

	if raw := q.Get("selling_price"); raw != "" {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return f, fmt.Errorf("%w: selling_price must be a decimal number", errBadRequest)
		}
		f.SellingPrice = &price
	}

	f.Ordering = lo.Filter(splitList(q["ordering"]), func(term string, _ int) bool {
		return store.ValidOrderField(term)
	})
	return f, nil
}

// splitList flattens repeated and comma-separated query values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return lo.Uniq(out)
}

// forecastParams reports whether a listing asked for forecasts and over
// what horizon. A missing or malformed interval falls back to def.
func forecastParams(q url.Values, def int) (bool, int) {
	switch strings.ToLower(strings.TrimSpace(q.Get("with_demand_forecast"))) {
	case "true", "1", "yes":
	default:
		return false, def
	}
	horizon, err := config.ParseHorizon(q.Get("demand_forecast_interval"), def)
	if err != nil {
		return true, def
	}
	return true, horizon
}
