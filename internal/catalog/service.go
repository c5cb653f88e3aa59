// Package catalog provides the HTTP handlers for the product catalog:
// product CRUD, sales history, demand forecasts and price optimization.
//
// The forecast and pricing cores are pure; this package owns every side
// effect around them: reading history from the store, the clock, caching,
// persistence of results and websocket broadcasts.
//
// All monetary values use shopspring/decimal, never float64.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/productlab/catalog-engine/internal/forecast"
	"github.com/productlab/catalog-engine/internal/model"
	"github.com/productlab/catalog-engine/internal/pricing"
	"github.com/productlab/catalog-engine/internal/store"
)

// Service handles catalog operations.
type Service struct {
	store      store.Store
	engine     *forecast.Engine
	optimizer  *pricing.Optimizer
	wsHub      *WSHub // optional WebSocket hub for real-time broadcasts
	forecasts  *gocache.Cache
	now        func() time.Time
	horizon    int
	elasticity float64
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces time.Now for sales snapshots.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithDefaultHorizon sets the horizon used when a request names none.
func WithDefaultHorizon(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.horizon = days
		}
	}
}

// WithElasticity sets the elasticity assumed for items that carry none.
func WithElasticity(e float64) Option {
	return func(s *Service) { s.elasticity = e }
}

// WithForecastCacheTTL memoizes forecasts for ttl. Zero disables the memo.
func WithForecastCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl <= 0 {
			s.forecasts = nil
			return
		}
		s.forecasts = gocache.New(ttl, 2*ttl)
	}
}

// NewService creates a new catalog service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, engine *forecast.Engine, optimizer *pricing.Optimizer, hub *WSHub, opts ...Option) *Service {
	s := &Service{
		store:      st,
		engine:     engine,
		optimizer:  optimizer,
		wsHub:      hub,
		now:        time.Now,
		horizon:    model.DefaultHorizonDays,
		elasticity: model.DefaultElasticity,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) today() time.Time {
	return model.Day(s.now())
}

func (s *Service) broadcast(ev Event) {
	if s.wsHub == nil {
		return
	}
	ev.At = s.now().UTC()
	s.wsHub.Broadcast(ev)
}

// --- Request decoding ---

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	// Decimals validate as floats so gt/gte/lt tags apply to money fields.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// ValidationError carries per-field messages for a 400 response.
type ValidationError struct {
	Details map[string]string
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Details))
	for field, msg := range e.Details {
		fields = append(fields, field+" "+msg)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, "; ")
}

func decodeJSON(r *http.Request, dest any) error {
	defer io.Copy(io.Discard, r.Body) //nolint:errcheck

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", errBadRequest, err)
	}
	return check(dest)
}

func check(v any) error {
	if err := validate.Struct(v); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) {
			details := make(map[string]string, len(errs))
			for _, fe := range errs {
				details[fe.Field()] = validationMessage(fe)
			}
			return &ValidationError{Details: details}
		}
		return err
	}
	return nil
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lt":
		return fmt.Sprintf("must be less than %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	}
	return "is invalid"
}

// --- Responses ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeFailure maps err onto a status code and writes it.
func writeFailure(w http.ResponseWriter, err error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "validation failed",
			"details": verr.Details,
		})
		return
	}
	writeError(w, err.Error(), statusFor(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, pricing.ErrBatchTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest),
		errors.Is(err, pricing.ErrInvalidPriceBasis),
		errors.Is(err, pricing.ErrNegativeDemand),
		errors.Is(err, pricing.ErrNegativeCost),
		errors.Is(err, pricing.ErrInvalidElasticity),
		errors.Is(err, pricing.ErrNonFiniteProfit):
		return http.StatusBadRequest
	case errors.Is(err, forecast.ErrInvalidRequest),
		errors.Is(err, errNoForecast):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

var (
	errBadRequest = errors.New("bad request")
	errNoForecast = errors.New("not enough sales history to forecast")
)

// money renders a decimal with exactly two fractional digits.
func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
