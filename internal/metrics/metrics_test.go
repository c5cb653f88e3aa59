package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	var seen []string
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/api/v1/products/{productID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		seen = append(seen, routePattern(r))
	})

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products/"+id, nil))
		assert.Equal(t, http.StatusTeapot, rec.Code)
	}
	assert.Equal(t, []string{"/api/v1/products/{productID}", "/api/v1/products/{productID}"}, seen)
}

func TestRoutePattern_Unmatched(t *testing.T) {
	assert.Equal(t, "unmatched", routePattern(httptest.NewRequest(http.MethodGet, "/nowhere", nil)))
}

func TestStatusWriter_CapturesStatus(t *testing.T) {
	w := &statusWriter{ResponseWriter: httptest.NewRecorder(), status: 200}
	w.WriteHeader(http.StatusNotFound)
	assert.Equal(t, http.StatusNotFound, w.status)

	_, _, err := w.Hijack()
	assert.Error(t, err)
}
