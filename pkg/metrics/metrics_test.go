package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRepository(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRepository("create", "ok")
	m.ObserveRepository("create", "ok")
	m.ObserveRepository("get", "not_found")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.repoOps.WithLabelValues("create", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.repoOps.WithLabelValues("get", "not_found")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ordersStored))
}

func TestNewTwiceOnSameRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := New(reg)
	second := New(reg)

	second.ObserveRepository("create", "ok")
	assert.Equal(t, 1.0, testutil.ToFloat64(first.ordersStored))
}

func TestMiddlewareLabelsRouteTemplate(t *testing.T) {
	m := New(prometheus.NewRegistry())
	r := mux.NewRouter()
	r.Use(m.Middleware)
	r.HandleFunc("/orders/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}).Methods(http.MethodGet)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/abc", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/orders/{id}", "404")))
}
