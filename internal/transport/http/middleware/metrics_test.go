package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-email-verification/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_ObservesRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	r := chi.NewRouter()
	r.Use(Metrics(m))
	r.Get("/v1/health-check/{action}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health-check/ping", nil))
	assert.Equal(t, http.StatusTeapot, rr.Code)

	count, err := testutil.GatherAndCount(reg, "email_verification_api_latency_seconds")
	assert.NoError(t, err)
	assert.Equal(t, 1, count)

	mfs, err := reg.Gather()
	assert.NoError(t, err)
	var labels map[string]string
	for _, mf := range mfs {
		if mf.GetName() != "email_verification_api_latency_seconds" {
			continue
		}
		labels = map[string]string{}
		for _, lp := range mf.GetMetric()[0].GetLabel() {
			labels[lp.GetName()] = lp.GetValue()
		}
	}
	assert.Equal(t, "/v1/health-check/{action}", labels["path"])
	assert.Equal(t, "418", labels["status"])
	assert.Equal(t, "GET", labels["method"])
}

func TestMetrics_NilSafe(t *testing.T) {
	h := Metrics(nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}
