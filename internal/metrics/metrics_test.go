package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lmi-check/internal/model"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	c, err := New(prometheus.NewRegistry())
	require.NoError(t, err)
	return c
}

func TestObserveCheck(t *testing.T) {
	c := newTestCollector(t)

	c.ObserveCheck(&model.LmiEligibilityResult{DataSource: model.SourceCensus, IsApproved: true})
	c.ObserveCheck(&model.LmiEligibilityResult{DataSource: model.SourceCensus, IsApproved: true})
	c.ObserveCheck(&model.LmiEligibilityResult{DataSource: model.SourceMock, IsApproved: false})
	c.ObserveCheck(nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Checks.WithLabelValues("census", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Checks.WithLabelValues("mock", "false")))
}

func TestObserveProviderAndIncome(t *testing.T) {
	c := newTestCollector(t)

	c.ObserveProvider("census", OutcomeNoMatch, 120*time.Millisecond)
	c.ObserveProvider("esri", OutcomeOK, 300*time.Millisecond)
	c.ObserveIncome("cache")
	c.ObserveIncome("cache")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.ProviderRequests.WithLabelValues("census", "no_match")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ProviderRequests.WithLabelValues("esri", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.IncomeLookups.WithLabelValues("cache")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.ProviderDuration))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveCheck(&model.LmiEligibilityResult{})
		c.ObserveProvider("census", OutcomeError, time.Second)
		c.ObserveIncome("mock")
	})

	rec := httptest.NewRecorder()
	c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestNew_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := New(reg)
	require.NoError(t, err)
	second, err := New(reg)
	require.NoError(t, err)

	first.ObserveIncome("remote")
	assert.Equal(t, 1.0, testutil.ToFloat64(second.IncomeLookups.WithLabelValues("remote")))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	c := newTestCollector(t)

	r := chi.NewRouter()
	r.Use(c.Middleware)
	r.Get("/api/tracts/{geoid}/income", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", c.Handler())

	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/tracts/06037206300/income")
	require.NoError(t, err)
	resp.Body.Close() //nolint:errcheck

	assert.Equal(t, 1.0, testutil.ToFloat64(c.HTTPRequests.WithLabelValues("/api/tracts/{geoid}/income", "GET", "404")))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "lmi_http_requests_total"))
}
