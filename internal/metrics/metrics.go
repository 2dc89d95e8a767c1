// Package metrics exposes Prometheus collectors for LMI checks, provider calls,
// and the HTTP API.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lmi-check/internal/model"
)

// Provider call outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeNoMatch = "no_match"
	OutcomeError   = "error"
)

// Collector bundles the service's Prometheus metrics. A nil *Collector is a
// valid no-op recorder.
type Collector struct {
	gatherer prometheus.Gatherer

	Checks           *prometheus.CounterVec
	ProviderRequests *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec
	IncomeLookups    *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// New registers the collectors against reg, defaulting to the global
// registry when nil. Registering twice against the same registry reuses the
// existing collectors.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	if c.Checks, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lmi_checks_total",
		Help: "Resolved LMI checks by data source and eligibility.",
	}, []string{"data_source", "eligible"})); err != nil {
		return nil, err
	}
	if c.ProviderRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lmi_provider_requests_total",
		Help: "Calls to geocoding and income providers by outcome.",
	}, []string{"provider", "outcome"})); err != nil {
		return nil, err
	}
	if c.ProviderDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lmi_provider_request_duration_seconds",
		Help:    "Provider call latency in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"provider"})); err != nil {
		return nil, err
	}
	if c.IncomeLookups, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lmi_income_lookups_total",
		Help: "Tract income lookups by where the figure came from (cache, remote, mock).",
	}, []string{"source"})); err != nil {
		return nil, err
	}
	if c.HTTPRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lmi_http_requests_total",
		Help: "HTTP API requests by route, method, and status code.",
	}, []string{"route", "method", "code"})); err != nil {
		return nil, err
	}
	if c.HTTPDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lmi_http_request_duration_seconds",
		Help:    "HTTP API latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})); err != nil {
		return nil, err
	}
	return c, nil
}

// ObserveCheck counts a resolved eligibility result.
func (c *Collector) ObserveCheck(res *model.LmiEligibilityResult) {
	if c == nil || res == nil {
		return
	}
	c.Checks.WithLabelValues(string(res.DataSource), strconv.FormatBool(res.IsApproved)).Inc()
}

// ObserveProvider records one provider call.
func (c *Collector) ObserveProvider(provider, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.ProviderRequests.WithLabelValues(provider, outcome).Inc()
	c.ProviderDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// ObserveIncome counts a tract income lookup by origin.
func (c *Collector) ObserveIncome(source string) {
	if c == nil {
		return
	}
	c.IncomeLookups.WithLabelValues(source).Inc()
}

// Middleware records request counts and latency keyed by chi route pattern.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		c.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		c.HTTPDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func register[T prometheus.Collector](reg prometheus.Registerer, col T) (T, error) {
	if err := reg.Register(col); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, eris.Wrap(err, "metrics: register collector")
	}
	return col, nil
}
