// Package geocode resolves free-text addresses and place names to coordinates
// and census tracts via the Census Geocoder, with Esri World Geocoding as the
// fallback and deterministic fixtures as the last resort.
package geocode

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/lmi-check/internal/cache"
	"github.com/sells-group/lmi-check/internal/model"
	"github.com/sells-group/lmi-check/internal/resilience"
)

// ErrInvalidInput is returned for a query that is blank after trimming.
var ErrInvalidInput = eris.New("geocode: query is required")

// Result is the outcome of one geocode. TractID is empty when the provider
// does not report geographies (Esri).
type Result struct {
	Latitude         float64          `json:"latitude"`
	Longitude        float64          `json:"longitude"`
	TractID          string           `json:"tract_id,omitempty"`
	BlockGroupID     string           `json:"block_group_id,omitempty"`
	FormattedAddress string           `json:"formatted_address,omitempty"`
	MatchScore       float64          `json:"match_score,omitempty"`
	Source           model.DataSource `json:"source"`
}

// Options tune a single request.
type Options struct {
	UseAlternateDataSource bool
	SearchType             model.SearchType
	Level                  model.Level
}

// esriFirst reports whether Esri should be tried before Census. The Census
// one-line endpoint only understands street addresses.
func (o Options) esriFirst() bool {
	return o.UseAlternateDataSource || o.SearchType == model.SearchPlace
}

// Provider is one geocoding backend. Geocode returns (nil, nil) when the
// provider answered but found nothing.
type Provider interface {
	Name() string
	Available() bool
	Geocode(ctx context.Context, query string, opts Options) (*Result, error)
}

// Observer receives per-provider call outcomes.
type Observer interface {
	ObserveProvider(provider, outcome string, d time.Duration)
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for every provider.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.fetch.http = hc
	}
}

// WithRateLimit caps outbound requests per second across providers.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.fetch.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.fetch.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithResponseCache replaces the in-process response cache.
func WithResponseCache(rc *cache.ResultCache[[]byte]) Option {
	return func(c *Client) {
		if rc != nil {
			c.fetch.cache = rc
		}
	}
}

// WithCensus overrides the Census geocoder base URL, benchmark, and vintage.
// Empty arguments keep the defaults.
func WithCensus(baseURL, benchmark, vintage string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.census.baseURL = strings.TrimRight(baseURL, "/")
		}
		if benchmark != "" {
			c.census.benchmark = benchmark
		}
		if vintage != "" {
			c.census.vintage = vintage
		}
	}
}

// WithEsri enables the Esri fallback. Esri is skipped without a token.
func WithEsri(baseURL, token string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.esri.baseURL = strings.TrimRight(baseURL, "/")
		}
		c.esri.token = token
	}
}

// WithBreakers guards each provider with a circuit breaker.
func WithBreakers(sb *resilience.ServiceBreakers) Option {
	return func(c *Client) {
		c.breakers = sb
	}
}

// WithObserver reports provider outcomes, typically to Prometheus.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// Client geocodes through Census and Esri and always produces a result.
type Client struct {
	fetch    *fetcher
	census   *CensusProvider
	esri     *EsriProvider
	breakers *resilience.ServiceBreakers
	observer Observer
}

// NewClient creates a Client with the given options.
func NewClient(opts ...Option) *Client {
	f := &fetcher{
		http:    &http.Client{Timeout: 15 * time.Second},
		cache:   cache.New[[]byte](),
		limiter: rate.NewLimiter(10, 10),
	}
	c := &Client{
		fetch:  f,
		census: &CensusProvider{fetch: f, baseURL: DefaultCensusBaseURL, benchmark: DefaultBenchmark, vintage: DefaultVintage},
		esri:   &EsriProvider{fetch: f, baseURL: DefaultEsriBaseURL},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CacheStats reports the response cache counters.
func (c *Client) CacheStats() cache.Stats {
	return c.fetch.cache.Stats()
}

// ClearCache drops every cached provider response.
func (c *Client) ClearCache() {
	c.fetch.cache.Clear()
}

// providers returns the remote tiers in the order they should be tried.
func (c *Client) providers(opts Options) []Provider {
	if opts.esriFirst() {
		return []Provider{c.esri, c.census}
	}
	return []Provider{c.census, c.esri}
}

// Geocode resolves query. It fails only with ErrInvalidInput; every remote
// failure falls through to the next tier and finally to a mock fixture.
func (c *Client) Geocode(ctx context.Context, query string, opts Options) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrInvalidInput
	}

	for _, p := range c.providers(opts) {
		if !p.Available() {
			continue
		}
		res, err := c.call(ctx, p, query, opts)
		if err != nil {
			zap.L().Debug("geocode: provider failed, trying next",
				zap.String("provider", p.Name()),
				zap.String("class", resilience.Classify(err)),
				zap.Error(err),
			)
			continue
		}
		if res != nil {
			return res, nil
		}
		zap.L().Debug("geocode: provider had no match", zap.String("provider", p.Name()))
	}

	zap.L().Info("geocode: all providers missed, using fixture", zap.String("query", query))
	return MockResult(query), nil
}

// call runs one provider through its breaker and records the outcome.
func (c *Client) call(ctx context.Context, p Provider, query string, opts Options) (*Result, error) {
	start := time.Now()
	res, err := resilience.ExecuteVal(ctx, c.breakers.Get(p.Name()), func(ctx context.Context) (*Result, error) {
		return p.Geocode(ctx, query, opts)
	})
	c.observe(p.Name(), res, err, time.Since(start))
	return res, err
}

func (c *Client) observe(provider string, res *Result, err error, d time.Duration) {
	if c.observer == nil {
		return
	}
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case res == nil:
		outcome = "no_match"
	}
	c.observer.ObserveProvider(provider, outcome, d)
}
