package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lmi-check/internal/cache"
	"github.com/sells-group/lmi-check/internal/income"
	"github.com/sells-group/lmi-check/internal/lmi"
	"github.com/sells-group/lmi-check/internal/metrics"
	"github.com/sells-group/lmi-check/internal/monitoring"
	"github.com/sells-group/lmi-check/internal/resilience"
	"github.com/sells-group/lmi-check/internal/store"
	"github.com/sells-group/lmi-check/internal/tiger"
	"github.com/sells-group/lmi-check/pkg/geocode"
)

// appEnv holds the initialized store, clients, and resolver shared by the
// check/batch/serve commands.
type appEnv struct {
	Store      store.Store
	Geocoder   *geocode.Client
	Breakers   *resilience.ServiceBreakers
	Classifier *income.Classifier
	Resolver   *lmi.Resolver
	Tracts     *tiger.TractIndex // may be nil
	Locator    geocode.TractLocator
	Metrics    *metrics.Collector
	Monitor    *monitoring.Collector
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates config for mode, opens the store, and wires the geocoder,
// classifier, and resolver. reg receives the Prometheus collectors; nil uses
// the global registry. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string, reg prometheus.Registerer) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	mc, err := metrics.New(reg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	env := &appEnv{Store: st, Metrics: mc}

	hc := &http.Client{Timeout: 15 * time.Second}
	env.Breakers = resilience.NewServiceBreakers(resilience.FromCircuitConfig(
		cfg.Resilience.FailureThreshold,
		cfg.Resilience.ResetTimeoutSecs,
	))

	env.Geocoder = geocode.NewClient(
		geocode.WithHTTPClient(hc),
		geocode.WithRateLimit(cfg.Census.RateLimit),
		geocode.WithResponseCache(cache.New[[]byte](
			cache.WithCapacity(cfg.Cache.Capacity),
			cache.WithTTL(time.Duration(cfg.Cache.TTLHours)*time.Hour),
		)),
		geocode.WithCensus(cfg.Census.BaseURL, cfg.Census.Benchmark, cfg.Census.Vintage),
		geocode.WithEsri(cfg.Esri.BaseURL, cfg.Esri.Token),
		geocode.WithBreakers(env.Breakers),
		geocode.WithObserver(mc),
	)

	src, err := incomeSource(hc)
	if err != nil {
		env.Close()
		return nil, err
	}

	env.Classifier = income.NewClassifier(src,
		income.WithCache(st),
		income.WithRetry(resilience.FromRetryConfig(cfg.Income.MaxAttempts, cfg.Income.BackoffMs, true)),
		income.WithCacheTTL(time.Duration(cfg.Income.CacheTTLDays)*24*time.Hour),
		income.WithDefaultAMI(cfg.Income.DefaultAMI),
		income.WithObserver(mc),
	)

	var locator geocode.TractLocator = env.Geocoder
	if cfg.Tiger.TractShapefile != "" {
		ix, err := tiger.LoadTracts(cfg.Tiger.TractShapefile)
		if err != nil {
			env.Close()
			return nil, eris.Wrap(err, "load tract shapefile")
		}
		env.Tracts = ix
		locator = geocode.LocatorChain{ix, env.Geocoder}
		zap.L().Info("loaded tract index",
			zap.String("path", cfg.Tiger.TractShapefile),
			zap.Int("tracts", ix.Len()),
		)
	}

	env.Monitor = monitoring.NewCollector(st, env.Breakers)
	env.Locator = locator
	env.Resolver = lmi.NewResolver(env.Geocoder, env.Classifier,
		lmi.WithLocator(locator),
		lmi.WithTimeout(time.Duration(cfg.LMI.TimeoutSecs)*time.Second),
		lmi.WithMockFallback(cfg.LMI.MockFallback),
		lmi.WithObserver(mc),
	)

	return env, nil
}

// incomeSource builds the configured tract income source.
func incomeSource(hc *http.Client) (income.Source, error) {
	switch cfg.Income.Source {
	case "acs":
		return income.NewACSSource(cfg.Census.ACSBaseURL, cfg.Census.ACSYear, cfg.Census.APIKey, hc), nil
	case "function":
		return income.NewFunctionSource(cfg.Income.FunctionURL, cfg.Income.FunctionKey, hc), nil
	case "mock":
		return income.MockSource{}, nil
	default:
		return nil, eris.Errorf("unsupported income source: %s", cfg.Income.Source)
	}
}
