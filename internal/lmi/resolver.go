// Package lmi answers whether an address or place lies in a low-to-moderate
// income census tract.
package lmi

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lmi-check/internal/income"
	"github.com/sells-group/lmi-check/internal/model"
	"github.com/sells-group/lmi-check/pkg/geocode"
)

// DefaultTimeout bounds one resolution.
const DefaultTimeout = 10 * time.Second

var (
	// ErrInvalidInput is returned for a blank query.
	ErrInvalidInput = geocode.ErrInvalidInput
	// ErrUnavailable is returned when resolution failed and mock fallback is
	// disabled.
	ErrUnavailable = eris.New("lmi: eligibility data unavailable")
)

// Options tune a single resolution.
type Options struct {
	UseAlternateDataSource bool             `json:"useAlternateDataSource"`
	SearchType             model.SearchType `json:"searchType"`
	Level                  model.Level      `json:"level"`
}

func (o Options) geocode() geocode.Options {
	return geocode.Options{
		UseAlternateDataSource: o.UseAlternateDataSource,
		SearchType:             o.SearchType,
		Level:                  o.Level,
	}
}

// Geocoder turns a query into coordinates and, usually, a tract.
type Geocoder interface {
	Geocode(ctx context.Context, query string, opts geocode.Options) (*geocode.Result, error)
}

// Classifier buckets a tract by income.
type Classifier interface {
	Classify(ctx context.Context, tractID string) (*income.Classification, error)
}

// Observer receives every result the resolver returns.
type Observer interface {
	ObserveCheck(res *model.LmiEligibilityResult)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLocator sets the point-to-tract lookup used when the geocoder reports
// coordinates without a tract.
func WithLocator(l geocode.TractLocator) Option {
	return func(r *Resolver) { r.locator = l }
}

// WithTimeout bounds each Resolve call.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMockFallback controls whether failures produce fixture results (true,
// the default) or ErrUnavailable.
func WithMockFallback(enabled bool) Option {
	return func(r *Resolver) { r.mockFallback = enabled }
}

// WithObserver reports results, typically to Prometheus.
func WithObserver(o Observer) Option {
	return func(r *Resolver) { r.observer = o }
}

// WithClock injects the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// Resolver orchestrates geocoding, tract lookup, and income classification.
type Resolver struct {
	geocoder     Geocoder
	locator      geocode.TractLocator
	classifier   Classifier
	timeout      time.Duration
	mockFallback bool
	observer     Observer
	now          func() time.Time
}

// NewResolver creates a Resolver.
func NewResolver(g Geocoder, c Classifier, opts ...Option) *Resolver {
	r := &Resolver{
		geocoder:     g,
		classifier:   c,
		timeout:      DefaultTimeout,
		mockFallback: true,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type outcome struct {
	res *model.LmiEligibilityResult
	err error
}

// Resolve determines LMI eligibility for query. Only a blank query, or a
// failure with mock fallback disabled, returns an error.
func (r *Resolver) Resolve(ctx context.Context, query string, opts Options) (*model.LmiEligibilityResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrInvalidInput
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// Buffered so a result that loses the race to the timer is dropped
	// without blocking the worker.
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- outcome{err: eris.Errorf("lmi: panic during resolve: %v", p)}
			}
		}()
		res, err := r.resolve(ctx, query, opts)
		ch <- outcome{res: res, err: err}
	}()

	var out outcome
	select {
	case out = <-ch:
	case <-ctx.Done():
		out.err = eris.Wrapf(ctx.Err(), "lmi: resolve %q", query)
	}

	if out.err != nil {
		zap.L().Warn("lmi: resolution failed",
			zap.String("query", query),
			zap.Bool("mock_fallback", r.mockFallback),
			zap.Error(out.err),
		)
		if !r.mockFallback {
			return nil, eris.Wrap(ErrUnavailable, out.err.Error())
		}
		out.res = r.MockResult(query, opts)
	}

	if r.observer != nil {
		r.observer.ObserveCheck(out.res)
	}
	return out.res, nil
}

func (r *Resolver) resolve(ctx context.Context, query string, opts Options) (*model.LmiEligibilityResult, error) {
	geo, err := r.geocoder.Geocode(ctx, query, opts.geocode())
	if err != nil {
		return nil, eris.Wrap(err, "lmi: geocode")
	}
	if geo == nil {
		return nil, eris.New("lmi: geocoder returned no result")
	}

	tractID := geo.TractID
	if tractID == "" && r.locator != nil {
		if id, ok := r.locator.FromCoordinates(ctx, geo.Latitude, geo.Longitude); ok {
			tractID = id
		}
	}
	if tractID == "" {
		return nil, eris.Errorf("lmi: no tract for %s result at %f,%f", geo.Source, geo.Latitude, geo.Longitude)
	}

	cl, err := r.classifier.Classify(ctx, tractID)
	if err != nil {
		return nil, eris.Wrap(err, "lmi: classify")
	}

	source := geo.Source
	if cl.Source == string(model.SourceMock) {
		source = model.SourceMock
	}

	res := r.assemble(query, opts, geo, cl)
	res.DataSource = source
	return res, nil
}

// MockResult builds a fully populated fixture result for query.
func (r *Resolver) MockResult(query string, opts Options) *model.LmiEligibilityResult {
	geo := geocode.MockResult(query)
	median := income.MockIncome(geo.TractID)
	pct := income.AMIPercentage(median, income.MockAreaMedianIncome)
	cat := income.Categorize(pct)

	cl := &income.Classification{
		TractID:          geo.TractID,
		MedianIncome:     median,
		AreaMedianIncome: income.MockAreaMedianIncome,
		AMIPercentage:    pct,
		Category:         cat,
		Eligible:         income.IsEligible(cat),
		Source:           string(model.SourceMock),
	}
	res := r.assemble(query, opts, geo, cl)
	res.DataSource = model.SourceMock
	return res
}

func (r *Resolver) assemble(query string, opts Options, geo *geocode.Result, cl *income.Classification) *model.LmiEligibilityResult {
	median := cl.MedianIncome
	pct := cl.AMIPercentage
	cat := cl.Category

	res := &model.LmiEligibilityResult{
		FormattedAddress: geo.FormattedAddress,
		TractID:          cl.TractID,
		Latitude:         geo.Latitude,
		Longitude:        geo.Longitude,
		MedianIncome:     &median,
		AMIPercentage:    &pct,
		IncomeCategory:   &cat,
		IsApproved:       cl.Eligible,
		EligibilityLabel: model.LabelFor(cl.Eligible),
		Timestamp:        r.now().UTC(),
	}
	if opts.SearchType == model.SearchPlace {
		res.PlaceName = query
	} else {
		res.Address = query
	}
	if opts.Level == model.LevelBlockGroup {
		res.BlockGroupID = geo.BlockGroupID
	}
	return res
}

// Summary renders a one-line human description of res.
func Summary(res *model.LmiEligibilityResult) string {
	if res == nil {
		return ""
	}
	cat := "unknown income"
	if res.IncomeCategory != nil {
		cat = string(*res.IncomeCategory)
	}
	pct := ""
	if res.AMIPercentage != nil {
		pct = fmt.Sprintf(" (%.2f%% of AMI)", *res.AMIPercentage)
	}
	return fmt.Sprintf("%s: %s, tract %s, %s%s [%s]",
		res.Query(), res.EligibilityLabel, res.TractID, cat, pct, res.DataSource)
}
