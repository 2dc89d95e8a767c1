// Package income classifies census tracts by median household income
// relative to the area median income (AMI).
package income

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lmi-check/internal/model"
	"github.com/sells-group/lmi-check/internal/resilience"
)

// DefaultAMI is the area median income used when a source reports none.
const DefaultAMI = 100000

// DefaultCacheTTL is how long a fetched income figure stays fresh.
const DefaultCacheTTL = 30 * 24 * time.Hour

// SourceCache labels classifications answered from the tract cache.
const SourceCache = "cache"

// TractCache is the persistent store the classifier reads through.
type TractCache interface {
	GetTractIncome(ctx context.Context, tractID string) (*model.TractIncomeRecord, error)
	PutTractIncome(ctx context.Context, rec model.TractIncomeRecord, ttl time.Duration) error
}

// Observer receives the origin of each classification.
type Observer interface {
	ObserveIncome(source string)
}

// Classification is the income verdict for one tract.
type Classification struct {
	TractID          string               `json:"tract_id"`
	MedianIncome     int                  `json:"median_income"`
	AreaMedianIncome int                  `json:"area_median_income"`
	AMIPercentage    float64              `json:"ami_percentage"`
	Category         model.IncomeCategory `json:"income_category"`
	Eligible         bool                 `json:"is_eligible"`
	Source           string               `json:"source"`
	FromCache        bool                 `json:"from_cache"`
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithCache enables read-through caching in tc.
func WithCache(tc TractCache) Option {
	return func(c *Classifier) { c.cache = tc }
}

// WithRetry overrides the retry policy for source calls.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Classifier) { c.retry = cfg }
}

// WithCacheTTL sets how long fetched figures are kept.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Classifier) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithDefaultAMI sets the AMI used when the source reports none.
func WithDefaultAMI(ami int) Option {
	return func(c *Classifier) {
		if ami > 0 {
			c.defaultAMI = ami
		}
	}
}

// WithObserver reports classification origins, typically to Prometheus.
func WithObserver(o Observer) Option {
	return func(c *Classifier) { c.observer = o }
}

// Classifier looks up tract income and buckets it into an income category.
type Classifier struct {
	source     Source
	cache      TractCache
	retry      resilience.RetryConfig
	ttl        time.Duration
	defaultAMI int
	observer   Observer
	now        func() time.Time
}

// NewClassifier creates a Classifier backed by src.
func NewClassifier(src Source, opts ...Option) *Classifier {
	c := &Classifier{
		source:     src,
		retry:      resilience.DefaultRetryConfig(),
		ttl:        DefaultCacheTTL,
		defaultAMI: DefaultAMI,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.source == nil {
		c.source = MockSource{}
	}
	return c
}

// Classify returns the income classification for tractID. It fails only for
// a malformed tract id; exhausted sources fall back to fixture figures.
func (c *Classifier) Classify(ctx context.Context, tractID string) (*Classification, error) {
	tractID = strings.TrimSpace(tractID)
	g, err := ParseGEOID(tractID)
	if err != nil {
		return nil, err
	}

	if rec := c.cached(ctx, tractID); rec != nil {
		c.observe(SourceCache)
		cl := c.classification(tractID, rec.MedianHouseholdIncome, rec.AreaMedianIncome, rec.Source)
		cl.FromCache = true
		return cl, nil
	}

	rec := model.TractIncomeRecord{TractID: tractID, RetrievedAt: c.now().UTC()}

	resp, err := c.fetch(ctx, g)
	if err != nil {
		zap.L().Warn("income: source exhausted, using fixture",
			zap.String("tract_id", tractID),
			zap.String("source", c.source.Name()),
			zap.Error(err),
		)
		rec.MedianHouseholdIncome = MockIncome(tractID)
		rec.AreaMedianIncome = MockAreaMedianIncome
		rec.Source = string(model.SourceMock)
	} else {
		rec.MedianHouseholdIncome = resp.MedianIncome
		rec.AreaMedianIncome = resp.AreaMedianIncome
		rec.Source = c.source.Name()
	}
	if rec.AreaMedianIncome <= 0 {
		rec.AreaMedianIncome = c.defaultAMI
	}

	c.store(ctx, rec)
	c.observe(rec.Source)
	return c.classification(tractID, rec.MedianHouseholdIncome, rec.AreaMedianIncome, rec.Source), nil
}

// fetch calls the source under the retry policy. A response that is not
// successful or carries no income counts as a failed attempt.
func (c *Classifier) fetch(ctx context.Context, g GEOID) (*Response, error) {
	cfg := c.retry
	if cfg.ShouldRetry == nil {
		cfg.ShouldRetry = resilience.RetryAll
	}
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("income", c.source.Name())
	}

	req := NewRequest(g)
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (*Response, error) {
		resp, err := c.source.MedianIncome(ctx, req)
		if err != nil {
			return nil, err
		}
		if !resp.Success {
			return nil, eris.Errorf("income: %s: %s", c.source.Name(), resp.Error)
		}
		if resp.MedianIncome <= 0 {
			return nil, eris.Errorf("income: %s: non-positive median income %d", c.source.Name(), resp.MedianIncome)
		}
		return resp, nil
	})
}

func (c *Classifier) cached(ctx context.Context, tractID string) *model.TractIncomeRecord {
	if c.cache == nil {
		return nil
	}
	rec, err := c.cache.GetTractIncome(ctx, tractID)
	if err != nil {
		zap.L().Warn("income: cache read failed", zap.String("tract_id", tractID), zap.Error(err))
		return nil
	}
	if rec == nil || rec.MedianHouseholdIncome <= 0 {
		return nil
	}
	return rec
}

func (c *Classifier) store(ctx context.Context, rec model.TractIncomeRecord) {
	if c.cache == nil {
		return
	}
	if err := c.cache.PutTractIncome(ctx, rec, c.ttl); err != nil {
		zap.L().Warn("income: cache write failed", zap.String("tract_id", rec.TractID), zap.Error(err))
	}
}

func (c *Classifier) classification(tractID string, median, ami int, source string) *Classification {
	if ami <= 0 {
		ami = c.defaultAMI
	}
	pct := AMIPercentage(median, ami)
	cat := Categorize(pct)
	return &Classification{
		TractID:          tractID,
		MedianIncome:     median,
		AreaMedianIncome: ami,
		AMIPercentage:    pct,
		Category:         cat,
		Eligible:         IsEligible(cat),
		Source:           source,
	}
}

func (c *Classifier) observe(source string) {
	if c.observer != nil {
		c.observer.ObserveIncome(source)
	}
}
