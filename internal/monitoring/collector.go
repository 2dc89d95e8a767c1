package monitoring

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lmi-check/internal/model"
	"github.com/sells-group/lmi-check/internal/resilience"
	"github.com/sells-group/lmi-check/internal/store"
)

// pageSize matches the store's maximum ListChecks page.
const pageSize = 500

// maxChecks bounds how much history a single snapshot scans.
const maxChecks = 10000

// MetricsSnapshot holds a point-in-time view of data-source health.
type MetricsSnapshot struct {
	// Check history (within lookback window).
	ChecksTotal    int     `json:"checks_total"`
	ChecksEligible int     `json:"checks_eligible"`
	ChecksMock     int     `json:"checks_mock"`
	MockRate       float64 `json:"mock_rate"`

	// Tract cache.
	TractsLive    int `json:"tracts_live"`
	TractsExpired int `json:"tracts_expired"`

	// Providers whose circuit breaker is not closed.
	OpenBreakers []string `json:"open_breakers,omitempty"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// HistoryStore is the subset of store.Store the collector reads.
type HistoryStore interface {
	ListChecks(ctx context.Context, filter store.CheckFilter) ([]model.CheckRecord, error)
	TractStats(ctx context.Context) (*store.TractStats, error)
}

// BreakerStates reports per-provider circuit breaker state.
type BreakerStates interface {
	States() map[string]resilience.CircuitState
}

// Collector gathers metrics from check history, the tract cache, and the
// provider circuit breakers.
type Collector struct {
	store    HistoryStore
	breakers BreakerStates
	now      func() time.Time
}

// NewCollector creates a new metrics collector. breakers may be nil.
func NewCollector(st HistoryStore, breakers BreakerStates) *Collector {
	return &Collector{store: st, breakers: breakers, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	// History is listed newest first; stop at the first record past the window.
scan:
	for offset := 0; offset < maxChecks; offset += pageSize {
		checks, err := c.store.ListChecks(ctx, store.CheckFilter{Limit: pageSize, Offset: offset})
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: list checks")
		}
		for _, chk := range checks {
			if chk.CreatedAt.Before(cutoff) {
				break scan
			}
			snap.ChecksTotal++
			if chk.Result.IsApproved {
				snap.ChecksEligible++
			}
			if chk.Result.DataSource == model.SourceMock {
				snap.ChecksMock++
			}
		}
		if len(checks) < pageSize {
			break
		}
	}
	if snap.ChecksTotal > 0 {
		snap.MockRate = float64(snap.ChecksMock) / float64(snap.ChecksTotal)
	}

	stats, err := c.store.TractStats(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: tract stats")
	}
	snap.TractsLive = stats.Live
	snap.TractsExpired = stats.Expired

	if c.breakers != nil {
		for name, state := range c.breakers.States() {
			if state != resilience.CircuitClosed {
				snap.OpenBreakers = append(snap.OpenBreakers, name)
			}
		}
		sort.Strings(snap.OpenBreakers)
	}

	return snap, nil
}
