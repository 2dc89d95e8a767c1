// Package monitoring watches check history and provider health and posts
// webhook alerts when live data sources degrade.
package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/lmi-check/internal/config"
)

const (
	defaultInterval = 5 * time.Minute
	defaultLookback = 24
)

// Checker periodically snapshots data-source health and raises alerts for
// conditions that were not already active on the previous tick.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	lookback  int

	// active holds the alert types raised on the last evaluation.
	active map[AlertType]bool
}

// NewChecker creates a data-source health checker. Non-positive interval or
// lookback settings fall back to 5 minutes and 24 hours.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultInterval
	}
	lookback := cfg.LookbackWindowHours
	if lookback <= 0 {
		lookback = defaultLookback
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  interval,
		lookback:  lookback,
		active:    make(map[AlertType]bool),
	}
}

// Run evaluates data-source health every interval until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.health"))
	log.Info("watching data-source health",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("data-source health watch stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check takes one snapshot and sends alerts that became active since the
// previous call. It returns the alerts it sent.
func (c *Checker) Check(ctx context.Context) []Alert {
	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		zap.L().Error("monitoring: collect health snapshot", zap.Error(err))
		return nil
	}

	raised := c.alerter.Evaluate(snap)
	current := make(map[AlertType]bool, len(raised))
	var fresh []Alert
	for _, a := range raised {
		current[a.Type] = true
		if !c.active[a.Type] {
			fresh = append(fresh, a)
		}
	}
	for t := range c.active {
		if !current[t] {
			zap.L().Info("monitoring: condition cleared", zap.String("type", string(t)))
		}
	}
	c.active = current

	zap.L().Debug("monitoring: health snapshot",
		zap.Int("checks", snap.ChecksTotal),
		zap.Float64("mock_rate", snap.MockRate),
		zap.Strings("open_breakers", snap.OpenBreakers),
		zap.Int("alerts_active", len(raised)),
	)
	if len(fresh) == 0 {
		return nil
	}

	sent := c.alerter.SendAlerts(ctx, fresh)
	zap.L().Warn("monitoring: data sources degraded",
		zap.Int("alerts_new", len(fresh)),
		zap.Int("alerts_sent", sent),
	)
	return fresh
}
