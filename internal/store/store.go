// Package store persists tract income lookups and LMI check history.
package store

import (
	"context"
	"time"

	"github.com/sells-group/lmi-check/internal/model"
)

// DefaultTractTTL is how long a tract income record stays valid.
const DefaultTractTTL = 30 * 24 * time.Hour

// CheckFilter specifies criteria for listing check history.
type CheckFilter struct {
	TractID string `json:"tract_id,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
}

// TractStats summarizes the persistent tract cache.
type TractStats struct {
	Live    int `json:"live"`
	Expired int `json:"expired"`
}

// Store is the persistent tract cache and check history.
type Store interface {
	// Tract cache. GetTractIncome returns (nil, nil) on a miss or an
	// expired record.
	GetTractIncome(ctx context.Context, tractID string) (*model.TractIncomeRecord, error)
	PutTractIncome(ctx context.Context, rec model.TractIncomeRecord, ttl time.Duration) error
	ImportTractIncome(ctx context.Context, recs []model.TractIncomeRecord, ttl time.Duration) (int, error)
	PurgeExpired(ctx context.Context) (int, error)
	TractStats(ctx context.Context) (*TractStats, error)

	// Check history
	SaveCheck(ctx context.Context, rec *model.CheckRecord) error
	ListChecks(ctx context.Context, filter CheckFilter) ([]model.CheckRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

func normalizeFilter(f CheckFilter) CheckFilter {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl == 0 {
		return DefaultTractTTL
	}
	return ttl
}
