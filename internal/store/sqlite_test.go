package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLite_ExpiryFollowsClock(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "clock.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.PutTractIncome(ctx, tractRecord("06037206300", 42000), DefaultTractTTL))

	now = now.Add(29 * 24 * time.Hour)
	got, err := s.GetTractIncome(ctx, "06037206300")
	require.NoError(t, err)
	assert.NotNil(t, got, "still valid on day 29")

	now = now.Add(2 * 24 * time.Hour)
	got, err = s.GetTractIncome(ctx, "06037206300")
	require.NoError(t, err)
	assert.Nil(t, got, "expired after 30 days")

	n, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "migrate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck

	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Migrate(context.Background()))
}

func TestSQLite_ImportEmpty(t *testing.T) {
	s := newTestSQLite(t)
	n, err := s.ImportTractIncome(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}
