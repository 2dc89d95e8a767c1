package batch

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lmi-check/internal/lmi"
	"github.com/sells-group/lmi-check/internal/model"
)

type fakeResolver struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	opts     []lmi.Options
}

func (f *fakeResolver) Resolve(_ context.Context, query string, opts lmi.Options) (*model.LmiEligibilityResult, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	if strings.Contains(query, "fail") {
		return nil, errors.New("resolver unavailable")
	}
	cat := model.CategoryLow
	median := 60000
	pct := 60.0
	src := model.SourceCensus
	if strings.Contains(query, "mock") {
		src = model.SourceMock
	}
	return &model.LmiEligibilityResult{
		Address:          query,
		TractID:          "06037206300",
		MedianIncome:     &median,
		AMIPercentage:    &pct,
		IncomeCategory:   &cat,
		IsApproved:       !strings.Contains(query, "rich"),
		EligibilityLabel: model.LabelEligible,
		DataSource:       src,
		Timestamp:        time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}, nil
}

func TestRun_OrderAndSummary(t *testing.T) {
	inputs := []Input{
		{Row: 2, Query: "a"},
		{Row: 3, Query: "fail here"},
		{Row: 4, Query: "rich"},
		{Row: 5, Query: "mock"},
	}
	r := &fakeResolver{}

	outs, sum, err := Run(context.Background(), r, inputs, Options{Concurrency: 2})
	require.NoError(t, err)
	require.Len(t, outs, 4)
	for i, o := range outs {
		assert.Equal(t, inputs[i], o.Input)
	}
	assert.Error(t, outs[1].Err)
	assert.Equal(t, 4, sum.Total)
	assert.Equal(t, 2, sum.Eligible)
	assert.Equal(t, 1, sum.Mock)
	assert.Equal(t, 1, sum.Failed)
	assert.LessOrEqual(t, r.peak.Load(), int32(2))
}

func TestRun_PassesOptions(t *testing.T) {
	var seen atomic.Value
	r := resolverFunc(func(_ context.Context, _ string, opts lmi.Options) (*model.LmiEligibilityResult, error) {
		seen.Store(opts)
		return &model.LmiEligibilityResult{}, nil
	})

	_, _, err := Run(context.Background(), r, []Input{{Row: 1, Query: "x", SearchType: model.SearchPlace, Level: model.LevelBlockGroup}},
		Options{Concurrency: 1, UseAlternateDataSource: true})
	require.NoError(t, err)
	assert.Equal(t, lmi.Options{UseAlternateDataSource: true, SearchType: model.SearchPlace, Level: model.LevelBlockGroup}, seen.Load())
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Run(ctx, &fakeResolver{}, []Input{{Row: 1, Query: "a"}}, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

type resolverFunc func(ctx context.Context, query string, opts lmi.Options) (*model.LmiEligibilityResult, error)

func (f resolverFunc) Resolve(ctx context.Context, query string, opts lmi.Options) (*model.LmiEligibilityResult, error) {
	return f(ctx, query, opts)
}

func TestWriteCSV(t *testing.T) {
	outs, _, err := Run(context.Background(), &fakeResolver{}, []Input{
		{Row: 2, Query: "123 Poor St"},
		{Row: 3, Query: "fail"},
	}, Options{Concurrency: 1})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, outs))

	rows, err := ReadCSV(&buf)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, OutputHeader, rows[0])
	assert.Equal(t, []string{
		"2", "123 Poor St", "06037206300", "", "0.000000", "0.000000",
		"60000", "60.00", "Low Income", "true", "Eligible", "census", "2026-01-02T03:04:05Z", "",
	}, rows[1])
	assert.Equal(t, "resolver unavailable", rows[2][13])
	assert.Empty(t, rows[2][2])
}

func TestWriteFile_Stdout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFile("-", &buf, nil))
	assert.True(t, strings.HasPrefix(buf.String(), "row,query,tract_id"))
}
