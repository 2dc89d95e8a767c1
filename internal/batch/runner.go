// Package batch resolves LMI eligibility for every property listed in a CSV
// or XLSX file.
package batch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lmi-check/internal/lmi"
	"github.com/sells-group/lmi-check/internal/model"
)

// DefaultConcurrency is used when Run is given a non-positive limit.
const DefaultConcurrency = 4

// Resolver is the subset of lmi.Resolver the batch runner needs.
type Resolver interface {
	Resolve(ctx context.Context, query string, opts lmi.Options) (*model.LmiEligibilityResult, error)
}

// Output pairs an input with its result or error.
type Output struct {
	Input  Input
	Result *model.LmiEligibilityResult
	Err    error
}

// Summary counts batch outcomes.
type Summary struct {
	Total    int           `json:"total"`
	Eligible int           `json:"eligible"`
	Mock     int           `json:"mock"`
	Failed   int           `json:"failed"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Options tune a batch run.
type Options struct {
	Concurrency            int
	UseAlternateDataSource bool
}

// Run resolves every input with bounded concurrency. Outputs keep input
// order. A failed row never aborts the batch; only cancellation of ctx
// does.
func Run(ctx context.Context, r Resolver, inputs []Input, opts Options) ([]Output, Summary, error) {
	start := time.Now()
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	zap.L().Info("batch: processing",
		zap.Int("inputs", len(inputs)),
		zap.Int("concurrency", concurrency),
	)

	outs := make([]Output, len(inputs))
	var eligible, mock, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, in := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := r.Resolve(gctx, in.Query, lmi.Options{
				UseAlternateDataSource: opts.UseAlternateDataSource,
				SearchType:             in.SearchType,
				Level:                  in.Level,
			})
			outs[i] = Output{Input: in, Result: res, Err: err}
			switch {
			case err != nil:
				failed.Add(1)
				zap.L().Warn("batch: row failed", zap.Int("row", in.Row), zap.String("query", in.Query), zap.Error(err))
			default:
				if res.IsApproved {
					eligible.Add(1)
				}
				if res.DataSource == model.SourceMock {
					mock.Add(1)
				}
			}
			return nil
		})
	}

	err := g.Wait()
	sum := Summary{
		Total:    len(inputs),
		Eligible: int(eligible.Load()),
		Mock:     int(mock.Load()),
		Failed:   int(failed.Load()),
		Elapsed:  time.Since(start),
	}
	if err != nil {
		return outs, sum, eris.Wrap(err, "batch: run")
	}

	zap.L().Info("batch: complete",
		zap.Int("total", sum.Total),
		zap.Int("eligible", sum.Eligible),
		zap.Int("mock", sum.Mock),
		zap.Int("failed", sum.Failed),
		zap.Duration("elapsed", sum.Elapsed),
	)
	return outs, sum, nil
}
