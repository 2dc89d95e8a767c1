package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lmi-check/internal/batch"
)

var (
	batchInput       string
	batchOutput      string
	batchConcurrency int
	batchAlt         bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Check LMI eligibility for every row of a CSV or XLSX file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if batchConcurrency > 0 {
			cfg.Batch.Concurrency = batchConcurrency
		}

		inputs, err := batch.ReadFile(batchInput)
		if err != nil {
			return eris.Wrap(err, "read batch input")
		}
		if len(inputs) == 0 {
			zap.L().Info("batch: no rows to process", zap.String("input", batchInput))
			return nil
		}

		env, err := initEnv(ctx, "batch", nil)
		if err != nil {
			return err
		}
		defer env.Close()

		outs, summary, err := batch.Run(ctx, env.Resolver, inputs, batch.Options{
			Concurrency:            cfg.Batch.Concurrency,
			UseAlternateDataSource: batchAlt,
		})
		if err != nil {
			return err
		}

		if err := batch.WriteFile(batchOutput, cmd.OutOrStdout(), outs); err != nil {
			return err
		}

		zap.L().Info("batch complete",
			zap.Int("total", summary.Total),
			zap.Int("eligible", summary.Eligible),
			zap.Int("mock", summary.Mock),
			zap.Int("failed", summary.Failed),
			zap.Duration("elapsed", summary.Elapsed),
		)
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchInput, "input", "", "input .csv or .xlsx file")
	batchCmd.Flags().StringVar(&batchOutput, "output", "-", "output .csv or .xlsx file (- for stdout)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "parallel checks (default from config)")
	batchCmd.Flags().BoolVar(&batchAlt, "alt", false, "prefer the alternate (Esri) geocoder")
	_ = batchCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(batchCmd)
}
