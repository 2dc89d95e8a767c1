package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lmi-check/internal/batch"
	"github.com/sells-group/lmi-check/internal/income"
	"github.com/sells-group/lmi-check/internal/model"
	"github.com/sells-group/lmi-check/internal/store"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Maintain the persistent tract income cache",
}

var cacheMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the cache schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := cacheStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		zap.L().Info("cache schema up to date", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired tract income records",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := cacheStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.PurgeExpired(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired records\n", n)
		return nil
	},
}

var cacheGetCmd = &cobra.Command{
	Use:   "get <geoid>",
	Short: "Show the cached income record for a tract",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := income.ParseGEOID(args[0])
		if err != nil {
			return err
		}

		st, err := cacheStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, err := st.GetTractIncome(cmd.Context(), g.String())
		if err != nil {
			return err
		}
		if rec == nil {
			return eris.Errorf("no live cache record for tract %s", g)
		}
		return printJSON(cmd, rec)
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count live and expired tract income records",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := cacheStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stats, err := st.TractStats(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, stats)
	},
}

var cacheImportTTLDays int

var cacheImportCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Load tract income figures from a CSV (tract_id, median_income[, area_median_income])",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "open import file")
		}
		rows, err := batch.ReadCSV(f)
		_ = f.Close()
		if err != nil {
			return err
		}

		recs, err := parseIncomeRows(rows, time.Now().UTC())
		if err != nil {
			return err
		}

		st, err := cacheStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ttlDays := cacheImportTTLDays
		if ttlDays <= 0 {
			ttlDays = cfg.Income.CacheTTLDays
		}
		n, err := st.ImportTractIncome(cmd.Context(), recs, time.Duration(ttlDays)*24*time.Hour)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d tract records\n", n)
		return nil
	},
}

func init() {
	cacheImportCmd.Flags().IntVar(&cacheImportTTLDays, "ttl-days", 0, "record lifetime in days (default from config)")
	cacheCmd.AddCommand(cacheMigrateCmd, cachePurgeCmd, cacheGetCmd, cacheStatsCmd, cacheImportCmd)
	rootCmd.AddCommand(cacheCmd)
}

// cacheStore validates config and opens the migrated store.
func cacheStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("cache"); err != nil {
		return nil, err
	}
	return openStore(ctx)
}

// parseIncomeRows converts CSV rows into tract records. A leading row whose
// income column is not numeric is treated as a header.
func parseIncomeRows(rows [][]string, now time.Time) ([]model.TractIncomeRecord, error) {
	var recs []model.TractIncomeRecord
	for i, row := range rows {
		if len(row) < 2 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		median, err := strconv.Atoi(strings.TrimSpace(row[1]))
		if err != nil {
			if i == 0 {
				continue
			}
			return nil, eris.Wrapf(err, "row %d: median income", i+1)
		}
		g, err := income.ParseGEOID(strings.TrimSpace(row[0]))
		if err != nil {
			return nil, eris.Wrapf(err, "row %d", i+1)
		}

		rec := model.TractIncomeRecord{
			TractID:               g.String(),
			MedianHouseholdIncome: median,
			Source:                "import",
			RetrievedAt:           now,
		}
		if len(row) > 2 && strings.TrimSpace(row[2]) != "" {
			ami, err := strconv.Atoi(strings.TrimSpace(row[2]))
			if err != nil {
				return nil, eris.Wrapf(err, "row %d: area median income", i+1)
			}
			rec.AreaMedianIncome = ami
		}
		if err := rec.Validate(); err != nil {
			return nil, eris.Wrapf(err, "row %d", i+1)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
