package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lmi-check/internal/tiger"
)

var tractCmd = &cobra.Command{
	Use:   "tract",
	Short: "Census tract lookups and TIGER/Line boundary downloads",
}

var (
	tractLat    float64
	tractLon    float64
	tractIncome bool
)

var tractLookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Find the census tract containing a point",
	RunE: func(cmd *cobra.Command, args []string) error {
		if tractLat < -90 || tractLat > 90 || tractLon < -180 || tractLon > 180 {
			return eris.Errorf("coordinates out of range: %f,%f", tractLat, tractLon)
		}

		ctx := cmd.Context()
		env, err := initEnv(ctx, "tract", nil)
		if err != nil {
			return err
		}
		defer env.Close()

		geoid, ok := env.Locator.FromCoordinates(ctx, tractLat, tractLon)
		if !ok {
			return eris.Errorf("no tract found at %f,%f", tractLat, tractLon)
		}

		if !tractIncome {
			fmt.Fprintln(cmd.OutOrStdout(), geoid)
			return nil
		}
		cl, err := env.Classifier.Classify(ctx, geoid)
		if err != nil {
			return err
		}
		return printJSON(cmd, cl)
	},
}

var (
	tractState   string
	tractYear    int
	tractDir     string
	tractBaseURL string
)

var tractDownloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download and extract the TIGER/Line tract shapefile for a state",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		url, err := tiger.TractZipURL(tractBaseURL, tractYear, tractState)
		if err != nil {
			return err
		}
		shpPath, err := tiger.Download(ctx, url, tractDir)
		if err != nil {
			return err
		}

		ix, err := tiger.LoadTracts(shpPath)
		if err != nil {
			return err
		}
		zap.L().Info("tract shapefile ready",
			zap.String("path", shpPath),
			zap.Int("tracts", ix.Len()),
		)
		fmt.Fprintln(cmd.OutOrStdout(), shpPath)
		return nil
	},
}

func init() {
	tractLookupCmd.Flags().Float64Var(&tractLat, "lat", 0, "latitude")
	tractLookupCmd.Flags().Float64Var(&tractLon, "lon", 0, "longitude")
	tractLookupCmd.Flags().BoolVar(&tractIncome, "income", false, "also classify the tract's income")
	_ = tractLookupCmd.MarkFlagRequired("lat")
	_ = tractLookupCmd.MarkFlagRequired("lon")

	tractDownloadCmd.Flags().StringVar(&tractState, "state", "", "2-digit state FIPS code")
	tractDownloadCmd.Flags().IntVar(&tractYear, "year", tiger.DefaultYear, "TIGER/Line vintage")
	tractDownloadCmd.Flags().StringVar(&tractDir, "dir", "tiger", "download directory")
	tractDownloadCmd.Flags().StringVar(&tractBaseURL, "base-url", tiger.DefaultBaseURL, "TIGER/Line root URL")
	_ = tractDownloadCmd.MarkFlagRequired("state")

	tractCmd.AddCommand(tractLookupCmd, tractDownloadCmd)
	rootCmd.AddCommand(tractCmd)
}
