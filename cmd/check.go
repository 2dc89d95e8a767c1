package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/lmi-check/internal/lmi"
	"github.com/sells-group/lmi-check/internal/model"
)

var (
	checkPlace  bool
	checkLevel  string
	checkAlt    bool
	checkOutput string
)

var checkCmd = &cobra.Command{
	Use:   "check <address or place>",
	Short: "Check LMI eligibility for one address or place",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := checkOptions(checkPlace, checkLevel, checkAlt)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		env, err := initEnv(ctx, "check", nil)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Resolver.Resolve(ctx, strings.Join(args, " "), opts)
		if err != nil {
			return eris.Wrap(err, "check")
		}
		return writeResult(cmd.OutOrStdout(), res, checkOutput)
	},
}

func init() {
	checkCmd.Flags().BoolVar(&checkPlace, "place", false, "treat the query as a place name")
	checkCmd.Flags().StringVar(&checkLevel, "level", string(model.LevelTract), "geography level: tract or blockGroup")
	checkCmd.Flags().BoolVar(&checkAlt, "alt", false, "prefer the alternate (Esri) geocoder")
	checkCmd.Flags().StringVarP(&checkOutput, "output", "o", "text", "output format: text, json, or yaml")
	rootCmd.AddCommand(checkCmd)
}

// checkOptions turns CLI flags into resolver options.
func checkOptions(place bool, level string, alt bool) (lmi.Options, error) {
	opts := lmi.Options{
		UseAlternateDataSource: alt,
		SearchType:             model.SearchAddress,
	}
	if place {
		opts.SearchType = model.SearchPlace
	}
	lvl, err := parseLevel(level)
	if err != nil {
		return lmi.Options{}, err
	}
	opts.Level = lvl
	return opts, nil
}

func parseLevel(s string) (model.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "tract":
		return model.LevelTract, nil
	case "blockgroup", "block_group", "block-group":
		return model.LevelBlockGroup, nil
	default:
		return "", eris.Errorf("invalid level %q: must be tract or blockGroup", s)
	}
}

func parseSearchType(s string) (model.SearchType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "address":
		return model.SearchAddress, nil
	case "place":
		return model.SearchPlace, nil
	default:
		return "", eris.Errorf("invalid search type %q: must be address or place", s)
	}
}

// writeResult renders res in the requested format.
func writeResult(w io.Writer, res *model.LmiEligibilityResult, format string) error {
	switch strings.ToLower(format) {
	case "", "text":
		_, err := fmt.Fprintln(w, lmi.Summary(res))
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(res); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return enc.Close()
	default:
		return eris.Errorf("unsupported output format: %s", format)
	}
}
