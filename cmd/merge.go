package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/user-dashboard/internal/refresh"
)

var (
	mergeOutput   string
	mergeActivity string
	mergeProfile  string
	mergeQuality  string
	mergeDryRun   bool
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge local extracts into the fact table",
	Long:  "Reads the three local extracts, reconciles them per user and week, optionally writes the merged CSV, and materializes the result unless --dry-run is set.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		paths := sourcePaths(cfg)
		if mergeActivity != "" {
			paths.Activity = mergeActivity
		}
		if mergeProfile != "" {
			paths.Profile = mergeProfile
		}
		if mergeQuality != "" {
			paths.Quality = mergeQuality
		}
		output := cfg.Sources.MergedCSV
		if cmd.Flags().Changed("output") {
			output = mergeOutput
		}

		geo, err := loadGeo(cfg)
		if err != nil {
			return err
		}

		if mergeDryRun {
			rows, stats, err := refresh.Build(ctx, paths, geo)
			if err != nil {
				return err
			}
			if output != "" {
				if err := refresh.WriteMergedCSV(output, rows); err != nil {
					return err
				}
			}
			zap.L().Info("merge dry run complete",
				zap.Int("rows", stats.Rows),
				zap.Int("users", stats.Users),
				zap.Int("dropped_empty_weeks", stats.DroppedEmptyWeek),
				zap.String("output", output),
			)
			return nil
		}

		if err := cfg.Validate("merge"); err != nil {
			return err
		}
		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		opts := runnerOptions(cfg, st, geo, false)
		opts.Paths = paths
		opts.MergedCSV = output
		res, err := refresh.New(opts).Run(ctx, refresh.TriggerCLI)
		if err != nil {
			return err
		}

		zap.L().Info("merge complete",
			zap.String("generation", res.Generation.ID),
			zap.Int64("rows", res.Generation.Rows),
			zap.Int("users", res.Stats.Users),
			zap.String("output", output),
		)
		return nil
	},
}

func init() {
	mergeCmd.Flags().StringVarP(&mergeOutput, "output", "o", "", "merged CSV path (default from config, empty to skip)")
	mergeCmd.Flags().StringVar(&mergeActivity, "activity", "", "activity extract path")
	mergeCmd.Flags().StringVar(&mergeProfile, "profile", "", "profile extract path")
	mergeCmd.Flags().StringVar(&mergeQuality, "quality", "", "quality extract path")
	mergeCmd.Flags().BoolVar(&mergeDryRun, "dry-run", false, "merge without writing to the store")
	rootCmd.AddCommand(mergeCmd)
}
