package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/user-dashboard/internal/refresh"
)

var syncSkipDownload bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Download the extracts from Redash, merge them, and materialize the fact table",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mode := "sync"
		if syncSkipDownload {
			mode = "merge"
		}
		if err := cfg.Validate(mode); err != nil {
			return err
		}

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		geo, err := loadGeo(cfg)
		if err != nil {
			return err
		}

		runner := refresh.New(runnerOptions(cfg, st, geo, !syncSkipDownload))
		res, err := runner.Run(ctx, refresh.TriggerCLI)
		if err != nil {
			return err
		}

		zap.L().Info("sync complete",
			zap.String("generation", res.Generation.ID),
			zap.Int64("rows", res.Generation.Rows),
			zap.Int("users", res.Stats.Users),
			zap.Int("dropped_empty_weeks", res.Stats.DroppedEmptyWeek),
			zap.Duration("elapsed", res.Duration),
		)
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncSkipDownload, "skip-download", false, "merge the extracts already on disk")
	rootCmd.AddCommand(syncCmd)
}
