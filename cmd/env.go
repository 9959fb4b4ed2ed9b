package main

import (
	"context"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/user-dashboard/internal/config"
	"github.com/sells-group/user-dashboard/internal/mapping"
	"github.com/sells-group/user-dashboard/internal/normalize"
	"github.com/sells-group/user-dashboard/internal/refresh"
	"github.com/sells-group/user-dashboard/internal/resilience"
	"github.com/sells-group/user-dashboard/internal/store"
	"github.com/sells-group/user-dashboard/pkg/redash"
)

// openStore connects to the configured store and applies the schema.
func openStore(ctx context.Context, c *config.Config) (store.FactStore, error) {
	st, err := store.Open(ctx, c.Store.Driver, c.Store.DatabaseURL, &c.Store.Pool)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func loadGeo(c *config.Config) (*mapping.Geo, error) {
	geo, err := mapping.LoadGeo(c.Mappings.CountryNames, c.Mappings.Regions)
	if err != nil {
		return nil, eris.Wrap(err, "load country mappings")
	}
	return geo, nil
}

// sourcePaths resolves the extract files under the sources directory.
func sourcePaths(c *config.Config) normalize.Paths {
	join := func(name string) string {
		if filepath.IsAbs(name) || c.Sources.Dir == "" {
			return name
		}
		return filepath.Join(c.Sources.Dir, name)
	}
	return normalize.Paths{
		Activity: join(c.Sources.ActivityFile),
		Profile:  join(c.Sources.ProfileFile),
		Quality:  join(c.Sources.QualityFile),
	}
}

// newRedash returns nil when no Redash host is configured.
func newRedash(c *config.Config) redash.Client {
	if c.Redash.BaseURL == "" {
		return nil
	}
	return redash.NewClient(c.Redash.BaseURL, c.Redash.APIKey,
		redash.WithTimeout(config.Seconds(c.Redash.TimeoutSecs)),
		redash.WithRetry(resilience.FromSettings(c.Redash.MaxAttempts, config.Seconds(c.Redash.BackoffSecs), 0)),
		redash.WithRateLimit(c.Redash.RateLimit),
	)
}

// runnerOptions wires a refresh run. download enables the Redash step.
func runnerOptions(c *config.Config, st store.FactStore, geo *mapping.Geo, download bool) refresh.Options {
	opts := refresh.Options{
		Paths:     sourcePaths(c),
		MergedCSV: c.Sources.MergedCSV,
		Geo:       geo,
		Store:     st,
	}
	if download {
		if client := newRedash(c); client != nil {
			opts.Redash = client
			opts.Extracts = refresh.Extracts(c.Redash.ActivityQueryID, c.Redash.ProfileQueryID, c.Redash.QualityQueryID)
			opts.DownloadDir = c.Sources.Dir
		} else {
			zap.L().Warn("redash is not configured, using local extracts")
		}
	}
	return opts
}
