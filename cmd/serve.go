package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/user-dashboard/internal/api"
	"github.com/sells-group/user-dashboard/internal/config"
	"github.com/sells-group/user-dashboard/internal/refresh"
	"github.com/sells-group/user-dashboard/internal/resultcache"
	"github.com/sells-group/user-dashboard/internal/scheduler"
	"github.com/sells-group/user-dashboard/internal/snapshot"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard API and the daily sync schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
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

		snaps := snapshot.New(st, geo, snapshot.WithCheckInterval(config.Seconds(cfg.Cache.CheckIntervalSecs)))
		if _, err := snaps.Load(ctx, true); err != nil {
			zap.L().Warn("initial snapshot load failed, serving an empty table", zap.Error(err))
		}

		results, err := resultcache.Open(ctx, resultcache.Config{
			Driver:     cfg.Cache.Driver,
			RedisAddr:  cfg.Cache.RedisAddr,
			RedisDB:    cfg.Cache.RedisDB,
			TTL:        config.Seconds(cfg.Cache.TTLSecs),
			MaxEntries: cfg.Cache.MaxEntries,
		})
		if err != nil {
			return err
		}
		defer results.Close() //nolint:errcheck

		opts := runnerOptions(cfg, st, geo, true)
		opts.Cache = snaps
		runner := refresh.New(opts)

		if cfg.Schedule.Enabled {
			sched, err := scheduler.New(ctx, cfg.Schedule.Cron, runner)
			if err != nil {
				return err
			}
			sched.Start()
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				sched.Stop(stopCtx)
			}()
		}

		srv := api.New(api.Deps{
			Snapshots:      snaps,
			Results:        results,
			Refresher:      runner,
			PageSize:       cfg.Dashboard.PageSize,
			ExportFilename: cfg.Dashboard.ExportFilename,
			RequestTimeout: config.Seconds(cfg.Server.RequestTimeoutSecs),
			SessionTTL:     time.Duration(cfg.Server.SessionTTLMins) * time.Minute,
			CORSOrigins:    cfg.Server.CORSOrigins,
			BaseContext:    ctx,
		})

		if secs := cfg.Cache.WatchIntervalSecs; secs > 0 {
			go snaps.Watch(ctx, config.Seconds(secs))
		}
		go srv.SweepSessions(ctx, time.Minute)

		return startServer(ctx, srv.Handler(), resolvePort(servePort, cfg.Server.Port))
	},
}

// resolvePort prefers the flag value over the configured port.
func resolvePort(flag, configured int) int {
	if flag != 0 {
		return flag
	}
	return configured
}

// startServer serves h until ctx is done, then shuts down gracefully.
func startServer(ctx context.Context, h http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("server shutdown", zap.Error(err))
		}
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}

	return nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
