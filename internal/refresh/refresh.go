// Package refresh runs the offline job that rebuilds the fact table:
// optional extract download, normalization, merge, and materialization.
package refresh

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/user-dashboard/internal/mapping"
	"github.com/sells-group/user-dashboard/internal/metrics"
	"github.com/sells-group/user-dashboard/internal/model"
	"github.com/sells-group/user-dashboard/internal/normalize"
	"github.com/sells-group/user-dashboard/internal/reconcile"
	"github.com/sells-group/user-dashboard/internal/store"
	"github.com/sells-group/user-dashboard/pkg/redash"
)

// ErrSyncRunning is returned when a run is requested while one is active.
var ErrSyncRunning = eris.New("refresh: sync already running")

// Triggers recorded on runs.
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
	TriggerCLI      = "cli"
)

// Materializer atomically replaces the stored fact table.
type Materializer interface {
	ReplaceFacts(ctx context.Context, rows []model.FactRow) (*store.Generation, error)
}

// Invalidator is told when a new generation has been written.
type Invalidator interface {
	Invalidate()
}

// Options wires a Runner.
type Options struct {
	// Paths of the local extracts. Downloaded files replace them when a
	// Redash client is configured.
	Paths normalize.Paths

	// Redash and Extracts enable the download step. DownloadDir receives
	// the files.
	Redash      redash.Client
	Extracts    []redash.Extract
	DownloadDir string

	// MergedCSV, when set, receives the reconciled table.
	MergedCSV string

	Geo   *mapping.Geo
	Store Materializer
	// Cache may be nil.
	Cache Invalidator
}

// Result summarizes one run.
type Result struct {
	Trigger    string            `json:"trigger"`
	Downloaded map[string]string `json:"downloaded,omitempty"`
	Stats      reconcile.Stats   `json:"stats"`
	Generation *store.Generation `json:"generation"`
	Duration   time.Duration     `json:"duration"`
}

// Runner executes refresh runs one at a time.
type Runner struct {
	opts    Options
	running atomic.Bool
	last    atomic.Pointer[Result]
}

// Extract keys, which are also the stems of the downloaded files.
const (
	KeyActivity = "query_1"
	KeyProfile  = "query_2"
	KeyQuality  = "query_3"
)

// Extracts returns the download list for the three query ids.
func Extracts(activityID, profileID, qualityID int) []redash.Extract {
	return []redash.Extract{
		{Key: KeyActivity, QueryID: activityID},
		{Key: KeyProfile, QueryID: profileID},
		{Key: KeyQuality, QueryID: qualityID},
	}
}

// New creates a Runner.
func New(opts Options) *Runner {
	return &Runner{opts: opts}
}

// Running reports whether a run is in progress.
func (r *Runner) Running() bool { return r.running.Load() }

// Last returns the result of the last successful run, or nil.
func (r *Runner) Last() *Result { return r.last.Load() }

// Run performs one refresh. A concurrent call returns ErrSyncRunning
// immediately. Any failure before materialization leaves the stored
// table untouched.
func (r *Runner) Run(ctx context.Context, trigger string) (*Result, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrSyncRunning
	}
	defer r.running.Store(false)

	start := time.Now()
	log := zap.L().With(zap.String("component", "refresh"), zap.String("trigger", trigger))
	log.Info("refresh: run started")

	res, err := r.run(ctx, trigger)
	metrics.SyncDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SyncRuns.WithLabelValues(trigger, metrics.StatusFailed).Inc()
		log.Error("refresh: run failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return nil, err
	}
	res.Duration = time.Since(start)
	metrics.SyncRuns.WithLabelValues(trigger, metrics.StatusOK).Inc()
	r.last.Store(res)

	log.Info("refresh: run complete",
		zap.String("generation", res.Generation.ID),
		zap.Int64("rows", res.Generation.Rows),
		zap.Duration("elapsed", res.Duration),
	)
	return res, nil
}

func (r *Runner) run(ctx context.Context, trigger string) (*Result, error) {
	res := &Result{Trigger: trigger}
	paths := r.opts.Paths

	if r.opts.Redash != nil && len(r.opts.Extracts) > 0 {
		files, err := redash.DownloadAll(ctx, r.opts.Redash, r.opts.Extracts, r.opts.DownloadDir)
		if err != nil {
			return nil, eris.Wrap(err, "refresh: download extracts")
		}
		res.Downloaded = files
		if p, ok := files[KeyActivity]; ok {
			paths.Activity = p
		}
		if p, ok := files[KeyProfile]; ok {
			paths.Profile = p
		}
		if p, ok := files[KeyQuality]; ok {
			paths.Quality = p
		}
	}

	rows, stats, err := Build(ctx, paths, r.opts.Geo)
	if err != nil {
		return nil, err
	}
	res.Stats = stats

	if r.opts.MergedCSV != "" {
		if err := WriteMergedCSV(r.opts.MergedCSV, rows); err != nil {
			return nil, err
		}
	}

	gen, err := r.opts.Store.ReplaceFacts(ctx, rows)
	if err != nil {
		return nil, eris.Wrap(err, "refresh: materialize")
	}
	res.Generation = gen
	metrics.MaterializedRows.Set(float64(gen.Rows))

	if r.opts.Cache != nil {
		r.opts.Cache.Invalidate()
	}
	return res, nil
}

// Build loads the three extracts, merges them, and derives country and
// region. It performs no writes.
func Build(ctx context.Context, paths normalize.Paths, geo *mapping.Geo) ([]model.FactRow, reconcile.Stats, error) {
	set, err := normalize.LoadAll(ctx, paths)
	if err != nil {
		return nil, reconcile.Stats{}, eris.Wrap(err, "refresh: load extracts")
	}
	rows, stats, err := reconcile.Merge(set)
	if err != nil {
		return nil, stats, eris.Wrap(err, "refresh: merge")
	}
	if geo != nil {
		geo.ApplyAll(rows)
	}
	return rows, stats, nil
}

// WriteMergedCSV writes rows to path through a temporary file.
func WriteMergedCSV(path string, rows []model.FactRow) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "refresh: create %s", dir)
		}
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return eris.Wrapf(err, "refresh: create %s", tmp)
	}
	if err := reconcile.WriteCSV(f, rows); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return eris.Wrap(err, "refresh: write merged csv")
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrap(err, "refresh: close merged csv")
	}
	return eris.Wrap(os.Rename(tmp, path), "refresh: rename merged csv")
}
