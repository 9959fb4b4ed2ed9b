package snapshot

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/user-dashboard/internal/mapping"
	"github.com/sells-group/user-dashboard/internal/metrics"
	"github.com/sells-group/user-dashboard/internal/model"
	"github.com/sells-group/user-dashboard/internal/store"
)

// Loader reads the materialized table. store.FactStore satisfies it.
type Loader interface {
	LoadFacts(ctx context.Context) ([]model.FactRow, error)
	CurrentGeneration(ctx context.Context) (*store.Generation, error)
}

// Cache publishes the current FactTable. Readers call Get and never block;
// reloads are serialized and swap the published table atomically.
type Cache struct {
	src Loader
	geo *mapping.Geo

	current atomic.Pointer[FactTable]

	// reloadMu admits one reload at a time. It is never held by a caller
	// that already has a table to return.
	reloadMu sync.Mutex

	mu            sync.Mutex // guards the fields below and the swap
	stale         bool
	epoch         uint64 // bumped by Invalidate
	lastCheck     time.Time
	checkInterval time.Duration
	now           func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithCheckInterval sets how long a loaded table is trusted before the
// store generation is consulted again. Zero checks on every Load.
func WithCheckInterval(d time.Duration) Option {
	return func(c *Cache) { c.checkInterval = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache over src. geo may be nil, in which case country and
// region are served as stored.
func New(src Loader, geo *mapping.Geo, opts ...Option) *Cache {
	c := &Cache{
		src:           src,
		geo:           geo,
		stale:         true,
		checkInterval: 30 * time.Second,
		now:           time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the published table, or an empty table before the first
// successful load. It never returns nil.
func (c *Cache) Get() *FactTable {
	if t := c.current.Load(); t != nil {
		return t
	}
	return Empty()
}

// Invalidate marks the published table stale. The next Load rereads the
// store regardless of the generation check.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.stale = true
	c.epoch++
	c.mu.Unlock()
}

// Load returns a current table. Without force it returns the published
// table when it is not stale and the store generation is unchanged, and it
// returns the published table at once while another reload is in flight.
// A forced Load waits for that reload and then reads the store itself.
// A failed reload returns an empty table with the error; the previously
// published table stays in place for Get.
func (c *Cache) Load(ctx context.Context, force bool) (*FactTable, error) {
	cur := c.current.Load()
	now := c.now()

	if !force && cur != nil && c.fresh(ctx, cur, now) {
		return cur, nil
	}

	if force {
		c.reloadMu.Lock()
	} else if !c.reloadMu.TryLock() {
		return c.Get(), nil
	}
	defer c.reloadMu.Unlock()

	// A reload that finished while we waited may already be current.
	if !force {
		if latest := c.current.Load(); latest != nil && latest != cur && !c.isStale() {
			return latest, nil
		}
	}

	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	t, err := c.reload(ctx)
	if err != nil {
		metrics.SnapshotReloads.WithLabelValues(metrics.StatusFailed).Inc()
		zap.L().Error("snapshot: reload failed", zap.Error(err))
		return Empty(), err
	}
	metrics.SnapshotReloads.WithLabelValues(metrics.StatusOK).Inc()
	metrics.SnapshotRows.Set(float64(t.Len()))

	c.mu.Lock()
	c.current.Store(t)
	c.stale = c.epoch != epoch
	c.lastCheck = now
	c.mu.Unlock()
	return t, nil
}

// fresh reports whether cur may be served without a reload. The store
// generation lookup runs without holding mu.
func (c *Cache) fresh(ctx context.Context, cur *FactTable, now time.Time) bool {
	c.mu.Lock()
	stale, last := c.stale, c.lastCheck
	c.mu.Unlock()

	if stale {
		return false
	}
	if c.checkInterval > 0 && now.Sub(last) < c.checkInterval {
		return true
	}
	gen, err := c.src.CurrentGeneration(ctx)
	if err != nil {
		zap.L().Warn("snapshot: generation check failed, reloading", zap.Error(err))
		return false
	}
	if generationID(gen) != cur.Generation {
		return false
	}
	c.mu.Lock()
	if now.After(c.lastCheck) {
		c.lastCheck = now
	}
	c.mu.Unlock()
	return true
}

func (c *Cache) isStale() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stale
}

func (c *Cache) reload(ctx context.Context) (*FactTable, error) {
	start := time.Now()
	defer func() { metrics.SnapshotReloadDuration.Observe(time.Since(start).Seconds()) }()

	gen, err := c.src.CurrentGeneration(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "snapshot: current generation")
	}
	rows, err := c.src.LoadFacts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "snapshot: load facts")
	}
	if c.geo != nil {
		c.geo.ApplyAll(rows)
	}

	t := NewFactTable(rows, generationID(gen), c.now())
	zap.L().Info("snapshot: table loaded",
		zap.String("generation", t.Generation),
		zap.Int("rows", t.Len()),
		zap.Int("users", len(t.UserIDs())),
		zap.Duration("elapsed", time.Since(start)),
	)
	return t, nil
}

// Watch reloads on a fixed interval until ctx is cancelled, so a
// materialization made by another process is picked up without a request
// paying for the reload.
func (c *Cache) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	log := zap.L().With(zap.String("component", "snapshot.watch"))
	log.Info("starting snapshot watcher", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("snapshot watcher stopped")
			return
		case <-ticker.C:
			if _, err := c.Load(ctx, false); err != nil {
				log.Warn("snapshot: periodic reload failed", zap.Error(err))
			}
		}
	}
}

func generationID(g *store.Generation) string {
	if g == nil {
		return ""
	}
	return g.ID
}
