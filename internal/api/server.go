// Package api exposes the dashboard operations over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/user-dashboard/internal/metrics"
	"github.com/sells-group/user-dashboard/internal/query"
	"github.com/sells-group/user-dashboard/internal/refresh"
	"github.com/sells-group/user-dashboard/internal/resultcache"
	"github.com/sells-group/user-dashboard/internal/selection"
	"github.com/sells-group/user-dashboard/internal/snapshot"
)

// Snapshots is the fact table source. *snapshot.Cache satisfies it.
type Snapshots interface {
	Get() *snapshot.FactTable
	Load(ctx context.Context, force bool) (*snapshot.FactTable, error)
}

// Refresher runs the offline rebuild. *refresh.Runner satisfies it.
type Refresher interface {
	Run(ctx context.Context, trigger string) (*refresh.Result, error)
	Running() bool
}

// Deps wires a Server. Results and Refresher may be nil.
type Deps struct {
	Snapshots Snapshots
	Results   resultcache.Cache
	Refresher Refresher

	PageSize       int
	ExportFilename string
	RequestTimeout time.Duration
	SessionTTL     time.Duration
	CORSOrigins    []string

	// BaseContext bounds background sync runs started over HTTP.
	BaseContext context.Context
}

// Server serves the dashboard API.
type Server struct {
	deps     Deps
	sessions *sessionStore
	now      func() time.Time

	options atomic.Pointer[cachedOptions]
}

type cachedOptions struct {
	generation string
	opts       query.Options
}

// New creates a Server.
func New(d Deps) *Server {
	if d.PageSize <= 0 {
		d.PageSize = selection.DefaultPageSize
	}
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 30 * time.Second
	}
	if d.BaseContext == nil {
		d.BaseContext = context.Background()
	}
	s := &Server{deps: d, now: time.Now}
	s.sessions = newSessionStore(d.SessionTTL, func() time.Time { return s.now() })
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	origins := s.deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(s.deps.RequestTimeout))

		r.Get("/options", s.handleOptions)
		r.Post("/reload", s.handleReload)
		r.Post("/sync", s.handleSync)

		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Post("/filter", s.handleFilter)
			r.Post("/reset", s.handleReset)
			r.Get("/page", s.handlePage)
			r.Post("/selection", s.handleSelection)
			r.Get("/export", s.handleExport)
		})
	})
	return r
}

// SweepSessions drops idle sessions every interval until ctx ends.
func (s *Server) SweepSessions(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sessions.sweep(); n > 0 {
				zap.L().Debug("api: expired sessions", zap.Int("removed", n))
			}
		}
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// table returns a current snapshot. A failed reload is logged and the
// request continues on whatever Get returns, which may be empty.
func (s *Server) table(ctx context.Context) *snapshot.FactTable {
	t, err := s.deps.Snapshots.Load(ctx, false)
	if err != nil {
		zap.L().Warn("api: snapshot unavailable, serving last table", zap.Error(err))
		return s.deps.Snapshots.Get()
	}
	return t
}

func (s *Server) optionsFor(t *snapshot.FactTable) query.Options {
	if c := s.options.Load(); c != nil && c.generation == t.Generation && !t.IsEmpty() {
		return c.opts
	}
	opts := query.BuildOptions(t)
	if !t.IsEmpty() {
		s.options.Store(&cachedOptions{generation: t.Generation, opts: opts})
	}
	return opts
}

// filterIDs runs fs against t, consulting the result cache first.
func (s *Server) filterIDs(ctx context.Context, t *snapshot.FactTable, fs query.FilterState) []string {
	start := time.Now()
	key := resultcache.Key(t.Generation, fs.Key())

	if s.deps.Results != nil && !t.IsEmpty() {
		ids, ok, err := s.deps.Results.Get(ctx, key)
		if err != nil {
			zap.L().Warn("api: result cache get failed", zap.Error(err))
		}
		if ok {
			metrics.FilterDuration.WithLabelValues("hit").Observe(time.Since(start).Seconds())
			return ids
		}
	}

	ids := query.Filter(t, fs)
	metrics.FilterDuration.WithLabelValues("miss").Observe(time.Since(start).Seconds())

	if s.deps.Results != nil && !t.IsEmpty() {
		if err := s.deps.Results.Set(ctx, key, ids); err != nil {
			zap.L().Warn("api: result cache set failed", zap.Error(err))
		}
	}
	return ids
}

// sync brings a session up to date with t. A session that last saw another
// generation has its filter re-run, which counts as a filter change.
// Callers hold sess.mu.
func (s *Server) sync(ctx context.Context, sess *session, t *snapshot.FactTable) {
	if sess.generation == t.Generation {
		return
	}
	sess.sel.FilterChanged(s.filterIDs(ctx, t, sess.filter))
	sess.generation = t.Generation
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session, bool) {
	sess, ok := s.sessions.get(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "session not found"})
		return nil, false
	}
	return sess, true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	t := s.deps.Snapshots.Get()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"generation": t.Generation,
		"rows":       t.Len(),
		"sessions":   s.sessions.len(),
	})
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.optionsFor(s.table(r.Context())))
}

func (s *Server) handleSync(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Refresher == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "sync is not configured"})
		return
	}
	if s.deps.Refresher.Running() {
		writeJSON(w, http.StatusConflict, errorBody{Error: refresh.ErrSyncRunning.Error()})
		return
	}
	go func() {
		_, err := s.deps.Refresher.Run(s.deps.BaseContext, refresh.TriggerManual)
		if err != nil && !errors.Is(err, refresh.ErrSyncRunning) {
			zap.L().Error("api: manual sync failed", zap.Error(err))
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
