package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/sells-group/user-dashboard/internal/export"
	"github.com/sells-group/user-dashboard/internal/metrics"
	"github.com/sells-group/user-dashboard/internal/query"
	"github.com/sells-group/user-dashboard/internal/selection"
)

// ReloadFailedMessage is what clients see when a snapshot reload fails.
const ReloadFailedMessage = "reload failed"

type errorBody struct {
	Error string `json:"error"`
}

// sessionResponse is the state returned after every selection-affecting call.
type sessionResponse struct {
	SessionID   string             `json:"session_id"`
	Generation  string             `json:"generation"`
	FilteredIDs []string           `json:"filtered_ids"`
	SelectedIDs []string           `json:"selected_ids"`
	AllChecked  bool               `json:"all_checked"`
	Page        int                `json:"page"`
	PageSize    int                `json:"page_size"`
	TotalPages  int                `json:"total_pages"`
	Trigger     string             `json:"trigger,omitempty"`
	Issues      []query.Issue      `json:"issues,omitempty"`
	Options     *query.Options     `json:"options,omitempty"`
	Filter      *query.FilterState `json:"filter,omitempty"`
}

type pageResponse struct {
	*query.PageView
	AllChecked bool `json:"all_checked"`
}

type reloadRequest struct {
	Force     bool   `json:"force"`
	SessionID string `json:"session_id"`
}

type reloadResponse struct {
	Generation string   `json:"generation"`
	Rows       int      `json:"rows"`
	IDs        []string `json:"ids"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: write response", zap.Error(err))
	}
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) state(sess *session, generation string) sessionResponse {
	return sessionResponse{
		SessionID:   sess.id,
		Generation:  generation,
		FilteredIDs: nonNil(sess.sel.Filtered()),
		SelectedIDs: nonNil(sess.sel.Selected()),
		AllChecked:  sess.sel.AllChecked(),
		Page:        sess.sel.Page(),
		PageSize:    sess.sel.PageSize(),
		TotalPages:  sess.sel.TotalPages(),
		Trigger:     string(sess.sel.LastTrigger()),
	}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	t := s.table(r.Context())
	sess := s.sessions.create(s.deps.PageSize)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.sel.FilterChanged(s.filterIDs(r.Context(), t, sess.filter))
	sess.generation = t.Generation

	resp := s.state(sess, t.Generation)
	opts := s.optionsFor(t)
	resp.Options = &opts
	resp.Filter = &sess.filter
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var raw query.RawFilter
	if err := decodeJSON(r, &raw); err != nil {
		zap.L().Warn("api: undecodable filter, ignoring", zap.String("session", sess.id), zap.Error(err))
		raw = query.RawFilter{}
	}
	fs, issues := query.ParseFilter(raw)
	for _, is := range issues {
		zap.L().Info("api: filter input ignored",
			zap.String("session", sess.id),
			zap.String("field", is.Field),
			zap.String("value", is.Value),
			zap.String("reason", is.Reason),
		)
	}

	t := s.table(r.Context())

	sess.mu.Lock()
	defer sess.mu.Unlock()
	ids := s.filterIDs(r.Context(), t, fs)
	if sess.generation == t.Generation && sortOnly(sess.filter, fs) {
		sess.sel.SortChanged(ids)
	} else {
		sess.sel.FilterChanged(ids)
	}
	sess.filter = fs
	sess.generation = t.Generation

	resp := s.state(sess, t.Generation)
	resp.Issues = issues
	opts := s.optionsFor(t)
	resp.Options = &opts
	resp.Filter = &sess.filter
	writeJSON(w, http.StatusOK, resp)
}

// sortOnly reports whether next differs from prev in sort order alone.
func sortOnly(prev, next query.FilterState) bool {
	if prev.SortBy == next.SortBy && prev.SortDesc == next.SortDesc {
		return false
	}
	next.SortBy, next.SortDesc = prev.SortBy, prev.SortDesc
	return prev.Key() == next.Key()
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	t := s.table(r.Context())

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.filter = query.DefaultFilter()
	sess.sel.FilterChanged(s.filterIDs(r.Context(), t, sess.filter))
	sess.generation = t.Generation

	resp := s.state(sess, t.Generation)
	opts := s.optionsFor(t)
	resp.Options = &opts
	resp.Filter = &sess.filter
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	t := s.table(r.Context())

	sess.mu.Lock()
	defer sess.mu.Unlock()
	s.sync(r.Context(), sess, t)

	if v := q.Get("size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			sess.sel.SetPageSize(n)
		} else {
			zap.L().Info("api: page size ignored", zap.String("size", v))
		}
	}
	if v := q.Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			sess.sel.GoTo(n)
		} else {
			zap.L().Info("api: page ignored", zap.String("page", v))
		}
	}
	switch q.Get("nav") {
	case "next":
		sess.sel.Navigate(1)
	case "prev":
		sess.sel.Navigate(-1)
	}

	aggs := query.Aggregate(t, sess.filter, sess.sel.PageIDs())
	view := query.Render(aggs, sess.sel.IsSelected,
		sess.sel.Page(), sess.sel.PageSize(), sess.sel.TotalPages(), len(sess.sel.Filtered()))
	writeJSON(w, http.StatusOK, pageResponse{PageView: view, AllChecked: sess.sel.AllChecked()})
}

func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var ev selection.Event
	if err := decodeJSON(r, &ev); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid selection event"})
		return
	}
	t := s.table(r.Context())

	sess.mu.Lock()
	defer sess.mu.Unlock()
	s.sync(r.Context(), sess, t)
	if err := sess.sel.Apply(ev); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.state(sess, t.Generation))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	f, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	t := s.table(r.Context())

	sess.mu.Lock()
	s.sync(r.Context(), sess, t)
	aggs := export.Rows(t, sess.filter, sess.sel.ExportIDs(), sess.sel.Filtered())
	sess.mu.Unlock()

	var buf bytes.Buffer
	err = export.Write(&buf, f, aggs)
	switch {
	case errors.Is(err, export.ErrExportEmpty):
		metrics.Exports.WithLabelValues(string(f), metrics.StatusEmpty).Inc()
		writeJSON(w, http.StatusOK, map[string]string{"notice": export.EmptyNotice})
		return
	case err != nil:
		metrics.Exports.WithLabelValues(string(f), metrics.StatusFailed).Inc()
		zap.L().Error("api: export failed", zap.String("session", sess.id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "export failed"})
		return
	}
	metrics.Exports.WithLabelValues(string(f), metrics.StatusOK).Inc()

	w.Header().Set("Content-Type", f.ContentType())
	w.Header().Set("Content-Disposition",
		`attachment; filename="`+export.Filename(s.deps.ExportFilename, f, s.now())+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		zap.L().Debug("api: write export", zap.Error(err))
	}
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	var req reloadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid reload request"})
		return
	}
	t, err := s.deps.Snapshots.Load(r.Context(), req.Force)
	if err != nil {
		zap.L().Error("api: reload failed", zap.Bool("force", req.Force), zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: ReloadFailedMessage})
		return
	}

	ids := s.filterIDs(r.Context(), t, query.DefaultFilter())
	if req.SessionID != "" {
		if sess, ok := s.sessions.get(req.SessionID); ok {
			sess.mu.Lock()
			sess.filter = query.DefaultFilter()
			sess.sel.FilterChanged(ids)
			sess.generation = t.Generation
			sess.mu.Unlock()
		}
	}
	writeJSON(w, http.StatusOK, reloadResponse{Generation: t.Generation, Rows: t.Len(), IDs: nonNil(ids)})
}
