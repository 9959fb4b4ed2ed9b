package api

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/user-dashboard/internal/metrics"
	"github.com/sells-group/user-dashboard/internal/query"
	"github.com/sells-group/user-dashboard/internal/selection"
)

// session is the per-browser dashboard state. mu guards filter, sel and
// generation; touched belongs to the store's lock.
type session struct {
	mu         sync.Mutex
	id         string
	filter     query.FilterState
	sel        *selection.State
	generation string
	touched    time.Time
}

// sessionStore holds live sessions and expires idle ones.
type sessionStore struct {
	mu  sync.Mutex
	m   map[string]*session
	ttl time.Duration
	now func() time.Time
}

func newSessionStore(ttl time.Duration, now func() time.Time) *sessionStore {
	if ttl <= 0 {
		ttl = 4 * time.Hour
	}
	return &sessionStore{m: make(map[string]*session), ttl: ttl, now: now}
}

func (s *sessionStore) create(pageSize int) *session {
	sess := &session{
		id:      uuid.NewString(),
		filter:  query.DefaultFilter(),
		sel:     selection.New(nil, pageSize),
		touched: s.now(),
	}
	s.mu.Lock()
	s.m[sess.id] = sess
	n := len(s.m)
	s.mu.Unlock()
	metrics.ActiveSessions.Set(float64(n))
	return sess
}

func (s *sessionStore) get(id string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[id]
	if !ok {
		return nil, false
	}
	now := s.now()
	if now.Sub(sess.touched) > s.ttl {
		delete(s.m, id)
		metrics.ActiveSessions.Set(float64(len(s.m)))
		return nil, false
	}
	sess.touched = now
	return sess, true
}

// sweep drops sessions idle for longer than the ttl and returns how many
// were removed.
func (s *sessionStore) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for id, sess := range s.m {
		if now.Sub(sess.touched) > s.ttl {
			delete(s.m, id)
			removed++
		}
	}
	metrics.ActiveSessions.Set(float64(len(s.m)))
	return removed
}

func (s *sessionStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
