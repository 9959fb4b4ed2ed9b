package refresh

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/user-dashboard/internal/mapping"
	"github.com/sells-group/user-dashboard/internal/model"
	"github.com/sells-group/user-dashboard/internal/normalize"
	"github.com/sells-group/user-dashboard/internal/store"
	"github.com/sells-group/user-dashboard/pkg/redash"
)

const (
	activityCSV = "user_id,activity_week,total_uploads\n1,2024-01-01,5\n1,2024-01-08,3\n2,2024-01-01,1\n"
	profileCSV  = "user_id,username,country\n1,ada,France\n2,bob,\n3,ghost,Peru\n"
	qualityCSV  = "user_id,activity_week,photo_likes\n1,2024-01-08,4\n"
)

func writeExtracts(t *testing.T) normalize.Paths {
	t.Helper()
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		return p
	}
	return normalize.Paths{
		Activity: write("query_1.csv", activityCSV),
		Profile:  write("query_2.csv", profileCSV),
		Quality:  write("query_3.csv", qualityCSV),
	}
}

type fakeStore struct {
	mu      sync.Mutex
	rows    []model.FactRow
	err     error
	block   chan struct{}
	started chan struct{}
}

func (f *fakeStore) ReplaceFacts(_ context.Context, rows []model.FactRow) (*store.Generation, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.rows = rows
	return &store.Generation{ID: "g", Rows: int64(len(rows)), MaterializedAt: time.Now()}, nil
}

type fakeCache struct{ invalidated int }

func (c *fakeCache) Invalidate() { c.invalidated++ }

func TestRun_LocalExtracts(t *testing.T) {
	st := &fakeStore{}
	cache := &fakeCache{}
	merged := filepath.Join(t.TempDir(), "out", "join_result.csv")
	geo := mapping.NewGeo(nil, map[string]string{"France": "Western Europe"})

	r := New(Options{Paths: writeExtracts(t), MergedCSV: merged, Geo: geo, Store: st, Cache: cache})
	res, err := r.Run(context.Background(), TriggerCLI)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Stats.Rows)
	assert.Equal(t, int64(3), res.Generation.Rows)
	assert.Equal(t, 1, cache.invalidated)
	assert.Same(t, res, r.Last())
	assert.False(t, r.Running())

	require.Len(t, st.rows, 3)
	assert.Equal(t, "Western Europe", st.rows[0].Region)
	assert.Equal(t, mapping.UnknownCountry, st.rows[2].Country)
	assert.Equal(t, mapping.OtherRegion, st.rows[2].Region)

	data, err := os.ReadFile(merged)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 4)
}

func TestRun_MalformedExtractAbortsWithoutWriting(t *testing.T) {
	paths := writeExtracts(t)
	require.NoError(t, os.WriteFile(paths.Quality, []byte("user_id,activity_week\n1,2024-01-01,extra\n"), 0o644))

	st := &fakeStore{}
	cache := &fakeCache{}
	r := New(Options{Paths: paths, Store: st, Cache: cache})

	_, err := r.Run(context.Background(), TriggerManual)
	require.Error(t, err)
	assert.Nil(t, st.rows)
	assert.Zero(t, cache.invalidated)
	assert.Nil(t, r.Last())
}

func TestRun_StoreFailure(t *testing.T) {
	st := &fakeStore{err: errors.New("disk full")}
	r := New(Options{Paths: writeExtracts(t), Store: st})

	_, err := r.Run(context.Background(), TriggerManual)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "materialize")
}

func TestRun_SingleFlight(t *testing.T) {
	st := &fakeStore{block: make(chan struct{}), started: make(chan struct{})}
	r := New(Options{Paths: writeExtracts(t), Store: st})

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), TriggerSchedule)
		done <- err
	}()
	<-st.started
	assert.True(t, r.Running())

	_, err := r.Run(context.Background(), TriggerManual)
	assert.ErrorIs(t, err, ErrSyncRunning)
	assert.ErrorIs(t, eris.Wrap(err, "api: manual sync"), ErrSyncRunning)
	assert.Contains(t, eris.ToString(err, true), "refresh: sync already running")

	close(st.block)
	require.NoError(t, <-done)
	assert.False(t, r.Running())
}

type fakeRedash struct {
	bodies map[int][]map[string]any
}

func (f *fakeRedash) LatestResultID(_ context.Context, queryID int) (int64, error) {
	if _, ok := f.bodies[queryID]; !ok {
		return 0, errors.New("unknown query")
	}
	return int64(queryID) * 100, nil
}

func (f *fakeRedash) Result(_ context.Context, resultID int64) (*redash.QueryResult, error) {
	rows := f.bodies[int(resultID/100)]
	res := &redash.QueryResult{ID: resultID}
	for k := range rows[0] {
		res.Data.Columns = append(res.Data.Columns, redash.ResultColumn{Name: k})
	}
	res.Data.Rows = rows
	return res, nil
}

func TestRun_DownloadsFromRedash(t *testing.T) {
	client := &fakeRedash{bodies: map[int][]map[string]any{
		7: {{"user_id": 1.0, "activity_week": "2024-01-01", "total_uploads": 2.0}},
		8: {{"user_id": 1.0, "username": "ada"}},
		9: {{"user_id": 1.0, "activity_week": "2024-01-01", "photo_likes": 3.0}},
	}}
	st := &fakeStore{}
	dir := t.TempDir()

	r := New(Options{
		Redash:      client,
		Extracts:    Extracts(7, 8, 9),
		DownloadDir: dir,
		Store:       st,
	})
	res, err := r.Run(context.Background(), TriggerSchedule)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "query_1.csv"), res.Downloaded[KeyActivity])
	require.Len(t, st.rows, 1)
	assert.Equal(t, "ada", st.rows[0].Username)
	assert.Equal(t, int64(2), st.rows[0].TotalUploads)
	assert.Equal(t, int64(3), st.rows[0].PhotoLikes)
}
