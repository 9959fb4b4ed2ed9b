package snapshot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/user-dashboard/internal/mapping"
	"github.com/sells-group/user-dashboard/internal/model"
	"github.com/sells-group/user-dashboard/internal/store"
)

type fakeLoader struct {
	mu       sync.Mutex
	rows     []model.FactRow
	gen      string
	loadErr  error
	genErr   error
	loads    int
	genCalls int

	// When set, LoadFacts signals entered and then waits on release.
	entered chan struct{}
	release chan struct{}
}

func (f *fakeLoader) LoadFacts(_ context.Context) ([]model.FactRow, error) {
	if f.release != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	out := make([]model.FactRow, len(f.rows))
	copy(out, f.rows)
	return out, nil
}

func (f *fakeLoader) CurrentGeneration(_ context.Context) (*store.Generation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.genCalls++
	if f.genErr != nil {
		return nil, f.genErr
	}
	if f.gen == "" {
		return nil, nil
	}
	return &store.Generation{ID: f.gen, Rows: int64(len(f.rows))}, nil
}

func (f *fakeLoader) set(gen string, rows []model.FactRow) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen = gen
	f.rows = rows
}

func week(s string) time.Time {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func facts() []model.FactRow {
	return []model.FactRow{
		{UserID: "1", ActivityWeek: week("2024-01-01"), Profile: model.Profile{Country: "Deutschland"}},
		{UserID: "1", ActivityWeek: week("2024-01-08"), Profile: model.Profile{Country: "Deutschland"}},
		{UserID: "2", ActivityWeek: week("2024-01-01"), Profile: model.Profile{Country: "Atlantis"}},
	}
}

func testGeo() *mapping.Geo {
	return mapping.NewGeo(
		map[string]string{"Deutschland": "Germany"},
		map[string]string{"Germany": "Europe"},
	)
}

func TestGetBeforeLoadIsEmpty(t *testing.T) {
	c := New(&fakeLoader{}, nil)
	tbl := c.Get()
	require.NotNil(t, tbl)
	assert.True(t, tbl.IsEmpty())
	assert.Empty(t, tbl.UserIDs())
}

func TestLoad_AppliesGeoAndIndexes(t *testing.T) {
	src := &fakeLoader{}
	src.set("g1", facts())
	c := New(src, testGeo())

	tbl, err := c.Load(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "g1", tbl.Generation)
	assert.Equal(t, 3, tbl.Len())
	assert.Equal(t, []string{"1", "2"}, tbl.UserIDs())
	assert.Equal(t, []int{0, 1}, tbl.UserRows("1"))
	assert.True(t, tbl.HasUser("2"))
	assert.False(t, tbl.HasUser("3"))

	assert.Equal(t, "Germany", tbl.Rows[0].Country)
	assert.Equal(t, "Europe", tbl.Rows[0].Region)
	assert.Equal(t, mapping.OtherRegion, tbl.Rows[2].Region)
	assert.Same(t, tbl, c.Get())
}

func TestLoad_ReusesTableWhileGenerationUnchanged(t *testing.T) {
	src := &fakeLoader{}
	src.set("g1", facts())
	c := New(src, nil, WithCheckInterval(0))

	first, err := c.Load(context.Background(), false)
	require.NoError(t, err)
	second, err := c.Load(context.Background(), false)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, src.loads)
}

func TestLoad_CheckIntervalSkipsGenerationLookup(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeLoader{}
	src.set("g1", facts())
	c := New(src, nil, WithCheckInterval(time.Minute), WithClock(func() time.Time { return now }))

	_, err := c.Load(context.Background(), false)
	require.NoError(t, err)
	calls := src.genCalls

	src.set("g2", facts()[:1])
	tbl, err := c.Load(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "g1", tbl.Generation)
	assert.Equal(t, calls, src.genCalls)

	now = now.Add(2 * time.Minute)
	tbl, err = c.Load(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "g2", tbl.Generation)
	assert.Equal(t, 1, tbl.Len())
}

func TestLoad_NewGenerationReloads(t *testing.T) {
	src := &fakeLoader{}
	src.set("g1", facts())
	c := New(src, nil, WithCheckInterval(0))

	_, err := c.Load(context.Background(), false)
	require.NoError(t, err)

	src.set("g2", facts()[:2])
	tbl, err := c.Load(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "g2", tbl.Generation)
	assert.Equal(t, 2, src.loads)
}

func TestLoad_ForceAndInvalidate(t *testing.T) {
	src := &fakeLoader{}
	src.set("g1", facts())
	c := New(src, nil)

	_, err := c.Load(context.Background(), false)
	require.NoError(t, err)

	_, err = c.Load(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, src.loads)

	c.Invalidate()
	_, err = c.Load(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 3, src.loads)
}

func TestLoad_FailureReturnsEmptyAndKeepsPublished(t *testing.T) {
	src := &fakeLoader{}
	src.set("g1", facts())
	c := New(src, nil)

	good, err := c.Load(context.Background(), false)
	require.NoError(t, err)

	src.loadErr = errors.New("connection refused")
	tbl, err := c.Load(context.Background(), true)
	require.Error(t, err)
	require.NotNil(t, tbl)
	assert.True(t, tbl.IsEmpty())
	assert.Same(t, good, c.Get())

	src.loadErr = nil
	again, err := c.Load(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 3, again.Len())
}

func TestLoad_FirstFailureLeavesEmpty(t *testing.T) {
	src := &fakeLoader{genErr: errors.New("no such table")}
	c := New(src, nil)

	tbl, err := c.Load(context.Background(), false)
	require.Error(t, err)
	assert.True(t, tbl.IsEmpty())
	assert.True(t, c.Get().IsEmpty())
}

func TestConcurrentReadersSeeWholeTables(t *testing.T) {
	src := &fakeLoader{}
	src.set("g1", facts())
	c := New(src, nil, WithCheckInterval(0))
	_, err := c.Load(context.Background(), false)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, _ = c.Load(context.Background(), true)
				return
			}
			tbl := c.Get()
			assert.Equal(t, 3, tbl.Len())
			assert.Len(t, tbl.UserIDs(), 2)
		}(i)
	}
	wg.Wait()
}

func TestLoad_ReadersDoNotWaitForInFlightReload(t *testing.T) {
	src := &fakeLoader{}
	src.set("g1", facts())
	c := New(src, nil, WithCheckInterval(time.Hour))
	published, err := c.Load(context.Background(), false)
	require.NoError(t, err)

	src.entered = make(chan struct{}, 1)
	src.release = make(chan struct{})
	forced := make(chan error, 1)
	go func() {
		_, err := c.Load(context.Background(), true)
		forced <- err
	}()
	<-src.entered

	got := make(chan *FactTable, 1)
	go func() {
		tbl, _ := c.Load(context.Background(), false)
		got <- tbl
	}()
	select {
	case tbl := <-got:
		assert.Same(t, published, tbl)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Load(false) waited for the in-flight reload")
	}

	c.Invalidate()
	stale := make(chan *FactTable, 1)
	go func() {
		tbl, _ := c.Load(context.Background(), false)
		stale <- tbl
	}()
	select {
	case tbl := <-stale:
		assert.Same(t, published, tbl)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("stale Load(false) waited for the in-flight reload")
	}

	close(src.release)
	require.NoError(t, <-forced)
	assert.NotSame(t, published, c.Get())

	// The invalidation raced the reload, so the next Load reads again.
	src.release = nil
	_, err = c.Load(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 3, src.loads)
}

func TestWatchStopsOnCancel(t *testing.T) {
	src := &fakeLoader{}
	src.set("g1", facts())
	c := New(src, nil, WithCheckInterval(0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Watch(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return !c.Get().IsEmpty() }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watch did not stop")
	}
}
