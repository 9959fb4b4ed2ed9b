package redash

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/user-dashboard/internal/resilience"
)

func fastRetry() Option {
	return WithRetry(resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	})
}

func newRedash(t *testing.T, badGateways int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var resultCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/api/queries/11", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Key k", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id": 11, "latest_query_data_id": 501}`))
	})
	mux.HandleFunc("/api/queries/12", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": 12, "latest_query_data_id": null}`))
	})
	mux.HandleFunc("/api/query_results/501", func(w http.ResponseWriter, r *http.Request) {
		if resultCalls.Add(1) <= badGateways {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"query_result": {"id": 501, "data": {
			"columns": [{"name": "user_id"}, {"name": "activity_week"}, {"name": "total_uploads"}],
			"rows": [
				{"user_id": 1, "activity_week": "2024-01-01", "total_uploads": 5},
				{"user_id": 2, "activity_week": null, "total_uploads": 2.5}
			]}}}`))
	})
	mux.HandleFunc("/api/query_results/502", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message": "nope"}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &resultCalls
}

func TestLatestResultID(t *testing.T) {
	srv, _ := newRedash(t, 0)
	c := NewClient(srv.URL+"/", "k", fastRetry())

	id, err := c.LatestResultID(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, int64(501), id)

	_, err = c.LatestResultID(context.Background(), 12)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "never been executed")
}

func TestResult_RetriesBadGateway(t *testing.T) {
	srv, calls := newRedash(t, 2)
	c := NewClient(srv.URL, "k", fastRetry())

	res, err := c.Result(context.Background(), 501)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, res.Data.Rows, 2)
	assert.Len(t, res.Data.Columns, 3)
}

func TestResult_UnexpectedFormat(t *testing.T) {
	srv, _ := newRedash(t, 0)
	c := NewClient(srv.URL, "k", fastRetry())

	_, err := c.Result(context.Background(), 502)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected response format")
}

func TestWriteCSV(t *testing.T) {
	res := &QueryResult{Data: ResultData{
		Columns: []ResultColumn{{Name: "user_id"}, {Name: "username"}, {Name: "flag"}},
		Rows: []map[string]any{
			{"user_id": float64(233), "username": "ada, l", "flag": true},
			{"user_id": 1.5, "username": nil, "flag": []any{"x"}},
		},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, res))
	assert.Equal(t, "user_id,username,flag\n233,\"ada, l\",true\n1.5,,\"[\"\"x\"\"]\"\n", buf.String())
}

func TestWriteCSV_ColumnsFromFirstRow(t *testing.T) {
	res := &QueryResult{Data: ResultData{
		Rows: []map[string]any{{"b": "2", "a": "1"}},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, res))
	assert.Equal(t, "a,b\n1,2\n", buf.String())
}

func TestDownloadAll(t *testing.T) {
	srv, _ := newRedash(t, 1)
	c := NewClient(srv.URL, "k", fastRetry())
	dir := filepath.Join(t.TempDir(), "extracts")

	paths, err := DownloadAll(context.Background(), c, []Extract{{Key: "query_1", QueryID: 11}}, dir)
	require.NoError(t, err)
	require.Contains(t, paths, "query_1")

	data, err := os.ReadFile(paths["query_1"])
	require.NoError(t, err)
	assert.Equal(t, "user_id,activity_week,total_uploads\n1,2024-01-01,5\n2,,2.5\n", string(data))

	_, err = os.Stat(paths["query_1"] + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestDownloadAll_FailsWhenAnyExtractFails(t *testing.T) {
	srv, _ := newRedash(t, 0)
	c := NewClient(srv.URL, "k", fastRetry())

	_, err := DownloadAll(context.Background(), c, []Extract{
		{Key: "query_1", QueryID: 11},
		{Key: "query_2", QueryID: 12},
	}, t.TempDir())
	require.Error(t, err)
}
