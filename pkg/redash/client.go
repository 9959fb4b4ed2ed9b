// Package redash downloads saved query results from a Redash instance and
// writes them as CSV extracts.
package redash

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/user-dashboard/internal/fetcher"
	"github.com/sells-group/user-dashboard/internal/resilience"
)

// Client defines the Redash operations used by the extract sync.
type Client interface {
	// LatestResultID returns the id of the most recent result of a saved query.
	LatestResultID(ctx context.Context, queryID int) (int64, error)
	// Result downloads a query result by id.
	Result(ctx context.Context, resultID int64) (*QueryResult, error)
}

// QueryResult is the payload of /api/query_results/{id}.
type QueryResult struct {
	ID          int64      `json:"id"`
	RetrievedAt time.Time  `json:"retrieved_at"`
	Data        ResultData `json:"data"`
}

// ResultData holds the tabular part of a query result.
type ResultData struct {
	Columns []ResultColumn   `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// ResultColumn describes one result column.
type ResultColumn struct {
	Name         string `json:"name"`
	FriendlyName string `json:"friendly_name"`
	Type         string `json:"type"`
}

type queryResponse struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	LatestQueryDataID *int64 `json:"latest_query_data_id"`
}

type resultResponse struct {
	QueryResult *QueryResult `json:"query_result"`
}

// Option configures the Redash client.
type Option func(*options)

type options struct {
	timeout time.Duration
	retry   resilience.RetryConfig
	limit   rate.Limit
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(o *options) { o.retry = cfg }
}

// WithRateLimit caps requests per second against the Redash host.
func WithRateLimit(perSecond float64) Option {
	return func(o *options) { o.limit = rate.Limit(perSecond) }
}

type httpClient struct {
	baseURL string
	fetch   fetcher.Fetcher
}

// NewClient creates a Redash client authenticating with a user or query
// API key.
func NewClient(baseURL, apiKey string, opts ...Option) Client {
	o := options{
		timeout: 2 * time.Minute,
		retry:   resilience.DefaultRetryConfig(),
		limit:   2,
	}
	for _, opt := range opts {
		opt(&o)
	}

	base := strings.TrimRight(baseURL, "/")
	limiters := map[string]*rate.Limiter{}
	if host := hostOf(base); host != "" {
		limiters[host] = rate.NewLimiter(o.limit, 1)
	}
	retry := o.retry
	retry.OnRetry = resilience.RetryLogger("redash.download")

	return &httpClient{
		baseURL: base,
		fetch: fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:    "user-dashboard/1.0",
			Timeout:      o.timeout,
			Headers:      map[string]string{"Authorization": "Key " + apiKey},
			Retry:        retry,
			RateLimiters: limiters,
		}),
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

func getJSON[T any](ctx context.Context, c *httpClient, path string) (*T, error) {
	body, err := c.fetch.Download(ctx, c.baseURL+path)
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck

	var v T
	if err := json.NewDecoder(body).Decode(&v); err != nil {
		return nil, eris.Wrapf(err, "redash: decode %s", path)
	}
	return &v, nil
}

func (c *httpClient) LatestResultID(ctx context.Context, queryID int) (int64, error) {
	q, err := getJSON[queryResponse](ctx, c, fmt.Sprintf("/api/queries/%d", queryID))
	if err != nil {
		return 0, eris.Wrapf(err, "redash: get query %d", queryID)
	}
	if q.LatestQueryDataID == nil {
		return 0, eris.Errorf("redash: query %d has never been executed", queryID)
	}
	return *q.LatestQueryDataID, nil
}

func (c *httpClient) Result(ctx context.Context, resultID int64) (*QueryResult, error) {
	r, err := getJSON[resultResponse](ctx, c, fmt.Sprintf("/api/query_results/%d", resultID))
	if err != nil {
		return nil, eris.Wrapf(err, "redash: get result %d", resultID)
	}
	if r.QueryResult == nil {
		return nil, eris.Errorf("redash: result %d: unexpected response format", resultID)
	}
	return r.QueryResult, nil
}

// WriteCSV writes a query result as CSV with a header row. Column order
// follows the result's column list; when the list is empty the keys of
// the first row are used in sorted order.
func WriteCSV(w io.Writer, res *QueryResult) error {
	names := make([]string, 0, len(res.Data.Columns))
	for _, col := range res.Data.Columns {
		names = append(names, col.Name)
	}
	if len(names) == 0 && len(res.Data.Rows) > 0 {
		for k := range res.Data.Rows[0] {
			names = append(names, k)
		}
		slices.Sort(names)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(names); err != nil {
		return eris.Wrap(err, "redash: write header")
	}
	record := make([]string, len(names))
	for _, row := range res.Data.Rows {
		for i, name := range names {
			record[i] = formatCell(row[name])
		}
		if err := cw.Write(record); err != nil {
			return eris.Wrap(err, "redash: write row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "redash: flush csv")
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

// Extract names one saved query to download.
type Extract struct {
	Key     string // output file stem, e.g. "query_1"
	QueryID int
}

// DownloadAll fetches the latest result of every extract concurrently and
// writes each to dir/<key>.csv. It returns the written paths keyed by
// extract key. A file is written to a temporary name first and renamed
// into place, so a failed run never leaves a truncated extract.
func DownloadAll(ctx context.Context, c Client, extracts []Extract, dir string) (map[string]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "redash: create output dir %s", dir)
	}

	paths := make([]string, len(extracts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(3)
	for i, ex := range extracts {
		g.Go(func() error {
			path, err := downloadOne(gctx, c, ex, dir)
			if err != nil {
				return err
			}
			paths[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(extracts))
	for i, ex := range extracts {
		out[ex.Key] = paths[i]
	}
	return out, nil
}

func downloadOne(ctx context.Context, c Client, ex Extract, dir string) (string, error) {
	log := zap.L().With(zap.String("extract", ex.Key), zap.Int("query_id", ex.QueryID))

	resultID, err := c.LatestResultID(ctx, ex.QueryID)
	if err != nil {
		return "", err
	}
	res, err := c.Result(ctx, resultID)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, ex.Key+".csv")
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return "", eris.Wrapf(err, "redash: create %s", tmp)
	}
	if err := WriteCSV(f, res); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", eris.Wrapf(err, "redash: close %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", eris.Wrapf(err, "redash: rename %s", tmp)
	}

	log.Info("redash: extract downloaded",
		zap.Int64("result_id", resultID),
		zap.Int("rows", len(res.Data.Rows)),
		zap.String("path", path),
	)
	return path, nil
}
