package normalize

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/user-dashboard/internal/fetcher"
	"github.com/sells-group/user-dashboard/internal/model"
)

// Paths locates the three extracts on disk.
type Paths struct {
	Activity string
	Profile  string
	Quality  string
}

// Set holds the three normalized extracts of one run.
type Set struct {
	Activity *Extract
	Profile  *Extract
	Quality  *Extract
}

// ReadTable reads a CSV or XLSX extract, chosen by file extension.
func ReadTable(ctx context.Context, path string) (*fetcher.Table, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		t, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{})
		return t, eris.Wrapf(err, "normalize: read %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "normalize: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	t, err := fetcher.ReadCSVTable(ctx, f)
	return t, eris.Wrapf(err, "normalize: read %s", path)
}

// Load reads and normalizes one extract file.
func Load(ctx context.Context, path string, source model.Source) (*Extract, error) {
	raw, err := ReadTable(ctx, path)
	if err != nil {
		return nil, err
	}
	return Normalize(raw, source)
}

// LoadAll reads and normalizes the three extracts in parallel. Any failure
// fails the whole set.
func LoadAll(ctx context.Context, p Paths) (*Set, error) {
	set := &Set{}
	g, gctx := errgroup.WithContext(ctx)
	load := func(dst **Extract, path string, source model.Source) {
		g.Go(func() error {
			ext, err := Load(gctx, path, source)
			if err != nil {
				return err
			}
			*dst = ext
			return nil
		})
	}
	load(&set.Activity, p.Activity, model.SourceActivity)
	load(&set.Profile, p.Profile, model.SourceProfile)
	load(&set.Quality, p.Quality, model.SourceQuality)

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return set, nil
}
