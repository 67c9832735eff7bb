// Package source resolves dataset source descriptors into loaded boundary
// stores and statistic tables, downloading missing artifacts on the way.
package source

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/areal/internal/boundary"
	"github.com/sells-group/areal/internal/db"
	"github.com/sells-group/areal/internal/fetcher"
	"github.com/sells-group/areal/internal/registry"
	"github.com/sells-group/areal/internal/stats"
	"github.com/sells-group/areal/internal/store"
)

// Roles name the two inputs of a dataset in the manifest.
const (
	RoleBoundary   = "boundary"
	RoleStatistics = "statistics"
)

const postgisScheme = "postgis"

// Downloader fetches a URL to a local path. *fetcher.Client satisfies it.
type Downloader interface {
	Fetch(ctx context.Context, rawURL, dest, etag string) (*fetcher.Result, error)
}

// Options configures a Loader.
type Options struct {
	// DataDir anchors relative source paths.
	DataDir string
	// Downloader is required only for sources with a URL.
	Downloader Downloader
	// Manifest records fetches; optional.
	Manifest store.Store
	// Connect opens the PostGIS pool on first use; required only for
	// postgis:// sources.
	Connect func(ctx context.Context) (db.Pool, error)
}

// Loader implements registry.Loader over files, downloads and PostGIS.
type Loader struct {
	opts Options

	poolMu sync.Mutex
	pool   db.Pool
}

var _ registry.Loader = (*Loader)(nil)

// NewLoader creates a Loader.
func NewLoader(opts Options) *Loader {
	return &Loader{opts: opts}
}

// LoadBoundaries loads the dataset's boundary layer.
func (l *Loader) LoadBoundaries(ctx context.Context, spec registry.Spec) (*boundary.Store, error) {
	src := spec.Boundary
	if isPostGIS(src.Path) {
		return l.loadPostGIS(ctx, spec)
	}

	path, err := l.Resolve(ctx, spec.ID, RoleBoundary, src, false)
	if err != nil {
		return nil, err
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".geojson", ".json":
		return boundary.LoadGeoJSON(path, spec.KeyField)
	case ".shp":
		return boundary.LoadShapefile(path, spec.KeyField)
	default:
		return nil, eris.Errorf("source: unsupported boundary format %q for dataset %s", ext, spec.ID)
	}
}

// LoadStatistics loads the dataset's statistics table.
func (l *Loader) LoadStatistics(ctx context.Context, spec registry.Spec) (*stats.Table, error) {
	path, err := l.Resolve(ctx, spec.ID, RoleStatistics, spec.Statistics, false)
	if err != nil {
		return nil, err
	}
	return stats.Load(ctx, path, spec.KeyField, stats.LoadOptions{
		Sheet:     spec.Statistics.Sheet,
		Delimiter: spec.Statistics.Delimiter,
	})
}

func isPostGIS(path string) bool {
	return strings.HasPrefix(strings.ToLower(path), postgisScheme+"://")
}

// parsePostGIS reads postgis://schema.table?key=col&geom=col.
func parsePostGIS(locator, defaultKey string) (boundary.PostGISSource, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return boundary.PostGISSource{}, eris.Wrapf(err, "source: parse %s", locator)
	}
	table := u.Host + strings.TrimSuffix(u.Path, "/")
	if table == "" {
		return boundary.PostGISSource{}, eris.Errorf("source: no table in %s", locator)
	}
	src := boundary.PostGISSource{
		Table:      strings.TrimPrefix(table, "/"),
		KeyColumn:  u.Query().Get("key"),
		GeomColumn: u.Query().Get("geom"),
	}
	if src.KeyColumn == "" {
		src.KeyColumn = defaultKey
	}
	return src, nil
}

func (l *Loader) loadPostGIS(ctx context.Context, spec registry.Spec) (*boundary.Store, error) {
	src, err := parsePostGIS(spec.Boundary.Path, spec.KeyField)
	if err != nil {
		return nil, err
	}
	pool, err := l.dbPool(ctx)
	if err != nil {
		return nil, err
	}

	zap.L().Info("source: loading boundaries from postgis",
		zap.String("dataset", spec.ID),
		zap.String("table", src.Table),
	)
	return boundary.LoadPostGIS(ctx, pool, src)
}

func (l *Loader) dbPool(ctx context.Context) (db.Pool, error) {
	l.poolMu.Lock()
	defer l.poolMu.Unlock()

	if l.pool != nil {
		return l.pool, nil
	}
	if l.opts.Connect == nil {
		return nil, eris.New("source: postgis source configured but no database is set")
	}
	pool, err := l.opts.Connect(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "source: connect to postgis")
	}
	l.pool = pool
	return pool, nil
}

// Close releases the database pool, if one was opened.
func (l *Loader) Close() {
	l.poolMu.Lock()
	defer l.poolMu.Unlock()
	if l.pool != nil {
		l.pool.Close()
		l.pool = nil
	}
}
