package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/areal/internal/config"
	"github.com/sells-group/areal/internal/db"
	"github.com/sells-group/areal/internal/fetcher"
	"github.com/sells-group/areal/internal/registry"
	"github.com/sells-group/areal/internal/resilience"
	"github.com/sells-group/areal/internal/source"
	"github.com/sells-group/areal/internal/store"
)

// dataEnv holds the manifest store and source loader shared by the
// serve/stats/fetch/datasets commands.
type dataEnv struct {
	Manifest store.Store
	Loader   *source.Loader
	Specs    []registry.Spec
	pool     db.Pool
}

// Close releases resources held by the environment.
func (e *dataEnv) Close() {
	if e.Loader != nil {
		e.Loader.Close()
	}
	if e.Manifest != nil {
		_ = e.Manifest.Close()
	}
	if e.pool != nil {
		e.pool.Close()
	}
}

// initData opens the manifest, builds the downloader and loader, and
// converts the configured datasets. Callers should defer env.Close().
func initData(ctx context.Context, c *config.Config) (*dataEnv, error) {
	env := &dataEnv{Specs: datasetSpecs(c.Datasets)}

	st, err := initStore(ctx, c, env)
	if err != nil {
		return nil, err
	}
	env.Manifest = st

	if err := st.Migrate(ctx); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "migrate manifest")
	}

	client := fetcher.NewClient(fetcher.HTTPOptions{
		UserAgent: c.Fetch.UserAgent,
		Timeout:   time.Duration(c.Fetch.TimeoutSecs) * time.Second,
		Retry: resilience.Policy{
			Name:        "fetch",
			MaxAttempts: c.Fetch.MaxAttempts,
		},
	}, fetcher.FTPOptions{
		Timeout: time.Duration(c.Fetch.TimeoutSecs) * time.Second,
	})

	var connect func(ctx context.Context) (db.Pool, error)
	if c.Database.URL != "" {
		connect = func(ctx context.Context) (db.Pool, error) {
			return db.Connect(ctx, c.Database.URL)
		}
	}

	env.Loader = source.NewLoader(source.Options{
		DataDir:    c.Data.Dir,
		Downloader: client,
		Manifest:   st,
		Connect:    connect,
	})

	zap.L().Debug("data environment ready",
		zap.String("data_dir", c.Data.Dir),
		zap.String("manifest", c.Store.Driver),
		zap.Int("datasets", len(env.Specs)),
	)
	return env, nil
}

func initStore(ctx context.Context, c *config.Config, env *dataEnv) (store.Store, error) {
	switch c.Store.Driver {
	case "sqlite":
		dsn := c.Store.SQLitePath
		if dsn == "" {
			dsn = "manifest.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		pool, err := db.Connect(ctx, c.Database.URL)
		if err != nil {
			return nil, err
		}
		env.pool = pool
		return store.NewPostgres(pool), nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
}

// newRegistry builds the dataset registry over env's loader.
func newRegistry(ctx context.Context, c *config.Config, env *dataEnv, eager bool) (*registry.Registry, error) {
	return registry.New(ctx, env.Specs, env.Loader, registry.Options{
		SRID:        c.Data.SRID,
		Eager:       eager,
		Concurrency: c.Data.BuildConcurrency,
	})
}

func datasetSpecs(in []config.DatasetConfig) []registry.Spec {
	out := make([]registry.Spec, 0, len(in))
	for _, d := range in {
		out = append(out, registry.Spec{
			ID:          d.ID,
			Description: d.Description,
			KeyField:    d.KeyField,
			Fields:      d.Fields,
			Boundary:    sourceSpec(d.Boundary),
			Statistics:  sourceSpec(d.Statistics),
		})
	}
	return out
}

func sourceSpec(s config.SourceConfig) registry.SourceSpec {
	// Validate has already rejected malformed delimiters.
	delim, _ := s.DelimiterRune()
	return registry.SourceSpec{Path: s.Path, URL: s.URL, Member: s.Member, Sheet: s.Sheet, Delimiter: delim}
}

// selectSpecs narrows specs to id, or returns all when id is empty.
func selectSpecs(specs []registry.Spec, id string) ([]registry.Spec, error) {
	if id == "" {
		return specs, nil
	}
	for _, s := range specs {
		if s.ID == id {
			return []registry.Spec{s}, nil
		}
	}
	return nil, &registry.UnknownDatasetError{ID: id}
}
