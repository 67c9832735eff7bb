// Package registry maps dataset identifiers to lazily built, shared areal
// datasets.
package registry

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/areal/internal/areal"
	"github.com/sells-group/areal/internal/boundary"
	"github.com/sells-group/areal/internal/stats"
)

// SourceSpec locates one input artifact.
type SourceSpec struct {
	// Path is the local file, or a postgis://table?key=col&geom=col locator.
	Path string
	// URL is downloaded to Path when Path does not exist.
	URL string
	// Member picks a file out of a downloaded ZIP archive by base name.
	Member string
	// Sheet names the XLSX worksheet.
	Sheet string
	// Delimiter overrides the CSV separator.
	Delimiter rune
}

// Spec configures one dataset.
type Spec struct {
	ID          string
	Description string
	Boundary    SourceSpec
	Statistics  SourceSpec
	// KeyField is the join column, present in both sources.
	KeyField string
	// Fields are the statistics to apportion; empty means every column.
	Fields []string
}

// Loader reads dataset sources.
type Loader interface {
	LoadBoundaries(ctx context.Context, spec Spec) (*boundary.Store, error)
	LoadStatistics(ctx context.Context, spec Spec) (*stats.Table, error)
}

// Options configures a Registry.
type Options struct {
	// SRID is the planar CRS every dataset is built in.
	SRID int
	// Eager builds every dataset inside New.
	Eager bool
	// Concurrency bounds parallel builds. Default 2.
	Concurrency int
}

// Registry holds dataset handles in registration order.
type Registry struct {
	handles map[string]*Handle
	order   []string
	loader  Loader
	opts    Options
}

// New registers specs. With opts.Eager every dataset is built before New
// returns; a dataset that fails to build is left Failed and does not fail New.
func New(ctx context.Context, specs []Spec, loader Loader, opts Options) (*Registry, error) {
	if loader == nil {
		return nil, eris.New("registry: loader is required")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}

	r := &Registry{
		handles: make(map[string]*Handle, len(specs)),
		loader:  loader,
		opts:    opts,
	}
	for _, s := range specs {
		if s.ID == "" {
			return nil, eris.New("registry: dataset with empty id")
		}
		if s.KeyField == "" {
			return nil, eris.Errorf("registry: dataset %q has no key field", s.ID)
		}
		if _, dup := r.handles[s.ID]; dup {
			return nil, eris.Errorf("registry: dataset %q registered twice", s.ID)
		}
		r.handles[s.ID] = &Handle{spec: s}
		r.order = append(r.order, s.ID)
	}

	if opts.Eager {
		if err := r.BuildAll(ctx); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// BuildAll builds every dataset that has not been built yet. Individual
// build failures are recorded on their handles, not returned.
func (r *Registry) BuildAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)

	for _, id := range r.order {
		h := r.handles[id]
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			_, _ = h.dataset(gctx, r.loader, r.opts.SRID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "registry: build datasets")
	}

	zap.L().Info("registry: datasets built", zap.Int("count", len(r.order)))
	return nil
}

// Get returns the handle for id.
func (r *Registry) Get(id string) (*Handle, error) {
	h, ok := r.handles[id]
	if !ok {
		return nil, &UnknownDatasetError{ID: id}
	}
	return h, nil
}

// Dataset returns the built dataset for id, building it on first use.
func (r *Registry) Dataset(ctx context.Context, id string) (*areal.Dataset, error) {
	h, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	return h.dataset(ctx, r.loader, r.opts.SRID)
}

// AreaStats apportions dataset id's statistics over q.
func (r *Registry) AreaStats(ctx context.Context, q *areal.Query, id string) (areal.Result, error) {
	res, _, err := r.AreaStatsDetail(ctx, q, id)
	return res, err
}

// AreaStatsDetail is AreaStats that also returns the intersection fragments.
func (r *Registry) AreaStatsDetail(ctx context.Context, q *areal.Query, id string) (areal.Result, []areal.Fragment, error) {
	ds, err := r.Dataset(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return areal.Stats(ds, q)
}

// List returns every dataset's status in registration order.
func (r *Registry) List() []Status {
	out := make([]Status, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.handles[id].status())
	}
	return out
}

// IDs returns registered dataset ids in registration order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}
