package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/areal/internal/areal"
)

// State is a dataset's build lifecycle position.
type State int32

const (
	Unconfigured State = iota
	Building
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case Building:
		return "building"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Handle owns one configured dataset and builds it at most once.
type Handle struct {
	spec Spec

	once  sync.Once
	state atomic.Int32

	// Written inside once before state leaves Building.
	ds       *areal.Dataset
	report   *areal.BuildReport
	err      error
	duration time.Duration
}

// Spec returns the dataset configuration.
func (h *Handle) Spec() Spec { return h.spec }

// State returns the current lifecycle state.
func (h *Handle) State() State { return State(h.state.Load()) }

// dataset builds on first use and returns the shared dataset. The build runs
// detached from ctx cancellation so an abandoned request cannot fail it.
func (h *Handle) dataset(ctx context.Context, loader Loader, srid int) (*areal.Dataset, error) {
	h.once.Do(func() {
		h.state.Store(int32(Building))
		start := time.Now()
		log := zap.L().With(zap.String("component", "registry"), zap.String("dataset", h.spec.ID))

		// A panicking loader or GEOS call must still leave the handle Failed.
		defer func() {
			if r := recover(); r != nil {
				h.duration = time.Since(start)
				h.ds = nil
				h.err = eris.Errorf("registry: build panicked: %v", r)
				h.state.Store(int32(Failed))
				log.Error("registry: dataset build panicked", zap.Duration("elapsed", h.duration), zap.Any("panic", r))
			}
		}()

		ds, report, err := h.build(context.WithoutCancel(ctx), loader, srid)
		h.duration = time.Since(start)

		if err != nil {
			h.err = err
			h.report = report
			h.state.Store(int32(Failed))
			log.Error("registry: dataset build failed", zap.Duration("elapsed", h.duration), zap.Error(err))
			return
		}
		h.ds = ds
		h.report = report
		h.state.Store(int32(Ready))
		log.Info("registry: dataset ready", zap.Int("units", ds.Len()), zap.Duration("elapsed", h.duration))
	})

	if h.err != nil {
		return nil, &DatasetUnavailableError{ID: h.spec.ID, Err: h.err}
	}
	return h.ds, nil
}

func (h *Handle) build(ctx context.Context, loader Loader, srid int) (*areal.Dataset, *areal.BuildReport, error) {
	store, err := loader.LoadBoundaries(ctx, h.spec)
	if err != nil {
		return nil, nil, eris.Wrap(err, "registry: load boundaries")
	}
	table, err := loader.LoadStatistics(ctx, h.spec)
	if err != nil {
		return nil, nil, eris.Wrap(err, "registry: load statistics")
	}
	return areal.Build(store, table, areal.BuildOptions{
		SRID:   srid,
		Fields: h.spec.Fields,
		Name:   h.spec.ID,
	})
}

// Status is a point-in-time view of a dataset.
type Status struct {
	ID            string   `json:"id"`
	Description   string   `json:"description,omitempty"`
	State         string   `json:"state"`
	Units         int      `json:"units"`
	Fields        []string `json:"fields"`
	SRID          int      `json:"srid,omitempty"`
	BuildDuration string   `json:"build_duration,omitempty"`
	Error         string   `json:"error,omitempty"`
}

func (h *Handle) status() Status {
	st := h.State()
	s := Status{
		ID:          h.spec.ID,
		Description: h.spec.Description,
		State:       st.String(),
		Fields:      h.spec.Fields,
	}
	switch st {
	case Ready:
		s.Units = h.ds.Len()
		s.Fields = h.ds.Fields
		s.SRID = h.ds.SRID
		s.BuildDuration = h.duration.Round(time.Millisecond).String()
	case Failed:
		s.Error = h.err.Error()
		s.BuildDuration = h.duration.Round(time.Millisecond).String()
	}
	return s
}
