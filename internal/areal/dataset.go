// Package areal builds area-weighted datasets and apportions their
// statistics across arbitrary query polygons.
package areal

import (
	"math"
	"slices"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geos"
	"go.uber.org/zap"

	"github.com/sells-group/areal/internal/boundary"
	"github.com/sells-group/areal/internal/projection"
	"github.com/sells-group/areal/internal/stats"
)

// Unit is one joined spatial unit in the dataset's planar CRS.
type Unit struct {
	Key  string
	Geom geom.T
	// Area is the planar area in square metres, always > 0.
	Area float64
	// Values is aligned with Dataset.Fields.
	Values []float64

	bounds *geom.Bounds
	geos   *geos.Geom
}

// Dataset is a boundary layer joined with its statistics, projected into a
// single equal-area CRS. It is read-only once Build returns.
type Dataset struct {
	SRID   int
	Fields []string
	Units  []Unit
}

// BuildOptions configures Build.
type BuildOptions struct {
	// SRID is the planar target CRS; 0 means British National Grid.
	SRID int
	// Fields are the statistic columns to carry. Empty means every non-key
	// column. Configured fields missing from the table are left out of the
	// schema.
	Fields []string
	// Name labels log lines.
	Name string
}

// BuildReport counts what the join discarded.
type BuildReport struct {
	Joined          int
	UnmatchedUnits  int
	UnmatchedRows   int
	DegenerateUnits int
	MissingFields   []string
	InvalidRepaired int
}

// Build joins store and table on their key, coerces the target fields to
// numbers and projects every unit into opts.SRID, computing its area once.
func Build(store *boundary.Store, table *stats.Table, opts BuildOptions) (*Dataset, *BuildReport, error) {
	if store == nil || table == nil {
		return nil, nil, eris.New("areal: build needs both boundaries and statistics")
	}
	target := opts.SRID
	if target == 0 {
		target = projection.BritishNationalGrid
	}
	if !projection.Supported(target) {
		return nil, nil, eris.Errorf("areal: EPSG:%d is not a supported equal-area CRS", target)
	}

	src := store.SRID
	if src == 0 {
		src = projection.WGS84
	}

	log := zap.L().With(zap.String("component", "areal"), zap.String("dataset", opts.Name))
	report := &BuildReport{}

	fields, cols := schema(table, opts.Fields, report)
	ds := &Dataset{SRID: target, Fields: fields}

	matched := make(map[string]struct{}, table.Len())
	for _, su := range store.Units {
		row, ok := table.Row(su.Key)
		if !ok {
			report.UnmatchedUnits++
			continue
		}
		matched[su.Key] = struct{}{}

		projected, err := projection.Transform(su.Geom, src, target)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "areal: project unit %s", su.Key)
		}
		gg, repaired, err := toGEOS(projected)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "areal: unit %s", su.Key)
		}
		if repaired {
			report.InvalidRepaired++
			log.Debug("areal: repaired invalid unit geometry", zap.String("key", su.Key))
		}
		a, err := area(gg)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "areal: area of unit %s", su.Key)
		}
		if !(a > 0) || math.IsInf(a, 0) {
			report.DegenerateUnits++
			log.Warn("areal: dropping degenerate unit", zap.String("key", su.Key), zap.Float64("area", a))
			continue
		}

		values := make([]float64, len(cols))
		for i, c := range cols {
			if c < len(row) {
				values[i] = stats.Number(row[c])
			}
		}

		ds.Units = append(ds.Units, Unit{
			Key:    su.Key,
			Geom:   projected,
			Area:   a,
			Values: values,
			bounds: projected.Bounds(),
			geos:   gg,
		})
	}
	report.Joined = len(ds.Units)
	report.UnmatchedRows = table.Len() - len(matched)

	if len(ds.Units) == 0 {
		return nil, report, eris.Errorf("areal: no units joined on %s (%d boundaries, %d statistic rows)",
			table.KeyField, store.Len(), table.Len())
	}

	log.Info("areal: dataset built",
		zap.Int("srid", target),
		zap.Int("units", report.Joined),
		zap.Int("unmatched_units", report.UnmatchedUnits),
		zap.Int("unmatched_rows", report.UnmatchedRows),
		zap.Int("degenerate_units", report.DegenerateUnits),
		zap.Int("invalid_repaired", report.InvalidRepaired),
		zap.Float64("total_area", ds.TotalArea()),
		zap.Strings("fields", fields),
	)
	if len(report.MissingFields) > 0 {
		log.Warn("areal: configured fields absent from statistics", zap.Strings("fields", report.MissingFields))
	}
	if report.UnmatchedRows > 0 {
		log.Warn("areal: statistic rows without a boundary",
			zap.Int("count", report.UnmatchedRows),
			zap.Strings("sample", unmatchedSample(table, matched, 5)))
	}
	return ds, report, nil
}

// schema resolves the carried fields and their table columns.
func schema(table *stats.Table, want []string, report *BuildReport) ([]string, []int) {
	if len(want) == 0 {
		for _, h := range table.Header {
			if h != table.KeyField && h != "" {
				want = append(want, h)
			}
		}
	}

	var (
		fields []string
		cols   []int
	)
	for _, f := range want {
		if slices.Contains(fields, f) {
			continue
		}
		if !table.Has(f) {
			report.MissingFields = append(report.MissingFields, f)
			continue
		}
		fields = append(fields, f)
		cols = append(cols, table.Index(f))
	}
	return fields, cols
}

// unmatchedSample returns up to n statistic keys, in load order, that no
// boundary joined.
func unmatchedSample(table *stats.Table, matched map[string]struct{}, n int) []string {
	var out []string
	for _, k := range table.Keys() {
		if len(out) == n {
			break
		}
		if _, ok := matched[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

// Len returns the number of units.
func (d *Dataset) Len() int { return len(d.Units) }

// TotalArea sums unit areas.
func (d *Dataset) TotalArea() float64 {
	var sum float64
	for _, u := range d.Units {
		sum += u.Area
	}
	return sum
}
