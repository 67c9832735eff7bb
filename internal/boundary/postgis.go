package boundary

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/wkb"
	"go.uber.org/zap"

	"github.com/sells-group/areal/internal/db"
)

// PostGISSource identifies a PostGIS table holding the units.
type PostGISSource struct {
	Table      string // optionally schema-qualified, e.g. "geo.lsoa_2021"
	KeyColumn  string
	GeomColumn string
}

// LoadPostGIS reads every row of the source table. Geometry is fetched as WKB
// together with its SRID; a mixed-SRID table is rejected.
func LoadPostGIS(ctx context.Context, pool db.Pool, src PostGISSource) (*Store, error) {
	if src.GeomColumn == "" {
		src.GeomColumn = "geom"
	}
	keyCol := db.QualifiedName(src.KeyColumn)
	geomCol := db.QualifiedName(src.GeomColumn)
	sql := fmt.Sprintf(
		`SELECT %s::text, ST_AsBinary(%s), ST_SRID(%s) FROM %s WHERE %s IS NOT NULL ORDER BY 1`,
		keyCol, geomCol, geomCol, db.QualifiedName(src.Table), geomCol,
	)

	rows, err := pool.Query(ctx, sql)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: query %s", src.Table)
	}
	defer rows.Close()

	b := newBuilder(src.KeyColumn)
	srid := -1
	for rows.Next() {
		var (
			key     string
			raw     []byte
			rowSRID int32
		)
		if err := rows.Scan(&key, &raw, &rowSRID); err != nil {
			return nil, eris.Wrap(err, "boundary: scan postgis row")
		}
		if srid == -1 {
			srid = int(rowSRID)
		} else if srid != int(rowSRID) {
			return nil, eris.Errorf("boundary: %s mixes SRIDs %d and %d", src.Table, srid, rowSRID)
		}

		g, err := wkb.Unmarshal(raw)
		if err != nil {
			return nil, eris.Wrapf(err, "boundary: decode wkb for key %s", key)
		}
		if err := b.add(key, g); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "boundary: iterate %s", src.Table)
	}

	if srid > 0 {
		b.store.SRID = srid
	}
	if b.skipped > 0 {
		zap.L().Debug("boundary: skipped postgis rows",
			zap.String("table", src.Table),
			zap.Int("skipped", b.skipped),
		)
	}
	return b.store, nil
}
