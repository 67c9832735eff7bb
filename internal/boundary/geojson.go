package boundary

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/areal/internal/projection"
)

// LoadGeoJSON reads a GeoJSON FeatureCollection file. The unit key is taken
// from each feature's keyField property. A legacy "crs" member, if present,
// sets the store SRID.
func LoadGeoJSON(path, keyField string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: read %s", path)
	}
	return ParseGeoJSON(data, keyField)
}

// ParseGeoJSON decodes a GeoJSON FeatureCollection into a Store.
func ParseGeoJSON(data []byte, keyField string) (*Store, error) {
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrap(err, "boundary: decode feature collection")
	}

	var header struct {
		CRS *geojson.CRS `json:"crs"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, eris.Wrap(err, "boundary: decode crs")
	}
	srid, err := projection.FromGeoJSONCRS(header.CRS)
	if err != nil {
		return nil, eris.Wrap(err, "boundary: resolve crs")
	}

	b := newBuilder(keyField)
	b.store.SRID = srid
	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		if err := b.add(keyString(f.Properties[keyField]), f.Geometry); err != nil {
			return nil, err
		}
	}

	if b.skipped > 0 {
		zap.L().Debug("boundary: skipped geojson features",
			zap.String("key_field", keyField),
			zap.Int("skipped", b.skipped),
		)
	}
	return b.store, nil
}
