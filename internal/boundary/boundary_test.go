package boundary

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/sells-group/areal/internal/projection"
)

const lsoaFixture = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"LSOA21CD": "E01000001"},
     "geometry": {"type": "Polygon", "coordinates": [[[-0.1,51.5],[-0.09,51.5],[-0.09,51.51],[-0.1,51.51],[-0.1,51.5]]]}},
    {"type": "Feature", "properties": {"LSOA21CD": "E01000002"},
     "geometry": {"type": "MultiPolygon", "coordinates": [[[[-0.09,51.5],[-0.08,51.5],[-0.08,51.51],[-0.09,51.5]]]]}},
    {"type": "Feature", "properties": {"LSOA21CD": "E01000003"},
     "geometry": {"type": "Point", "coordinates": [-0.1,51.5]}},
    {"type": "Feature", "properties": {"LSOA21CD": 42},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,0]]]}}
  ]
}`

func TestParseGeoJSON(t *testing.T) {
	store, err := ParseGeoJSON([]byte(lsoaFixture), "LSOA21CD")
	require.NoError(t, err)

	assert.Equal(t, 0, store.SRID)
	assert.Equal(t, "LSOA21CD", store.KeyField)
	require.Equal(t, 3, store.Len())
	assert.Equal(t, "E01000001", store.Units[0].Key)
	assert.IsType(t, &geom.Polygon{}, store.Units[0].Geom)
	assert.Equal(t, "E01000002", store.Units[1].Key)
	assert.IsType(t, &geom.MultiPolygon{}, store.Units[1].Geom)
	// Numeric keys are rendered as strings.
	assert.Equal(t, "42", store.Units[2].Key)
}

func TestParseGeoJSON_CRS(t *testing.T) {
	doc := `{"type":"FeatureCollection",
	  "crs":{"type":"name","properties":{"name":"urn:ogc:def:crs:EPSG::27700"}},
	  "features":[{"type":"Feature","properties":{"code":"A"},
	    "geometry":{"type":"Polygon","coordinates":[[[0,0],[10,0],[10,10],[0,10],[0,0]]]}}]}`

	store, err := ParseGeoJSON([]byte(doc), "code")
	require.NoError(t, err)
	assert.Equal(t, projection.BritishNationalGrid, store.SRID)
}

func TestParseGeoJSON_DuplicateKey(t *testing.T) {
	doc := `{"type":"FeatureCollection","features":[
	  {"type":"Feature","properties":{"code":"A"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}},
	  {"type":"Feature","properties":{"code":"A"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}}]}`

	_, err := ParseGeoJSON([]byte(doc), "code")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate key "A"`)
}

func TestParseGeoJSON_Invalid(t *testing.T) {
	_, err := ParseGeoJSON([]byte(`{"type":"Feature"}`), "code")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode feature collection")
}

func TestLoadGeoJSON_MissingFile(t *testing.T) {
	_, err := LoadGeoJSON(filepath.Join(t.TempDir(), "missing.geojson"), "code")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boundary: read")
}

func writeShapefile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "units.shp")

	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("CODE", 16)}))

	// Clockwise shell with a counter-clockwise hole.
	withHole := shp.Polygon(*shp.NewPolyLine([][]shp.Point{
		{{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 0}},
		{{X: 2, Y: 2}, {X: 4, Y: 2}, {X: 4, Y: 4}, {X: 2, Y: 4}, {X: 2, Y: 2}},
	}))
	// Two clockwise shells form two polygons.
	twoParts := shp.Polygon(*shp.NewPolyLine([][]shp.Point{
		{{X: 20, Y: 0}, {X: 20, Y: 5}, {X: 25, Y: 5}, {X: 25, Y: 0}, {X: 20, Y: 0}},
		{{X: 30, Y: 0}, {X: 30, Y: 5}, {X: 35, Y: 5}, {X: 35, Y: 0}, {X: 30, Y: 0}},
	}))

	row := w.Write(&withHole)
	require.NoError(t, w.WriteAttribute(int(row), 0, "A"))
	row = w.Write(&twoParts)
	require.NoError(t, w.WriteAttribute(int(row), 0, "B"))
	w.Close()

	return path
}

func TestLoadShapefile(t *testing.T) {
	dir := t.TempDir()
	path := writeShapefile(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "units.prj"),
		[]byte(`PROJCS["British_National_Grid",GEOGCS["GCS_OSGB_1936"]]`), 0o644))

	store, err := LoadShapefile(path, "code")
	require.NoError(t, err)
	assert.Equal(t, projection.BritishNationalGrid, store.SRID)
	require.Equal(t, 2, store.Len())

	a := store.Units[0]
	assert.Equal(t, "A", a.Key)
	mp, ok := a.Geom.(*geom.MultiPolygon)
	require.True(t, ok)
	require.Equal(t, 1, mp.NumPolygons())
	assert.Equal(t, 2, mp.Polygon(0).NumLinearRings())

	b := store.Units[1]
	assert.Equal(t, "B", b.Key)
	assert.Equal(t, 2, b.Geom.(*geom.MultiPolygon).NumPolygons())
}

func TestLoadShapefile_MissingKeyField(t *testing.T) {
	path := writeShapefile(t, t.TempDir())

	_, err := LoadShapefile(path, "LSOA21CD")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key field LSOA21CD not found")
}

func TestSignedArea(t *testing.T) {
	ccw := []float64{0, 0, 1, 0, 1, 1, 0, 1, 0, 0}
	cw := []float64{0, 0, 0, 1, 1, 1, 1, 0, 0, 0}
	assert.InDelta(t, 1, signedArea(ccw), 1e-12)
	assert.InDelta(t, -1, signedArea(cw), 1e-12)
}

func TestSRIDFromPrj(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		wkt  string
		want int
	}{
		{name: "bng", wkt: `PROJCS["OSGB 1936 / British National Grid"]`, want: projection.BritishNationalGrid},
		{name: "laea", wkt: `PROJCS["ETRS89 / LAEA Europe"]`, want: projection.LAEAEurope},
		{name: "wgs84", wkt: `GEOGCS["GCS_WGS_1984"]`, want: projection.WGS84},
		{name: "other", wkt: `PROJCS["WGS 84 / Pseudo-Mercator"]`, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shpPath := filepath.Join(dir, tt.name+".shp")
			require.NoError(t, os.WriteFile(filepath.Join(dir, tt.name+".prj"), []byte(tt.wkt), 0o644))
			assert.Equal(t, tt.want, sridFromPrj(shpPath))
		})
	}
	assert.Equal(t, 0, sridFromPrj(filepath.Join(dir, "absent.shp")))
}

func square(x, y, size float64) *geom.Polygon {
	return geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y},
	}})
}

func TestLoadPostGIS(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	a, err := wkb.Marshal(square(0, 0, 10), wkb.NDR)
	require.NoError(t, err)
	b, err := wkb.Marshal(square(10, 0, 10), wkb.NDR)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT (.+) FROM "geo"."lsoa_2021"`).
		WillReturnRows(pgxmock.NewRows([]string{"lsoa21cd", "st_asbinary", "st_srid"}).
			AddRow("E01000001", a, int32(27700)).
			AddRow("E01000002", b, int32(27700)))

	store, err := LoadPostGIS(context.Background(), mock, PostGISSource{
		Table:     "geo.lsoa_2021",
		KeyColumn: "lsoa21cd",
	})
	require.NoError(t, err)
	assert.Equal(t, projection.BritishNationalGrid, store.SRID)
	require.Equal(t, 2, store.Len())
	assert.Equal(t, "E01000002", store.Units[1].Key)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadPostGIS_MixedSRID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	a, err := wkb.Marshal(square(0, 0, 10), wkb.NDR)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT (.+) FROM "units"`).
		WillReturnRows(pgxmock.NewRows([]string{"code", "st_asbinary", "st_srid"}).
			AddRow("A", a, int32(4326)).
			AddRow("B", a, int32(27700)))

	_, err = LoadPostGIS(context.Background(), mock, PostGISSource{Table: "units", KeyColumn: "code"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mixes SRIDs")
}

func TestLoadPostGIS_QueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT`).WillReturnError(fmt.Errorf("relation does not exist"))

	_, err = LoadPostGIS(context.Background(), mock, PostGISSource{Table: "units", KeyColumn: "code"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boundary: query units")
}
