package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/areal/internal/areal"
	"github.com/sells-group/areal/internal/registry"
	"github.com/sells-group/areal/pkg/valhalla"
)

type mockDatasets struct {
	mock.Mock
}

func (m *mockDatasets) AreaStats(ctx context.Context, q *areal.Query, id string) (areal.Result, error) {
	args := m.Called(ctx, q, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(areal.Result), args.Error(1)
}

func (m *mockDatasets) List() []registry.Status {
	args := m.Called()
	return args.Get(0).([]registry.Status)
}

type mockIsochrones struct {
	mock.Mock
}

func (m *mockIsochrones) Isochrone(ctx context.Context, req valhalla.Request) (*geojson.FeatureCollection, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*geojson.FeatureCollection), args.Error(1)
}

const squareQuery = `{
  "type": "Feature",
  "properties": {},
  "geometry": {"type": "Polygon", "coordinates": [[[-1.5,53.8],[-1.4,53.8],[-1.4,53.9],[-1.5,53.9],[-1.5,53.8]]]}
}`

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	h := NewServer(&mockDatasets{}, Options{}).Handler()

	w := do(t, h, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestRequestIDHeader(t *testing.T) {
	h := NewServer(&mockDatasets{}, Options{}).Handler()

	w := do(t, h, http.MethodGet, "/health", "")
	_, err := uuid.Parse(w.Header().Get(requestIDHeader))
	assert.NoError(t, err)

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, id)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, id, w.Header().Get(requestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "not-a-uuid")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.NotEqual(t, "not-a-uuid", w.Header().Get(requestIDHeader))
}

func TestListDatasets(t *testing.T) {
	ds := &mockDatasets{}
	ds.On("List").Return([]registry.Status{
		{ID: "simple_age_bins", State: "ready", Units: 2, Fields: []string{"Total"}},
		{ID: "broken", State: "failed", Error: "boom"},
	})
	h := NewServer(ds, Options{}).Handler()

	w := do(t, h, http.MethodGet, "/api/v1/datasets", "")

	require.Equal(t, http.StatusOK, w.Code)
	var out []registry.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "simple_age_bins", out[0].ID)
	assert.Equal(t, "failed", out[1].State)
	assert.Equal(t, "boom", out[1].Error)
	ds.AssertExpectations(t)
}

func TestDatasetStats(t *testing.T) {
	ds := &mockDatasets{}
	ds.On("AreaStats", mock.Anything, mock.MatchedBy(func(q *areal.Query) bool {
		return len(q.Polygons) == 1
	}), "lsoa").Return(areal.Result{"Total": 40}, nil)
	h := NewServer(ds, Options{}).Handler()

	w := do(t, h, http.MethodPost, "/api/v1/datasets/lsoa/stats", squareQuery)

	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, "lsoa", out["dataset"])
	assert.Equal(t, map[string]any{"Total": 40.0}, out["stats"])
	ds.AssertExpectations(t)
}

func TestAgeBins(t *testing.T) {
	ds := &mockDatasets{}
	ds.On("AreaStats", mock.Anything, mock.Anything, AgeBinsDataset).
		Return(areal.Result{"F0-15": 1.5, "Total": 3}, nil)
	h := NewServer(ds, Options{}).Handler()

	w := do(t, h, http.MethodPost, "/api/v1/simple_age_bins", squareQuery)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"F0-15": 1.5, "Total": 3.0}, decode(t, w)["ageBins"])
	ds.AssertExpectations(t)
}

func TestStats_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"unknown dataset", &registry.UnknownDatasetError{ID: "nope"}, http.StatusNotFound},
		{"unavailable dataset", &registry.DatasetUnavailableError{ID: "x", Err: errors.New("missing file")}, http.StatusServiceUnavailable},
		{"bad geometry", &areal.GeometryError{Index: 0, Type: "Point", Reason: "not a polygon"}, http.StatusBadRequest},
		{"crs mismatch", &areal.CRSMismatchError{Query: 3857, Dataset: 27700}, http.StatusBadRequest},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := &mockDatasets{}
			ds.On("AreaStats", mock.Anything, mock.Anything, "x").Return(nil, tt.err)
			h := NewServer(ds, Options{}).Handler()

			w := do(t, h, http.MethodPost, "/api/v1/datasets/x/stats", squareQuery)

			assert.Equal(t, tt.status, w.Code)
			out := decode(t, w)
			assert.NotEmpty(t, out["error"])
			assert.Equal(t, w.Header().Get(requestIDHeader), out["request_id"])
		})
	}
}

func TestStats_InternalErrorHidesDetail(t *testing.T) {
	ds := &mockDatasets{}
	ds.On("AreaStats", mock.Anything, mock.Anything, "x").Return(nil, errors.New("secret path /var/data"))
	h := NewServer(ds, Options{}).Handler()

	w := do(t, h, http.MethodPost, "/api/v1/datasets/x/stats", squareQuery)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "secret")
}

func TestStats_InvalidJSON(t *testing.T) {
	ds := &mockDatasets{}
	h := NewServer(ds, Options{}).Handler()

	w := do(t, h, http.MethodPost, "/api/v1/simple_age_bins", "{not json")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	ds.AssertNotCalled(t, "AreaStats", mock.Anything, mock.Anything, mock.Anything)
}

func TestStats_BodyTooLarge(t *testing.T) {
	ds := &mockDatasets{}
	h := NewServer(ds, Options{MaxBodyBytes: 16}).Handler()

	w := do(t, h, http.MethodPost, "/api/v1/simple_age_bins", squareQuery)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	ds.AssertNotCalled(t, "AreaStats", mock.Anything, mock.Anything, mock.Anything)
}

func TestMethodNotAllowed(t *testing.T) {
	h := NewServer(&mockDatasets{}, Options{}).Handler()

	w := do(t, h, http.MethodGet, "/api/v1/simple_age_bins", "")

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestCORS(t *testing.T) {
	h := NewServer(&mockDatasets{}, Options{CORSOrigins: []string{"https://maps.example.com"}}).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/simple_age_bins", nil)
	req.Header.Set("Origin", "https://maps.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "https://maps.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestIsochrone_NotConfigured(t *testing.T) {
	h := NewServer(&mockDatasets{}, Options{}).Handler()

	w := do(t, h, http.MethodGet, "/api/v1/isochrone?extent=15&lat=53.8&lon=-1.5", "")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestIsochrone_Proxied(t *testing.T) {
	line := geom.NewLineStringFlat(geom.XY, []float64{-1.5, 53.8, -1.4, 53.8, -1.4, 53.9, -1.5, 53.8})
	fc := &geojson.FeatureCollection{Features: []*geojson.Feature{{
		Geometry:   line,
		Properties: valhalla.DisplayProperties,
	}}}

	iso := &mockIsochrones{}
	iso.On("Isochrone", mock.Anything, valhalla.Request{
		Type: valhalla.Distance, Costing: "bicycle", Extent: 5, Lat: 53.8, Lon: -1.5,
	}).Return(fc, nil)
	h := NewServer(&mockDatasets{}, Options{Isochrones: iso}).Handler()

	w := do(t, h, http.MethodGet, "/api/v1/isochrone?eType=distance&mode=bicycle&extent=5&lat=53.8&lon=-1.5", "")

	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, "FeatureCollection", out["type"])
	features := out["features"].([]any)
	require.Len(t, features, 1)
	props := features[0].(map[string]any)["properties"].(map[string]any)
	assert.Equal(t, "#E60026", props["fill-colour"])
	iso.AssertExpectations(t)
}

func TestIsochrone_Defaults(t *testing.T) {
	iso := &mockIsochrones{}
	iso.On("Isochrone", mock.Anything, valhalla.Request{
		Type: valhalla.Time, Costing: "auto", Extent: 15, Lat: 53.8, Lon: -1.5,
	}).Return(&geojson.FeatureCollection{}, nil)
	h := NewServer(&mockDatasets{}, Options{Isochrones: iso}).Handler()

	w := do(t, h, http.MethodGet, "/api/v1/isochrone?extent=15&lat=53.8&lon=-1.5", "")

	assert.Equal(t, http.StatusOK, w.Code)
	iso.AssertExpectations(t)
}

func TestIsochrone_BadParams(t *testing.T) {
	iso := &mockIsochrones{}
	h := NewServer(&mockDatasets{}, Options{Isochrones: iso}).Handler()

	for _, q := range []string{
		"lat=53.8&lon=-1.5",
		"extent=abc&lat=53.8&lon=-1.5",
		"extent=15&lat=95&lon=-1.5",
		"eType=speed&extent=15&lat=53.8&lon=-1.5",
		"extent=-3&lat=53.8&lon=-1.5",
	} {
		w := do(t, h, http.MethodGet, "/api/v1/isochrone?"+q, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
	iso.AssertNotCalled(t, "Isochrone", mock.Anything, mock.Anything)
}

func TestIsochrone_UpstreamFailure(t *testing.T) {
	iso := &mockIsochrones{}
	iso.On("Isochrone", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))
	h := NewServer(&mockDatasets{}, Options{Isochrones: iso}).Handler()

	w := do(t, h, http.MethodGet, "/api/v1/isochrone?extent=15&lat=53.8&lon=-1.5", "")

	assert.Equal(t, http.StatusBadGateway, w.Code)
}
