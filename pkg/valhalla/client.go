// Package valhalla provides a client for the isochrone endpoint of a
// Valhalla routing server.
package valhalla

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/areal/internal/resilience"
)

// Client defines the Valhalla operations used here.
type Client interface {
	// Isochrone returns the reachable-area boundary as a FeatureCollection
	// whose first feature carries display properties.
	Isochrone(ctx context.Context, req Request) (*geojson.FeatureCollection, error)
}

// ExtentType selects a time (minutes) or distance (kilometres) contour.
type ExtentType string

const (
	Time     ExtentType = "time"
	Distance ExtentType = "distance"
)

// Request describes one isochrone.
type Request struct {
	Type    ExtentType
	Costing string // Valhalla costing model, e.g. "auto", "pedestrian", "bicycle"
	Extent  float64
	Lat     float64
	Lon     float64
}

// Validate checks the request before it is sent.
func (r Request) Validate() error {
	switch r.Type {
	case Time, Distance:
	default:
		return eris.Errorf("valhalla: extent type must be %q or %q, got %q", Time, Distance, r.Type)
	}
	if strings.TrimSpace(r.Costing) == "" {
		return eris.New("valhalla: costing mode is required")
	}
	if !(r.Extent > 0) || math.IsInf(r.Extent, 0) {
		return eris.Errorf("valhalla: extent must be positive, got %g", r.Extent)
	}
	if r.Lat < -90 || r.Lat > 90 || r.Lon < -180 || r.Lon > 180 {
		return eris.Errorf("valhalla: location (%g, %g) out of range", r.Lat, r.Lon)
	}
	return nil
}

type location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type isochroneBody struct {
	Locations []location           `json:"locations"`
	Costing   string               `json:"costing"`
	Contours  []map[string]float64 `json:"contours"`
}

// DisplayProperties decorate the first returned feature for map clients.
var DisplayProperties = map[string]any{
	"fill-alpha":    0.5,
	"fill-colour":   "#E60026",
	"border-alpha":  1,
	"border-colour": "#E60026",
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetryPolicy overrides the retry policy for transient failures.
func WithRetryPolicy(p resilience.Policy) Option {
	return func(c *httpClient) {
		c.retry = p
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	retry   resilience.Policy
}

// NewClient creates a client for the Valhalla server at baseURL.
func NewClient(baseURL string, opts ...Option) Client {
	c := &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: resilience.DefaultPolicy("valhalla.isochrone"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Isochrone(ctx context.Context, req Request) (*geojson.FeatureCollection, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(isochroneBody{
		Locations: []location{{Lat: req.Lat, Lon: req.Lon}},
		Costing:   req.Costing,
		Contours:  []map[string]float64{{string(req.Type): req.Extent}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "valhalla: marshal request")
	}

	body, err := resilience.Do(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		return c.post(ctx, "/isochrone", payload)
	})
	if err != nil {
		return nil, err
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(body, &fc); err != nil {
		return nil, eris.Wrap(err, "valhalla: decode isochrone")
	}
	if len(fc.Features) == 0 || fc.Features[0] == nil {
		return nil, eris.New("valhalla: isochrone response has no features")
	}

	props := make(map[string]any, len(DisplayProperties))
	for k, v := range DisplayProperties {
		props[k] = v
	}
	fc.Features[0].Properties = props
	return &fc, nil
}

func (c *httpClient) post(ctx context.Context, path string, payload []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "valhalla: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "valhalla: send request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, eris.Wrap(err, "valhalla: read response")
	}

	if resilience.IsTransientStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(
			eris.Errorf("valhalla: http %d: %s", resp.StatusCode, truncate(body, 200)), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("valhalla: http %d: %s", resp.StatusCode, truncate(body, 200))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
