// Package api serves areal statistics over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sells-group/areal/internal/areal"
	"github.com/sells-group/areal/internal/registry"
	"github.com/sells-group/areal/pkg/valhalla"
)

// AgeBinsDataset backs the /simple_age_bins endpoint.
const AgeBinsDataset = "simple_age_bins"

const defaultMaxBodyBytes = 10 << 20

// Datasets is the registry surface the handlers use.
type Datasets interface {
	AreaStats(ctx context.Context, q *areal.Query, id string) (areal.Result, error)
	List() []registry.Status
}

// Options configures the router.
type Options struct {
	CORSOrigins  []string
	MaxBodyBytes int64
	// Isochrones is optional; without it the isochrone endpoint returns 503.
	Isochrones valhalla.Client
}

// Server holds handler dependencies.
type Server struct {
	datasets   Datasets
	isochrones valhalla.Client
	maxBody    int64
	origins    []string
}

// NewServer creates a Server.
func NewServer(datasets Datasets, opts Options) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	return &Server{
		datasets:   datasets,
		isochrones: opts.Isochrones,
		maxBody:    opts.MaxBodyBytes,
		origins:    opts.CORSOrigins,
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         86400,
	}))

	r.Get("/health", s.health)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/datasets", s.listDatasets)
		r.Post("/datasets/{id}/stats", s.datasetStats)
		r.Post("/"+AgeBinsDataset, s.ageBins)
		r.Get("/isochrone", s.isochrone)
	})
	return r
}
