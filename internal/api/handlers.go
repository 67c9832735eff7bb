package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/areal/internal/areal"
	"github.com/sells-group/areal/internal/registry"
	"github.com/sells-group/areal/pkg/valhalla"
)

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type statsResponse struct {
	Dataset string       `json:"dataset"`
	Stats   areal.Result `json:"stats"`
}

type ageBinsResponse struct {
	AgeBins areal.Result `json:"ageBins"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listDatasets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.datasets.List())
}

func (s *Server) datasetStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, err := s.stats(w, r, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Dataset: id, Stats: result})
}

func (s *Server) ageBins(w http.ResponseWriter, r *http.Request) {
	result, err := s.stats(w, r, AgeBinsDataset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ageBinsResponse{AgeBins: result})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request, id string) (areal.Result, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		return nil, err
	}
	q, err := areal.ParseQuery(body)
	if err != nil {
		return nil, err
	}
	return s.datasets.AreaStats(r.Context(), q, id)
}

func (s *Server) isochrone(w http.ResponseWriter, r *http.Request) {
	if s.isochrones == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Error:     "isochrone service not configured",
			RequestID: RequestID(r.Context()),
		})
		return
	}

	req, err := parseIsochroneRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), RequestID: RequestID(r.Context())})
		return
	}

	fc, err := s.isochrones.Isochrone(r.Context(), req)
	if err != nil {
		logger(r).Error("isochrone request failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "isochrone request failed", RequestID: RequestID(r.Context())})
		return
	}
	writeJSON(w, http.StatusOK, fc)
}

func parseIsochroneRequest(r *http.Request) (valhalla.Request, error) {
	q := r.URL.Query()
	req := valhalla.Request{
		Type:    valhalla.ExtentType(q.Get("eType")),
		Costing: q.Get("mode"),
	}
	if req.Type == "" {
		req.Type = valhalla.Time
	}
	if req.Costing == "" {
		req.Costing = "auto"
	}

	for _, p := range []struct {
		name string
		dst  *float64
	}{
		{"extent", &req.Extent},
		{"lat", &req.Lat},
		{"lon", &req.Lon},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			return req, eris.Errorf("api: missing query parameter %q", p.name)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return req, eris.Errorf("api: query parameter %q is not a number", p.name)
		}
		*p.dst = v
	}
	return req, req.Validate()
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		geomErr     *areal.GeometryError
		crsErr      *areal.CRSMismatchError
		unknown     *registry.UnknownDatasetError
		unavailable *registry.DatasetUnavailableError
		tooLarge    *http.MaxBytesError
	)
	switch {
	case errors.As(err, &geomErr), errors.As(err, &crsErr):
		return http.StatusBadRequest
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &unknown):
		return http.StatusNotFound
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger(r).Error("request failed", zap.Error(err))
		msg = http.StatusText(status)
	} else {
		logger(r).Warn("request rejected", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: msg, RequestID: RequestID(r.Context())})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}
