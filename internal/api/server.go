// Package api exposes discovery, auto-fill and the run log over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/permit-cli/internal/autofill"
	"github.com/sells-group/permit-cli/internal/discovery"
	"github.com/sells-group/permit-cli/internal/metrics"
	"github.com/sells-group/permit-cli/internal/model"
	"github.com/sells-group/permit-cli/internal/store"
)

const maxBodyBytes = 1 << 20

// Discoverer runs permit discovery.
type Discoverer interface {
	Discover(ctx context.Context, in model.ProjectInput) (*discovery.Result, error)
}

// Filler fills a form and records the run.
type Filler interface {
	FillLogged(ctx context.Context, runs autofill.RunLog, req autofill.Request) *autofill.FillResult
}

// Runs is the run log the API reads and writes. store.Store satisfies it.
type Runs interface {
	autofill.RunLog
	GetRun(ctx context.Context, runID string) (*model.Run, error)
}

// Server holds the API's collaborators.
type Server struct {
	discoverer  Discoverer
	filler      Filler
	runs        Runs
	metrics     *metrics.Metrics
	corsOrigins []string
}

// New creates a Server. With a nil m, /metrics answers 404.
func New(d Discoverer, f Filler, runs Runs, m *metrics.Metrics, corsOrigins []string) *Server {
	return &Server{discoverer: d, filler: f, runs: runs, metrics: m, corsOrigins: corsOrigins}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	if len(s.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/discover", s.handleDiscover)
		r.Post("/fill", s.handleFill)
		r.Get("/runs/{id}", s.handleGetRun)
	})
	return r
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	var in model.ProjectInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(in.Address) == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}
	if strings.TrimSpace(in.Description) == "" {
		writeError(w, http.StatusBadRequest, "description is required")
		return
	}

	res, err := s.discoverer.Discover(r.Context(), in)
	switch {
	case errors.Is(err, discovery.ErrAddressValidation):
		writeError(w, http.StatusUnprocessableEntity, "cannot validate address")
		return
	case errors.Is(err, discovery.ErrJurisdictionNotFound):
		writeError(w, http.StatusNotFound, "no permit authority serves this address")
		return
	case err != nil:
		zap.L().Error("api: discover failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "discovery failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleFill(w http.ResponseWriter, r *http.Request) {
	var req autofill.Request
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Fields) == 0 {
		writeError(w, http.StatusBadRequest, "form_structure is required")
		return
	}
	if req.User == nil {
		req.User = model.Record{}
	}
	if req.Project == nil {
		req.Project = model.Record{}
	}
	writeJSON(w, http.StatusOK, s.filler.FillLogged(r.Context(), s.runs, req))
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := s.runs.GetRun(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "run not found")
		return
	case err != nil:
		zap.L().Error("api: get run failed", zap.String("run_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "run lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
