// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httpapi exposes the research pipeline over HTTP. Run
// submission is asynchronous: POST /research returns 202 immediately
// and callers poll status or fetch the report once the run is done.
// Implements: prd001-orchestration (control API);
//
//	docs/ARCHITECTURE § Control API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/meshintel/deepresearch/internal/orchestrator"
	"github.com/meshintel/deepresearch/internal/provider"
	"github.com/meshintel/deepresearch/internal/report"
	"github.com/meshintel/deepresearch/pkg/types"
)

// Server handles the control API.
type Server struct {
	orch     *orchestrator.Orchestrator
	backends []provider.Backend
	logger   *zap.Logger
	health   *healthCache
}

// NewServer wires the API around an orchestrator. backends are probed
// by the health endpoint.
func NewServer(orch *orchestrator.Orchestrator, backends []provider.Backend, logger *zap.Logger) *Server {
	return &Server{
		orch:     orch,
		backends: backends,
		logger:   logger,
		health:   newHealthCache(healthCacheTTL),
	}
}

// Router builds the chi route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Post("/research", s.startResearch)
	r.Get("/research/health", s.providerHealth)
	r.Get("/research/{run_id}", s.getStatus)
	r.Get("/research/{run_id}/report", s.getReport)
	r.Get("/research/{run_id}/citations", s.getCitations)
	r.Post("/research/{run_id}/clarify", s.clarify)
	r.Post("/research/{run_id}/cancel", s.cancel)
	r.Delete("/research/{run_id}", s.deleteRun)

	return r
}

// Start serves the API until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	s.logger.Info("control API listening", zap.String("addr", addr))
	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)))
	})
}

type startRequest struct {
	Query      string `json:"query"`
	MaxSources int    `json:"max_sources"`
	MaxDepth   int    `json:"max_depth"`
}

type startResponse struct {
	RunID string      `json:"run_id"`
	Phase types.Phase `json:"phase"`
}

func (s *Server) startResearch(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	run, err := s.orch.Start(r.Context(), req.Query, types.RunConfig{
		MaxSources: req.MaxSources,
		MaxDepth:   req.MaxDepth,
	})
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, startResponse{RunID: run.RunID, Phase: run.CurrentPhase})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.orch.Status(r.Context(), chi.URLParam(r, "run_id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	format, err := report.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	body, contentType, err := s.orch.Report(r.Context(), chi.URLParam(r, "run_id"), format)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) getCitations(w http.ResponseWriter, r *http.Request) {
	citations, err := s.orch.Citations(r.Context(), chi.URLParam(r, "run_id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]types.Citation{"citations": citations})
}

type clarifyRequest struct {
	Answer string `json:"answer"`
}

func (s *Server) clarify(w http.ResponseWriter, r *http.Request) {
	var req clarifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	runID := chi.URLParam(r, "run_id")
	if err := s.orch.Clarify(r.Context(), runID, req.Answer); err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"run_id": runID})
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	if err := s.orch.Cancel(r.Context(), runID); err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (s *Server) deleteRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	if err := s.orch.Delete(r.Context(), runID); err != nil {
		s.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeFailure maps orchestrator errors onto HTTP status codes:
// validation 400, unknown run 404, wrong phase 409.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	var verr *orchestrator.ValidationError
	var serr *orchestrator.InvalidStateError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, orchestrator.ErrRunNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &serr):
		writeError(w, http.StatusConflict, serr.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
