// Package handlers exposes the analysis engine over HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/graphintel/insight-engine/internal/config"
	"github.com/graphintel/insight-engine/internal/database"
	"github.com/graphintel/insight-engine/internal/engine"
	"github.com/graphintel/insight-engine/internal/graph"
)

// HTTPHandlers contains HTTP request handlers.
type HTTPHandlers struct {
	engine *engine.Engine
	jobs   *database.Repository
	config config.Config
	logger *slog.Logger
}

// NewHTTPHandlers creates new HTTP handlers. jobs may be nil when the
// service runs without Postgres.
func NewHTTPHandlers(
	engine *engine.Engine,
	jobs *database.Repository,
	config config.Config,
	logger *slog.Logger,
) *HTTPHandlers {
	return &HTTPHandlers{
		engine: engine,
		jobs:   jobs,
		config: config,
		logger: logger,
	}
}

// RegisterRoutes registers HTTP routes.
func (h *HTTPHandlers) RegisterRoutes(router *mux.Router) {
	// Analysis endpoints
	router.HandleFunc("/api/v1/analysis/communities", h.detectCommunities).Methods("POST")
	router.HandleFunc("/api/v1/analysis/influence", h.scoreInfluence).Methods("POST")
	router.HandleFunc("/api/v1/analysis/paths", h.tracePaths).Methods("POST")
	router.HandleFunc("/api/v1/analysis/trends", h.findTrends).Methods("POST")
	router.HandleFunc("/api/v1/analysis/gaps", h.findGaps).Methods("POST")
	router.HandleFunc("/api/v1/analysis/report", h.analyzeGraph).Methods("POST")

	// Job endpoints
	router.HandleFunc("/api/v1/analysis/jobs/{jobId}", h.getAnalysisJob).Methods("GET")
	router.HandleFunc("/api/v1/analysis/jobs", h.listAnalysisJobs).Methods("GET")

	// Snapshot endpoints
	router.HandleFunc("/api/v1/snapshot", h.getSnapshot).Methods("GET")
	router.HandleFunc("/api/v1/snapshot/refresh", h.refreshSnapshot).Methods("POST")

	// Health check
	router.HandleFunc("/health", h.healthCheck).Methods("GET")
	router.HandleFunc("/ready", h.readinessCheck).Methods("GET")
}

// detectCommunities handles community detection requests.
func (h *HTTPHandlers) detectCommunities(w http.ResponseWriter, r *http.Request) {
	communities, version, err := h.engine.DetectCommunities(r.Context())
	if err != nil {
		h.handleEngineError(w, "Failed to detect communities", err)
		return
	}

	h.writeJSON(w, http.StatusOK, &CommunitiesResponse{
		SnapshotVersion: version,
		Communities:     communities,
	})
}

// scoreInfluence handles influence scoring requests.
func (h *HTTPHandlers) scoreInfluence(w http.ResponseWriter, r *http.Request) {
	influence, err := h.engine.ScoreInfluence(r.Context())
	if err != nil {
		h.handleEngineError(w, "Failed to score influence", err)
		return
	}

	h.writeJSON(w, http.StatusOK, &InfluenceResponse{Influence: influence})
}

// tracePaths handles path tracing requests.
func (h *HTTPHandlers) tracePaths(w http.ResponseWriter, r *http.Request) {
	var req TracePathsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.SourceID == "" {
		h.writeError(w, http.StatusBadRequest, "source_id is required", nil)
		return
	}
	if req.TargetID == "" {
		h.writeError(w, http.StatusBadRequest, "target_id is required", nil)
		return
	}

	results, err := h.engine.TracePaths(r.Context(), req.SourceID, req.TargetID, req.MaxHops)
	if err != nil {
		h.handleEngineError(w, "Failed to trace paths", err)
		return
	}

	h.writeJSON(w, http.StatusOK, &TracePathsResponse{
		SourceID: req.SourceID,
		TargetID: req.TargetID,
		Paths:    results,
	})
}

// findTrends handles temporal trend requests.
func (h *HTTPHandlers) findTrends(w http.ResponseWriter, r *http.Request) {
	var req TrendsRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	results, err := h.engine.FindTemporalTrends(r.Context(), req.WindowDays)
	if err != nil {
		h.handleEngineError(w, "Failed to analyze trends", err)
		return
	}

	h.writeJSON(w, http.StatusOK, &InsightsResponse{Insights: results})
}

// findGaps handles gap analysis requests.
func (h *HTTPHandlers) findGaps(w http.ResponseWriter, r *http.Request) {
	var req GapsRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	results, err := h.engine.FindGaps(r.Context(), req.TargetTopics)
	if err != nil {
		h.handleEngineError(w, "Failed to analyze gaps", err)
		return
	}

	h.writeJSON(w, http.StatusOK, &InsightsResponse{Insights: results})
}

// analyzeGraph handles full analysis report requests.
func (h *HTTPHandlers) analyzeGraph(w http.ResponseWriter, r *http.Request) {
	var req ReportRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	report, err := h.engine.AnalyzeGraph(r.Context(), req.TargetTopics)
	if err != nil {
		h.handleEngineError(w, "Failed to analyze graph", err)
		return
	}

	h.writeJSON(w, http.StatusOK, report)
}

// getAnalysisJob returns a recorded analysis run.
func (h *HTTPHandlers) getAnalysisJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		h.writeError(w, http.StatusNotImplemented, "Job history is not configured", nil)
		return
	}

	jobID := mux.Vars(r)["jobId"]
	job, err := h.jobs.GetAnalysisJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, database.ErrJobNotFound) {
			h.writeError(w, http.StatusNotFound, "Analysis job not found", nil)
			return
		}
		h.logger.Error("Failed to get analysis job", "job_id", jobID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to get analysis job", err)
		return
	}

	h.writeJSON(w, http.StatusOK, convertAnalysisJob(job))
}

// listAnalysisJobs lists recorded analysis runs with pagination.
func (h *HTTPHandlers) listAnalysisJobs(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		h.writeError(w, http.StatusNotImplemented, "Job history is not configured", nil)
		return
	}

	limit, offset := h.getPaginationParams(r)
	status := r.URL.Query().Get("status")

	jobs, err := h.jobs.ListAnalysisJobs(r.Context(), status, limit, offset)
	if err != nil {
		h.logger.Error("Failed to list analysis jobs", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to list analysis jobs", err)
		return
	}

	response := &ListAnalysisJobsResponse{
		Jobs:   make([]*AnalysisJobResponse, 0, len(jobs)),
		Limit:  limit,
		Offset: offset,
	}
	for _, job := range jobs {
		response.Jobs = append(response.Jobs, convertAnalysisJob(job))
	}

	h.writeJSON(w, http.StatusOK, response)
}

// getSnapshot describes the currently loaded snapshot.
func (h *HTTPHandlers) getSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.engine.Snapshot(r.Context())
	if err != nil {
		h.handleEngineError(w, "Failed to load snapshot", err)
		return
	}

	h.writeJSON(w, http.StatusOK, &SnapshotResponse{
		Version:           snapshot.Version,
		EntityCount:       len(snapshot.Entities),
		RelationshipCount: len(snapshot.Relationships),
		LoadedAt:          snapshot.LoadedAt,
	})
}

// refreshSnapshot forces a snapshot reload from the graph store.
func (h *HTTPHandlers) refreshSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.engine.RefreshSnapshot(r.Context())
	if err != nil {
		h.handleEngineError(w, "Failed to refresh snapshot", err)
		return
	}

	h.writeJSON(w, http.StatusOK, &SnapshotResponse{
		Version:           snapshot.Version,
		EntityCount:       len(snapshot.Entities),
		RelationshipCount: len(snapshot.Relationships),
		LoadedAt:          snapshot.LoadedAt,
	})
}

// healthCheck returns service health status.
func (h *HTTPHandlers) healthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "insight-engine",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// readinessCheck returns service readiness status.
func (h *HTTPHandlers) readinessCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ready",
		"service": "insight-engine",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Helper methods

// handleEngineError maps the engine's error taxonomy to HTTP statuses.
func (h *HTTPHandlers) handleEngineError(w http.ResponseWriter, message string, err error) {
	var notFound *graph.EntityNotFoundError
	var dataAccess *graph.DataAccessError

	switch {
	case errors.As(err, &notFound):
		h.writeError(w, http.StatusNotFound, err.Error(), nil)
	case errors.As(err, &dataAccess):
		h.logger.Error(message, "error", err)
		h.writeError(w, http.StatusServiceUnavailable, "Graph store unavailable", err)
	default:
		h.logger.Error(message, "error", err)
		h.writeError(w, http.StatusInternalServerError, message, err)
	}
}

// getPaginationParams extracts pagination parameters from request.
func (h *HTTPHandlers) getPaginationParams(r *http.Request) (limit, offset int) {
	limit = parseInt(r.URL.Query().Get("limit"), 50)
	offset = parseInt(r.URL.Query().Get("offset"), 0)

	if limit > 1000 {
		limit = 1000
	}

	return limit, offset
}

// parseInt parses integer with default value.
func parseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(s)
	if err != nil || value < 0 {
		return defaultValue
	}
	return value
}

// decodeOptionalBody decodes a JSON body, tolerating an empty one.
func decodeOptionalBody(r *http.Request, dst interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return nil
}

// writeJSON writes a JSON response.
func (h *HTTPHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", "error", err)
	}
}

// writeError writes an error response.
func (h *HTTPHandlers) writeError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]interface{}{
		"error":     message,
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err != nil && h.config.Environment != "production" {
		response["details"] = err.Error()
	}

	h.writeJSON(w, status, response)
}

func convertAnalysisJob(job *database.AnalysisJob) *AnalysisJobResponse {
	return &AnalysisJobResponse{
		ID:              job.ID,
		Operation:       job.Operation,
		Status:          job.Status,
		SnapshotVersion: job.SnapshotVersion,
		InsightCount:    job.InsightCount,
		Error:           job.Error,
		StartedAt:       job.StartedAt,
		CompletedAt:     job.CompletedAt,
	}
}
