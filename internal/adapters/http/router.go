package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/decision-assistant/internal/config"
	"github.com/kirillkom/decision-assistant/internal/core/domain"
	"github.com/kirillkom/decision-assistant/internal/core/ports"
)

const defaultMaxBodyBytes int64 = 64 << 20

// Services are the inbound use cases exposed over HTTP.
type Services struct {
	Ingestor  ports.DocumentIngestor
	Documents ports.DocumentReader
	Remover   ports.DocumentRemover
	Retriever ports.Retriever
	Asker     ports.QuestionAnswerer
}

// MetricsRecorder wraps handlers with request metrics and serves the scrape endpoint.
type MetricsRecorder interface {
	Middleware(next http.Handler) http.Handler
	Handler() http.Handler
}

type Router struct {
	cfg     config.Config
	svc     Services
	logger  *slog.Logger
	metrics MetricsRecorder
}

func NewRouter(cfg config.Config, svc Services, logger *slog.Logger, metrics MetricsRecorder) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		cfg:     cfg,
		svc:     svc,
		logger:  logger,
		metrics: metrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	mux.HandleFunc("POST /v1/documents", rt.uploadDocument)
	mux.HandleFunc("GET /v1/documents/{id}", rt.getDocument)
	mux.HandleFunc("DELETE /v1/documents/{id}", rt.deleteDocument)
	mux.HandleFunc("POST /v1/retrieval/query", rt.queryRetrieval)
	mux.HandleFunc("POST /v1/ask", rt.ask)

	var handler http.Handler = mux
	handler = bodyLimitMiddleware(handler, rt.maxBodyBytes())
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) maxBodyBytes() int64 {
	if rt.cfg.APIMaxBodyBytes > 0 {
		return rt.cfg.APIMaxBodyBytes
	}
	return defaultMaxBodyBytes
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	doc, err := rt.svc.Ingestor.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		rt.writeDomainError(w, r, "upload_document", err)
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "document id is required")
		return
	}

	doc, err := rt.svc.Documents.GetByID(r.Context(), id)
	if err != nil {
		rt.writeDomainError(w, r, "get_document", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "document id is required")
		return
	}

	if err := rt.svc.Remover.RemoveByID(r.Context(), id); err != nil {
		rt.writeDomainError(w, r, "delete_document", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type retrievalRequest struct {
	Query          string   `json:"query"`
	TopK           int      `json:"top_k"`
	ScoreThreshold *float64 `json:"score_threshold"`
	SemanticOnly   bool     `json:"semantic_only"`
}

type retrievalResponse struct {
	Results []domain.RetrievedChunk `json:"results"`
}

func (rt *Router) queryRetrieval(w http.ResponseWriter, r *http.Request) {
	var req retrievalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.TopK < 0 {
		writeError(w, http.StatusBadRequest, "top_k must not be negative")
		return
	}

	results, err := rt.svc.Retriever.Query(r.Context(), req.Query, domain.QueryOptions{
		TopK:           req.TopK,
		ScoreThreshold: req.ScoreThreshold,
		SemanticOnly:   req.SemanticOnly,
	})
	if err != nil {
		rt.writeDomainError(w, r, "retrieval_query", err)
		return
	}
	if results == nil {
		results = []domain.RetrievedChunk{}
	}
	writeJSON(w, http.StatusOK, retrievalResponse{Results: results})
}

type askRequest struct {
	Question      string `json:"question"`
	Mode          string `json:"mode"`
	MaxIterations *int   `json:"max_iterations"`
}

func (rt *Router) ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	maxIterations := rt.cfg.WorkflowMaxIterations
	if req.MaxIterations != nil {
		maxIterations = *req.MaxIterations
	}
	if limit := rt.cfg.WorkflowMaxIterationsLimit; limit > 0 && maxIterations > limit {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("max_iterations must be at most %d", limit))
		return
	}

	ctx := r.Context()
	if timeout := rt.cfg.WorkflowTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	started := time.Now()
	result, err := rt.svc.Asker.Ask(ctx, req.Question, req.Mode, maxIterations)
	if err != nil {
		rt.writeDomainError(w, r, "ask", err)
		return
	}
	rt.logger.Info("ask_completed",
		"request_id", requestIDFromContext(r.Context()),
		"agent_type", result.AgentType,
		"sources", len(result.Sources),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	writeJSON(w, http.StatusOK, result)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func (rt *Router) writeDomainError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status := mapErrorToHTTPStatus(err)
	attrs := []any{
		"request_id", requestIDFromContext(r.Context()),
		"operation", operation,
		"status", status,
		"error", err,
	}
	if status >= http.StatusInternalServerError {
		rt.logger.Error("request_failed", attrs...)
	} else {
		rt.logger.Warn("request_rejected", attrs...)
	}
	writeError(w, status, publicErrorMessage(status, err))
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
