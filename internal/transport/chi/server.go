// Package chi exposes the query and export API over an HTTP router.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/colex-db/colex/internal/collection"
	"github.com/colex-db/colex/internal/domain"
	"github.com/colex-db/colex/internal/domain/export"
	"github.com/colex-db/colex/internal/domain/filter"
	"github.com/colex-db/colex/internal/domain/search"
	"github.com/colex-db/colex/internal/executor"
	"github.com/colex-db/colex/internal/exporter"
)

// StatusClientClosedRequest is the nginx convention for a cancelled request.
const StatusClientClosedRequest = 499

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// HealthChecker verifies a dependency is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server routes query and export requests to the engine layer.
type Server struct {
	exec          *executor.Executor
	exports       *exporter.Engine
	registry      *exporter.Registry
	lister        collection.Lister
	pinger        collection.Pinger
	embedHealth   HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
	exportTimeout time.Duration
}

// NewServer creates an HTTP API server. embedHealth may be nil when no
// embedding provider is configured.
func NewServer(
	exec *executor.Executor,
	exports *exporter.Engine,
	registry *exporter.Registry,
	lister collection.Lister,
	pinger collection.Pinger,
	embedHealth HealthChecker,
	logger *zap.Logger,
) *Server {
	s := &Server{
		exec:        exec,
		exports:     exports,
		registry:    registry,
		lister:      lister,
		pinger:      pinger,
		embedHealth: embedHealth,
		logger:      logger,
	}
	s.errorHandlers = []errorHandler{
		cancelledHandler,
		timeoutHandler,
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, "validation_failed"),
		sentinelHandler(domain.ErrFilterTooDeep, http.StatusBadRequest, "filter_too_deep"),
		filterBuildHandler,
		sentinelHandler(domain.ErrObjectNotFound, http.StatusNotFound, "object_not_found"),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, "not_found"),
		sentinelHandler(domain.ErrEmbeddingProvider, http.StatusBadGateway, "embedding_provider_error"),
	}
	return s
}

// WithExportTimeout bounds each export request with a deadline. Exceeding it
// surfaces the actionable timeout message. Zero disables the bound.
func (s *Server) WithExportTimeout(d time.Duration) *Server {
	s.exportTimeout = d
	return s
}

// Routes mounts all endpoints on the router.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/collections", s.ListCollections)
		r.Post("/collections/{collection}/query", s.Query)
		r.Post("/collections/{collection}/export", s.Export)
		r.Post("/exports/{id}/cancel", s.CancelExport)
	})
}

// queryRequest is the POST /collections/{collection}/query body.
type queryRequest struct {
	Limit         int                `json:"limit"`
	Offset        int                `json:"offset"`
	Properties    []string           `json:"properties,omitempty"`
	SortBy        *sortClause        `json:"sortBy,omitempty"`
	Filters       *filter.Group      `json:"filters,omitempty"`
	Conditions    []filter.Condition `json:"conditions,omitempty"`
	MatchMode     filter.MatchMode   `json:"matchMode,omitempty"`
	VectorSearch  *search.Params     `json:"vectorSearch,omitempty"`
	IncludeVector bool               `json:"includeVector"`
}

type sortClause struct {
	Path  string `json:"path"`
	Order string `json:"order,omitempty"`
}

type queryResponse struct {
	Objects    []domain.Object `json:"objects"`
	TotalCount int             `json:"totalCount"`
	Limit      int             `json:"limit"`
	Offset     int             `json:"offset"`
}

// Query handles POST /api/v1/collections/{collection}/query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	collectionName := chi.URLParam(r, "collection")

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	params := executor.FetchParams{
		Limit:         req.Limit,
		Offset:        req.Offset,
		Properties:    req.Properties,
		Filters:       req.Filters,
		Conditions:    req.Conditions,
		MatchMode:     req.MatchMode,
		IncludeVector: req.IncludeVector,
	}
	if req.VectorSearch != nil {
		params.VectorSearch = *req.VectorSearch
	}
	if req.SortBy != nil {
		order := collection.SortAsc
		if req.SortBy.Order == string(collection.SortDesc) {
			order = collection.SortDesc
		}
		params.SortBy = &collection.Sort{Path: req.SortBy.Path, Order: order}
	}

	res, err := s.exec.Fetch(r.Context(), collectionName, &params)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	objects := res.Objects
	if objects == nil {
		objects = []domain.Object{}
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Objects:    objects,
		TotalCount: res.Total,
		Limit:      req.Limit,
		Offset:     req.Offset,
	})
}

// exportRequest is the POST /collections/{collection}/export body. ExportID
// is optional: a caller that wants to cancel mid-flight supplies its own id
// and posts the cancel against it.
type exportRequest struct {
	ExportID       string             `json:"exportId,omitempty"`
	Format         export.Format      `json:"format"`
	Scope          export.Scope       `json:"scope"`
	CurrentObjects []domain.Object    `json:"currentObjects,omitempty"`
	Filters        *filter.Group      `json:"filters,omitempty"`
	Conditions     []filter.Condition `json:"conditions,omitempty"`
	MatchMode      filter.MatchMode   `json:"matchMode,omitempty"`
	Options        export.Options     `json:"options"`
}

type exportResponse struct {
	ExportID string `json:"exportId"`
	export.Result
}

// Export handles POST /api/v1/collections/{collection}/export.
func (s *Server) Export(w http.ResponseWriter, r *http.Request) {
	collectionName := chi.URLParam(r, "collection")

	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	ctx, id, release, err := s.registry.Register(r.Context(), req.ExportID)
	if err != nil {
		writeError(w, http.StatusConflict, "export_id_in_use", err.Error())
		return
	}
	defer release()

	if s.exportTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.exportTimeout)
		defer cancel()
	}

	res, err := s.exports.Export(ctx, &export.Params{
		CollectionName: collectionName,
		Format:         req.Format,
		Scope:          req.Scope,
		CurrentObjects: req.CurrentObjects,
		Filters:        req.Filters,
		Conditions:     req.Conditions,
		MatchMode:      req.MatchMode,
		Options:        req.Options,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, exportResponse{ExportID: id, Result: res})
}

// CancelExport handles POST /api/v1/exports/{id}/cancel.
func (s *Server) CancelExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.registry.Cancel(id) {
		writeError(w, http.StatusNotFound, "export_not_found", "no running export with id "+id)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"exportId": id, "cancelled": true})
}

// ListCollections handles GET /api/v1/collections.
func (s *Server) ListCollections(w http.ResponseWriter, r *http.Request) {
	infos, err := s.lister.ListCollections(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if infos == nil {
		infos = []collection.Info{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": infos})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	healthy := true

	if err := s.pinger.Ping(r.Context()); err != nil {
		checks["database"] = "error"
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	if s.embedHealth != nil {
		if err := s.embedHealth.HealthCheck(r.Context()); err != nil {
			checks["embedding"] = "error"
			healthy = false
		} else {
			checks["embedding"] = "ok"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, map[string]any{"status": status, "checks": checks})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}

// sentinelHandler returns an errorHandler that matches a single sentinel
// error and echoes its safe message.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, err.Error())
		return true
	}
}

// cancelledHandler renders a cooperatively cancelled export. The client
// treats this as a neutral outcome, not a failure.
func cancelledHandler(w http.ResponseWriter, err error) bool {
	if !errors.Is(err, domain.ErrExportCancelled) {
		return false
	}
	writeError(w, StatusClientClosedRequest, "export_cancelled", "Export cancelled")
	return true
}

// timeoutHandler surfaces the actionable timeout message.
func timeoutHandler(w http.ResponseWriter, err error) bool {
	var te *domain.TimeoutError
	if !errors.As(err, &te) {
		return false
	}
	writeError(w, http.StatusGatewayTimeout, "timeout", te.Error())
	return true
}

// filterBuildHandler surfaces the offending property path of a filter that
// could not be translated.
func filterBuildHandler(w http.ResponseWriter, err error) bool {
	var fbe *domain.FilterBuildError
	if !errors.As(err, &fbe) {
		return false
	}
	writeError(w, http.StatusBadRequest, "filter_build_failed", fbe.Error())
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	for _, h := range s.errorHandlers {
		if h(w, err) {
			s.logger.Warn("domain error", zap.Error(err))
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
