// Package api provides REST API handlers for querying processed views.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fidde/curriculum_log_wrangler/internal/analyzer"
	"github.com/fidde/curriculum_log_wrangler/internal/metrics"
	"github.com/fidde/curriculum_log_wrangler/internal/patterns"
	"github.com/fidde/curriculum_log_wrangler/internal/runner"
	"github.com/fidde/curriculum_log_wrangler/internal/storage"
	"github.com/fidde/curriculum_log_wrangler/pkg/frame"
	"github.com/fidde/curriculum_log_wrangler/pkg/models"
)

// Refresher re-runs fetch and wrangle on demand.
type Refresher interface {
	TryRun(ctx context.Context) (*runner.Report, error)
	Last() *runner.Report
}

// Server is the REST API server.
type Server struct {
	store     storage.Storage
	refresher Refresher
	metrics   *metrics.Metrics
	patterns  []patterns.CompiledPattern
	logger    *slog.Logger
	router    *chi.Mux
	server    *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithRefresher enables POST /api/v1/admin/refresh.
func WithRefresher(r Refresher) Option {
	return func(s *Server) { s.refresher = r }
}

// WithMetrics serves /metrics and counts requests.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithPatterns sets the masking patterns used for path templates.
func WithPatterns(p []patterns.CompiledPattern) Option {
	return func(s *Server) { s.patterns = p }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// PaginationParams contains pagination parameters from query string.
type PaginationParams struct {
	Limit  int
	Offset int
}

// PaginatedResponse wraps a paginated response with metadata.
type PaginatedResponse struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
}

// parsePaginationParams extracts pagination parameters from request.
// Defaults: limit=100, offset=0, max_limit=1000
func parsePaginationParams(r *http.Request) (PaginationParams, error) {
	const (
		defaultLimit = 100
		maxLimit     = 1000
	)

	limit, err := intParam(r, "limit", defaultLimit, 1)
	if err != nil {
		return PaginationParams{}, err
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	offset, err := intParam(r, "offset", 0, 0)
	if err != nil {
		return PaginationParams{}, err
	}

	return PaginationParams{
		Limit:  limit,
		Offset: offset,
	}, nil
}

// intParam reads an integer query parameter, falling back to def when
// absent. Values below lowest are rejected.
func intParam(r *http.Request, name string, def, lowest int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lowest {
		return 0, fmt.Errorf("invalid %s %q: must be an integer >= %d", name, raw, lowest)
	}
	return v, nil
}

// paginateSlice applies pagination to a slice.
func paginateSlice[T any](items []T, params PaginationParams) ([]T, PaginatedResponse) {
	total := len(items)
	start := params.Offset
	end := start + params.Limit

	if start >= total {
		return []T{}, PaginatedResponse{
			Data:    []T{},
			Total:   total,
			Limit:   params.Limit,
			Offset:  params.Offset,
			HasMore: false,
		}
	}

	if end > total {
		end = total
	}

	page := items[start:end]
	hasMore := end < total

	return page, PaginatedResponse{
		Data:    page,
		Total:   total,
		Limit:   params.Limit,
		Offset:  params.Offset,
		HasMore: hasMore,
	}
}

// NewServer creates a new API server.
func NewServer(addr string, store storage.Storage, opts ...Option) *Server {
	s := &Server{
		store:  store,
		logger: slog.Default(),
		router: chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.HandleHealth)

		r.Get("/views", s.listViews)
		r.Route("/views/{view}", func(r chi.Router) {
			r.Get("/rows", s.getRows)
			r.Get("/summary", s.getSummary)
			r.Get("/usage/{dimension}", s.getUsage)
			r.Get("/paths/top", s.getTopPaths)
			r.Get("/paths/templates", s.getPathTemplates)
		})

		r.Post("/admin/refresh", s.refresh)
		r.Post("/admin/clear", s.clearAllData)
	})

	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the API server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// requestLogger logs each request and counts it by route pattern.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if s.metrics != nil {
			s.metrics.ObserveRequest(route, status)
		}
		s.logger.Debug("request",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// loadView fetches the {view} URL parameter, writing the error response
// itself when it fails.
func (s *Server) loadView(w http.ResponseWriter, r *http.Request) (string, *frame.Table, bool) {
	name := chi.URLParam(r, "view")
	t, err := s.store.GetView(r.Context(), name)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "view not found")
			return "", nil, false
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return "", nil, false
	}
	return name, t, true
}

// listViews returns every stored view.
// GET /api/v1/views
func (s *Server) listViews(w http.ResponseWriter, r *http.Request) {
	infos, err := s.store.ListViews(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"data":  infos,
		"total": len(infos),
	})
}

// Row is one row of a view as returned by the API.
type Row struct {
	RowID     int                    `json:"row_id"`
	Timestamp *time.Time             `json:"timestamp,omitempty"`
	Values    map[string]interface{} `json:"values"`
}

// getRows returns a page of rows in view order.
// GET /api/v1/views/{view}/rows?limit=N&offset=M
func (s *Server) getRows(w http.ResponseWriter, r *http.Request) {
	params, err := parsePaginationParams(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	_, t, ok := s.loadView(w, r)
	if !ok {
		return
	}

	positions := make([]int, t.Len())
	for i := range positions {
		positions[i] = i
	}
	page, response := paginateSlice(positions, params)

	names := t.Columns()
	rows := make([]Row, len(page))
	for i, pos := range page {
		row := Row{RowID: t.RowID(pos), Values: make(map[string]interface{}, len(names))}
		if t.Indexed() {
			ts := t.IndexAt(pos)
			row.Timestamp = &ts
		}
		for j, v := range t.Row(pos) {
			row.Values[names[j]] = v.Interface()
		}
		rows[i] = row
	}
	response.Data = rows

	s.respondJSON(w, http.StatusOK, response)
}

// getSummary describes a view.
// GET /api/v1/views/{view}/summary
func (s *Server) getSummary(w http.ResponseWriter, r *http.Request) {
	name, t, ok := s.loadView(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, analyzer.Summarize(name, t))
}

// getUsage buckets a view by a calendar dimension.
// GET /api/v1/views/{view}/usage/{dimension}
func (s *Server) getUsage(w http.ResponseWriter, r *http.Request) {
	dim, err := analyzer.ParseDimension(chi.URLParam(r, "dimension"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	name, t, ok := s.loadView(w, r)
	if !ok {
		return
	}

	resp, err := analyzer.Usage(name, t, dim)
	if err != nil {
		s.respondAnalysisError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// getTopPaths returns the most requested values of one path segment.
// GET /api/v1/views/{view}/paths/top?segment=N&limit=M
func (s *Server) getTopPaths(w http.ResponseWriter, r *http.Request) {
	segment, err := intParam(r, "segment", 1, 1)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := intParam(r, "limit", 10, 1)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	name, t, ok := s.loadView(w, r)
	if !ok {
		return
	}

	resp, err := analyzer.TopPaths(name, t, segment, limit)
	if err != nil {
		s.respondAnalysisError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// getPathTemplates groups the paths of a view into templates.
// GET /api/v1/views/{view}/paths/templates?limit=N&offset=M
func (s *Server) getPathTemplates(w http.ResponseWriter, r *http.Request) {
	params, err := parsePaginationParams(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	_, t, ok := s.loadView(w, r)
	if !ok {
		return
	}

	a := analyzer.NewPathAnalyzer(s.patterns)
	a.AddView(t)

	_, response := paginateSlice(a.Templates(), params)
	s.respondJSON(w, http.StatusOK, response)
}

// respondAnalysisError maps a missing column to 400 and anything else to 500.
func (s *Server) respondAnalysisError(w http.ResponseWriter, err error) {
	var schemaErr *models.SchemaError
	if errors.As(err, &schemaErr) {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondError(w, http.StatusInternalServerError, err.Error())
}

// refresh re-runs fetch and wrangle and stores the new views.
// POST /api/v1/admin/refresh
func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		s.respondError(w, http.StatusNotImplemented, "refresh is not configured")
		return
	}

	report, err := s.refresher.TryRun(r.Context())
	if err != nil {
		if errors.Is(err, runner.ErrRunInProgress) {
			s.respondError(w, http.StatusConflict, err.Error())
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

// clearAllData clears all views from the storage.
// POST /api/v1/admin/clear
func (s *Server) clearAllData(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Clear(r.Context()); err != nil {
		s.respondError(w, http.StatusInternalServerError, "Failed to clear data")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{
		"message": "All views cleared successfully",
	})
}

// respondJSON writes a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("encoding response", "error", err)
	}
}

// respondError writes an error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}
