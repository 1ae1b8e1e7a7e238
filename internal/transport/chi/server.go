// Package chi is the thin HTTP layer: request decoding, filter parsing
// and sentinel-to-status error mapping around the cases service.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/epiwatch/casestore/internal/domain"
	"github.com/epiwatch/casestore/internal/domain/caserecord"
	"github.com/epiwatch/casestore/internal/domain/filter"
	"github.com/epiwatch/casestore/internal/domain/schema"
	casesuc "github.com/epiwatch/casestore/internal/usecase/cases"
)

const defaultMaxBatchSize = 500

// Pinger reports backend reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the cases service over HTTP.
type Server struct {
	cases         *casesuc.Service
	pinger        Pinger
	logger        *zap.Logger
	maxBatchSize  int
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(cases *casesuc.Service, pinger Pinger, logger *zap.Logger) *Server {
	s := &Server{
		cases:        cases,
		pinger:       pinger,
		logger:       logger,
		maxBatchSize: defaultMaxBatchSize,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, "validation_failed"),
		sentinelHandler(domain.ErrPrecondition, http.StatusBadRequest, "precondition_unsatisfied"),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, "not_found"),
		sentinelHandler(domain.ErrConflict, http.StatusConflict, "conflict"),
		sentinelHandler(domain.ErrDependencyFailed, http.StatusBadGateway, "dependency_failed"),
		sentinelHandler(domain.ErrStoreUnavailable, http.StatusServiceUnavailable, "store_unavailable"),
	}
	return s
}

// WithMaxBatchSize caps the number of cases accepted per batch request.
func (s *Server) WithMaxBatchSize(n int) *Server {
	if n > 0 {
		s.maxBatchSize = n
	}
	return s
}

// Routes mounts all API routes on a fresh chi router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Route("/cases", func(r chi.Router) {
			r.Post("/", s.createCase)
			r.Get("/", s.listCases)
			r.Post("/batchUpsert", s.batchUpsert)
			r.Get("/download", s.downloadCSV)
			r.Put("/{id}", s.updateCase)
			r.Delete("/{id}", s.deleteCase)
		})
		r.Route("/schema/fields", func(r chi.Router) {
			r.Post("/", s.registerField)
			r.Get("/", s.listFields)
		})
		r.Get("/health", s.health)
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})
	return r
}

// createCase handles POST /api/cases.
func (s *Server) createCase(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}

	c, err := s.cases.Create(r.Context(), raw)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, caseJSON(c))
}

// listCases handles GET /api/cases.
func (s *Server) listCases(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	page := queryInt(r.URL.Query(), "page", 1)
	limit := queryInt(r.URL.Query(), "limit", 0)

	p, err := s.cases.List(r.Context(), f, page, limit)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]map[string]any, len(p.Cases))
	for i, c := range p.Cases {
		items[i] = caseJSON(c)
	}
	resp := map[string]any{
		"cases": items,
		"total": p.Total,
	}
	if p.NextPage != nil {
		resp["nextPage"] = *p.NextPage
	}
	writeJSON(w, http.StatusOK, resp)
}

// updateCase handles PUT /api/cases/{id}.
func (s *Server) updateCase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}

	if err := s.cases.Update(r.Context(), id, raw); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// deleteCase handles DELETE /api/cases/{id}.
func (s *Server) deleteCase(w http.ResponseWriter, r *http.Request) {
	if err := s.cases.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// batchUpsert handles POST /api/cases/batchUpsert.
func (s *Server) batchUpsert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Cases []map[string]any `json:"cases"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}
	if len(req.Cases) == 0 || len(req.Cases) > s.maxBatchSize {
		writeError(w, http.StatusBadRequest, "validation_failed",
			fmt.Sprintf("cases count must be between 1 and %d", s.maxBatchSize))
		return
	}

	out, err := s.cases.BatchUpsert(r.Context(), req.Cases)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"numCreated": out.NumCreated,
		"numUpdated": out.NumUpdated,
		"errors":     out.Errors,
	})
}

// downloadCSV handles GET /api/cases/download.
func (s *Server) downloadCSV(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	key := s.cases.ExportKey(f)
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "cases-"+key[:12]+".csv"))

	if err := s.cases.ExportCSV(r.Context(), f, w); err != nil {
		// Headers are already gone; the truncated stream is the signal.
		s.logger.Error("csv export aborted", zap.Error(err))
	}
}

// registerField handles POST /api/schema/fields.
func (s *Server) registerField(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}

	f, err := s.cases.RegisterField(req.Name, schema.Type(req.Type))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, fieldJSON(f))
}

// listFields handles GET /api/schema/fields.
func (s *Server) listFields(w http.ResponseWriter, r *http.Request) {
	fields := s.cases.Fields()
	items := make([]map[string]any, len(fields))
	for i, f := range fields {
		items[i] = fieldJSON(f)
	}
	writeJSON(w, http.StatusOK, map[string]any{"fields": items})
}

// health handles GET /api/health.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	status := "healthy"
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			checks["store"] = "down"
			status = "unhealthy"
		} else {
			checks["store"] = "up"
		}
	}

	httpStatus := http.StatusOK
	if status != "healthy" {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, map[string]any{"status": status, "checks": checks})
}

// parseFilters builds a filter from repeated filter=path(<|>|=)value
// query parameters. No parameters means match-all.
func parseFilters(q url.Values) (filter.Filter, error) {
	raws := q["filter"]
	if len(raws) == 0 {
		return filter.Anything{}, nil
	}
	parts := make([]filter.Filter, 0, len(raws))
	for _, raw := range raws {
		p, err := parseFilterExpr(raw)
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return filter.And{Filters: parts}, nil
}

func parseFilterExpr(raw string) (filter.Filter, error) {
	idx := strings.IndexAny(raw, "<>=")
	if idx <= 0 || idx == len(raw)-1 {
		return nil, fmt.Errorf("filter %q must have the form path<op>value", raw)
	}
	path, opch, val := raw[:idx], raw[idx], raw[idx+1:]

	var op filter.Op
	switch opch {
	case '<':
		op = filter.Less
	case '>':
		op = filter.Greater
	case '=':
		op = filter.Equal
	}
	return filter.Property{Path: path, Op: op, Value: parseFilterValue(val)}, nil
}

// parseFilterValue types a filter literal: date, then integer, then
// plain string.
func parseFilterValue(raw string) any {
	if t, err := time.Parse(caserecord.DateLayout, raw); err == nil {
		return t
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	return raw
}

func queryInt(q url.Values, name string, fallback int64) int64 {
	raw := q.Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func caseJSON(c *caserecord.Case) map[string]any {
	m := c.ToMap()
	m["_id"] = c.ID
	if d, ok := m["confirmationDate"].(time.Time); ok {
		m["confirmationDate"] = d.Format(caserecord.DateLayout)
	}
	return m
}

func fieldJSON(f schema.Field) map[string]any {
	m := map[string]any{
		"name":     f.Name(),
		"type":     string(f.FieldType()),
		"required": f.Required(),
	}
	if f.Default() != nil {
		m["default"] = f.Default()
	}
	return m
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

// safeDomainMessage returns a client-facing message without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrValidation,
		domain.ErrPrecondition,
		domain.ErrNotFound,
		domain.ErrConflict,
		domain.ErrDependencyFailed,
		domain.ErrStoreUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return err.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
