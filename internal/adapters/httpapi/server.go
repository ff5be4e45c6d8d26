// Package httpapi exposes the approval service over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"opsreport/internal/auth"
	"opsreport/internal/core"
)

// DefaultMaxBodyBytes bounds request bodies.
const DefaultMaxBodyBytes int64 = 1 << 20

// ApprovalService is the subset of core.Service the API calls.
type ApprovalService interface {
	CreateApprovalRequest(ctx context.Context, requester core.Principal, in core.CreateRequestInput) (core.ApprovalRequest, error)
	GetApprovalRequest(ctx context.Context, p core.Principal, id string) (core.ApprovalRequest, error)
	ListApprovalRequests(ctx context.Context, p core.Principal, opts core.ListOptions) (core.ListResult, error)
	ResolveApprovalRequest(ctx context.Context, p core.Principal, id string, decision core.ApprovalStatus) (core.ApprovalRequest, error)
	DeleteApprovalRequest(ctx context.Context, p core.Principal, id string) error
	SubmitMutation(ctx context.Context, p core.Principal, in core.MutationInput) (core.MutationOutcome, error)
	GetRecord(ctx context.Context, p core.Principal, table core.TableName, id string) (core.Record, error)
	GetArchivedResolution(ctx context.Context, p core.Principal, id string) (core.ArchivedResolution, error)
	ListArchive(ctx context.Context, p core.Principal, month string) ([]core.ArchiveEntry, error)
}

// HTTPMetrics receives per-request observations. *metrics.Recorder implements it.
type HTTPMetrics interface {
	RecordHTTPRequest(method, route string, statusCode int, duration time.Duration)
	RecordRateLimited()
}

type noopHTTPMetrics struct{}

func (noopHTTPMetrics) RecordHTTPRequest(string, string, int, time.Duration) {}
func (noopHTTPMetrics) RecordRateLimited()                                   {}

// Server routes API requests to the approval service.
type Server struct {
	service        ApprovalService
	auth           *auth.Authenticator
	logger         *slog.Logger
	metrics        HTTPMetrics
	metricsHandler http.Handler
	limiter        *submitLimiter
	maxBodyBytes   int64
	router         *mux.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the access and error logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records request metrics and, when handler is non-nil, serves it on /metrics.
func WithMetrics(m HTTPMetrics, handler http.Handler) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
		s.metricsHandler = handler
	}
}

// WithSubmitRateLimit allows perMinute write requests per principal. Zero disables the limit.
func WithSubmitRateLimit(perMinute int) Option {
	return func(s *Server) {
		s.limiter = newSubmitLimiter(perMinute)
	}
}

// WithMaxBodyBytes overrides DefaultMaxBodyBytes.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// NewServer wires the routes.
func NewServer(service ApprovalService, authenticator *auth.Authenticator, opts ...Option) *Server {
	s := &Server{
		service:      service,
		auth:         authenticator,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics:      noopHTTPMetrics{},
		maxBodyBytes: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware, s.accessMiddleware, s.recoveryMiddleware)
	r.NotFoundHandler = requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, CodeRouteNotFound, errors.New("route not found"), nil)
	}))
	r.MethodNotAllowedHandler = requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, CodeMethodNotAllowed, errors.New("method not allowed"), nil)
	}))

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.metricsHandler != nil {
		r.Handle("/metrics", s.metricsHandler).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(s.authMiddleware, s.rateLimitMiddleware, s.bodyLimitMiddleware)

	api.HandleFunc("/approvals", s.handleCreateApproval).Methods(http.MethodPost)
	api.HandleFunc("/approvals", s.handleListApprovals).Methods(http.MethodGet)
	api.HandleFunc("/approvals/{id}", s.handleGetApproval).Methods(http.MethodGet)
	api.HandleFunc("/approvals/{id}", s.handleDeleteApproval).Methods(http.MethodDelete)
	api.HandleFunc("/approvals/{id}/resolve", s.handleResolveApproval).Methods(http.MethodPost)
	api.HandleFunc("/approvals/{id}/archive", s.handleGetArchivedResolution).Methods(http.MethodGet)
	api.HandleFunc("/archive", s.handleListArchive).Methods(http.MethodGet)

	api.HandleFunc("/records/{table}", s.handleCreateRecord).Methods(http.MethodPost)
	api.HandleFunc("/records/{table}/{id}", s.handleGetRecord).Methods(http.MethodGet)
	api.HandleFunc("/records/{table}/{id}", s.handleUpdateRecord).Methods(http.MethodPut)
	api.HandleFunc("/records/{table}/{id}", s.handleDeleteRecord).Methods(http.MethodDelete)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// principal returns the principal set by authMiddleware.
func principal(r *http.Request) core.Principal {
	p, _ := auth.PrincipalFrom(r.Context())
	return p
}

// decodeBody strictly decodes a JSON body into dst. When optional is set an
// empty body leaves dst untouched.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(dst)
	switch {
	case err == nil:
	case optional && errors.Is(err, io.EOF):
		return true
	default:
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, CodeMalformedRequest, errors.New("request body too large"), nil)
			return false
		}
		writeError(w, r, http.StatusBadRequest, CodeMalformedRequest, fmt.Errorf("invalid request body: %w", err), nil)
		return false
	}
	if dec.More() {
		writeError(w, r, http.StatusBadRequest, CodeMalformedRequest, errors.New("invalid request body: trailing data"), nil)
		return false
	}
	return true
}
