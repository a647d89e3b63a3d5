// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	"github.com/okian/factorlens/internal/adapters/repository"
	service "github.com/okian/factorlens/internal/app"
	"github.com/okian/factorlens/internal/domain/assemble"
	"github.com/okian/factorlens/internal/domain/counterfactual"
	"github.com/okian/factorlens/internal/domain/dedupe"
	"github.com/okian/factorlens/internal/domain/encoding"
	"github.com/okian/factorlens/internal/domain/model"
	"github.com/okian/factorlens/internal/domain/scoring"
	"github.com/okian/factorlens/internal/domain/types"
	"github.com/okian/factorlens/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	Prepare(ctx context.Context, raw service.RawBatch) (*model.Batch, error)
	Batch(ctx context.Context, id string) (*model.Batch, error)
	Batches(ctx context.Context) ([]repository.Info, error)

	Deploy(ctx context.Context, batch *model.Batch, k int) (*assemble.Table, error)
	FactorsTable(ctx context.Context, batch *model.Batch, n int, includeWeights bool) (*assemble.Table, error)
	ProcessVariables(ctx context.Context, batch *model.Batch, req counterfactual.Request) (*assemble.Table, error)

	// DefaultRequest returns a recommendation request carrying the
	// configured defaults.
	DefaultRequest(variables ...string) counterfactual.Request
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	batchesHandler *BatchesHandler

	limiter         *rate.Limiter
	maxRequestBytes int64
	logger          logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		maxRequestBytes: defaultMaxRequestBytes,
		logger:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.batchesHandler = NewBatchesHandler(deps, s.logger)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /v1/batches", s.business(s.batchesHandler.HandleUpload, "upload"))
	mux.HandleFunc("GET /v1/batches", s.business(s.batchesHandler.HandleList, "batches"))
	mux.HandleFunc("GET /v1/batches/{id}/deploy", s.business(s.batchesHandler.HandleDeploy, "deploy"))
	mux.HandleFunc("GET /v1/batches/{id}/factors", s.business(s.batchesHandler.HandleFactors, "factors"))
	mux.HandleFunc("POST /v1/batches/{id}/process-variables", s.business(s.batchesHandler.HandleProcessVariables, "process_variables"))
}

// business chains the middleware shared by the /v1 routes.
func (s *Server) business(h http.HandlerFunc, endpoint string) http.HandlerFunc {
	h = BodyLimitMiddleware(h, s.maxRequestBytes)
	if s.limiter != nil {
		h = RateLimitMiddleware(h, s.limiter)
	}
	return MetricsMiddleware(h, endpoint)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeJSON decodes and validates a request body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: body exceeds %d bytes", ErrTooLarge, tooLarge.Limit)
		}
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}

// writeJSON encodes v before writing the header so an unencodable value
// becomes a 500 rather than an empty success.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		data, _ = json.Marshal(types.ErrorResponse{Code: "internal_error", Message: err.Error()})
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, types.ErrorResponse{Code: code, Message: msg})
}

// writeTable renders a result table as CSV when the client asks for it and
// as JSON otherwise.
func writeTable(w http.ResponseWriter, r *http.Request, t *assemble.Table) {
	if strings.Contains(r.Header.Get("Accept"), "text/csv") {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_ = t.WriteCSV(w)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// writeFailure maps a pipeline error onto a status code.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}

// badRequestKinds are caller mistakes: nothing was scored.
var badRequestKinds = []error{
	ErrBadRequest,
	counterfactual.ErrNoVariables,
	counterfactual.ErrNumericLevelsRequired,
	counterfactual.ErrEmptyCandidateSet,
	counterfactual.ErrInvalidTopFactors,
	counterfactual.ErrInvalidCandidate,
	model.ErrUnknownVariable,
	model.ErrUnknownLevel,
	model.ErrInvalidValue,
	model.ErrEmptyGrain,
	encoding.ErrMissingValue,
	encoding.ErrTypeMismatch,
	dedupe.ErrDuplicateGrain,
	service.ErrEmptyBatch,
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrTooLarge), errors.Is(err, service.ErrBatchTooLarge):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, service.ErrBatchNotFound), errors.Is(err, service.ErrGrainNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, scoring.ErrSchemaMismatch):
		return http.StatusUnprocessableEntity, "schema_mismatch"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	}
	for _, kind := range badRequestKinds {
		if errors.Is(err, kind) {
			return http.StatusBadRequest, "bad_request"
		}
	}
	return http.StatusInternalServerError, "internal_error"
}
