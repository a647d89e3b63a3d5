package api

import (
	"fmt"
	"net/http"
	"strconv"

	service "github.com/okian/factorlens/internal/app"
	"github.com/okian/factorlens/internal/domain/model"
	"github.com/okian/factorlens/internal/domain/types"
	"github.com/okian/factorlens/pkg/logger"
)

// BatchesHandler serves uploads and the three pipeline operations on a
// stored batch.
type BatchesHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// NewBatchesHandler creates a new batches handler.
func NewBatchesHandler(deps Dependencies, l logger.Logger) *BatchesHandler {
	return &BatchesHandler{deps: deps, logger: l}
}

// HandleUpload handles POST /v1/batches.
func (h *BatchesHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	var req types.UploadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	batch, err := h.deps.Prepare(r.Context(), service.RawBatch{ID: req.BatchID, Records: req.Records})
	if err != nil {
		h.logger.Warn(r.Context(), "upload rejected", logger.Error(err))
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.UploadResponse{BatchID: batch.ID, Records: len(batch.Records)})
}

// HandleList handles GET /v1/batches.
func (h *BatchesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	infos, err := h.deps.Batches(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

// HandleDeploy handles GET /v1/batches/{id}/deploy?factors=K.
func (h *BatchesHandler) HandleDeploy(w http.ResponseWriter, r *http.Request) {
	k, err := queryInt(r, "factors")
	if err != nil {
		writeFailure(w, err)
		return
	}
	batch, ok := h.batch(w, r)
	if !ok {
		return
	}
	table, err := h.deps.Deploy(r.Context(), batch, k)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeTable(w, r, table)
}

// HandleFactors handles GET /v1/batches/{id}/factors?n=N&weights=true.
func (h *BatchesHandler) HandleFactors(w http.ResponseWriter, r *http.Request) {
	n, err := queryInt(r, "n")
	if err != nil {
		writeFailure(w, err)
		return
	}
	weights, err := queryBool(r, "weights")
	if err != nil {
		writeFailure(w, err)
		return
	}
	batch, ok := h.batch(w, r)
	if !ok {
		return
	}
	table, err := h.deps.FactorsTable(r.Context(), batch, n, weights)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeTable(w, r, table)
}

// HandleProcessVariables handles POST /v1/batches/{id}/process-variables.
func (h *BatchesHandler) HandleProcessVariables(w http.ResponseWriter, r *http.Request) {
	var body types.ProcessVariablesRequest
	if err := decodeJSON(r, &body); err != nil {
		writeFailure(w, err)
		return
	}
	batch, ok := h.batch(w, r)
	if !ok {
		return
	}
	req := body.Request(h.deps.DefaultRequest())
	table, err := h.deps.ProcessVariables(r.Context(), batch, req)
	if err != nil {
		h.logger.Warn(r.Context(), "process variables rejected",
			logger.String("batch", batch.ID),
			logger.Strings("variables", req.Variables),
			logger.Error(err),
		)
		writeFailure(w, err)
		return
	}
	writeTable(w, r, table)
}

// batch resolves the {id} path value, writing the failure itself.
func (h *BatchesHandler) batch(w http.ResponseWriter, r *http.Request) (*model.Batch, bool) {
	b, err := h.deps.Batch(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return nil, false
	}
	return b, true
}

// queryInt parses an optional non-negative integer query parameter; absent
// means 0.
func queryInt(r *http.Request, key string) (int, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", ErrBadRequest, key)
	}
	return n, nil
}

func queryBool(r *http.Request, key string) (bool, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", ErrBadRequest, key)
	}
	return b, nil
}
