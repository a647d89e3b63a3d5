// Package types contains the request and response bodies shared by the HTTP
// API and its batch client.
package types

import (
	"github.com/okian/factorlens/internal/domain/counterfactual"
	"github.com/okian/factorlens/internal/domain/model"
)

// UploadRequest is the body of POST /v1/batches.
type UploadRequest struct {
	// BatchID is optional; the server assigns one when empty.
	BatchID string            `json:"batch_id,omitempty" validate:"omitempty,max=128,excludesall=/ "`
	Records []model.RawRecord `json:"records" validate:"required,min=1"`
}

// UploadResponse acknowledges a prepared batch.
type UploadResponse struct {
	BatchID string `json:"batch_id"`
	Records int    `json:"records"`
}

// ProcessVariablesRequest is the body of POST /v1/batches/{id}/process-variables.
// Nil fields fall back to the server defaults.
type ProcessVariablesRequest struct {
	Variables       []string                 `json:"variables" validate:"required,min=1,dive,required"`
	Levels          map[string][]model.Value `json:"levels,omitempty"`
	GrainIDs        []string                 `json:"grain_ids,omitempty" validate:"omitempty,dive,required"`
	SmallerBetter   *bool                    `json:"smaller_better,omitempty"`
	RepeatedFactors *bool                    `json:"repeated_factors,omitempty"`
	NumTopFactors   *int                     `json:"num_top_factors,omitempty" validate:"omitempty,min=1"`
}

// Request merges r over defaults.
func (r ProcessVariablesRequest) Request(defaults counterfactual.Request) counterfactual.Request {
	out := defaults
	out.Variables = r.Variables
	out.Levels = r.Levels
	out.GrainIDs = r.GrainIDs
	if r.SmallerBetter != nil {
		out.SmallerBetter = *r.SmallerBetter
	}
	if r.RepeatedFactors != nil {
		out.RepeatedFactors = *r.RepeatedFactors
	}
	if r.NumTopFactors != nil {
		out.NumTopFactors = *r.NumTopFactors
	}
	return out
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
