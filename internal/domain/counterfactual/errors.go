package counterfactual

import "errors"

// Request validation errors. All of them are returned before any row is
// scored.
var (
	ErrNoVariables           = errors.New("no modifiable variables")
	ErrNumericLevelsRequired = errors.New("numeric modifiable variable needs explicit candidate values")
	ErrEmptyCandidateSet     = errors.New("modifiable variable has no candidate values")
	ErrInvalidTopFactors     = errors.New("number of top factors must be positive")
	ErrInvalidCandidate      = errors.New("candidate value does not fit the variable")
)
