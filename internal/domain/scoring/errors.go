package scoring

import "errors"

// Sentinel error kinds for this package.
var (
	ErrSchemaMismatch  = errors.New("encoded columns do not match training schema")
	ErrNonNumericScore = errors.New("model returned a non-numeric score")
	ErrUnknownMode     = errors.New("unknown prediction mode")
	ErrInvalidModel    = errors.New("invalid model")
)
