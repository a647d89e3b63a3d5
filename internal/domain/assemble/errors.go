package assemble

import "errors"

var (
	// ErrInvalidWidth is returned for a non-positive factor or slot count.
	ErrInvalidWidth = errors.New("output width must be positive")
	// ErrLengthMismatch is returned when per-record inputs are not aligned.
	ErrLengthMismatch = errors.New("per-record inputs have different lengths")
)
