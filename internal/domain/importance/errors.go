package importance

import "errors"

var (
	// ErrCoefficientMismatch is returned when the surrogate coefficient vector
	// is not aligned one-to-one with the encoded columns.
	ErrCoefficientMismatch = errors.New("surrogate coefficients do not match encoded columns")
)
