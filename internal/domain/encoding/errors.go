package encoding

import "errors"

// Sentinel error kinds for this package.
var (
	ErrMissingValue = errors.New("missing value")
	ErrTypeMismatch = errors.New("value type does not match variable kind")
	ErrRowWidth     = errors.New("encoded row width mismatch")
)
