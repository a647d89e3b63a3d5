package dedupe

import "errors"

// ErrDuplicateGrain is returned when a batch repeats a grain identifier.
var ErrDuplicateGrain = errors.New("duplicate grain id")
