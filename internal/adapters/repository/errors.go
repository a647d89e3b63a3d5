package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound     = errors.New("batch not found")
	ErrInvalidBatch = errors.New("invalid batch")
)
