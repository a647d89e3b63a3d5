package service

import "errors"

// Sentinel error kinds for this package.
var (
	ErrNotStarted    = errors.New("service not started")
	ErrEmptyBatch    = errors.New("batch has no records")
	ErrBatchTooLarge = errors.New("batch exceeds the record limit")
	ErrBatchNotFound = errors.New("batch not found")
	ErrGrainNotFound = errors.New("grain id not found in batch")
)
