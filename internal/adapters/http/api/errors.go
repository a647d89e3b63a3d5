package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrBadRequest  = errors.New("bad request")
	ErrTooLarge    = errors.New("request too large")
	ErrRateLimited = errors.New("rate limit exceeded")
)
