package model

import "errors"

// Sentinel error kinds for this package. These allow errors.Is from callers.
var (
	ErrInvalidValue    = errors.New("invalid feature value")
	ErrUnknownLevel    = errors.New("unknown categorical level")
	ErrUnknownVariable = errors.New("unknown variable")
	ErrInvalidSchema   = errors.New("invalid schema")
	ErrEmptyGrain      = errors.New("empty grain id")
)
