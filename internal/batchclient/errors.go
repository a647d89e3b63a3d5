package batchclient

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for this package.
var (
	ErrInvalidConfig = errors.New("invalid client config")
	ErrUnhealthy     = errors.New("service is not healthy")
)

// APIError is a non-2xx response from the service.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api %d %s: %s", e.Status, e.Code, e.Message)
}
