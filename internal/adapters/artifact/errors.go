package artifact

import "errors"

// Sentinel error kinds for this package.
var (
	ErrLoadArtifact    = errors.New("load artifact failed")
	ErrInvalidArtifact = errors.New("invalid artifact")
)
