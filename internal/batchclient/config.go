// Package batchclient drives the deployment API from the command line: it
// uploads a batch, runs one pipeline operation and writes the result table.
package batchclient

import (
	"fmt"
	"time"
)

// Commands understood by Run.
const (
	CommandDeploy    = "deploy"
	CommandFactors   = "factors"
	CommandRecommend = "recommend"
)

// Output formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// Config holds configuration for one client run.
type Config struct {
	BaseURL string        // Base URL of the service
	Timeout time.Duration // HTTP request timeout
	Command string        // deploy, factors or recommend

	// Input is a JSON file holding an UploadRequest. When empty, Generate
	// records are synthesised from the artifact at ArtifactPath.
	Input        string
	ArtifactPath string
	Generate     int
	Seed         uint64

	// BatchID reuses a stored batch instead of uploading; "current" is the
	// latest.
	BatchID string

	Factors int  // deploy: top factors per row
	TopN    int  // factors: ranked factors per row, 0 for all
	Weights bool // factors: include weights

	// RequestFile is a JSON ProcessVariablesRequest for recommend. Variables
	// is used when it is empty.
	RequestFile string
	Variables   []string

	Output string // output file; stdout when empty
	Format string // csv or json
}

// Validate checks that the command has what it needs.
func (c *Config) Validate() error {
	switch c.Command {
	case CommandDeploy, CommandFactors:
	case CommandRecommend:
		if c.RequestFile == "" && len(c.Variables) == 0 {
			return fmt.Errorf("%w: recommend needs -request or -vars", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown command %q", ErrInvalidConfig, c.Command)
	}
	if c.BatchID == "" && c.Input == "" && (c.Generate <= 0 || c.ArtifactPath == "") {
		return fmt.Errorf("%w: need -batch, -input or -generate with -artifact", ErrInvalidConfig)
	}
	if c.Format != FormatCSV && c.Format != FormatJSON {
		return fmt.Errorf("%w: unknown format %q", ErrInvalidConfig, c.Format)
	}
	return nil
}

// Stats holds run statistics.
type Stats struct {
	BatchID   string
	Uploaded  int
	Rows      int
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}
