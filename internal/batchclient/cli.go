package batchclient

import (
	"fmt"
	"io"
	"os"

	"github.com/okian/factorlens/pkg/logger"
)

// SetupLogging writes logs to w (stderr when nil) so stdout stays free for
// the result table.
func SetupLogging(w io.Writer, format string, verbose bool) error {
	if w == nil {
		w = os.Stderr
	}
	if err := logger.InitWithWriter(w, format); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		return logger.SetLevelString("debug")
	}
	return nil
}

// ShowHelp prints usage information for the batch tool.
func ShowHelp(w io.Writer) {
	_, _ = io.WriteString(w, `factorlens batch client
=======================

Uploads a batch to a running factorlens service, runs one operation and
writes the result table.

Usage:
  factorlens-batch [options] deploy|factors|recommend

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -input string
        JSON upload body: {"batch_id": "...", "records": [...]}
  -generate int
        Synthesise this many records instead of reading -input
  -artifact string
        Model artifact used by -generate (default "configs/readmission.yaml")
  -seed uint
        Seed for -generate
  -batch string
        Reuse a stored batch ID instead of uploading ("current" for the latest)
  -factors int
        deploy: top factors per row (server default when 0)
  -n int
        factors: ranked factors per row (all when 0)
  -weights
        factors: include factor weights
  -vars string
        recommend: comma separated modifiable variables
  -request string
        recommend: JSON request body, overrides -vars
  -format string
        Output format: csv or json (default "csv")
  -output string
        Output file (default stdout)
  -timeout duration
        HTTP request timeout (default 30s)
  -verbose
        Enable debug logging

Examples:
  factorlens-batch -input batch.json -factors 3 deploy
  factorlens-batch -batch current -n 5 -weights factors
  factorlens-batch -generate 500 -seed 7 -vars SystolicBP,Gender recommend
`)
}
