package main

import (
	"context"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/okian/factorlens/internal/batchclient"
)

// Default configuration constants.
const (
	defaultTimeout    = 30 * time.Second
	defaultRunTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:9080", "Base URL of the service")
		input    = flag.String("input", "", "JSON upload body")
		generate = flag.Int("generate", 0, "Number of records to synthesise")
		art      = flag.String("artifact", "configs/readmission.yaml", "Model artifact used by -generate")
		seed     = flag.Uint64("seed", 1, "Seed for -generate")
		batchID  = flag.String("batch", "", "Stored batch ID to reuse")
		factors  = flag.Int("factors", 0, "deploy: top factors per row")
		topN     = flag.Int("n", 0, "factors: ranked factors per row")
		weights  = flag.Bool("weights", false, "factors: include weights")
		vars     = flag.String("vars", "", "recommend: comma separated variables")
		request  = flag.String("request", "", "recommend: JSON request body")
		format   = flag.String("format", batchclient.FormatCSV, "Output format: csv or json")
		output   = flag.String("output", "", "Output file (default stdout)")
		timeout  = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		verbose  = flag.Bool("verbose", false, "Enable debug logging")
		help     = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help || flag.NArg() != 1 {
		batchclient.ShowHelp(os.Stdout)
		return
	}

	if err := batchclient.SetupLogging(os.Stderr, "text", *verbose); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	config := &batchclient.Config{
		BaseURL:      *baseURL,
		Timeout:      *timeout,
		Command:      flag.Arg(0),
		Input:        *input,
		ArtifactPath: *art,
		Generate:     *generate,
		Seed:         *seed,
		BatchID:      *batchID,
		Factors:      *factors,
		TopN:         *topN,
		Weights:      *weights,
		RequestFile:  *request,
		Variables:    splitList(*vars),
		Output:       *output,
		Format:       *format,
	}

	out := os.Stdout
	if config.Output != "" {
		f, err := os.Create(config.Output)
		if err != nil {
			os.Stderr.WriteString("Failed to create output: " + err.Error() + "\n")
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	if _, err := batchclient.Run(ctx, config, out); err != nil {
		os.Stderr.WriteString("Run failed: " + err.Error() + "\n")
		cancel()
		os.Exit(1)
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
