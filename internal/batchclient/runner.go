package batchclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/factorlens/internal/adapters/artifact"
	"github.com/okian/factorlens/internal/domain/assemble"
	"github.com/okian/factorlens/internal/domain/types"
	"github.com/okian/factorlens/pkg/logger"
)

// Run executes one client run and writes the result table to out.
func Run(ctx context.Context, config *Config, out io.Writer) (*Stats, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	stats := &Stats{StartTime: time.Now()}

	logger.Get().Info(ctx, "starting batch run",
		logger.String("baseURL", config.BaseURL),
		logger.String("command", config.Command),
		logger.String("timeout", config.Timeout.String()))

	client := NewClient(config.BaseURL, config.Timeout)

	// Step 1: Check service health
	if err := client.Health(ctx); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Resolve the batch, uploading one when needed
	batchID := config.BatchID
	if batchID == "" {
		body, err := loadBatch(ctx, config)
		if err != nil {
			return nil, fmt.Errorf("batch preparation failed: %w", err)
		}
		resp, err := client.Upload(ctx, body)
		if err != nil {
			return nil, fmt.Errorf("upload failed: %w", err)
		}
		batchID = resp.BatchID
		stats.Uploaded = resp.Records
		logger.Get().Info(ctx, "batch uploaded", logger.String("batch", batchID), logger.Int("records", resp.Records))
	}
	stats.BatchID = batchID

	// Step 3: Run the operation
	table, err := execute(ctx, client, config, batchID)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", config.Command, err)
	}
	stats.Rows = table.Len()

	// Step 4: Write the table
	if err := writeTable(out, table, config.Format); err != nil {
		return nil, fmt.Errorf("failed to write output: %w", err)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	logger.Get().Info(ctx, "batch run completed",
		logger.String("batch", stats.BatchID),
		logger.Int("rows", stats.Rows),
		logger.String("duration", stats.Duration.String()))
	return stats, nil
}

func execute(ctx context.Context, client *Client, config *Config, batchID string) (*assemble.Table, error) {
	switch config.Command {
	case CommandDeploy:
		return client.Deploy(ctx, batchID, config.Factors)
	case CommandFactors:
		return client.Factors(ctx, batchID, config.TopN, config.Weights)
	default:
		req, err := loadRequest(config)
		if err != nil {
			return nil, err
		}
		return client.ProcessVariables(ctx, batchID, req)
	}
}

// loadBatch reads the upload body from Input or synthesises it.
func loadBatch(ctx context.Context, config *Config) (types.UploadRequest, error) {
	var body types.UploadRequest
	if config.Input != "" {
		if err := readJSON(config.Input, &body); err != nil {
			return body, err
		}
		return body, nil
	}
	art, err := artifact.Load(ctx, config.ArtifactPath)
	if err != nil {
		return body, err
	}
	body.Records = NewGenerator(art.Schema, config.Seed, nil).Generate(ctx, config.Generate)
	return body, nil
}

func loadRequest(config *Config) (types.ProcessVariablesRequest, error) {
	var req types.ProcessVariablesRequest
	if config.RequestFile != "" {
		err := readJSON(config.RequestFile, &req)
		return req, err
	}
	req.Variables = config.Variables
	return req, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func writeTable(w io.Writer, table *assemble.Table, format string) error {
	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(table.Records())
	}
	return table.WriteCSV(w)
}
