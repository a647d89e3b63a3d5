// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers a YAML file and FACTORLENS_* env vars on top of the defaults.
// - Errors wrap ErrLoadConfig or ErrInvalidConfig.
package config

import (
	"context"
	"runtime"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn error"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr" validate:"required"`

	// WorkerCount sets the number of goroutines scoring records in parallel.
	WorkerCount int `koanf:"worker_count" validate:"min=1"`

	// ArtifactPath points at the trained model artifact (YAML).
	ArtifactPath string `koanf:"artifact_path" validate:"required"`

	// MaxBatches bounds how many prepared batches are kept in memory.
	MaxBatches int `koanf:"max_batches" validate:"min=1"`

	// MaxBatchRecords caps the records accepted in one upload.
	MaxBatchRecords int `koanf:"max_batch_records" validate:"min=1"`

	// MaxRequestBytes caps request bodies.
	MaxRequestBytes int64 `koanf:"max_request_bytes" validate:"min=1024"`

	// RateLimitRPS and RateLimitBurst configure the API token bucket.
	// RateLimitRPS 0 disables rate limiting.
	RateLimitRPS   float64 `koanf:"rate_limit_rps" validate:"gte=0"`
	RateLimitBurst int     `koanf:"rate_limit_burst" validate:"gte=0"`

	// Defaults applied when a request leaves the field out.
	DefaultTopFactors      int  `koanf:"default_top_factors" validate:"min=1"`
	DefaultSmallerBetter   bool `koanf:"default_smaller_better"`
	DefaultRepeatedFactors bool `koanf:"default_repeated_factors"`
}

// New creates a Config with defaults. Context is accepted first to follow
// the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":9080",
		WorkerCount:            runtime.NumCPU(),
		ArtifactPath:           "configs/readmission.yaml",
		MaxBatches:             16,
		MaxBatchRecords:        100_000,
		MaxRequestBytes:        32 << 20,
		RateLimitRPS:           50,
		RateLimitBurst:         100,
		DefaultTopFactors:      3,
		DefaultSmallerBetter:   true,
		DefaultRepeatedFactors: false,
	}
}
