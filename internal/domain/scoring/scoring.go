// Package scoring wraps an immutable trained model and turns encoded feature
// rows into scalar scores.
package scoring

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/okian/factorlens/internal/domain/model"
	"github.com/okian/factorlens/pkg/metrics"
)

const defaultPositiveClass = 1

// Mode selects how a model's raw output vector becomes one score.
type Mode uint8

const (
	// Classification scores are the probability of the positive class.
	Classification Mode = iota + 1
	// Regression scores are the model's scalar estimate.
	Regression
)

// ParseMode maps "classification"/"regression" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "classification":
		return Classification, nil
	case "regression":
		return Regression, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

func (m Mode) String() string {
	switch m {
	case Classification:
		return "classification"
	case Regression:
		return "regression"
	default:
		return "unknown"
	}
}

// Model is a trained predictor. Predict returns the raw output vector for one
// encoded row: class probabilities for classifiers, a single estimate for
// regressors. Implementations must be safe for concurrent use and must not
// mutate their parameters.
type Model interface {
	Predict(features []float64) ([]float64, error)
}

// Score is one row's prediction. Err is set when the model produced no usable
// number for that row; the rest of the batch is unaffected.
type Score struct {
	Value float64
	Err   error
}

// extractor pulls the scalar score out of a raw model output.
type extractor func(out []float64) (float64, error)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithPositiveClass sets which class probability classification mode reports.
func WithPositiveClass(index int) Option {
	return func(e *Engine) {
		if index >= 0 {
			e.positiveClass = index
		}
	}
}

// Engine scores encoded rows with a read-only model.
type Engine struct {
	model         Model
	columns       []string
	mode          Mode
	positiveClass int
	extract       extractor
}

// NewEngine creates an Engine. columns is the training-time encoded column
// list; every frame scored later must match it exactly.
func NewEngine(m Model, columns []string, mode Mode, opts ...Option) (*Engine, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil model", ErrInvalidModel)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: no columns", ErrInvalidModel)
	}
	e := &Engine{
		model:         m,
		columns:       append([]string(nil), columns...),
		mode:          mode,
		positiveClass: defaultPositiveClass,
	}
	for _, opt := range opts {
		opt(e)
	}

	switch mode {
	case Classification:
		idx := e.positiveClass
		e.extract = func(out []float64) (float64, error) {
			if idx >= len(out) {
				return 0, fmt.Errorf("%w: output has %d classes, positive class is %d", ErrNonNumericScore, len(out), idx)
			}
			return out[idx], nil
		}
	case Regression:
		e.extract = func(out []float64) (float64, error) {
			if len(out) == 0 {
				return 0, fmt.Errorf("%w: empty output", ErrNonNumericScore)
			}
			return out[0], nil
		}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, mode)
	}
	return e, nil
}

// Mode returns the engine's prediction mode.
func (e *Engine) Mode() Mode { return e.mode }

// Columns returns a copy of the training-time column list.
func (e *Engine) Columns() []string { return append([]string(nil), e.columns...) }

// CheckSchema verifies that columns equal the training-time columns, in order.
func (e *Engine) CheckSchema(columns []string) error {
	if len(columns) != len(e.columns) {
		metrics.RecordSchemaMismatch()
		return fmt.Errorf("%w: got %d columns, want %d", ErrSchemaMismatch, len(columns), len(e.columns))
	}
	for i, c := range columns {
		if c != e.columns[i] {
			metrics.RecordSchemaMismatch()
			return fmt.Errorf("%w: column %d is %q, want %q", ErrSchemaMismatch, i, c, e.columns[i])
		}
	}
	return nil
}

// PredictRow scores a single encoded row.
func (e *Engine) PredictRow(row []float64) (float64, error) {
	if len(row) != len(e.columns) {
		return 0, fmt.Errorf("%w: row has %d values, want %d", ErrSchemaMismatch, len(row), len(e.columns))
	}
	out, err := e.model.Predict(row)
	if err != nil {
		return 0, fmt.Errorf("model predict: %w", err)
	}
	v, err := e.extract(out)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %v", ErrNonNumericScore, v)
	}
	return v, nil
}

// Predict scores every row of frame in order. The schema is checked before any
// row is scored. Per-row failures are attached to that row's Score.
func (e *Engine) Predict(ctx context.Context, frame model.Frame) ([]Score, error) {
	if err := e.CheckSchema(frame.Columns); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() {
		metrics.RecordScoringLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	scores := make([]Score, len(frame.Rows))
	for i, row := range frame.Rows {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled: %w", err)
		}
		v, err := e.PredictRow(row)
		if err != nil {
			metrics.RecordScoringAnomaly()
			scores[i] = Score{Err: err}
			continue
		}
		scores[i] = Score{Value: v}
	}
	metrics.RecordRecordsScored(len(frame.Rows))
	return scores, nil
}
