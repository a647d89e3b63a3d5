package service

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/factorlens/internal/adapters/artifact"
	"github.com/okian/factorlens/internal/adapters/mq/worker"
	"github.com/okian/factorlens/internal/domain/assemble"
	"github.com/okian/factorlens/internal/domain/encoding"
	"github.com/okian/factorlens/internal/domain/importance"
	"github.com/okian/factorlens/internal/domain/model"
	"github.com/okian/factorlens/internal/domain/scoring"
	"github.com/okian/factorlens/pkg/metrics"
)

// Strategy holds the model-family specific steps of a deployment. Every hook
// is a pure function of its inputs.
type Strategy interface {
	// FormatColumns encodes raw records into the training-time column layout.
	FormatColumns(ctx context.Context, records []model.RawRecord) ([]model.Record, error)
	// Predict scores every row of frame, in order.
	Predict(ctx context.Context, frame model.Frame) ([]scoring.Score, error)
	// BuildOutput assembles the deploy table.
	BuildOutput(meta assemble.Meta, batch *model.Batch, scores []scoring.Score, rankings []importance.Ranking, k int) (*assemble.Table, error)
}

// pipeline implements the family-independent hooks.
type pipeline struct {
	art     *artifact.Artifact
	encoder *encoding.Encoder
	engine  *scoring.Engine
}

func (p *pipeline) FormatColumns(ctx context.Context, records []model.RawRecord) ([]model.Record, error) {
	out := make([]model.Record, len(records))
	for i, r := range records {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled: %w", err)
		}
		row, err := p.encoder.Encode(r.Values)
		if err != nil {
			return nil, fmt.Errorf("grain %s: %w", r.GrainID, err)
		}
		raw := make(map[string]model.Value, len(r.Values))
		for k, v := range r.Values {
			raw[k] = v
		}
		out[i] = model.Record{GrainID: r.GrainID, Raw: raw, Encoded: row}
	}
	return out, nil
}

func (p *pipeline) BuildOutput(meta assemble.Meta, batch *model.Batch, scores []scoring.Score, rankings []importance.Ranking, k int) (*assemble.Table, error) {
	source := func(column string) string {
		if v, ok := p.art.Schema.SourceOf(column); ok {
			return v
		}
		return column
	}
	return assemble.Deploy(meta, batch.GrainColumn, p.engine.Mode(), batch.GrainIDs(), scores, rankings, k, source)
}

// linearStrategy scores in one pass; a dot product per row is cheaper than
// dispatching it to workers.
type linearStrategy struct {
	pipeline
}

func (s *linearStrategy) Predict(ctx context.Context, frame model.Frame) ([]scoring.Score, error) {
	return s.engine.Predict(ctx, frame)
}

// forestStrategy walks the trees for each row on the worker pool.
type forestStrategy struct {
	pipeline
	pool *worker.Pool
}

func (s *forestStrategy) Predict(ctx context.Context, frame model.Frame) ([]scoring.Score, error) {
	if err := s.engine.CheckSchema(frame.Columns); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() {
		metrics.RecordScoringLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	scores := make([]scoring.Score, len(frame.Rows))
	err := s.pool.Run(ctx, len(frame.Rows), func(_ context.Context, i int) error {
		v, err := s.engine.PredictRow(frame.Rows[i])
		if err != nil {
			metrics.RecordScoringAnomaly()
			scores[i] = scoring.Score{Err: err}
			return nil
		}
		scores[i] = scoring.Score{Value: v}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordRecordsScored(len(frame.Rows))
	return scores, nil
}

// NewStrategy picks the strategy for the artifact's model family.
func NewStrategy(art *artifact.Artifact, encoder *encoding.Encoder, engine *scoring.Engine, pool *worker.Pool) (Strategy, error) {
	base := pipeline{art: art, encoder: encoder, engine: engine}
	switch art.Family {
	case artifact.FamilyLinear:
		return &linearStrategy{pipeline: base}, nil
	case artifact.FamilyForest:
		return &forestStrategy{pipeline: base, pool: pool}, nil
	default:
		return nil, fmt.Errorf("%w: no strategy for family %q", artifact.ErrInvalidArtifact, art.Family)
	}
}
