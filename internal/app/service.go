// Package service runs the deployment pipeline behind the HTTP API: it
// prepares batches, scores them, ranks factors and builds what-if
// recommendations.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/factorlens/internal/adapters/artifact"
	workerpool "github.com/okian/factorlens/internal/adapters/mq/worker"
	"github.com/okian/factorlens/internal/adapters/repository"
	"github.com/okian/factorlens/internal/domain/assemble"
	"github.com/okian/factorlens/internal/domain/counterfactual"
	"github.com/okian/factorlens/internal/domain/dedupe"
	"github.com/okian/factorlens/internal/domain/encoding"
	"github.com/okian/factorlens/internal/domain/importance"
	"github.com/okian/factorlens/internal/domain/model"
	"github.com/okian/factorlens/internal/domain/scoring"
	"github.com/okian/factorlens/pkg/logger"
	"github.com/okian/factorlens/pkg/metrics"
)

// RawBatch is an uploaded batch before encoding.
type RawBatch struct {
	// ID is optional; a UUID is assigned when empty.
	ID      string
	Records []model.RawRecord
}

// Service implements the API dependencies for the deployment pipeline.
type Service struct {
	mu sync.RWMutex

	art *artifact.Artifact

	// Core components
	encoder  *encoding.Encoder
	engine   *scoring.Engine
	strategy Strategy
	store    repository.Store
	pool     *workerpool.Pool

	// Configuration
	workerCount     int
	maxBatches      int
	maxBatchRecords int
	defaults        counterfactual.Request
	now             func() time.Time
	newID           func() string

	started bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithMaxBatches bounds the number of batches kept in memory.
func WithMaxBatches(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBatches = n
		}
	}
}

// WithMaxBatchRecords caps the records accepted per batch.
func WithMaxBatchRecords(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBatchRecords = n
		}
	}
}

// WithRequestDefaults sets the recommendation defaults used by
// DefaultRequest.
func WithRequestDefaults(numTopFactors int, smallerBetter, repeatedFactors bool) Option {
	return func(s *Service) {
		if numTopFactors > 0 {
			s.defaults.NumTopFactors = numTopFactors
		}
		s.defaults.SmallerBetter = smallerBetter
		s.defaults.RepeatedFactors = repeatedFactors
	}
}

// WithStore replaces the in-memory batch store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithStrategy overrides the family strategy picked from the artifact.
func WithStrategy(strategy Strategy) Option {
	return func(s *Service) {
		if strategy != nil {
			s.strategy = strategy
		}
	}
}

// WithClock sets the time source for output metadata.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator sets how batch and run IDs are generated.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a new Service for a loaded artifact.
func New(art *artifact.Artifact, opts ...Option) *Service {
	s := &Service{
		art:             art,
		workerCount:     runtime.NumCPU(),
		maxBatches:      16,
		maxBatchRecords: 100_000,
		defaults:        counterfactual.DefaultRequest(),
		now:             time.Now,
		newID:           uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if s.art == nil {
		return fmt.Errorf("%w: nil artifact", artifact.ErrInvalidArtifact)
	}

	s.logger.Info(ctx, "starting deployment service...", logger.String("model", s.art.Name))

	engine, err := s.art.Engine()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	s.engine = engine
	s.encoder = encoding.New(s.art.Schema)
	s.pool = workerpool.NewPool(s.workerCount, workerpool.WithLogger(s.logger))
	if s.store == nil {
		s.store = repository.NewMemoryStore(repository.WithMaxBatches(s.maxBatches))
	}
	if s.strategy == nil {
		s.strategy, err = NewStrategy(s.art, s.encoder, s.engine, s.pool)
		if err != nil {
			return err
		}
	}

	s.started = true
	s.logger.Info(ctx, "deployment service started",
		logger.String("family", s.art.Family),
		logger.String("mode", s.engine.Mode().String()),
		logger.Int("columns", s.art.Schema.NumColumns()),
		logger.Int("workers", s.workerCount),
	)
	return nil
}

// Stop marks the service stopped. Stored batches are kept.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.started = false
	s.logger.Info(context.Background(), "deployment service stopped")
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// Artifact returns the loaded model artifact.
func (s *Service) Artifact() *artifact.Artifact { return s.art }

// DefaultRequest returns a recommendation request filled with the configured
// defaults.
func (s *Service) DefaultRequest(variables ...string) counterfactual.Request {
	req := s.defaults
	req.Variables = variables
	return req
}

// Prepare validates, encodes and stores a raw batch. Nothing is stored when
// any record fails.
func (s *Service) Prepare(ctx context.Context, raw RawBatch) (*model.Batch, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if len(raw.Records) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(raw.Records) > s.maxBatchRecords {
		return nil, fmt.Errorf("%w: %d records, limit %d", ErrBatchTooLarge, len(raw.Records), s.maxBatchRecords)
	}

	seen := dedupe.NewInMemoryDeduper(dedupe.WithCapacity(len(raw.Records)))
	for _, r := range raw.Records {
		if r.GrainID == "" {
			return nil, fmt.Errorf("%w: %s", model.ErrEmptyGrain, s.art.GrainColumn)
		}
		if seen.SeenAndRecord(ctx, r.GrainID) {
			return nil, fmt.Errorf("%w: %s", dedupe.ErrDuplicateGrain, r.GrainID)
		}
	}

	records, err := s.strategy.FormatColumns(ctx, raw.Records)
	if err != nil {
		metrics.RecordErrorByComponent("service", "format_columns")
		return nil, err
	}

	id := raw.ID
	if id == "" {
		id = s.newID()
	}
	batch := &model.Batch{
		ID:          id,
		GrainColumn: s.art.GrainColumn,
		Columns:     s.art.Schema.Columns(),
		Records:     records,
	}
	if err := s.store.Put(ctx, batch); err != nil {
		return nil, fmt.Errorf("store batch: %w", err)
	}
	metrics.RecordBatchPrepared(len(records))
	s.logger.Info(ctx, "batch prepared", logger.String("batch", id), logger.Int("records", len(records)))
	return batch, nil
}

// Batch returns a stored batch; id may be repository.CurrentID.
func (s *Service) Batch(ctx context.Context, id string) (*model.Batch, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	b, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, id)
		}
		return nil, err
	}
	return b, nil
}

// Batches lists stored batches, oldest first.
func (s *Service) Batches(ctx context.Context) ([]repository.Info, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.List(ctx), nil
}

func (s *Service) meta() assemble.Meta {
	return assemble.Meta{RunID: s.newID(), ModelName: s.art.Name, GeneratedAt: s.now()}
}

// Predict returns the baseline score of every record in the batch.
func (s *Service) Predict(ctx context.Context, batch *model.Batch) ([]scoring.Score, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	scores, err := s.strategy.Predict(ctx, batch.Frame())
	if err != nil {
		return nil, err
	}
	for i, sc := range scores {
		if sc.Err == nil {
			continue
		}
		rec := batch.Records[i]
		fields := []logger.Field{logger.String("grain", rec.GrainID), logger.Error(sc.Err)}
		for _, v := range s.art.Schema.Variables() {
			fields = append(fields, logger.String(v.Name, rec.Observed(v.Name).String()))
		}
		s.logger.Debug(ctx, "scoring anomaly", fields...)
	}
	return scores, nil
}

// Deploy scores the batch and returns the standard prediction table with the
// top k source-variable factors per record. k <= 0 uses the configured
// default.
func (s *Service) Deploy(ctx context.Context, batch *model.Batch, k int) (*assemble.Table, error) {
	if k <= 0 {
		k = s.defaults.NumTopFactors
	}
	scores, err := s.Predict(ctx, batch)
	if err != nil {
		return nil, err
	}
	rankings, err := s.TopFactors(ctx, batch, 0, false)
	if err != nil {
		return nil, err
	}
	table, err := s.strategy.BuildOutput(s.meta(), batch, scores, rankings, k)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "batch deployed", logger.String("batch", batch.ID), logger.Int("rows", table.Len()))
	return table, nil
}

// TopFactors ranks the encoded factors of every record by surrogate
// contribution. n <= 0 returns every factor; larger n is clamped.
func (s *Service) TopFactors(ctx context.Context, batch *model.Batch, n int, includeWeights bool) ([]importance.Ranking, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := s.engine.CheckSchema(batch.Columns); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() {
		metrics.RecordFactorRankLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	k := importance.Clamp(n, len(batch.Columns))
	out := make([]importance.Ranking, len(batch.Records))
	err := s.pool.Run(ctx, len(batch.Records), func(_ context.Context, i int) error {
		r, err := importance.RankRow(batch.Columns, batch.Records[i].Encoded, s.art.Surrogate, k, includeWeights)
		if err != nil {
			return fmt.Errorf("grain %s: %w", batch.Records[i].GrainID, err)
		}
		out[i] = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FactorsTable returns TopFactors as a Factor1..FactorN table.
func (s *Service) FactorsTable(ctx context.Context, batch *model.Batch, n int, includeWeights bool) (*assemble.Table, error) {
	rankings, err := s.TopFactors(ctx, batch, n, includeWeights)
	if err != nil {
		return nil, err
	}
	k := importance.Clamp(n, len(batch.Columns))
	return assemble.Factors(s.meta(), batch.GrainColumn, batch.GrainIDs(), rankings, k, includeWeights)
}

// Recommend evaluates single-variable counterfactuals for the selected
// records. Every request and schema error is returned before scoring starts;
// per-record failures are attached to that record's row.
func (s *Service) Recommend(ctx context.Context, batch *model.Batch, req counterfactual.Request) ([]counterfactual.Row, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	plan, err := counterfactual.NewPlan(s.art.Schema, req)
	if err != nil {
		return nil, err
	}
	if err := s.engine.CheckSchema(batch.Columns); err != nil {
		return nil, err
	}
	selected, err := selectRecords(batch, plan.GrainIDs)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows := make([]counterfactual.Row, len(selected))
	err = s.pool.Run(ctx, len(selected), func(_ context.Context, i int) error {
		rec := batch.Records[selected[i]]
		baseline, err := s.engine.PredictRow(rec.Encoded)
		if err != nil {
			metrics.RecordScoringAnomaly()
			rows[i] = counterfactual.Failed(rec.GrainID, plan.NumTopFactors, err)
			return nil
		}
		rows[i] = counterfactual.Recommend(rec, baseline, plan, s.engine, s.encoder)
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, r := range rows {
		if r.Err == nil {
			continue
		}
		rec := batch.Records[selected[i]]
		fields := []logger.Field{logger.String("grain", r.GrainID), logger.Error(r.Err)}
		for _, v := range plan.Variables {
			fields = append(fields, logger.String(v.Name, rec.Observed(v.Name).String()))
		}
		s.logger.Debug(ctx, "recommendation anomaly", fields...)
	}
	metrics.RecordRecommendationRows(len(rows), counterfactual.EmptySlots(rows))
	metrics.RecordRecommendationLatency(float64(time.Since(start).Microseconds()) / 1000)
	return rows, nil
}

// ProcessVariables runs Recommend and assembles the Modify{i} table.
func (s *Service) ProcessVariables(ctx context.Context, batch *model.Batch, req counterfactual.Request) (*assemble.Table, error) {
	rows, err := s.Recommend(ctx, batch, req)
	if err != nil {
		return nil, err
	}
	return assemble.Recommendations(s.meta(), batch.GrainColumn, s.engine.Mode(), rows, req.NumTopFactors)
}

// selectRecords maps grain IDs to record positions, in request order. No IDs
// selects every record.
func selectRecords(batch *model.Batch, grainIDs []string) ([]int, error) {
	if len(grainIDs) == 0 {
		out := make([]int, len(batch.Records))
		for i := range out {
			out[i] = i
		}
		return out, nil
	}
	index := batch.Index()
	out := make([]int, len(grainIDs))
	for i, id := range grainIDs {
		pos, ok := index[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrGrainNotFound, id)
		}
		out[i] = pos
	}
	return out, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"maxBatches":  s.maxBatches,
	}
	if s.art != nil {
		stats["model"] = s.art.Name
		stats["family"] = s.art.Family
		stats["columns"] = s.art.Schema.NumColumns()
	}
	if s.started {
		ctx := context.Background()
		stats["mode"] = s.engine.Mode().String()
		stats["batches"] = s.store.Count(ctx)

		metrics.UpdateBatchesStored(s.store.Count(ctx))
		metrics.UpdateWorkerCount(s.workerCount)
		metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	}
	return stats
}
