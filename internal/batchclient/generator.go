package batchclient

import (
	"context"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/okian/factorlens/internal/domain/model"
	"github.com/okian/factorlens/pkg/logger"
)

// Default range for synthesised numeric values.
const (
	defaultNumericMin = 0.0
	defaultNumericMax = 100.0
)

// NumericRange bounds the values generated for one numeric variable.
type NumericRange struct {
	Min, Max float64
}

// Generator synthesises raw records that fit a training schema.
type Generator struct {
	schema *model.Schema
	ranges map[string]NumericRange
	rng    *rand.Rand
	newID  func() string
}

// NewGenerator creates a generator. The same seed yields the same values;
// grain IDs are random UUIDs.
func NewGenerator(schema *model.Schema, seed uint64, ranges map[string]NumericRange) *Generator {
	return &Generator{
		schema: schema,
		ranges: ranges,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		newID:  uuid.NewString,
	}
}

// Generate returns n records.
func (g *Generator) Generate(ctx context.Context, n int) []model.RawRecord {
	records := make([]model.RawRecord, n)
	for i := range records {
		values := make(map[string]model.Value, len(g.schema.Variables()))
		for _, v := range g.schema.Variables() {
			values[v.Name] = g.value(v)
		}
		records[i] = model.RawRecord{GrainID: g.newID(), Values: values}
	}
	logger.Get().Debug(ctx, "generated records", logger.Int("count", n))
	return records
}

func (g *Generator) value(v model.Variable) model.Value {
	if v.Kind == model.Categorical {
		return model.Text(v.Levels[g.rng.IntN(len(v.Levels))])
	}
	r, ok := g.ranges[v.Name]
	if !ok || r.Max <= r.Min {
		r = NumericRange{Min: defaultNumericMin, Max: defaultNumericMax}
	}
	return model.Number(r.Min + g.rng.Float64()*(r.Max-r.Min))
}
