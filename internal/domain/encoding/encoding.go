// Package encoding turns raw records into the encoded feature rows a trained
// model consumes, and rewrites single variables for counterfactual rows.
//
// It implements only the output contract of the training-time encoder: level
// sets are fixed by the schema and unseen levels are rejected. Imputation is
// not done here; a missing value is an error.
package encoding

import (
	"fmt"
	"math"

	"github.com/okian/factorlens/internal/domain/model"
)

// Encoder encodes raw rows against a fixed schema.
type Encoder struct {
	schema *model.Schema
}

// New creates an Encoder for schema.
func New(schema *model.Schema) *Encoder {
	return &Encoder{schema: schema}
}

// Schema returns the schema the encoder was built with.
func (e *Encoder) Schema() *model.Schema { return e.schema }

// Encode builds the encoded row for raw values.
func (e *Encoder) Encode(values map[string]model.Value) ([]float64, error) {
	row := make([]float64, e.schema.NumColumns())
	for _, v := range e.schema.Variables() {
		val, ok := values[v.Name]
		if !ok || val.IsMissing() {
			return nil, fmt.Errorf("%w: %s", ErrMissingValue, v.Name)
		}
		if err := e.set(row, v, val); err != nil {
			return nil, err
		}
	}
	return row, nil
}

// Substitute returns a copy of row with variable set to value. Every other
// column keeps its observed value.
func (e *Encoder) Substitute(row []float64, variable string, value model.Value) ([]float64, error) {
	if len(row) != e.schema.NumColumns() {
		return nil, fmt.Errorf("%w: row has %d columns, schema has %d", ErrRowWidth, len(row), e.schema.NumColumns())
	}
	v, ok := e.schema.Variable(variable)
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrUnknownVariable, variable)
	}
	out := append([]float64(nil), row...)
	if err := e.set(out, v, value); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Encoder) set(row []float64, v model.Variable, value model.Value) error {
	cols, _ := e.schema.VariableColumns(v.Name)
	switch v.Kind {
	case model.Numeric:
		if !value.IsNumber() || math.IsNaN(value.Number()) || math.IsInf(value.Number(), 0) {
			return fmt.Errorf("%w: %s expects a finite number, got %q", ErrTypeMismatch, v.Name, value.String())
		}
		row[cols[0]] = value.Number()
	case model.Categorical:
		if !value.IsText() {
			return fmt.Errorf("%w: %s expects a level, got %q", ErrTypeMismatch, v.Name, value.String())
		}
		pos := -1
		for i, lvl := range v.Levels {
			if lvl == value.Text() {
				pos = i
				break
			}
		}
		if pos < 0 {
			return fmt.Errorf("%w: %s=%q", model.ErrUnknownLevel, v.Name, value.Text())
		}
		for _, c := range cols {
			row[c] = 0
		}
		if e.schema.DropFirst() {
			pos--
		}
		// pos < 0 here means the reference level: all dummies stay zero.
		if pos >= 0 {
			row[cols[pos]] = 1
		}
	}
	return nil
}
