// Package assemble builds the flat output tables: run metadata, the grain
// column, the baseline score, then the ranking or recommendation columns.
// Column names and widths depend only on the call's configuration.
package assemble

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/okian/factorlens/internal/domain/counterfactual"
	"github.com/okian/factorlens/internal/domain/importance"
	"github.com/okian/factorlens/internal/domain/scoring"
)

// Fixed column names.
const (
	ColRunID          = "RunID"
	ColModelName      = "ModelNM"
	ColLastLoad       = "LastLoadDTS"
	ColPredictedProb  = "PredictedProbNBR"
	ColPredictedValue = "PredictedValueNBR"
	ColError          = "ErrorTXT"
)

// Meta is pass-through run metadata repeated on every row.
type Meta struct {
	RunID       string
	ModelName   string
	GeneratedAt time.Time
}

func (m Meta) values() []any {
	return []any{m.RunID, m.ModelName, m.GeneratedAt.UTC().Format(time.RFC3339)}
}

// Table is a positional output table.
type Table struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Len returns the row count.
func (t *Table) Len() int { return len(t.Rows) }

// Records returns each row as a column-name keyed map.
func (t *Table) Records() []map[string]any {
	out := make([]map[string]any, len(t.Rows))
	for i, row := range t.Rows {
		m := make(map[string]any, len(t.Columns))
		for j, c := range t.Columns {
			m[c] = row[j]
		}
		out[i] = m
	}
	return out
}

// PredictionColumn names the score column for a mode.
func PredictionColumn(mode scoring.Mode) string {
	if mode == scoring.Regression {
		return ColPredictedValue
	}
	return ColPredictedProb
}

func header(grainColumn string, mode scoring.Mode) []string {
	return []string{ColRunID, ColModelName, ColLastLoad, grainColumn, PredictionColumn(mode)}
}

// FactorColumn returns the i-th (1-based) factor column name.
func FactorColumn(i int) string { return "Factor" + strconv.Itoa(i) }

// Deploy builds the standard prediction table: the score plus the top k
// factors per record. source maps an encoded column to its source variable;
// consecutive factors with the same source collapse into one before the
// ranking is cut to k. A nil source keeps encoded names.
func Deploy(meta Meta, grainColumn string, mode scoring.Mode, grainIDs []string, scores []scoring.Score,
	rankings []importance.Ranking, k int, source func(column string) string,
) (*Table, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: factors=%d", ErrInvalidWidth, k)
	}
	if len(scores) != len(grainIDs) || len(rankings) != len(grainIDs) {
		return nil, fmt.Errorf("%w: %d grains, %d scores, %d rankings", ErrLengthMismatch, len(grainIDs), len(scores), len(rankings))
	}

	cols := header(grainColumn, mode)
	for i := 1; i <= k; i++ {
		cols = append(cols, FactorColumn(i))
	}
	cols = append(cols, ColError)

	t := &Table{Columns: cols, Rows: make([][]any, len(grainIDs))}
	for r, id := range grainIDs {
		row := make([]any, 0, len(cols))
		row = append(row, meta.values()...)
		row = append(row, id)
		row = append(row, scoreValue(scores[r]))
		names := Collapse(rankings[r].Names, source)
		for i := 0; i < k; i++ {
			if i < len(names) {
				row = append(row, names[i])
			} else {
				row = append(row, nil)
			}
		}
		row = append(row, errorText(scores[r].Err))
		t.Rows[r] = row
	}
	return t, nil
}

// Collapse maps factor names through source and drops a name equal to the one
// before it.
func Collapse(names []string, source func(string) string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if source != nil {
			n = source(n)
		}
		if len(out) > 0 && out[len(out)-1] == n {
			continue
		}
		out = append(out, n)
	}
	return out
}

// Factors builds the top-factor table. With weights each Factor{i} column is
// followed by its Factor{i}Weight column. A weight that overflowed to ±Inf
// is written as nil.
func Factors(meta Meta, grainColumn string, grainIDs []string, rankings []importance.Ranking, k int, includeWeights bool) (*Table, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: factors=%d", ErrInvalidWidth, k)
	}
	if len(rankings) != len(grainIDs) {
		return nil, fmt.Errorf("%w: %d grains, %d rankings", ErrLengthMismatch, len(grainIDs), len(rankings))
	}

	cols := []string{ColRunID, ColModelName, ColLastLoad, grainColumn}
	for i := 1; i <= k; i++ {
		cols = append(cols, FactorColumn(i))
		if includeWeights {
			cols = append(cols, FactorColumn(i)+"Weight")
		}
	}

	t := &Table{Columns: cols, Rows: make([][]any, len(grainIDs))}
	for r, id := range grainIDs {
		row := make([]any, 0, len(cols))
		row = append(row, meta.values()...)
		row = append(row, id)
		rk := rankings[r]
		for i := 0; i < k; i++ {
			var name, weight any
			if i < len(rk.Names) {
				name = rk.Names[i]
				if i < len(rk.Weights) {
					weight = number(rk.Weights[i])
				}
			}
			row = append(row, name)
			if includeWeights {
				row = append(row, weight)
			}
		}
		t.Rows[r] = row
	}
	return t, nil
}

// Recommendations builds the what-if table: per slot i the columns
// Modify{i}TXT, Modify{i}Value, Modify{i}Delta and Modify{i}Desirability.
// Padding slots are nil.
func Recommendations(meta Meta, grainColumn string, mode scoring.Mode, rows []counterfactual.Row, k int) (*Table, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: slots=%d", ErrInvalidWidth, k)
	}

	cols := header(grainColumn, mode)
	for i := 1; i <= k; i++ {
		p := "Modify" + strconv.Itoa(i)
		cols = append(cols, p+"TXT", p+"Value", p+"Delta", p+"Desirability")
	}
	cols = append(cols, ColError)

	t := &Table{Columns: cols, Rows: make([][]any, len(rows))}
	for r, rec := range rows {
		row := make([]any, 0, len(cols))
		row = append(row, meta.values()...)
		row = append(row, rec.GrainID)
		if rec.Err != nil {
			row = append(row, nil)
		} else {
			row = append(row, number(rec.Baseline))
		}
		for i := 0; i < k; i++ {
			if i < len(rec.Slots) && rec.Slots[i].Present {
				s := rec.Slots[i]
				row = append(row, s.Variable, s.Value.Interface(), number(s.Delta), number(s.Desirability))
			} else {
				row = append(row, nil, nil, nil, nil)
			}
		}
		row = append(row, errorText(rec.Err))
		t.Rows[r] = row
	}
	return t, nil
}

func scoreValue(s scoring.Score) any {
	if s.Err != nil {
		return nil
	}
	return number(s.Value)
}

// number returns v, or nil when v has no JSON encoding (NaN or ±Inf).
func number(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func errorText(err error) any {
	if err == nil {
		return nil
	}
	return err.Error()
}
