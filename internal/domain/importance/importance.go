// Package importance ranks the encoded factors of each record by their
// contribution to the prediction.
//
// Contributions come from a linear surrogate fit alongside the trained model
// (coefficient × encoded value, intercept excluded). When the trained model is
// nonlinear the ranking is an approximation of what drove its score, not an
// exact attribution. Callers should present it that way.
package importance

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/okian/factorlens/internal/domain/model"
	"github.com/okian/factorlens/pkg/metrics"
)

// Factor is one encoded column and its contribution for a record.
type Factor struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// Ranking is the ordered factor list of one record. Weights is nil unless
// weights were requested; when present it is aligned with Names.
type Ranking struct {
	Names   []string  `json:"names"`
	Weights []float64 `json:"weights,omitempty"`
}

// Contributions returns coefficient[j] * row[j] for every column j.
func Contributions(row, coefficients []float64) ([]float64, error) {
	if len(row) != len(coefficients) {
		return nil, fmt.Errorf("%w: row has %d values, %d coefficients", ErrCoefficientMismatch, len(row), len(coefficients))
	}
	out := make([]float64, len(row))
	for j, x := range row {
		out[j] = coefficients[j] * x
	}
	return out, nil
}

// Rank orders every column by contribution, largest first. Equal contributions
// keep column order. NaN contributions sort after every number.
func Rank(columns []string, row, coefficients []float64) ([]Factor, error) {
	if len(columns) != len(row) {
		return nil, fmt.Errorf("%w: %d columns for a row of %d values", ErrCoefficientMismatch, len(columns), len(row))
	}
	contrib, err := Contributions(row, coefficients)
	if err != nil {
		return nil, err
	}
	factors := make([]Factor, len(columns))
	for j, name := range columns {
		factors[j] = Factor{Name: name, Weight: contrib[j]}
	}
	sort.SliceStable(factors, func(a, b int) bool {
		return greater(factors[a].Weight, factors[b].Weight)
	})
	return factors, nil
}

// greater is a strict descending order over float64 with NaN last.
func greater(a, b float64) bool {
	switch {
	case math.IsNaN(a):
		return false
	case math.IsNaN(b):
		return true
	default:
		return a > b
	}
}

// TopFactors ranks every row of frame independently and keeps the first n
// factors of each. n <= 0 keeps all of them; larger n is clamped to the
// column count.
func TopFactors(frame model.Frame, coefficients []float64, n int, includeWeights bool) ([]Ranking, error) {
	if len(coefficients) != len(frame.Columns) {
		return nil, fmt.Errorf("%w: %d coefficients for %d columns", ErrCoefficientMismatch, len(coefficients), len(frame.Columns))
	}
	start := time.Now()
	defer func() {
		metrics.RecordFactorRankLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	k := Clamp(n, len(frame.Columns))
	out := make([]Ranking, len(frame.Rows))
	for i, row := range frame.Rows {
		r, err := RankRow(frame.Columns, row, coefficients, k, includeWeights)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = r
	}
	return out, nil
}

// RankRow ranks a single row and truncates it to k factors.
func RankRow(columns []string, row, coefficients []float64, k int, includeWeights bool) (Ranking, error) {
	factors, err := Rank(columns, row, coefficients)
	if err != nil {
		return Ranking{}, err
	}
	k = Clamp(k, len(factors))
	r := Ranking{Names: make([]string, k)}
	if includeWeights {
		r.Weights = make([]float64, k)
	}
	for i := 0; i < k; i++ {
		r.Names[i] = factors[i].Name
		if includeWeights {
			r.Weights[i] = factors[i].Weight
		}
	}
	return r, nil
}

// Clamp maps a requested factor count onto [1, total]; n <= 0 means total.
func Clamp(n, total int) int {
	if n <= 0 || n > total {
		return total
	}
	return n
}
