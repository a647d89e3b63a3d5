// Package counterfactual recommends single-variable changes that would most
// improve a record's predicted outcome.
//
// Each modifiable variable is tried on its own against the observed record.
// Deltas come from re-scoring substituted rows with the trained model, so they
// describe the model's response, not a causal effect.
package counterfactual

import (
	"fmt"
	"sort"

	"github.com/okian/factorlens/internal/domain/model"
	"github.com/okian/factorlens/pkg/metrics"
)

// Scorer scores one encoded row. *scoring.Engine satisfies it.
type Scorer interface {
	PredictRow(row []float64) (float64, error)
}

// Substituter rewrites one variable of an encoded row. *encoding.Encoder
// satisfies it.
type Substituter interface {
	Substitute(row []float64, variable string, value model.Value) ([]float64, error)
}

// Candidate is one scored counterfactual for a record.
type Candidate struct {
	Variable     string
	Value        model.Value
	Score        float64
	Delta        float64
	Desirability float64
}

// Slot is one position of a recommendation row. Present is false for padding.
type Slot struct {
	Variable     string
	Value        model.Value
	Delta        float64
	Desirability float64
	Present      bool
}

// Row is the recommendation for one record. It always has exactly
// NumTopFactors slots. Err is set when the record could not be evaluated; its
// slots are then all padding.
type Row struct {
	GrainID  string
	Baseline float64
	Slots    []Slot
	Err      error
}

// Desirability turns a score delta into an improvement measure: positive is
// better.
func Desirability(delta float64, smallerBetter bool) float64 {
	if smallerBetter {
		return -delta
	}
	return delta
}

// Evaluate scores every (variable, candidate) pair of plan for rec, in plan
// order. A substituted row equal to the observed row keeps the baseline, so
// its delta is exactly zero.
func Evaluate(rec model.Record, baseline float64, plan *Plan, scorer Scorer, sub Substituter) ([]Candidate, error) {
	out := make([]Candidate, 0, plan.NumCandidates())
	for _, v := range plan.Variables {
		for _, c := range v.Candidates {
			row, err := sub.Substitute(rec.Encoded, v.Name, c)
			if err != nil {
				return nil, fmt.Errorf("substitute %s=%s: %w", v.Name, c, err)
			}
			score := baseline
			if !sameRow(row, rec.Encoded) {
				score, err = scorer.PredictRow(row)
				if err != nil {
					return nil, fmt.Errorf("score %s=%s: %w", v.Name, c, err)
				}
			}
			delta := score - baseline
			out = append(out, Candidate{
				Variable:     v.Name,
				Value:        c,
				Score:        score,
				Delta:        delta,
				Desirability: Desirability(delta, plan.SmallerBetter),
			})
		}
	}
	metrics.RecordCandidatesEvaluated(len(out))
	return out, nil
}

func sameRow(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Polarize recomputes desirability from the stored deltas. Flipping the
// polarity never re-scores anything.
func Polarize(candidates []Candidate, smallerBetter bool) []Candidate {
	out := make([]Candidate, len(candidates))
	for i, c := range candidates {
		c.Desirability = Desirability(c.Delta, smallerBetter)
		out[i] = c
	}
	return out
}

// Select applies the repeat policy and orders candidates by desirability,
// best first. Without repeats each variable keeps its best candidate, the
// earliest one on ties. The sort is stable, so equal desirabilities keep
// variable order, then candidate order.
func Select(candidates []Candidate, repeated bool) []Candidate {
	var kept []Candidate
	if repeated {
		kept = append([]Candidate(nil), candidates...)
	} else {
		best := make(map[string]int, len(candidates))
		for _, c := range candidates {
			i, ok := best[c.Variable]
			if !ok {
				best[c.Variable] = len(kept)
				kept = append(kept, c)
				continue
			}
			if c.Desirability > kept[i].Desirability {
				kept[i] = c
			}
		}
	}
	sort.SliceStable(kept, func(a, b int) bool {
		return kept[a].Desirability > kept[b].Desirability
	})
	return kept
}

// Slots takes the first k selected candidates and pads the rest.
func Slots(selected []Candidate, k int) []Slot {
	slots := make([]Slot, k)
	for i := 0; i < k && i < len(selected); i++ {
		c := selected[i]
		slots[i] = Slot{
			Variable:     c.Variable,
			Value:        c.Value,
			Delta:        c.Delta,
			Desirability: c.Desirability,
			Present:      true,
		}
	}
	return slots
}

// Recommend evaluates, selects, and truncates for one record.
func Recommend(rec model.Record, baseline float64, plan *Plan, scorer Scorer, sub Substituter) Row {
	row := Row{GrainID: rec.GrainID, Baseline: baseline}
	candidates, err := Evaluate(rec, baseline, plan, scorer, sub)
	if err != nil {
		row.Err = err
		row.Slots = Slots(nil, plan.NumTopFactors)
		return row
	}
	row.Slots = Slots(Select(candidates, plan.RepeatedFactors), plan.NumTopFactors)
	return row
}

// Failed returns a padded row for a record whose baseline could not be scored.
func Failed(grainID string, k int, err error) Row {
	return Row{GrainID: grainID, Slots: Slots(nil, k), Err: err}
}

// EmptySlots counts padding slots across rows.
func EmptySlots(rows []Row) int {
	n := 0
	for _, r := range rows {
		for _, s := range r.Slots {
			if !s.Present {
				n++
			}
		}
	}
	return n
}
