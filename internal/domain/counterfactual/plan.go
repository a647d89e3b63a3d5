package counterfactual

import (
	"fmt"
	"math"
	"strings"

	"github.com/okian/factorlens/internal/domain/dedupe"
	"github.com/okian/factorlens/internal/domain/model"
)

// DefaultNumTopFactors is the recommendation width when none is given.
const DefaultNumTopFactors = 3

// Request is a caller's what-if query.
type Request struct {
	// Variables the operator can change. Order fixes tie-breaking.
	Variables []string
	// Levels overrides the candidate values per variable. Categoricals
	// without an entry use every training-time level.
	Levels map[string][]model.Value
	// GrainIDs restricts the records processed. Empty means all.
	GrainIDs []string
	// SmallerBetter marks lower scores as improvements.
	SmallerBetter bool
	// RepeatedFactors lets one variable fill several slots.
	RepeatedFactors bool
	NumTopFactors   int
}

// DefaultRequest returns a request with the documented defaults.
func DefaultRequest(variables ...string) Request {
	return Request{
		Variables:       variables,
		SmallerBetter:   true,
		RepeatedFactors: false,
		NumTopFactors:   DefaultNumTopFactors,
	}
}

// VariablePlan is one modifiable variable with its resolved candidates.
type VariablePlan struct {
	Name       string
	Kind       model.VariableKind
	Candidates []model.Value
}

// Plan is a validated request. It is read-only and shared by every record
// of a call.
type Plan struct {
	Variables       []VariablePlan
	GrainIDs        []string
	SmallerBetter   bool
	RepeatedFactors bool
	NumTopFactors   int
}

// NumCandidates is the number of counterfactual rows built per record.
func (p *Plan) NumCandidates() int {
	n := 0
	for _, v := range p.Variables {
		n += len(v.Candidates)
	}
	return n
}

// NewPlan validates req against schema and resolves candidate lists.
// Repeated variable names and grain IDs keep their first occurrence.
func NewPlan(schema *model.Schema, req Request) (*Plan, error) {
	if req.NumTopFactors < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTopFactors, req.NumTopFactors)
	}
	names := dedupe.Unique(req.Variables, dedupe.WithFold(strings.TrimSpace))
	if len(names) == 0 {
		return nil, ErrNoVariables
	}

	plan := &Plan{
		Variables:       make([]VariablePlan, 0, len(names)),
		SmallerBetter:   req.SmallerBetter,
		RepeatedFactors: req.RepeatedFactors,
		NumTopFactors:   req.NumTopFactors,
	}
	if len(req.GrainIDs) > 0 {
		plan.GrainIDs = dedupe.Unique(req.GrainIDs)
	}

	levels, err := normalizeLevels(req.Levels)
	if err != nil {
		return nil, err
	}
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		v, ok := schema.Variable(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", model.ErrUnknownVariable, name)
		}
		given, explicit := levels[name]
		candidates, err := resolve(schema, v, given, explicit)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrEmptyCandidateSet, name)
		}
		plan.Variables = append(plan.Variables, VariablePlan{Name: name, Kind: v.Kind, Candidates: candidates})
	}
	return plan, nil
}

// normalizeLevels keys the overrides by trimmed variable name, matching how
// Variables are read.
func normalizeLevels(levels map[string][]model.Value) (map[string][]model.Value, error) {
	out := make(map[string][]model.Value, len(levels))
	for raw, vals := range levels {
		name := strings.TrimSpace(raw)
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("%w: levels for %s given more than once", ErrInvalidCandidate, name)
		}
		out[name] = vals
	}
	return out, nil
}

func resolve(schema *model.Schema, v model.Variable, levels []model.Value, explicit bool) ([]model.Value, error) {
	switch v.Kind {
	case model.Numeric:
		if !explicit {
			return nil, fmt.Errorf("%w: %s", ErrNumericLevelsRequired, v.Name)
		}
		out := make([]model.Value, 0, len(levels))
		for _, c := range levels {
			if !c.IsNumber() || math.IsNaN(c.Number()) || math.IsInf(c.Number(), 0) {
				return nil, fmt.Errorf("%w: %s expects finite numbers, got %s", ErrInvalidCandidate, v.Name, c)
			}
			out = append(out, c)
		}
		return out, nil
	case model.Categorical:
		if !explicit {
			out := make([]model.Value, len(v.Levels))
			for i, l := range v.Levels {
				out[i] = model.Text(l)
			}
			return out, nil
		}
		out := make([]model.Value, 0, len(levels))
		for _, c := range levels {
			if !c.IsText() {
				return nil, fmt.Errorf("%w: %s expects levels, got %s", ErrInvalidCandidate, v.Name, c)
			}
			if !schema.HasLevel(v.Name, c.Text()) {
				return nil, fmt.Errorf("%w: %s=%q", model.ErrUnknownLevel, v.Name, c.Text())
			}
			out = append(out, c)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s has kind %q", ErrInvalidCandidate, v.Name, v.Kind)
	}
}
