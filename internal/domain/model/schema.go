package model

import (
	"fmt"
	"strings"
)

// VariableKind distinguishes categorical from numeric source variables.
type VariableKind string

const (
	Categorical VariableKind = "categorical"
	Numeric     VariableKind = "numeric"
)

// Variable is one source (raw) column known at training time.
type Variable struct {
	Name   string
	Kind   VariableKind
	Levels []string // training-time levels, categorical only
}

// Schema describes how raw variables map onto encoded columns.
//
// Categorical variables expand to one dummy column per level, named
// variable+level (e.g. SystolicBPNormal). With DropFirst the first level is
// the reference level and has no column. Numeric variables map to a single
// column with the variable's own name.
type Schema struct {
	variables []Variable
	dropFirst bool

	columns     []string
	columnOwner []int          // column index -> variable index
	colIndex    map[string]int // column name -> index
	varIndex    map[string]int // variable name -> index
	varColumns  [][]int        // variable index -> its encoded column indices
}

// NewSchema validates variables and derives the encoded column layout.
func NewSchema(variables []Variable, dropFirst bool) (*Schema, error) {
	if len(variables) == 0 {
		return nil, fmt.Errorf("%w: no variables", ErrInvalidSchema)
	}
	s := &Schema{
		variables:  make([]Variable, len(variables)),
		dropFirst:  dropFirst,
		varIndex:   make(map[string]int, len(variables)),
		varColumns: make([][]int, len(variables)),
		colIndex:   make(map[string]int),
	}
	seenColumns := make(map[string]string)

	for i, v := range variables {
		name := strings.TrimSpace(v.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: variable %d has no name", ErrInvalidSchema, i)
		}
		if _, dup := s.varIndex[name]; dup {
			return nil, fmt.Errorf("%w: duplicate variable %q", ErrInvalidSchema, name)
		}
		v.Name = name
		v.Levels = append([]string(nil), v.Levels...)
		s.variables[i] = v
		s.varIndex[name] = i

		var cols []string
		switch v.Kind {
		case Numeric:
			if len(v.Levels) > 0 {
				return nil, fmt.Errorf("%w: numeric variable %q must not declare levels", ErrInvalidSchema, name)
			}
			cols = []string{name}
		case Categorical:
			if len(v.Levels) == 0 {
				return nil, fmt.Errorf("%w: categorical variable %q has no levels", ErrInvalidSchema, name)
			}
			levelSeen := make(map[string]struct{}, len(v.Levels))
			for _, lvl := range v.Levels {
				if _, dup := levelSeen[lvl]; dup {
					return nil, fmt.Errorf("%w: variable %q repeats level %q", ErrInvalidSchema, name, lvl)
				}
				levelSeen[lvl] = struct{}{}
			}
			start := 0
			if dropFirst {
				start = 1
			}
			for _, lvl := range v.Levels[start:] {
				cols = append(cols, name+lvl)
			}
		default:
			return nil, fmt.Errorf("%w: variable %q has unknown kind %q", ErrInvalidSchema, name, v.Kind)
		}

		for _, c := range cols {
			if owner, dup := seenColumns[c]; dup {
				return nil, fmt.Errorf("%w: column %q produced by both %q and %q", ErrInvalidSchema, c, owner, name)
			}
			seenColumns[c] = name
			s.varColumns[i] = append(s.varColumns[i], len(s.columns))
			s.colIndex[c] = len(s.columns)
			s.columns = append(s.columns, c)
			s.columnOwner = append(s.columnOwner, i)
		}
	}
	return s, nil
}

// Columns returns a copy of the encoded column names in training order.
func (s *Schema) Columns() []string {
	return append([]string(nil), s.columns...)
}

// NumColumns returns the encoded column count.
func (s *Schema) NumColumns() int { return len(s.columns) }

// DropFirst reports whether categoricals use reference coding.
func (s *Schema) DropFirst() bool { return s.dropFirst }

// Variables returns a copy of the source variables.
func (s *Schema) Variables() []Variable {
	out := make([]Variable, len(s.variables))
	for i, v := range s.variables {
		v.Levels = append([]string(nil), v.Levels...)
		out[i] = v
	}
	return out
}

// Variable looks a source variable up by name.
func (s *Schema) Variable(name string) (Variable, bool) {
	i, ok := s.varIndex[name]
	if !ok {
		return Variable{}, false
	}
	v := s.variables[i]
	v.Levels = append([]string(nil), v.Levels...)
	return v, true
}

// VariableColumns returns the encoded column indices owned by a variable.
func (s *Schema) VariableColumns(name string) ([]int, bool) {
	i, ok := s.varIndex[name]
	if !ok {
		return nil, false
	}
	return append([]int(nil), s.varColumns[i]...), true
}

// SourceOf maps an encoded column name back to its source variable name.
func (s *Schema) SourceOf(column string) (string, bool) {
	i, ok := s.colIndex[column]
	if !ok {
		return "", false
	}
	return s.variables[s.columnOwner[i]].Name, true
}

// HasLevel reports whether level was seen at training time for a categorical.
func (s *Schema) HasLevel(variable, level string) bool {
	i, ok := s.varIndex[variable]
	if !ok {
		return false
	}
	for _, l := range s.variables[i].Levels {
		if l == level {
			return true
		}
	}
	return false
}
