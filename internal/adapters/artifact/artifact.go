// Package artifact loads a trained model, its training-time schema and its
// surrogate coefficients from a YAML file.
package artifact

import (
	"context"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/factorlens/internal/domain/model"
	"github.com/okian/factorlens/internal/domain/scoring"
)

// Model families.
const (
	FamilyLinear = "linear"
	FamilyForest = "forest"
)

// Artifact is a loaded, validated model bundle. Everything in it is read-only.
type Artifact struct {
	Name          string
	Family        string
	Mode          scoring.Mode
	PositiveClass int
	GrainColumn   string
	Schema        *model.Schema
	// Surrogate holds one linear-surrogate coefficient per encoded column,
	// intercept excluded.
	Surrogate []float64
	Model     scoring.Model
}

// Engine builds a scoring engine bound to the artifact's columns and mode.
func (a *Artifact) Engine() (*scoring.Engine, error) {
	return scoring.NewEngine(a.Model, a.Schema.Columns(), a.Mode, scoring.WithPositiveClass(a.PositiveClass))
}

type variableDoc struct {
	Name   string   `koanf:"name" validate:"required"`
	Kind   string   `koanf:"kind" validate:"oneof=categorical numeric"`
	Levels []string `koanf:"levels"`
}

type linearDoc struct {
	Intercept    float64   `koanf:"intercept"`
	Link         string    `koanf:"link" validate:"omitempty,oneof=identity logistic"`
	Coefficients []float64 `koanf:"coefficients"`
}

type nodeDoc struct {
	// Feature is the encoded column a node splits on; empty marks a leaf.
	Feature   string  `koanf:"feature"`
	Threshold float64 `koanf:"threshold"`
	Left      int     `koanf:"left"`
	Right     int     `koanf:"right"`
	Value     float64 `koanf:"value"`
}

type treeDoc struct {
	Nodes []nodeDoc `koanf:"nodes" validate:"required,min=1"`
}

type forestDoc struct {
	Trees []treeDoc `koanf:"trees" validate:"dive"`
}

type document struct {
	Name          string        `koanf:"name" validate:"required"`
	Family        string        `koanf:"family" validate:"oneof=linear forest"`
	Mode          string        `koanf:"mode" validate:"oneof=classification regression"`
	PositiveClass *int          `koanf:"positive_class" validate:"omitempty,min=0"`
	GrainColumn   string        `koanf:"grain_column" validate:"required"`
	DropFirst     bool          `koanf:"drop_first"`
	Schema        []variableDoc `koanf:"schema" validate:"required,min=1,dive"`
	Surrogate     []float64     `koanf:"surrogate_coefficients" validate:"required"`
	Linear        *linearDoc    `koanf:"linear"`
	Forest        *forestDoc    `koanf:"forest"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads and validates the artifact at path.
func Load(ctx context.Context, path string) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadArtifact, err)
	}
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoadArtifact, path, err)
	}
	var s document
	if err := k.UnmarshalWithConf("", &s, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoadArtifact, path, err)
	}
	a, err := build(&s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

func build(s *document) (*Artifact, error) {
	if err := validate.Struct(s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
	}

	vars := make([]model.Variable, len(s.Schema))
	for i, v := range s.Schema {
		vars[i] = model.Variable{Name: v.Name, Kind: model.VariableKind(v.Kind), Levels: v.Levels}
	}
	schema, err := model.NewSchema(vars, s.DropFirst)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
	}
	if _, clash := schema.Variable(s.GrainColumn); clash {
		return nil, fmt.Errorf("%w: grain column %q is also a feature", ErrInvalidArtifact, s.GrainColumn)
	}
	if len(s.Surrogate) != schema.NumColumns() {
		return nil, fmt.Errorf("%w: %d surrogate coefficients for %d encoded columns",
			ErrInvalidArtifact, len(s.Surrogate), schema.NumColumns())
	}
	for j, c := range s.Surrogate {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, fmt.Errorf("%w: surrogate coefficient %d is %v", ErrInvalidArtifact, j, c)
		}
	}

	mode, err := scoring.ParseMode(s.Mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
	}
	a := &Artifact{
		Name:          s.Name,
		Family:        s.Family,
		Mode:          mode,
		PositiveClass: 1,
		GrainColumn:   s.GrainColumn,
		Schema:        schema,
		Surrogate:     append([]float64(nil), s.Surrogate...),
	}
	if s.PositiveClass != nil {
		a.PositiveClass = *s.PositiveClass
	}

	switch s.Family {
	case FamilyLinear:
		a.Model, err = buildLinear(s.Linear, schema, mode)
	case FamilyForest:
		a.Model, err = buildForest(s.Forest, schema, mode)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
	}
	return a, nil
}

func buildLinear(ls *linearDoc, schema *model.Schema, mode scoring.Mode) (scoring.Model, error) {
	if ls == nil {
		return nil, fmt.Errorf("family linear needs a linear section")
	}
	if len(ls.Coefficients) != schema.NumColumns() {
		return nil, fmt.Errorf("%d linear coefficients for %d encoded columns", len(ls.Coefficients), schema.NumColumns())
	}
	link := scoring.Identity
	switch ls.Link {
	case "logistic":
		link = scoring.Logistic
	case "":
		if mode == scoring.Classification {
			link = scoring.Logistic
		}
	}
	if mode == scoring.Classification && link != scoring.Logistic {
		return nil, fmt.Errorf("classification needs a logistic link")
	}
	return scoring.NewLinearModel(ls.Intercept, ls.Coefficients, link)
}

func buildForest(fs *forestDoc, schema *model.Schema, mode scoring.Mode) (scoring.Model, error) {
	if fs == nil || len(fs.Trees) == 0 {
		return nil, fmt.Errorf("family forest needs at least one tree")
	}
	index := make(map[string]int, schema.NumColumns())
	for i, c := range schema.Columns() {
		index[c] = i
	}
	trees := make([]scoring.Tree, len(fs.Trees))
	for t, ts := range fs.Trees {
		nodes := make([]scoring.Node, len(ts.Nodes))
		for n, ns := range ts.Nodes {
			if ns.Feature == "" {
				nodes[n] = scoring.Node{Feature: -1, Value: ns.Value}
				continue
			}
			col, ok := index[ns.Feature]
			if !ok {
				return nil, fmt.Errorf("tree %d node %d splits on unknown column %q", t, n, ns.Feature)
			}
			nodes[n] = scoring.Node{Feature: col, Threshold: ns.Threshold, Left: ns.Left, Right: ns.Right}
		}
		trees[t] = scoring.Tree{Nodes: nodes}
	}
	return scoring.NewForestModel(trees, schema.NumColumns(), mode == scoring.Classification)
}
