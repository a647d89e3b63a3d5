package scoring

import (
	"fmt"
	"math"
)

// Link is the inverse link applied to a linear predictor.
type Link uint8

const (
	// Identity returns the linear predictor as is (regression).
	Identity Link = iota
	// Logistic maps the linear predictor to a probability (binary classification).
	Logistic
)

// LinearModel is a generalised linear model: intercept + coefficients·x passed
// through an inverse link. Logistic models return [P(negative), P(positive)].
type LinearModel struct {
	intercept    float64
	coefficients []float64
	link         Link
}

// NewLinearModel copies its parameters so the model stays immutable.
func NewLinearModel(intercept float64, coefficients []float64, link Link) (*LinearModel, error) {
	if len(coefficients) == 0 {
		return nil, fmt.Errorf("%w: no coefficients", ErrInvalidModel)
	}
	if link != Identity && link != Logistic {
		return nil, fmt.Errorf("%w: unknown link %d", ErrInvalidModel, link)
	}
	return &LinearModel{
		intercept:    intercept,
		coefficients: append([]float64(nil), coefficients...),
		link:         link,
	}, nil
}

// Predict implements Model.
func (m *LinearModel) Predict(features []float64) ([]float64, error) {
	if len(features) != len(m.coefficients) {
		return nil, fmt.Errorf("%w: %d features for %d coefficients", ErrSchemaMismatch, len(features), len(m.coefficients))
	}
	z := m.intercept
	for i, w := range m.coefficients {
		z += w * features[i]
	}
	if m.link == Identity {
		return []float64{z}, nil
	}
	p := 1 / (1 + math.Exp(-z))
	return []float64{1 - p, p}, nil
}
