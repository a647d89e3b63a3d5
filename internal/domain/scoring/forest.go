package scoring

import "fmt"

// leafFeature marks a tree node as a leaf.
const leafFeature = -1

// Node is one node of a binary decision tree. Internal nodes send a row left
// when row[Feature] <= Threshold. Leaves (Feature == -1) carry Value, which is
// the positive-class probability for classifiers and the estimate for
// regressors.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
}

// Tree is a decision tree stored as a flat node list rooted at index 0.
type Tree struct {
	Nodes []Node
}

// ForestModel averages the leaf values of an ensemble of trees.
type ForestModel struct {
	trees          []Tree
	numFeatures    int
	classification bool
}

// NewForestModel validates the trees and copies them. Children must come after
// their parent in the node list, which rules out cycles.
func NewForestModel(trees []Tree, numFeatures int, classification bool) (*ForestModel, error) {
	if len(trees) == 0 {
		return nil, fmt.Errorf("%w: forest has no trees", ErrInvalidModel)
	}
	if numFeatures <= 0 {
		return nil, fmt.Errorf("%w: forest needs a positive feature count", ErrInvalidModel)
	}
	copied := make([]Tree, len(trees))
	for t, tree := range trees {
		if len(tree.Nodes) == 0 {
			return nil, fmt.Errorf("%w: tree %d is empty", ErrInvalidModel, t)
		}
		for i, n := range tree.Nodes {
			if n.Feature == leafFeature {
				continue
			}
			if n.Feature < 0 || n.Feature >= numFeatures {
				return nil, fmt.Errorf("%w: tree %d node %d splits on feature %d", ErrInvalidModel, t, i, n.Feature)
			}
			for _, child := range []int{n.Left, n.Right} {
				if child <= i || child >= len(tree.Nodes) {
					return nil, fmt.Errorf("%w: tree %d node %d has invalid child %d", ErrInvalidModel, t, i, child)
				}
			}
		}
		copied[t] = Tree{Nodes: append([]Node(nil), tree.Nodes...)}
	}
	return &ForestModel{trees: copied, numFeatures: numFeatures, classification: classification}, nil
}

// Predict implements Model.
func (m *ForestModel) Predict(features []float64) ([]float64, error) {
	if len(features) != m.numFeatures {
		return nil, fmt.Errorf("%w: %d features, forest expects %d", ErrSchemaMismatch, len(features), m.numFeatures)
	}
	var sum float64
	for _, tree := range m.trees {
		i := 0
		for tree.Nodes[i].Feature != leafFeature {
			n := tree.Nodes[i]
			if features[n.Feature] <= n.Threshold {
				i = n.Left
			} else {
				i = n.Right
			}
		}
		sum += tree.Nodes[i].Value
	}
	mean := sum / float64(len(m.trees))
	if m.classification {
		return []float64{1 - mean, mean}, nil
	}
	return []float64{mean}, nil
}
