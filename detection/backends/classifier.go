package backends

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

// Supported classical model types.
const (
	ModelRandomForest       = "random_forest"
	ModelLogisticRegression = "logistic_regression"
	ModelKNN                = "knn"
)

// Classifier scores one feature vector. Implementations are read-only after
// decoding.
type Classifier interface {
	Type() string
	NumFeatures() int
	// Classes lists class labels in probability order.
	Classes() []int
	PredictProba(x []float64) ([]float64, error)
}

// PositiveIndex returns the probability index of the gunshot class: the
// index of label 1 when present, otherwise the last class.
func PositiveIndex(c Classifier) int {
	classes := c.Classes()
	if i := slices.Index(classes, 1); i >= 0 {
		return i
	}
	return len(classes) - 1
}

// TreeExport is one decision tree in scikit-learn's array layout: node i is
// a leaf when ChildrenLeft[i] == -1; otherwise samples with
// x[Feature[i]] <= Threshold[i] go left.
type TreeExport struct {
	ChildrenLeft  []int       `msgpack:"children_left"`
	ChildrenRight []int       `msgpack:"children_right"`
	Feature       []int       `msgpack:"feature"`
	Threshold     []float64   `msgpack:"threshold"`
	Value         [][]float64 `msgpack:"value"`
}

// ClassifierExport is the msgpack model layout. Only the fields for
// ModelType are populated.
type ClassifierExport struct {
	ModelType  string       `msgpack:"model_type"`
	Classes    []int        `msgpack:"classes"`
	NFeatures  int          `msgpack:"n_features"`
	Trees      []TreeExport `msgpack:"trees"`
	Coef       []float64    `msgpack:"coef"`
	Intercept  float64      `msgpack:"intercept"`
	Prototypes [][]float64  `msgpack:"prototypes"`
	Labels     []int        `msgpack:"labels"`
	K          int          `msgpack:"k"`
}

// DecodeClassifier parses and validates a msgpack model export.
func DecodeClassifier(data []byte) (Classifier, error) {
	var blob ClassifierExport
	if err := msgpack.Unmarshal(data, &blob); err != nil {
		return nil, fmt.Errorf("failed to decode classifier: %w", err)
	}

	if blob.NFeatures <= 0 {
		return nil, fmt.Errorf("invalid n_features %d", blob.NFeatures)
	}
	if len(blob.Classes) == 0 {
		blob.Classes = []int{0, 1}
	}

	switch blob.ModelType {
	case ModelRandomForest:
		return newRandomForest(blob)
	case ModelLogisticRegression:
		return newLogisticRegression(blob)
	case ModelKNN:
		return newKNN(blob)
	default:
		return nil, fmt.Errorf("unsupported model type %q", blob.ModelType)
	}
}

// EncodeClassifier serialises a model in the layout DecodeClassifier reads.
func EncodeClassifier(export ClassifierExport) ([]byte, error) {
	return msgpack.Marshal(export)
}

func checkInput(x []float64, n int) error {
	if len(x) != n {
		return fmt.Errorf("feature vector has %d values, model expects %d", len(x), n)
	}
	return nil
}

type randomForest struct {
	classes   []int
	nFeatures int
	trees     []TreeExport
}

func newRandomForest(blob ClassifierExport) (*randomForest, error) {
	if len(blob.Trees) == 0 {
		return nil, errors.New("random forest has no trees")
	}
	for i, tree := range blob.Trees {
		if err := validateTree(tree, blob.NFeatures, len(blob.Classes)); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return &randomForest{classes: blob.Classes, nFeatures: blob.NFeatures, trees: blob.Trees}, nil
}

func validateTree(tree TreeExport, nFeatures, nClasses int) error {
	n := len(tree.ChildrenLeft)
	if n == 0 {
		return errors.New("empty tree")
	}
	if len(tree.ChildrenRight) != n || len(tree.Feature) != n || len(tree.Threshold) != n || len(tree.Value) != n {
		return errors.New("node arrays differ in length")
	}
	for i := range n {
		left, right := tree.ChildrenLeft[i], tree.ChildrenRight[i]
		if left == -1 {
			if len(tree.Value[i]) != nClasses {
				return fmt.Errorf("leaf %d has %d class values, want %d", i, len(tree.Value[i]), nClasses)
			}
			continue
		}
		// children always follow their parent in scikit-learn's layout
		if left <= i || right <= i || left >= n || right >= n {
			return fmt.Errorf("node %d has invalid children (%d, %d)", i, left, right)
		}
		if f := tree.Feature[i]; f < 0 || f >= nFeatures {
			return fmt.Errorf("node %d splits on feature %d of %d", i, f, nFeatures)
		}
	}
	return nil
}

func (m *randomForest) Type() string     { return ModelRandomForest }
func (m *randomForest) NumFeatures() int { return m.nFeatures }
func (m *randomForest) Classes() []int   { return m.classes }

// PredictProba averages the normalised leaf distributions of every tree.
func (m *randomForest) PredictProba(x []float64) ([]float64, error) {
	if err := checkInput(x, m.nFeatures); err != nil {
		return nil, err
	}

	proba := make([]float64, len(m.classes))
	for _, tree := range m.trees {
		node := 0
		for tree.ChildrenLeft[node] != -1 {
			if x[tree.Feature[node]] <= tree.Threshold[node] {
				node = tree.ChildrenLeft[node]
			} else {
				node = tree.ChildrenRight[node]
			}
		}

		leaf := tree.Value[node]
		total := 0.0
		for _, v := range leaf {
			total += v
		}
		if total <= 0 {
			continue
		}
		for c, v := range leaf {
			proba[c] += v / total
		}
	}

	for c := range proba {
		proba[c] /= float64(len(m.trees))
	}
	return proba, nil
}

type logisticRegression struct {
	classes   []int
	coef      []float64
	intercept float64
}

func newLogisticRegression(blob ClassifierExport) (*logisticRegression, error) {
	if len(blob.Classes) != 2 {
		return nil, fmt.Errorf("logistic regression supports 2 classes, got %d", len(blob.Classes))
	}
	if len(blob.Coef) != blob.NFeatures {
		return nil, fmt.Errorf("coef has %d weights, want %d", len(blob.Coef), blob.NFeatures)
	}
	return &logisticRegression{classes: blob.Classes, coef: blob.Coef, intercept: blob.Intercept}, nil
}

func (m *logisticRegression) Type() string     { return ModelLogisticRegression }
func (m *logisticRegression) NumFeatures() int { return len(m.coef) }
func (m *logisticRegression) Classes() []int   { return m.classes }

func (m *logisticRegression) PredictProba(x []float64) ([]float64, error) {
	if err := checkInput(x, len(m.coef)); err != nil {
		return nil, err
	}

	z := m.intercept
	for i, w := range m.coef {
		z += w * x[i]
	}
	p := 1 / (1 + math.Exp(-z))
	return []float64{1 - p, p}, nil
}

type knn struct {
	classes    []int
	nFeatures  int
	k          int
	prototypes [][]float64
	labels     []int
}

func newKNN(blob ClassifierExport) (*knn, error) {
	if len(blob.Prototypes) == 0 || len(blob.Prototypes) != len(blob.Labels) {
		return nil, fmt.Errorf("knn has %d prototypes and %d labels", len(blob.Prototypes), len(blob.Labels))
	}
	for i, p := range blob.Prototypes {
		if len(p) != blob.NFeatures {
			return nil, fmt.Errorf("prototype %d has %d features, want %d", i, len(p), blob.NFeatures)
		}
		if !slices.Contains(blob.Classes, blob.Labels[i]) {
			return nil, fmt.Errorf("prototype %d has unknown label %d", i, blob.Labels[i])
		}
	}
	k := blob.K
	if k <= 0 {
		k = 5
	}
	return &knn{
		classes:    blob.Classes,
		nFeatures:  blob.NFeatures,
		k:          min(k, len(blob.Prototypes)),
		prototypes: blob.Prototypes,
		labels:     blob.Labels,
	}, nil
}

func (m *knn) Type() string     { return ModelKNN }
func (m *knn) NumFeatures() int { return m.nFeatures }
func (m *knn) Classes() []int   { return m.classes }

// PredictProba weights each of the k nearest prototypes by inverse
// Euclidean distance.
func (m *knn) PredictProba(x []float64) ([]float64, error) {
	if err := checkInput(x, m.nFeatures); err != nil {
		return nil, err
	}

	type neighbor struct {
		distance float64
		label    int
	}
	neighbors := make([]neighbor, len(m.prototypes))
	for i, p := range m.prototypes {
		sum := 0.0
		for j, v := range p {
			d := x[j] - v
			sum += d * d
		}
		neighbors[i] = neighbor{distance: math.Sqrt(sum), label: m.labels[i]}
	}
	sort.SliceStable(neighbors, func(a, b int) bool {
		return neighbors[a].distance < neighbors[b].distance
	})

	proba := make([]float64, len(m.classes))
	total := 0.0
	for _, n := range neighbors[:m.k] {
		weight := 1.0 / (n.distance + 1e-9)
		proba[slices.Index(m.classes, n.label)] += weight
		total += weight
	}
	for c := range proba {
		proba[c] /= total
	}
	return proba, nil
}
