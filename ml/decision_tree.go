package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
)

var (
	ErrNotTrained    = errors.New("model not trained")
	ErrEmptyDataset  = errors.New("features or labels empty")
	ErrSizeMismatch  = errors.New("features and labels size mismatch")
	ErrFeatureLength = errors.New("feature vector length mismatch")
)

type DecisionTree struct {
	MaxDepth        int
	MinSamplesSplit int

	nodes        []TreeNode
	featureCount int
}

type TreeNode struct {
	FeatureIdx  int         `json:"feature_idx"`
	Threshold   float64     `json:"threshold"`
	LeftChild   int         `json:"left_child"`
	RightChild  int         `json:"right_child"`
	ClassLabel  int         `json:"class_label"`
	IsLeaf      bool        `json:"is_leaf"`
	Samples     int         `json:"samples"`
	Impurity    float64     `json:"impurity"`
	ClassCounts map[int]int `json:"class_counts"`
}

type treeFile struct {
	FeatureCount int        `json:"feature_count"`
	Nodes        []TreeNode `json:"nodes"`
}

// NewDecisionTree maxDepth <= 0 grows until leaves are pure.
func NewDecisionTree(maxDepth int) *DecisionTree {
	return &DecisionTree{MaxDepth: maxDepth, MinSamplesSplit: 2}
}

func (dt *DecisionTree) Train(features [][]float64, labels []int) error {
	if len(features) == 0 || len(labels) == 0 {
		return ErrEmptyDataset
	}
	if len(features) != len(labels) {
		return ErrSizeMismatch
	}
	width := len(features[0])
	for _, row := range features {
		if len(row) != width {
			return ErrFeatureLength
		}
	}
	if dt.MinSamplesSplit < 2 {
		dt.MinSamplesSplit = 2
	}

	dt.featureCount = width
	dt.nodes = dt.buildNode(features, labels, 0)
	return nil
}

func (dt *DecisionTree) Predict(features []float64) (int, float64, error) {
	if len(dt.nodes) == 0 {
		return 0, 0, ErrNotTrained
	}
	if dt.featureCount > 0 && len(features) != dt.featureCount {
		return 0, 0, fmt.Errorf("%w: expected %d, got %d", ErrFeatureLength, dt.featureCount, len(features))
	}
	idx := 0
	for {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return node.ClassLabel, node.confidence(), nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, 0, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.nodes) {
			return 0, 0, errors.New("invalid tree state")
		}
	}
}

func (dt *DecisionTree) PredictBatch(features [][]float64) ([]int, error) {
	labels := make([]int, len(features))
	for i, row := range features {
		label, _, err := dt.Predict(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		labels[i] = label
	}
	return labels, nil
}

func (dt *DecisionTree) Trained() bool {
	return len(dt.nodes) > 0
}

func (dt *DecisionTree) Nodes() []TreeNode {
	return append([]TreeNode(nil), dt.nodes...)
}

func (dt *DecisionTree) Depth() int {
	if len(dt.nodes) == 0 {
		return 0
	}
	return dt.depthAt(0)
}

func (dt *DecisionTree) depthAt(idx int) int {
	node := dt.nodes[idx]
	if node.IsLeaf {
		return 0
	}
	left := dt.depthAt(node.LeftChild)
	right := dt.depthAt(node.RightChild)
	if left > right {
		return left + 1
	}
	return right + 1
}

// Describe renders the tree as indented if/else rules using the given column names.
func (dt *DecisionTree) Describe(featureNames []string) string {
	if len(dt.nodes) == 0 {
		return ""
	}
	var b strings.Builder
	dt.describeAt(&b, 0, 0, featureNames)
	return b.String()
}

func (dt *DecisionTree) describeAt(b *strings.Builder, idx, depth int, names []string) {
	node := dt.nodes[idx]
	indent := strings.Repeat("  ", depth)
	if node.IsLeaf {
		fmt.Fprintf(b, "%sclass %d (samples=%d, confidence=%.2f)\n", indent, node.ClassLabel, node.Samples, node.confidence())
		return
	}
	name := fmt.Sprintf("x[%d]", node.FeatureIdx)
	if node.FeatureIdx < len(names) {
		name = names[node.FeatureIdx]
	}
	fmt.Fprintf(b, "%sif %s <= %.2f:\n", indent, name, node.Threshold)
	dt.describeAt(b, node.LeftChild, depth+1, names)
	fmt.Fprintf(b, "%selse:\n", indent)
	dt.describeAt(b, node.RightChild, depth+1, names)
}

func (dt *DecisionTree) Save(path string) error {
	if len(dt.nodes) == 0 {
		return ErrNotTrained
	}
	payload, err := json.MarshalIndent(treeFile{FeatureCount: dt.featureCount, Nodes: dt.nodes}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

func (dt *DecisionTree) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var file treeFile
	if err := json.Unmarshal(payload, &file); err != nil {
		return err
	}
	if len(file.Nodes) == 0 {
		return fmt.Errorf("load %s: %w", path, ErrNotTrained)
	}
	dt.nodes = file.Nodes
	dt.featureCount = file.FeatureCount
	return nil
}

func (dt *DecisionTree) buildNode(features [][]float64, labels []int, depth int) []TreeNode {
	leaf := newLeaf(labels)
	if isPure(labels) || len(labels) < dt.MinSamplesSplit || (dt.MaxDepth > 0 && depth >= dt.MaxDepth) {
		return []TreeNode{leaf}
	}

	bestFeature, threshold, ok := findBestSplit(features, labels)
	if !ok {
		return []TreeNode{leaf}
	}

	leftFeatures, leftLabels, rightFeatures, rightLabels := splitData(features, labels, bestFeature, threshold)
	if len(leftLabels) == 0 || len(rightLabels) == 0 {
		return []TreeNode{leaf}
	}

	leftNodes := dt.buildNode(leftFeatures, leftLabels, depth+1)
	rightNodes := dt.buildNode(rightFeatures, rightLabels, depth+1)

	root := leaf
	root.IsLeaf = false
	root.FeatureIdx = bestFeature
	root.Threshold = threshold
	root.LeftChild = 1
	root.RightChild = 1 + len(leftNodes)

	nodes := make([]TreeNode, 0, 1+len(leftNodes)+len(rightNodes))
	nodes = append(nodes, root)
	nodes = append(nodes, offsetNodes(leftNodes, 1)...)
	nodes = append(nodes, offsetNodes(rightNodes, 1+len(leftNodes))...)
	return nodes
}

// offsetNodes shifts child indices of a subtree that is being placed at offset.
func offsetNodes(nodes []TreeNode, offset int) []TreeNode {
	for i := range nodes {
		if nodes[i].IsLeaf {
			continue
		}
		nodes[i].LeftChild += offset
		nodes[i].RightChild += offset
	}
	return nodes
}

func newLeaf(labels []int) TreeNode {
	counts := make(map[int]int)
	for _, label := range labels {
		counts[label]++
	}
	return TreeNode{
		FeatureIdx:  -1,
		LeftChild:   -1,
		RightChild:  -1,
		ClassLabel:  majorityLabel(labels),
		IsLeaf:      true,
		Samples:     len(labels),
		Impurity:    gini(labels),
		ClassCounts: counts,
	}
}

func (n TreeNode) confidence() float64 {
	if n.Samples == 0 {
		return 0
	}
	return float64(n.ClassCounts[n.ClassLabel]) / float64(n.Samples)
}

// findBestSplit tries the midpoint between every pair of consecutive distinct values.
// Ties keep the earliest feature and the lowest threshold.
func findBestSplit(features [][]float64, labels []int) (int, float64, bool) {
	featureCount := len(features[0])
	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64

	for featureIdx := 0; featureIdx < featureCount; featureIdx++ {
		values := make([]float64, len(features))
		for i := range features {
			values[i] = features[i][featureIdx]
		}
		for _, threshold := range candidateThresholds(values) {
			leftLabels, rightLabels := splitLabels(features, labels, featureIdx, threshold)
			if len(leftLabels) == 0 || len(rightLabels) == 0 {
				continue
			}
			impurity := weightedGini(leftLabels, rightLabels)
			if impurity < bestImpurity {
				bestImpurity = impurity
				bestFeature = featureIdx
				bestThreshold = threshold
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func candidateThresholds(values []float64) []float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	thresholds := make([]float64, 0, len(sorted))
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			continue
		}
		thresholds = append(thresholds, (sorted[i-1]+sorted[i])/2)
	}
	return thresholds
}

func splitData(features [][]float64, labels []int, featureIdx int, threshold float64) ([][]float64, []int, [][]float64, []int) {
	leftFeatures := make([][]float64, 0)
	leftLabels := make([]int, 0)
	rightFeatures := make([][]float64, 0)
	rightLabels := make([]int, 0)
	for i, feature := range features {
		if feature[featureIdx] <= threshold {
			leftFeatures = append(leftFeatures, feature)
			leftLabels = append(leftLabels, labels[i])
		} else {
			rightFeatures = append(rightFeatures, feature)
			rightLabels = append(rightLabels, labels[i])
		}
	}
	return leftFeatures, leftLabels, rightFeatures, rightLabels
}

func splitLabels(features [][]float64, labels []int, featureIdx int, threshold float64) ([]int, []int) {
	leftLabels := make([]int, 0)
	rightLabels := make([]int, 0)
	for i, feature := range features {
		if feature[featureIdx] <= threshold {
			leftLabels = append(leftLabels, labels[i])
		} else {
			rightLabels = append(rightLabels, labels[i])
		}
	}
	return leftLabels, rightLabels
}

func weightedGini(leftLabels, rightLabels []int) float64 {
	leftWeight := float64(len(leftLabels))
	rightWeight := float64(len(rightLabels))
	total := leftWeight + rightWeight
	return (leftWeight/total)*gini(leftLabels) + (rightWeight/total)*gini(rightLabels)
}

func gini(labels []int) float64 {
	if len(labels) == 0 {
		return 0
	}
	counts := make(map[int]int)
	for _, label := range labels {
		counts[label]++
	}
	impurity := 1.0
	for _, count := range counts {
		prob := float64(count) / float64(len(labels))
		impurity -= prob * prob
	}
	return impurity
}

// majorityLabel breaks ties toward the smaller label.
func majorityLabel(labels []int) int {
	counts := make(map[int]int)
	for _, label := range labels {
		counts[label]++
	}
	bestLabel := 0
	bestCount := -1
	for label, count := range counts {
		if count > bestCount || (count == bestCount && label < bestLabel) {
			bestCount = count
			bestLabel = label
		}
	}
	return bestLabel
}

func isPure(labels []int) bool {
	if len(labels) == 0 {
		return true
	}
	first := labels[0]
	for _, label := range labels[1:] {
		if label != first {
			return false
		}
	}
	return true
}
