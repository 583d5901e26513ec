package ml

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestDecisionTreeTrainPredict(t *testing.T) {
	features := [][]float64{
		{0.1, 0.2},
		{0.2, 0.1},
		{0.9, 0.8},
		{0.8, 0.9},
	}
	labels := []int{0, 0, 2, 2}

	model := NewDecisionTree(2)
	if err := model.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	label, confidence, err := model.Predict([]float64{0.15, 0.15})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != 0 {
		t.Fatalf("expected label 0, got %d", label)
	}
	if confidence != 1 {
		t.Fatalf("expected confidence 1, got %f", confidence)
	}
	if model.Depth() != 1 {
		t.Fatalf("expected depth 1, got %d", model.Depth())
	}
}

func TestDecisionTreeSplitsOnMidpoint(t *testing.T) {
	// ages of the loan sample table; the two youngest were rejected
	features := [][]float64{{25}, {40}, {35}, {50}, {28}, {45}}
	labels := []int{0, 1, 1, 1, 0, 1}

	model := NewDecisionTree(0)
	if err := model.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	nodes := model.Nodes()
	if len(nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(nodes))
	}
	if nodes[0].Threshold != 31.5 {
		t.Fatalf("expected threshold 31.5, got %f", nodes[0].Threshold)
	}
	for _, tc := range []struct {
		age  float64
		want int
	}{{18, 0}, {31.5, 0}, {32, 1}, {60, 1}} {
		got, _, err := model.Predict([]float64{tc.age})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != tc.want {
			t.Fatalf("age %.1f: expected %d, got %d", tc.age, tc.want, got)
		}
	}
	if !strings.Contains(model.Describe([]string{"Age"}), "if Age <= 31.50") {
		t.Fatalf("unexpected rules:\n%s", model.Describe([]string{"Age"}))
	}
}

func TestDecisionTreeDeepSubtreeIndices(t *testing.T) {
	// needs two levels of splits on the left branch, exercising child offsets
	features := [][]float64{{1}, {2}, {3}, {4}, {5}, {6}}
	labels := []int{0, 1, 0, 1, 1, 1}

	model := NewDecisionTree(0)
	if err := model.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	predicted, err := model.PredictBatch(features)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	accuracy, err := AccuracyScore(labels, predicted)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if accuracy != 1 {
		t.Fatalf("expected a fully grown tree to fit its training data, got %f", accuracy)
	}
}

func TestDecisionTreeMaxDepthLimitsGrowth(t *testing.T) {
	features := [][]float64{{1}, {2}, {3}, {4}, {5}, {6}}
	labels := []int{0, 1, 0, 1, 0, 1}

	model := NewDecisionTree(1)
	if err := model.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model.Depth() > 1 {
		t.Fatalf("expected depth <= 1, got %d", model.Depth())
	}
}

func TestDecisionTreeErrors(t *testing.T) {
	model := NewDecisionTree(3)
	if _, _, err := model.Predict([]float64{1}); !errors.Is(err, ErrNotTrained) {
		t.Fatalf("expected ErrNotTrained, got %v", err)
	}
	if err := model.Train(nil, nil); !errors.Is(err, ErrEmptyDataset) {
		t.Fatalf("expected ErrEmptyDataset, got %v", err)
	}
	if err := model.Train([][]float64{{1}}, []int{0, 1}); !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("expected ErrSizeMismatch, got %v", err)
	}
	if err := model.Train([][]float64{{1}, {1, 2}}, []int{0, 1}); !errors.Is(err, ErrFeatureLength) {
		t.Fatalf("expected ErrFeatureLength, got %v", err)
	}

	if err := model.Train([][]float64{{1}, {2}}, []int{0, 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := model.Predict([]float64{1, 2}); !errors.Is(err, ErrFeatureLength) {
		t.Fatalf("expected ErrFeatureLength, got %v", err)
	}
}

func TestDecisionTreeSaveLoad(t *testing.T) {
	features := [][]float64{{1, 0}, {2, 0}, {3, 1}, {4, 1}}
	labels := []int{0, 0, 1, 1}

	model := NewDecisionTree(0)
	if err := model.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	path := filepath.Join(t.TempDir(), "dt.json")
	if err := model.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadModel(ModelTypeDecisionTree, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for i, row := range features {
		label, _, err := loaded.Predict(row)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if label != labels[i] {
			t.Fatalf("row %d: expected %d, got %d", i, labels[i], label)
		}
	}

	if _, err := LoadModel("random_forest", path); err == nil {
		t.Fatal("expected error for unsupported model type")
	}
	if err := NewDecisionTree(0).Save(path); !errors.Is(err, ErrNotTrained) {
		t.Fatalf("expected ErrNotTrained, got %v", err)
	}
}
