package ml

import (
	"fmt"
)

const ModelTypeDecisionTree = "decision_tree"

func NewModel(modelType string, maxDepth int) (MLModel, error) {
	switch modelType {
	case ModelTypeDecisionTree, "":
		return NewDecisionTree(maxDepth), nil
	default:
		return nil, fmt.Errorf("unsupported model type %q", modelType)
	}
}

func LoadModel(modelType, path string) (MLModel, error) {
	model, err := NewModel(modelType, 0)
	if err != nil {
		return nil, err
	}
	if err := model.Load(path); err != nil {
		return nil, err
	}
	return model, nil
}
