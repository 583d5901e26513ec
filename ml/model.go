package ml

type Predictor interface {
	Predict(features []float64) (int, float64, error)
}

type MLModel interface {
	Predictor
	Train(features [][]float64, labels []int) error
	Save(path string) error
	Load(path string) error
}

var _ MLModel = (*DecisionTree)(nil)
