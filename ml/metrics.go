package ml

import "errors"

type Evaluation struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	Samples   int     `json:"samples"`
}

func AccuracyScore(yTrue, yPred []int) (float64, error) {
	if len(yTrue) != len(yPred) {
		return 0, ErrSizeMismatch
	}
	if len(yTrue) == 0 {
		return 0, errors.New("no samples to score")
	}
	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(yTrue)), nil
}

// Evaluate scores the model on a holdout set; positive is the class counted for precision and recall.
func Evaluate(model Predictor, testX [][]float64, testY []int, positive int) (Evaluation, error) {
	if len(testX) != len(testY) {
		return Evaluation{}, ErrSizeMismatch
	}
	if len(testX) == 0 {
		return Evaluation{}, errors.New("no samples to evaluate")
	}

	var correct int
	var truePositive int
	var predictedPositive int
	var actualPositive int

	for i, feature := range testX {
		label, _, err := model.Predict(feature)
		if err != nil {
			return Evaluation{}, err
		}
		if label == testY[i] {
			correct++
		}
		if label == positive {
			predictedPositive++
		}
		if testY[i] == positive {
			actualPositive++
			if label == positive {
				truePositive++
			}
		}
	}

	eval := Evaluation{
		Accuracy: float64(correct) / float64(len(testX)),
		Samples:  len(testX),
	}
	if predictedPositive > 0 {
		eval.Precision = float64(truePositive) / float64(predictedPositive)
	}
	if actualPositive > 0 {
		eval.Recall = float64(truePositive) / float64(actualPositive)
	}
	return eval, nil
}
