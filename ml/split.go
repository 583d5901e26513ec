package ml

import (
	"errors"
	"math"
	"math/rand"
)

// TrainTestSplit shuffles with a fixed seed and holds out ceil(testRatio*n) rows.
// At least one row always stays on each side.
func TrainTestSplit(features [][]float64, labels []int, testRatio float64, seed int64) (trainX [][]float64, trainY []int, testX [][]float64, testY []int, err error) {
	if len(features) != len(labels) {
		return nil, nil, nil, nil, ErrSizeMismatch
	}
	if len(features) < 2 {
		return nil, nil, nil, nil, errors.New("need at least two rows to split")
	}
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.2
	}

	n := len(features)
	nTest := int(math.Ceil(testRatio * float64(n)))
	if nTest < 1 {
		nTest = 1
	}
	if nTest > n-1 {
		nTest = n - 1
	}

	rnd := rand.New(rand.NewSource(seed))
	indices := rnd.Perm(n)
	for i, idx := range indices {
		if i < nTest {
			testX = append(testX, features[idx])
			testY = append(testY, labels[idx])
		} else {
			trainX = append(trainX, features[idx])
			trainY = append(trainY, labels[idx])
		}
	}
	return trainX, trainY, testX, testY, nil
}
