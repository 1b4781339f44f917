package learn

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"autotab/internal/planner"
)

// Seed is the fixed random state used by every stochastic estimator.
const Seed = 42

var ErrNotFitted = errors.New("estimator is not fitted")

// Estimator fits on a dense feature matrix. For classifiers y holds class indices
// (0..k-1) as float64 and Predict returns class indices in the same form.
type Estimator interface {
	Name() string
	Fit(ctx context.Context, x *mat.Dense, y []float64) error
	Predict(x *mat.Dense) ([]float64, error)
}

// New returns the pool estimator with the given name, with its default parameters.
func New(name string) (Estimator, error) {
	switch name {
	case planner.LogisticRegression:
		return NewLogisticRegression(1), nil
	case planner.RandomForestClassifier:
		return NewRandomForestClassifier(ForestParams{}), nil
	case planner.Ridge:
		return NewRidge(1), nil
	case planner.RandomForestRegressor:
		return NewRandomForestRegressor(ForestParams{}), nil
	default:
		return nil, fmt.Errorf("unknown estimator %q", name)
	}
}

func checkFitInput(x *mat.Dense, y []float64) (int, int, error) {
	if x == nil {
		return 0, 0, fmt.Errorf("fit: nil features")
	}
	n, d := x.Dims()
	if n != len(y) {
		return 0, 0, fmt.Errorf("fit: %d rows but %d targets", n, len(y))
	}
	if n == 0 || d == 0 {
		return 0, 0, fmt.Errorf("fit: empty %dx%d matrix", n, d)
	}
	return n, d, nil
}

func checkPredictInput(x *mat.Dense, want int) (int, error) {
	if x == nil {
		return 0, fmt.Errorf("predict: nil features")
	}
	n, d := x.Dims()
	if d != want {
		return 0, fmt.Errorf("predict: got %d features, fitted on %d", d, want)
	}
	return n, nil
}

func numClasses(y []float64) int {
	k := 0
	for _, v := range y {
		if int(v)+1 > k {
			k = int(v) + 1
		}
	}
	return k
}
