package learn

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	logisticMaxIter = 500
	logisticTol     = 1e-5
)

// LogisticRegression is multinomial softmax regression with an L2 penalty of strength
// 1/C, fitted by full-batch gradient descent.
type LogisticRegression struct {
	C         float64     `json:"c"`
	Classes   int         `json:"classes"`
	Weights   [][]float64 `json:"weights,omitempty"` // features x classes
	Intercept []float64   `json:"intercept,omitempty"`
	Iters     int         `json:"iterations"`
}

func NewLogisticRegression(c float64) *LogisticRegression {
	return &LogisticRegression{C: c}
}

func (m *LogisticRegression) Name() string { return "LogisticRegression" }

func (m *LogisticRegression) Fit(ctx context.Context, x *mat.Dense, y []float64) error {
	n, d, err := checkFitInput(x, y)
	if err != nil {
		return err
	}
	k := numClasses(y)
	if k < 2 {
		k = 2
	}

	onehot := mat.NewDense(n, k, nil)
	for i, v := range y {
		onehot.Set(i, int(v), 1)
	}

	// Step size from a bound on the curvature of the mean softmax loss.
	var sq float64
	for i := 0; i < n; i++ {
		sq += floats.Dot(x.RawRowView(i), x.RawRowView(i))
	}
	lambda := 1 / (m.C * float64(n))
	lr := 1 / (0.5*(sq/float64(n)+1) + lambda)

	w := mat.NewDense(d, k, nil)
	b := make([]float64, k)
	probs := mat.NewDense(n, k, nil)
	grad := mat.NewDense(d, k, nil)
	gradB := make([]float64, k)

	iter := 0
	for ; iter < logisticMaxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		probs.Mul(x, w)
		for i := 0; i < n; i++ {
			softmaxRow(probs.RawRowView(i), b)
		}
		probs.Sub(probs, onehot)

		grad.Mul(x.T(), probs)
		grad.Scale(1/float64(n), grad)
		var reg mat.Dense
		reg.Scale(lambda, w)
		grad.Add(grad, &reg)

		for c := range gradB {
			gradB[c] = 0
		}
		for i := 0; i < n; i++ {
			floats.Add(gradB, probs.RawRowView(i))
		}
		floats.Scale(1/float64(n), gradB)

		maxGrad := math.Max(mat.Norm(grad, math.Inf(1)), floats.Norm(gradB, math.Inf(1)))
		if maxGrad < logisticTol {
			break
		}
		grad.Scale(lr, grad)
		w.Sub(w, grad)
		floats.AddScaled(b, -lr, gradB)
	}

	m.Classes = k
	m.Iters = iter
	m.Intercept = b
	m.Weights = make([][]float64, d)
	for j := 0; j < d; j++ {
		m.Weights[j] = append([]float64(nil), w.RawRowView(j)...)
	}
	return nil
}

func (m *LogisticRegression) Predict(x *mat.Dense) ([]float64, error) {
	probs, err := m.PredictProba(x)
	if err != nil {
		return nil, err
	}
	n, _ := probs.Dims()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = float64(floats.MaxIdx(probs.RawRowView(i)))
	}
	return out, nil
}

// PredictProba returns per-class probabilities, one row per sample.
func (m *LogisticRegression) PredictProba(x *mat.Dense) (*mat.Dense, error) {
	if m.Weights == nil {
		return nil, ErrNotFitted
	}
	n, err := checkPredictInput(x, len(m.Weights))
	if err != nil {
		return nil, err
	}
	w := mat.NewDense(len(m.Weights), m.Classes, nil)
	for j, row := range m.Weights {
		w.SetRow(j, row)
	}
	probs := mat.NewDense(n, m.Classes, nil)
	if len(m.Weights) > 0 {
		probs.Mul(x, w)
	}
	for i := 0; i < n; i++ {
		softmaxRow(probs.RawRowView(i), m.Intercept)
	}
	return probs, nil
}

// softmaxRow replaces logits (plus bias) with probabilities in place.
func softmaxRow(row, bias []float64) {
	floats.Add(row, bias)
	top := floats.Max(row)
	var sum float64
	for c, v := range row {
		row[c] = math.Exp(v - top)
		sum += row[c]
	}
	floats.Scale(1/sum, row)
}
