package learn

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Ridge is L2-regularized least squares with an unpenalized intercept.
type Ridge struct {
	Alpha     float64   `json:"alpha"`
	Coef      []float64 `json:"coef,omitempty"`
	Intercept float64   `json:"intercept"`
}

func NewRidge(alpha float64) *Ridge {
	return &Ridge{Alpha: alpha}
}

func (r *Ridge) Name() string { return "Ridge" }

// Fit solves (Xcᵀ Xc + αI) w = Xcᵀ yc on centred data with a Cholesky factorization.
func (r *Ridge) Fit(ctx context.Context, x *mat.Dense, y []float64) error {
	n, d, err := checkFitInput(x, y)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	means := make([]float64, d)
	col := make([]float64, n)
	xc := mat.NewDense(n, d, nil)
	for j := 0; j < d; j++ {
		mat.Col(col, j, x)
		means[j] = stat.Mean(col, nil)
		for i := 0; i < n; i++ {
			xc.Set(i, j, col[i]-means[j])
		}
	}
	yMean := stat.Mean(y, nil)
	yc := mat.NewVecDense(n, nil)
	for i, v := range y {
		yc.SetVec(i, v-yMean)
	}

	var gram mat.SymDense
	gram.SymOuterK(1, xc.T())
	for j := 0; j < d; j++ {
		gram.SetSym(j, j, gram.At(j, j)+r.Alpha)
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(&gram); !ok {
		return fmt.Errorf("ridge: normal equations are not positive definite")
	}
	var xty, w mat.VecDense
	xty.MulVec(xc.T(), yc)
	if err := chol.SolveVecTo(&w, &xty); err != nil {
		return fmt.Errorf("ridge: solve: %w", err)
	}

	r.Coef = make([]float64, d)
	r.Intercept = yMean
	for j := 0; j < d; j++ {
		r.Coef[j] = w.AtVec(j)
		r.Intercept -= means[j] * r.Coef[j]
	}
	return nil
}

func (r *Ridge) Predict(x *mat.Dense) ([]float64, error) {
	if r.Coef == nil {
		return nil, ErrNotFitted
	}
	n, err := checkPredictInput(x, len(r.Coef))
	if err != nil {
		return nil, err
	}
	var out mat.VecDense
	out.MulVec(x, mat.NewVecDense(len(r.Coef), r.Coef))
	pred := make([]float64, n)
	for i := range pred {
		pred[i] = out.AtVec(i) + r.Intercept
	}
	return pred, nil
}
