package learn

import (
	"fmt"
	"math"
	"sort"

	"autotab/internal/planner"
)

func checkLengths(yTrue, yPred []float64) error {
	if len(yTrue) != len(yPred) {
		return fmt.Errorf("metric: %d labels but %d predictions", len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return fmt.Errorf("metric: no samples")
	}
	return nil
}

// Accuracy is the fraction of exact matches.
func Accuracy(yTrue, yPred []float64) (float64, error) {
	if err := checkLengths(yTrue, yPred); err != nil {
		return 0, err
	}
	hits := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(yTrue)), nil
}

// F1Macro averages per-label F1 over the union of true and predicted labels. A label
// with no true and no predicted occurrences cannot appear; a label with zero precision
// and recall scores 0.
func F1Macro(yTrue, yPred []float64) (float64, error) {
	if err := checkLengths(yTrue, yPred); err != nil {
		return 0, err
	}
	type counts struct{ tp, fp, fn int }
	per := map[float64]*counts{}
	get := func(label float64) *counts {
		c, ok := per[label]
		if !ok {
			c = &counts{}
			per[label] = c
		}
		return c
	}
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			get(yTrue[i]).tp++
			continue
		}
		get(yTrue[i]).fn++
		get(yPred[i]).fp++
	}
	labels := make([]float64, 0, len(per))
	for label := range per {
		labels = append(labels, label)
	}
	sort.Float64s(labels)
	var sum float64
	for _, label := range labels {
		c := per[label]
		denom := 2*c.tp + c.fp + c.fn
		if denom > 0 {
			sum += 2 * float64(c.tp) / float64(denom)
		}
	}
	return sum / float64(len(per)), nil
}

// RMSE is the root mean squared error.
func RMSE(yTrue, yPred []float64) (float64, error) {
	if err := checkLengths(yTrue, yPred); err != nil {
		return 0, err
	}
	var sum float64
	for i := range yTrue {
		diff := yTrue[i] - yPred[i]
		sum += diff * diff
	}
	return math.Sqrt(sum / float64(len(yTrue))), nil
}

// Evaluate computes the metric set for problem: accuracy and f1_macro for
// classification, rmse for regression.
func Evaluate(problem planner.ProblemType, yTrue, yPred []float64) (map[string]float64, error) {
	if problem == planner.Regression {
		rmse, err := RMSE(yTrue, yPred)
		if err != nil {
			return nil, err
		}
		return map[string]float64{planner.MetricRMSE: rmse}, nil
	}
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	f1, err := F1Macro(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	return map[string]float64{planner.MetricAccuracy: acc, planner.MetricF1Macro: f1}, nil
}

// Better reports whether cand strictly beats best. Classification ranks by f1_macro,
// then accuracy; regression by lower rmse. Equal scores are not better, so the
// first-seen candidate wins ties.
func Better(problem planner.ProblemType, cand, best map[string]float64) bool {
	if best == nil {
		return true
	}
	if problem == planner.Regression {
		return cand[planner.MetricRMSE] < best[planner.MetricRMSE]
	}
	cf, bf := cand[planner.MetricF1Macro], best[planner.MetricF1Macro]
	if cf != bf {
		return cf > bf
	}
	return cand[planner.MetricAccuracy] > best[planner.MetricAccuracy]
}
