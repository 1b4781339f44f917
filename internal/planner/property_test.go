package planner

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var candidateNames = []string{
	LogisticRegression, RandomForestClassifier, Ridge, RandomForestRegressor,
	"XGBoost", "SVC", "",
}

func genRawPlan() gopter.Gen {
	return gopter.CombineGens(
		gen.OneConstOf("median", "mean", "", "most_frequent"),
		gen.OneConstOf(true, false, "yes", "no", "maybe", 1),
		gen.OneConstOf("automated", "baseline", "autosklearn", ""),
		gen.SliceOfN(4, gen.OneConstOf(candidateNames[0], candidateNames[1], candidateNames[2], candidateNames[3], candidateNames[4], candidateNames[5], candidateNames[6])),
		gen.IntRange(-10, 20),
		gen.IntRange(-100, 2000),
		gen.OneConstOf("accuracy", "f1_macro", "rmse", "r2"),
	).Map(func(v []any) []byte {
		raw := map[string]any{
			"preprocess": map[string]any{
				"impute_numeric": v[0],
				"scale_numeric":  v[1],
				"one_hot_encode": v[1],
			},
			"modeling": map[string]any{
				"strategy":   v[2],
				"candidates": v[3],
			},
			"evaluation": map[string]any{
				"cv_folds":       v[4],
				"primary_metric": v[6],
			},
			"time_budget_sec": v[5],
		}
		data, _ := json.Marshal(raw)
		return data
	})
}

func TestProperty_SanitizeInvariants(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	for _, problem := range []ProblemType{Classification, Regression} {
		problem := problem

		properties.Property(string(problem)+": sanitize is idempotent", prop.ForAll(
			func(raw []byte) bool {
				once, err := Sanitize(raw, problem, Options{})
				if err != nil {
					return false
				}
				return reflect.DeepEqual(once, SanitizePlan(once, problem, Options{}))
			},
			genRawPlan(),
		))

		properties.Property(string(problem)+": candidates stay in pool, unique, bounded", prop.ForAll(
			func(raw []byte, limit int) bool {
				plan, err := Sanitize(raw, problem, Options{MaxCandidates: limit})
				if err != nil {
					return false
				}
				cands := plan.Modeling.Candidates
				if len(cands) == 0 || len(cands) > limit {
					return false
				}
				seen := map[string]bool{}
				for _, c := range cands {
					if seen[c] || !IsAllowedCandidate(problem, c) {
						return false
					}
					seen[c] = true
				}
				return true
			},
			genRawPlan(),
			gen.IntRange(1, 3),
		))

		properties.Property(string(problem)+": metric and budget are clamped", prop.ForAll(
			func(raw []byte) bool {
				plan, err := Sanitize(raw, problem, Options{})
				if err != nil {
					return false
				}
				return plan.Evaluation.PrimaryMetric == PrimaryMetric(problem) &&
					plan.TimeBudgetSec >= 60 && plan.TimeBudgetSec <= 600
			},
			genRawPlan(),
		))
	}

	properties.TestingRun(t)
}
