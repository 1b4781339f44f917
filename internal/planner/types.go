package planner

import (
	"fmt"
	"strings"
)

// ProblemType is fixed per run and decides the estimator pool and primary metric.
type ProblemType string

const (
	Classification ProblemType = "classification"
	Regression     ProblemType = "regression"
)

// ParseProblemType accepts the two problem types case-insensitively.
func ParseProblemType(s string) (ProblemType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(Classification):
		return Classification, nil
	case string(Regression):
		return Regression, nil
	default:
		return "", fmt.Errorf("unknown problem type %q", s)
	}
}

const (
	StrategyAutomated = "automated"
	StrategyBaseline  = "baseline"
)

// Plan is the per-run configuration for preprocessing, modeling and evaluation.
type Plan struct {
	Preprocess    Preprocess `json:"preprocess"`
	Modeling      Modeling   `json:"modeling"`
	Evaluation    Evaluation `json:"evaluation"`
	TimeBudgetSec int        `json:"time_budget_sec"`
}

type Preprocess struct {
	ImputeNumeric     string `json:"impute_numeric"`
	ImputeCategorical string `json:"impute_categorical"`
	ScaleNumeric      bool   `json:"scale_numeric"`
	OneHotEncode      bool   `json:"one_hot_encode"`
}

type Modeling struct {
	Strategy   string   `json:"strategy"`
	Candidates []string `json:"candidates"`
}

type Evaluation struct {
	PrimaryMetric string `json:"primary_metric"`
	CVFolds       int    `json:"cv_folds"`
}

// Clone returns a deep copy of p.
func (p Plan) Clone() Plan {
	out := p
	out.Modeling.Candidates = append([]string(nil), p.Modeling.Candidates...)
	return out
}
