package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"autotab/internal/dataset"
	"autotab/internal/planner"
)

const planPreamble = "You are an ML planner."

// planSchema lists example values; the validator enforces the real constraints.
const planSchema = `{
  "preprocess": {
    "impute_numeric": ["median", "mean"],
    "impute_categorical": ["most_frequent"],
    "scale_numeric": [true, false],
    "one_hot_encode": [true, false]
  },
  "modeling": {
    "strategy": ["automated", "baseline"],
    "candidates": ["LogisticRegression", "RandomForestClassifier", "Ridge", "RandomForestRegressor"]
  },
  "evaluation": {
    "primary_metric": ["f1_macro", "accuracy", "rmse"],
    "cv_folds": [3, 5]
  },
  "time_budget_sec": "integer (60-600)"
}`

type planContext struct {
	Problem      planner.ProblemType `json:"problem"`
	NumRows      int                 `json:"n_rows"`
	NumCols      int                 `json:"n_cols"`
	MissingTop   map[string]float64  `json:"missing_top"`
	Dtypes       map[string]string   `json:"dtypes"`
	TargetCounts map[string]int      `json:"target_counts"`
}

// Planner asks a provider for an initial Plan.
type Planner struct {
	Provider Provider
}

func NewPlanner(p Provider) *Planner {
	return &Planner{Provider: p}
}

// Prompt renders the planning prompt for overview.
func (p *Planner) Prompt(overview dataset.Overview, problem planner.ProblemType) (string, error) {
	missing := map[string]float64{}
	for _, m := range overview.TopMissing(5) {
		missing[m.Column] = m.Fraction
	}
	ctxJSON, err := json.MarshalIndent(planContext{
		Problem:      problem,
		NumRows:      overview.NumRows,
		NumCols:      overview.NumCols,
		MissingTop:   missing,
		Dtypes:       overview.Dtypes,
		TargetCounts: overview.TargetCounts,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode plan context: %w", err)
	}

	var b strings.Builder
	b.WriteString(planPreamble)
	b.WriteString(" Output ONLY valid JSON matching the schema. Choose practical defaults when uncertain. Respect task type.\n\n")
	b.WriteString("SCHEMA (allowed values are examples, not exhaustive):\n```json\n")
	b.WriteString(planSchema)
	b.WriteString("\n```\n\nCONTEXT:\n```json\n")
	b.Write(ctxJSON)
	b.WriteString("\n```\n\nRules:\n")
	b.WriteString("- If classification: primary_metric=f1_macro.\n")
	b.WriteString("- If regression: primary_metric=rmse.\n")
	b.WriteString("- time_budget_sec: 120-300 for demos.\n")
	b.WriteString("- If many categoricals: one_hot_encode=true. If many numerics: scale_numeric=true.\n")
	b.WriteString("- Choose at most 2 candidates.\n")
	b.WriteString("Return ONLY JSON. No commentary.")
	return b.String(), nil
}

// Plan sends one planning request and returns the first JSON object in the reply. The
// result is unvalidated; run it through planner.Sanitize.
func (p *Planner) Plan(ctx context.Context, overview dataset.Overview, problem planner.ProblemType) ([]byte, error) {
	prompt, err := p.Prompt(overview, problem)
	if err != nil {
		return nil, err
	}
	reply, err := p.Provider.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("plan via %s: %w", p.Provider.Name(), err)
	}
	raw, err := ExtractJSON(reply)
	if err != nil {
		return nil, fmt.Errorf("plan via %s: %w", p.Provider.Name(), err)
	}
	return raw, nil
}
