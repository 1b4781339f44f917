package planner

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrPlanFormat means the input is not a decodable JSON object.
var ErrPlanFormat = errors.New("plan is not a JSON object")

// Options tunes sanitization.
type Options struct {
	// MaxCandidates caps Plan.Modeling.Candidates; <= 0 means 2.
	MaxCandidates int
}

func (o Options) maxCandidates() int {
	if o.MaxCandidates <= 0 {
		return defaultMaxCandidates
	}
	return o.MaxCandidates
}

// Sanitize turns raw plan-shaped JSON into a fully populated Plan for problem.
// Individual malformed fields fall back to their defaults; only input that is not a
// JSON object fails, with ErrPlanFormat.
func Sanitize(raw []byte, problem ProblemType, opts Options) (Plan, error) {
	if !gjson.ValidBytes(raw) {
		return Plan{}, ErrPlanFormat
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return Plan{}, ErrPlanFormat
	}

	pp := root.Get("preprocess")
	md := root.Get("modeling")
	ev := root.Get("evaluation")

	plan := Plan{
		Preprocess: Preprocess{
			ImputeNumeric:     firstString(pp.Get("impute_numeric"), defaultImputeNumeric),
			ImputeCategorical: firstString(pp.Get("impute_categorical"), defaultImputeCategorical),
			ScaleNumeric:      toBool(pp.Get("scale_numeric"), true),
			OneHotEncode:      toBool(pp.Get("one_hot_encode"), true),
		},
		Modeling: Modeling{
			Strategy:   toStrategy(md.Get("strategy")),
			Candidates: normalizeCandidates(stringList(md.Get("candidates")), problem, opts),
		},
		Evaluation: Evaluation{
			PrimaryMetric: PrimaryMetric(problem),
			CVFolds:       toInt(ev.Get("cv_folds"), defaultCVFolds),
		},
		TimeBudgetSec: clampInt(toInt(root.Get("time_budget_sec"), defaultTimeBudgetSec), minTimeBudgetSec, maxTimeBudgetSec),
	}
	return plan, nil
}

// SanitizePlan re-runs Sanitize over an already typed plan.
func SanitizePlan(p Plan, problem ProblemType, opts Options) Plan {
	raw, err := json.Marshal(p)
	if err != nil {
		return DefaultPlan(problem)
	}
	out, err := Sanitize(raw, problem, opts)
	if err != nil {
		return DefaultPlan(problem)
	}
	return out
}

// Clamp re-asserts the primary metric and candidate pool membership. It is applied
// after Sanitize as the final authority over those two fields.
func Clamp(p Plan, problem ProblemType, opts Options) Plan {
	out := p.Clone()
	out.Evaluation.PrimaryMetric = PrimaryMetric(problem)
	out.Modeling.Candidates = normalizeCandidates(out.Modeling.Candidates, problem, opts)
	return out
}

func normalizeCandidates(names []string, problem ProblemType, opts Options) []string {
	var kept []string
	for _, name := range names {
		if IsAllowedCandidate(problem, name) {
			kept = append(kept, name)
		}
	}
	if len(kept) == 0 {
		kept = DefaultCandidates(problem)
	}

	seen := make(map[string]struct{}, len(kept))
	out := make([]string, 0, len(kept))
	for _, name := range kept {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	if limit := opts.maxCandidates(); len(out) > limit {
		out = out[:limit]
	}
	return out
}

func firstString(r gjson.Result, def string) string {
	if r.IsArray() {
		items := r.Array()
		if len(items) == 0 {
			return def
		}
		r = items[0]
	}
	if r.Type != gjson.String {
		return def
	}
	s := strings.TrimSpace(r.String())
	if s == "" {
		return def
	}
	return s
}

func toBool(r gjson.Result, def bool) bool {
	switch r.Type {
	case gjson.True:
		return true
	case gjson.False:
		return false
	case gjson.String:
		switch strings.ToLower(strings.TrimSpace(r.String())) {
		case "true", "1", "yes", "y":
			return true
		case "false", "0", "no", "n":
			return false
		}
	}
	return def
}

func toStrategy(r gjson.Result) string {
	if r.Type == gjson.String && strings.EqualFold(strings.TrimSpace(r.String()), StrategyBaseline) {
		return StrategyBaseline
	}
	return StrategyAutomated
}

func toInt(r gjson.Result, def int) int {
	if r.IsArray() {
		items := r.Array()
		if len(items) == 0 {
			return def
		}
		r = items[0]
	}
	switch r.Type {
	case gjson.Number:
		return int(r.Int())
	case gjson.String:
		n, err := strconv.Atoi(strings.TrimSpace(r.String()))
		if err != nil {
			return def
		}
		return n
	}
	return def
}

func stringList(r gjson.Result) []string {
	if r.Type == gjson.String {
		return []string{r.String()}
	}
	if !r.IsArray() {
		return nil
	}
	var out []string
	for _, item := range r.Array() {
		if item.Type == gjson.String {
			out = append(out, item.String())
		}
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
