package planner

// Estimator names accepted in Plan.Modeling.Candidates.
const (
	LogisticRegression     = "LogisticRegression"
	RandomForestClassifier = "RandomForestClassifier"
	Ridge                  = "Ridge"
	RandomForestRegressor  = "RandomForestRegressor"
)

const (
	MetricF1Macro  = "f1_macro"
	MetricAccuracy = "accuracy"
	MetricRMSE     = "rmse"
)

const (
	defaultImputeNumeric     = "median"
	defaultImputeCategorical = "most_frequent"
	defaultCVFolds           = 5
	defaultTimeBudgetSec     = 180
	minTimeBudgetSec         = 60
	maxTimeBudgetSec         = 600
	defaultMaxCandidates     = 2
)

var candidatePools = map[ProblemType][]string{
	Classification: {LogisticRegression, RandomForestClassifier},
	Regression:     {Ridge, RandomForestRegressor},
}

var primaryMetrics = map[ProblemType]string{
	Classification: MetricF1Macro,
	Regression:     MetricRMSE,
}

// DefaultCandidates returns the allowed pair for problem, in preference order.
func DefaultCandidates(problem ProblemType) []string {
	return append([]string(nil), candidatePools[problem]...)
}

// IsAllowedCandidate reports whether name belongs to problem's pool.
func IsAllowedCandidate(problem ProblemType, name string) bool {
	for _, allowed := range candidatePools[problem] {
		if allowed == name {
			return true
		}
	}
	return false
}

// PrimaryMetric is the only metric a plan for problem may carry.
func PrimaryMetric(problem ProblemType) string {
	return primaryMetrics[problem]
}

// DefaultPlan is the safe plan substituted when planning fails.
func DefaultPlan(problem ProblemType) Plan {
	return Plan{
		Preprocess: Preprocess{
			ImputeNumeric:     defaultImputeNumeric,
			ImputeCategorical: defaultImputeCategorical,
			ScaleNumeric:      true,
			OneHotEncode:      true,
		},
		Modeling: Modeling{
			Strategy:   StrategyBaseline,
			Candidates: DefaultCandidates(problem),
		},
		Evaluation: Evaluation{
			PrimaryMetric: PrimaryMetric(problem),
			CVFolds:       defaultCVFolds,
		},
		TimeBudgetSec: defaultTimeBudgetSec,
	}
}
