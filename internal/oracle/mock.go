package oracle

import (
	"context"
	"os"
	"strings"
	"sync"

	"autotab/internal/planner"
)

// Environment overrides for the mock provider's canned replies.
const (
	MockPlanEnv      = "AUTOTAB_MOCK_PLAN"
	MockRepairEnv    = "AUTOTAB_MOCK_REPAIR"
	MockNarrativeEnv = "AUTOTAB_MOCK_NARRATIVE"
)

const (
	mockPlanReply = "```json\n" + `{
  "preprocess": {"impute_numeric": "median", "impute_categorical": "most_frequent", "scale_numeric": true, "one_hot_encode": true},
  "modeling": {"strategy": "baseline", "candidates": []},
  "evaluation": {"primary_metric": "f1_macro", "cv_folds": 5},
  "time_budget_sec": 120
}` + "\n```"
	mockPreprocessRepair = `{"preprocess": {"impute_numeric": "median", "impute_categorical": "most_frequent", "one_hot_encode": true}}`
	mockModelingRepair   = `{"modeling": {"strategy": "baseline", "candidates": []}}`
	mockNarrative        = "Mock narrative: the run completed offline without a language model."
)

// Mock is a deterministic, offline provider used by tests and smoke runs. It answers
// planning, repair and narrative prompts with canned replies. Replies, when set, are
// returned in order instead.
type Mock struct {
	mu      sync.Mutex
	Replies []string
	Err     error
	Prompts []string
}

func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) Name() string { return ProviderMock }

func (m *Mock) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Prompts = append(m.Prompts, prompt)
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Replies) > 0 {
		reply := m.Replies[0]
		m.Replies = m.Replies[1:]
		return reply, nil
	}

	switch {
	case strings.HasPrefix(prompt, planPreamble):
		return envOr(MockPlanEnv, mockPlanReply), nil
	case strings.HasPrefix(prompt, repairPreamble):
		if v := os.Getenv(MockRepairEnv); v != "" {
			return v, nil
		}
		if strings.Contains(prompt, stageLine(planner.StageModeling)) {
			return mockModelingRepair, nil
		}
		return mockPreprocessRepair, nil
	default:
		return envOr(MockNarrativeEnv, mockNarrative), nil
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
