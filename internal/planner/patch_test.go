package planner

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawFields(t *testing.T, s string) map[string]json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

func TestApplyPreprocessPatchOverridesOnlyGivenFields(t *testing.T) {
	cur := DefaultPlan(Classification).Preprocess
	patch := Patch{Stage: StagePreprocess, Fields: rawFields(t, `{"impute_numeric":"mean","one_hot_encode":false}`)}

	out, err := ApplyPreprocessPatch(cur, patch)
	require.NoError(t, err)

	assert.Equal(t, Preprocess{
		ImputeNumeric:     "mean",
		ImputeCategorical: "most_frequent",
		ScaleNumeric:      true,
		OneHotEncode:      false,
	}, out)
	assert.Equal(t, "median", cur.ImputeNumeric, "input must be untouched")
	assert.True(t, cur.OneHotEncode)
}

func TestApplyModelingPatchIsShallowAndUnvalidated(t *testing.T) {
	cur := Modeling{Strategy: StrategyAutomated, Candidates: []string{Ridge, RandomForestRegressor}}
	patch := Patch{Stage: StageModeling, Fields: rawFields(t, `{"candidates":["LinearSVR"],"strategy":"baseline"}`)}

	out, err := ApplyModelingPatch(cur, patch)
	require.NoError(t, err)

	assert.Equal(t, StrategyBaseline, out.Strategy)
	assert.Equal(t, []string{"LinearSVR"}, out.Candidates, "patches are trusted, not re-validated")
	assert.Equal(t, []string{Ridge, RandomForestRegressor}, cur.Candidates)
}

func TestApplyPatchIgnoresUnknownFields(t *testing.T) {
	cur := DefaultPlan(Regression).Preprocess
	out, err := ApplyPreprocessPatch(cur, Patch{Stage: StagePreprocess, Fields: rawFields(t, `{"impute.strategy":"knn"}`)})
	require.NoError(t, err)
	assert.Equal(t, cur, out)
}

func TestApplyPatchTypeMismatchKeepsCurrent(t *testing.T) {
	cur := DefaultPlan(Regression).Preprocess
	out, err := ApplyPreprocessPatch(cur, Patch{Stage: StagePreprocess, Fields: rawFields(t, `{"scale_numeric":"yes"}`)})
	require.Error(t, err)
	assert.Equal(t, cur, out)
}

func TestApplyPatchRejectsWrongStage(t *testing.T) {
	cur := DefaultPlan(Regression).Modeling
	_, err := ApplyModelingPatch(cur, Patch{Stage: StagePreprocess})
	require.Error(t, err)
}

func TestEmptyPatchIsNoop(t *testing.T) {
	cur := DefaultPlan(Classification).Modeling
	out, err := ApplyModelingPatch(cur, Patch{Stage: StageModeling})
	require.NoError(t, err)
	assert.Equal(t, cur, out)
}

func TestPatchMarshalJSON(t *testing.T) {
	p := Patch{Stage: StageModeling, Fields: rawFields(t, `{"strategy":"baseline"}`)}
	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"modeling":{"strategy":"baseline"}}`, string(data))

	data, err = json.Marshal(Patch{Stage: StagePreprocess})
	require.NoError(t, err)
	assert.JSONEq(t, `{"preprocess":{}}`, string(data))
}
