package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"autotab/internal/dataset"
	"autotab/internal/planner"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{"bare", `{"a":1}`, `{"a":1}`},
		{"fenced", "Here you go:\n```json\n{\"a\": {\"b\": 2}}\n```\nDone.", `{"a": {"b": 2}}`},
		{"braces in strings", `note {"msg": "use } and { freely", "n": 1} trailing {}`, `{"msg": "use } and { freely", "n": 1}`},
		{"escaped quote", `{"q": "say \"}\" now"}`, `{"q": "say \"}\" now"}`},
		{"stray brace first", `oops { not json {"ok": true}`, `{"ok": true}`},
		{"first of two", `{"first": 1} {"second": 2}`, `{"first": 1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractJSON(tc.text)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(got))
		})
	}

	for _, text := range []string{
		"", "no json here", "{unclosed", "{not: valid}",
		`Plan: {modeling: baseline} and an example {"preprocess":{"impute_numeric":"mean"}}`,
	} {
		_, err := ExtractJSON(text)
		assert.True(t, errors.Is(err, ErrPlanFormat), text)
	}
}

func TestNewProviderFactory(t *testing.T) {
	_, err := New(ProviderGemini, Options{})
	assert.True(t, errors.Is(err, ErrMissingKey))
	_, err = New(ProviderOpenAI, Options{})
	assert.True(t, errors.Is(err, ErrMissingKey))
	_, err = New("claude-desktop", Options{})
	require.Error(t, err)

	p, err := New("MOCK", Options{})
	require.NoError(t, err)
	assert.Equal(t, ProviderMock, p.Name())
	p, err = New(ProviderCodex, Options{})
	require.NoError(t, err)
	assert.Equal(t, ProviderCodex, p.Name())
}

func TestGeminiComplete(t *testing.T) {
	var gotPath, gotKey string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"hello "},{"text":"world"}]}}]}`)
	}))
	defer srv.Close()

	g, err := NewGemini(Options{APIKey: "k&1", BaseURL: srv.URL + "/", Model: "gemini-test"})
	require.NoError(t, err)
	out, err := g.Complete(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
	assert.Equal(t, "/v1beta/models/gemini-test:generateContent", gotPath)
	assert.Equal(t, "k&1", gotKey)
	assert.Equal(t, "ping", gjson.GetBytes(gotBody, "contents.0.parts.0.text").String())
	assert.Equal(t, 0.2, gjson.GetBytes(gotBody, "generationConfig.temperature").Float())
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[int]error{
		http.StatusUnauthorized:       ErrUnauthorized,
		http.StatusForbidden:          ErrUnauthorized,
		http.StatusTooManyRequests:    ErrRateLimited,
		http.StatusServiceUnavailable: ErrUnavailable,
	}
	for status, want := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		g, err := NewGemini(Options{APIKey: "k", BaseURL: srv.URL})
		require.NoError(t, err)
		_, err = g.Complete(context.Background(), "x")
		assert.True(t, errors.Is(err, want), "gemini %d: %v", status, err)

		o, err := NewOpenAI(Options{APIKey: "k", BaseURL: srv.URL})
		require.NoError(t, err)
		_, err = o.Complete(context.Background(), "x")
		assert.True(t, errors.Is(err, want), "openai %d: %v", status, err)
		srv.Close()
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, "bad model")
	}))
	defer srv.Close()
	g, err := NewGemini(Options{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = g.Complete(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad model")
}

func TestOpenAIComplete(t *testing.T) {
	var auth string
	var req chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&req)
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"{\"ok\":true}"}}]}`)
	}))
	defer srv.Close()

	o, err := NewOpenAI(Options{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)
	out, err := o.Complete(context.Background(), "plan please")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, defaultOpenAIModel, req.Model)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "plan please", req.Messages[0].Content)
}

func TestOpenAIEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[]}`)
	}))
	defer srv.Close()
	o, err := NewOpenAI(Options{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = o.Complete(context.Background(), "x")
	require.Error(t, err)
}

func irisOverview(t *testing.T) dataset.Overview {
	t.Helper()
	frame, err := dataset.ReadCSV(strings.NewReader("a,b,c,d,e,f,label\n1,,x,1,1,1,y\n,2,,1,1,,n\n"))
	require.NoError(t, err)
	return dataset.Summarize(frame, "label")
}

func TestPlannerPromptAndPlan(t *testing.T) {
	mock := NewMock()
	p := NewPlanner(mock)
	raw, err := p.Plan(context.Background(), irisOverview(t), planner.Classification)
	require.NoError(t, err)
	assert.Equal(t, "baseline", gjson.GetBytes(raw, "modeling.strategy").String())

	require.Len(t, mock.Prompts, 1)
	prompt := mock.Prompts[0]
	assert.True(t, strings.HasPrefix(prompt, planPreamble))
	assert.Contains(t, prompt, `"problem": "classification"`)
	assert.Contains(t, prompt, `"n_rows": 2`)

	ctxJSON, err := ExtractJSON(prompt[strings.Index(prompt, "CONTEXT:"):])
	require.NoError(t, err)
	assert.Len(t, gjson.GetBytes(ctxJSON, "missing_top").Map(), 5, "top five missing columns only")
}

func TestPlannerErrors(t *testing.T) {
	mock := NewMock()
	mock.Replies = []string{"I cannot help with that."}
	_, err := NewPlanner(mock).Plan(context.Background(), irisOverview(t), planner.Regression)
	assert.True(t, errors.Is(err, ErrPlanFormat))

	mock = NewMock()
	mock.Err = ErrRateLimited
	_, err = NewPlanner(mock).Plan(context.Background(), irisOverview(t), planner.Regression)
	assert.True(t, errors.Is(err, ErrRateLimited))
}

func TestRepairRestrictsToStage(t *testing.T) {
	mock := NewMock()
	mock.Replies = []string{
		"```json\n{\"preprocess\": {\"impute_numeric\": \"mean\"}, \"modeling\": {\"strategy\": \"baseline\"}}\n```",
		`{"modeling": {"strategy": "baseline"}}`,
		`{"preprocess": "mean"}`,
	}
	r := NewRepairer(mock)

	patch, err := r.Repair(context.Background(), planner.StagePreprocess, "boom", planner.Classification)
	require.NoError(t, err)
	assert.Equal(t, planner.StagePreprocess, patch.Stage)
	assert.Equal(t, map[string]json.RawMessage{"impute_numeric": json.RawMessage(`"mean"`)}, patch.Fields)

	patch, err = r.Repair(context.Background(), planner.StagePreprocess, "boom", planner.Classification)
	require.NoError(t, err)
	assert.True(t, patch.Empty(), "other stage's key is dropped")

	patch, err = r.Repair(context.Background(), planner.StagePreprocess, "boom", planner.Classification)
	require.NoError(t, err)
	assert.True(t, patch.Empty(), "non-object stage value is dropped")

	assert.Contains(t, mock.Prompts[0], "FAILED_STAGE: preprocess")
	assert.Contains(t, mock.Prompts[0], "boom")
}

func TestRepairProviderError(t *testing.T) {
	mock := NewMock()
	mock.Err = ErrUnavailable
	patch, err := NewRepairer(mock).Repair(context.Background(), planner.StageModeling, "x", planner.Regression)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.True(t, patch.Empty())
	assert.Equal(t, planner.StageModeling, patch.Stage)
}

func TestMockCannedReplies(t *testing.T) {
	mock := NewMock()
	r := NewRepairer(mock)
	patch, err := r.Repair(context.Background(), planner.StageModeling, "x", planner.Regression)
	require.NoError(t, err)
	assert.Contains(t, patch.Fields, "strategy")

	patch, err = r.Repair(context.Background(), planner.StagePreprocess, "x", planner.Regression)
	require.NoError(t, err)
	assert.Contains(t, patch.Fields, "one_hot_encode")

	t.Setenv(MockNarrativeEnv, "custom story")
	out, err := mock.Complete(context.Background(), "Write a narrative")
	require.NoError(t, err)
	assert.Equal(t, "custom story", out)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = mock.Complete(ctx, "x")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestMergeEnv(t *testing.T) {
	merged := mergeEnv([]string{"A=1", "B=2", "NOEQ"}, map[string]string{"B": "3"})
	assert.ElementsMatch(t, []string{"A=1", "NOEQ", "B=3"}, merged)
	assert.Equal(t, []string{"A=1"}, mergeEnv([]string{"A=1"}, nil))
}

func TestCodexReadsLastMessage(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stub")
	}
	dir := t.TempDir()
	script := `#!/bin/sh
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "--output-last-message" ]; then out="$2"; fi
  shift
done
prompt=$(cat)
printf '{"echo": "%s"}' "$(echo "$prompt" | head -c 5)" > "$out"
`
	bin := filepath.Join(dir, "codex")
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))

	c := NewCodex(Options{WorkDir: dir})
	c.Binary = bin
	out, err := c.Complete(context.Background(), "hello codex")
	require.NoError(t, err)
	assert.Equal(t, `{"echo": "hello"}`, out)
}

func TestCodexExitError(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stub")
	}
	dir := t.TempDir()
	bin := filepath.Join(dir, "codex")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\necho failing >&2\nexit 3\n"), 0o755))

	c := NewCodex(Options{WorkDir: dir})
	c.Binary = bin
	_, err := c.Complete(context.Background(), "x")
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.Code)
	assert.Contains(t, exitErr.Transcript, "failing")
}
