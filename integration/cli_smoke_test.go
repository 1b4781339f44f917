package integration_test

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"autotab/integration/harness"
)

func TestCLISmoke(t *testing.T) {
	binPath := harness.BuildBinary(t)
	workspace := harness.NewWorkspace(t)
	runDir := t.TempDir()

	stdout, stderr, code := harness.Run(t, binPath, runDir, []string{"--help"})
	if code != 0 {
		t.Fatalf("autotab --help exit code %d\nstdout:\n%s\nstderr:\n%s", code, stdout, stderr)
	}
	if !strings.Contains(stdout+stderr, "plan, validate, execute and repair") {
		t.Fatalf("expected help output to include header\nstdout:\n%s\nstderr:\n%s", stdout, stderr)
	}

	args := []string{
		"run",
		"--workspace", workspace,
		"--csv", "data/customers.csv",
		"--target", "churn",
	}
	stdout, stderr, code = harness.Run(t, binPath, runDir, args)
	if code != 0 {
		t.Fatalf("autotab run exit code %d\nstdout:\n%s\nstderr:\n%s", code, stdout, stderr)
	}
	if !strings.HasPrefix(stdout, "Done. Report: ") {
		t.Fatalf("unexpected run output:\n%s", stdout)
	}
	reportPath := strings.TrimSpace(strings.TrimPrefix(stdout, "Done. Report: "))
	if filepath.Dir(reportPath) != filepath.Join(workspace, "reports") {
		t.Fatalf("report written outside the workspace: %s", reportPath)
	}
	report, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	for _, want := range []string{"# AutoML Agent Report - customers", "**classification**", "| f1_macro |", "## Narrative"} {
		if !strings.Contains(string(report), want) {
			t.Fatalf("report missing %q:\n%s", want, report)
		}
	}

	runLog := harness.SingleRunLog(t, workspace)
	runID := gjson.GetBytes(runLog, "run_id").String()
	if runID == "" {
		t.Fatalf("run log has no run_id:\n%s", runLog)
	}
	if got := gjson.GetBytes(runLog, "problem").String(); got != "classification" {
		t.Fatalf("problem = %q", got)
	}
	if got := gjson.GetBytes(runLog, "steps.#.state|@ugly").String(); got != `["PLAN","PREPROCESS","MODEL","DONE"]` {
		t.Fatalf("steps = %s", got)
	}
	if got := gjson.GetBytes(runLog, "plan_final.evaluation.primary_metric").String(); got != "f1_macro" {
		t.Fatalf("primary metric = %q", got)
	}
	if gjson.GetBytes(runLog, "report").String() != reportPath {
		t.Fatalf("run log report key does not match printed path")
	}

	for _, name := range []string{"best_model_" + runID + ".json", "metrics_" + runID + ".json"} {
		if _, err := os.Stat(filepath.Join(workspace, "artifacts", name)); err != nil {
			t.Fatalf("artifact %s not written: %v", name, err)
		}
	}

	requireAuditEvents(t, auditDB(workspace), []string{"run_started", "run_finished"})
	trail := requireRunTrail(t, workspace, runLog)
	if !slices.Contains(trail.Keys, "report") {
		t.Fatalf("report key was not mirrored to the audit log: %v", trail.Keys)
	}

	stdout, stderr, code = harness.Run(t, binPath, runDir, []string{"--workspace", workspace, "runlog", "show", "--key", "model_name", runID})
	if code != 0 {
		t.Fatalf("autotab runlog show exit code %d\nstderr:\n%s", code, stderr)
	}
	if strings.TrimSpace(stdout) != gjson.GetBytes(runLog, "model_name").String() {
		t.Fatalf("runlog show model_name = %q", stdout)
	}

	engineAudit := filepath.Join(harness.RepoRoot(t), "audit", "audit.sqlite")
	if _, err := os.Stat(engineAudit); err == nil {
		t.Fatalf("engine repo audit db should not exist at %s", engineAudit)
	} else if !os.IsNotExist(err) {
		t.Fatalf("stat engine audit db: %v", err)
	}
}

func TestRunMissingTarget(t *testing.T) {
	binPath := harness.BuildBinary(t)
	workspace := harness.NewWorkspace(t)

	args := []string{"--workspace", workspace, "run", "--csv", "data/customers.csv", "--target", "nope"}
	_, stderr, code := harness.Run(t, binPath, t.TempDir(), args)
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr, `error: target "nope" not in columns`) {
		t.Fatalf("unexpected stderr:\n%s", stderr)
	}
	requireAuditEvents(t, auditDB(workspace), []string{"run_started", "run_finished"})
}
