package harness

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// NewWorkspace copies the minimal fixture workspace (mock oracle, sample CSV) into a
// fresh temp dir and returns its path.
func NewWorkspace(t *testing.T) string {
	t.Helper()
	dst := t.TempDir()
	CopyDir(t, filepath.Join(RepoRoot(t), "integration", "fixtures", "workspace-min"), dst)
	return dst
}

// RunLogs returns the persisted run log paths of a workspace, sorted by name.
func RunLogs(t *testing.T, workspace string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(workspace, "logs", "run_*.json"))
	if err != nil {
		t.Fatalf("glob run logs: %v", err)
	}
	sort.Strings(matches)
	return matches
}

// SingleRunLog returns the contents of the only run log in workspace.
func SingleRunLog(t *testing.T, workspace string) []byte {
	t.Helper()
	logs := RunLogs(t, workspace)
	if len(logs) != 1 {
		t.Fatalf("expected exactly one run log in %s, found %v", workspace, logs)
	}
	data, err := os.ReadFile(logs[0])
	if err != nil {
		t.Fatalf("read run log: %v", err)
	}
	return data
}
