package harness

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// workspaceGitignore keeps run output out of the fixture commit so the codex
// provider sees a clean tree with only config and data.
const workspaceGitignore = "artifacts/\nreports/\nlogs/\naudit/\n.env\n"

// InitGitRepo turns a workspace into a git repository whose single commit holds
// its config and data, the way the codex CLI expects its working directory.
func InitGitRepo(t *testing.T, workspace string) {
	t.Helper()

	if _, err := os.Stat(filepath.Join(workspace, ".git")); err == nil {
		return
	}
	if err := os.WriteFile(filepath.Join(workspace, ".gitignore"), []byte(workspaceGitignore), 0o644); err != nil {
		t.Fatalf("write .gitignore: %v", err)
	}

	git(t, workspace, "init", "--quiet")
	git(t, workspace, "add", ".")
	git(t, workspace, "-c", "user.name=autotab-test", "-c", "user.email=autotab-test@example.com",
		"commit", "--quiet", "-m", "fixture workspace")
}

func git(t *testing.T, dir string, args ...string) {
	t.Helper()

	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		t.Fatalf("git %v in %s: %v\n%s", args, dir, err, out.String())
	}
}
