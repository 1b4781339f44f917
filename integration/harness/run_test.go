package harness

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestCLIEnvStripsHostOracleSettings(t *testing.T) {
	base := []string{
		"PATH=/usr/bin",
		"HOME=/home/dev",
		"OPENAI_API_KEY=sk-live",
		"GOOGLE_API_KEY=g-live",
		"AUTOTAB_ORACLE=gemini",
		"CODEX_HOME=/home/dev/.codex",
	}
	got := cliEnv(base, map[string]string{"AUTOTAB_MOCK_PLAN": "{}", "PATH": "/stub:/usr/bin"})
	want := []string{"AUTOTAB_MOCK_PLAN={}", "HOME=/home/dev", "PATH=/stub:/usr/bin"}
	if !slices.Equal(got, want) {
		t.Fatalf("cliEnv = %v, want %v", got, want)
	}
}

func TestCopyDirSkipsWorkspaceOutput(t *testing.T) {
	src := t.TempDir()
	files := map[string]string{
		"autotab.yml":        "oracle:\n  provider: mock\n",
		"data/x.csv":         "a,b\n1,2\n",
		"logs/run_old.json":  "{}",
		"audit/audit.sqlite": "stale",
		"data/logs/keep.txt": "nested dirs named like output are data",
	}
	for rel, body := range files {
		path := filepath.Join(src, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}

	dst := filepath.Join(t.TempDir(), "ws")
	CopyDir(t, src, dst)

	for _, rel := range []string{"autotab.yml", "data/x.csv", "data/logs/keep.txt"} {
		data, err := os.ReadFile(filepath.Join(dst, rel))
		if err != nil || string(data) != files[rel] {
			t.Fatalf("%s not copied: %q, %v", rel, data, err)
		}
	}
	for _, rel := range []string{"logs", "audit"} {
		if _, err := os.Stat(filepath.Join(dst, rel)); !os.IsNotExist(err) {
			t.Fatalf("%s should not be copied (err=%v)", rel, err)
		}
	}
}
