package harness

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"sort"
	"strings"
	"testing"
	"time"
)

// runTimeout bounds a single CLI invocation; a full run on the fixture takes seconds.
const runTimeout = 2 * time.Minute

// hostOnlyPrefixes are environment variables that would let the developer's shell
// choose a real oracle, API key or audit database. They are stripped from every
// invocation unless a test sets them explicitly.
var hostOnlyPrefixes = []string{
	"AUTOTAB_",
	"OPENAI_",
	"GEMINI_",
	"GOOGLE_API_KEY",
	"CODEX_HOME",
}

// Run executes the CLI in workDir with a sanitized environment.
func Run(t *testing.T, binPath, workDir string, args []string) (string, string, int) {
	t.Helper()
	return run(t, binPath, workDir, args, nil)
}

// RunWithEnv executes the CLI with environment overrides on top of the sanitized
// host environment.
func RunWithEnv(t *testing.T, binPath, workDir string, args []string, env map[string]string) (string, string, int) {
	t.Helper()
	return run(t, binPath, workDir, args, env)
}

func run(t *testing.T, binPath, workDir string, args []string, env map[string]string) (string, string, int) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, binPath, args...)
	cmd.Dir = workDir
	cmd.Env = cliEnv(os.Environ(), env)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() != nil {
		t.Fatalf("autotab %v timed out after %s\nstderr:\n%s", args, runTimeout, stderr.String())
	}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return stdout.String(), stderr.String(), 0
	case errors.As(err, &exitErr):
		return stdout.String(), stderr.String(), exitErr.ExitCode()
	default:
		t.Fatalf("run %s: %v", binPath, err)
		return "", "", -1
	}
}

// cliEnv drops host-only variables from base, applies overrides and returns a
// sorted KEY=VALUE list.
func cliEnv(base []string, overrides map[string]string) []string {
	env := make(map[string]string, len(base)+len(overrides))
	for _, entry := range base {
		key, val, _ := strings.Cut(entry, "=")
		if hostOnly(key) {
			continue
		}
		env[key] = val
	}
	for k, v := range overrides {
		env[k] = v
	}

	merged := make([]string, 0, len(env))
	for k, v := range env {
		merged = append(merged, k+"="+v)
	}
	sort.Strings(merged)
	return merged
}

func hostOnly(key string) bool {
	for _, prefix := range hostOnlyPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}
