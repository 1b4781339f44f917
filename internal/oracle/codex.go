package oracle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Codex shells out to the codex CLI and returns its last message.
type Codex struct {
	Binary  string
	WorkDir string
	Timeout time.Duration
	Env     map[string]string
}

func NewCodex(opts Options) *Codex {
	return &Codex{Binary: "codex", WorkDir: opts.WorkDir, Timeout: opts.Timeout}
}

func (c *Codex) Name() string { return ProviderCodex }

// ExitError reports a non-zero codex exit with the captured transcript tail.
type ExitError struct {
	Code       int
	Transcript string
	Err        error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("codex exited with code %d: %v: %s", e.Code, e.Err, e.Transcript)
}

func (e *ExitError) Unwrap() error { return e.Err }

func (c *Codex) Complete(ctx context.Context, prompt string) (string, error) {
	workDir := c.WorkDir
	if workDir == "" {
		workDir = "."
	}
	workDir, err := filepath.Abs(workDir)
	if err != nil {
		return "", fmt.Errorf("resolve workdir: %w", err)
	}
	info, err := os.Stat(workDir)
	if err != nil {
		return "", fmt.Errorf("stat workdir: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("workdir is not a directory: %s", workDir)
	}

	scratch, err := os.MkdirTemp("", "autotab-codex-*")
	if err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() {
		_ = os.RemoveAll(scratch)
	}()

	env := map[string]string{}
	for k, v := range c.Env {
		env[k] = v
	}
	if env["CODEX_HOME"] == "" && os.Getenv("CODEX_HOME") == "" {
		codexHome := filepath.Join(scratch, "codex_home")
		if err := os.MkdirAll(codexHome, 0o755); err != nil {
			return "", fmt.Errorf("create CODEX_HOME: %w", err)
		}
		env["CODEX_HOME"] = codexHome
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if c.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	resultPath := filepath.Join(scratch, "last_message.txt")
	args := []string{
		"-a", "never",
		"-s", "read-only",
		"exec",
		"-C", workDir,
		"--output-last-message", resultPath,
		"-",
	}
	binary := c.Binary
	if binary == "" {
		binary = "codex"
	}

	var transcript bytes.Buffer
	cmd := exec.CommandContext(runCtx, binary, args...)
	cmd.Dir = workDir
	cmd.Stdin = strings.NewReader(prompt)
	cmd.Stdout = &transcript
	cmd.Stderr = &transcript
	cmd.Env = mergeEnv(os.Environ(), env)

	if err := cmd.Run(); err != nil {
		return "", &ExitError{Code: exitCodeFromError(err), Transcript: tail(transcript.String(), 2048), Err: err}
	}

	data, err := os.ReadFile(resultPath)
	if err != nil {
		return "", fmt.Errorf("read codex last message: %w", err)
	}
	return string(data), nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	merged := make([]string, 0, len(base)+len(overrides))
	for _, entry := range base {
		key := entry
		if idx := strings.IndexByte(entry, '='); idx >= 0 {
			key = entry[:idx]
		}
		if _, ok := overrides[key]; ok {
			continue
		}
		merged = append(merged, entry)
	}
	for key, value := range overrides {
		merged = append(merged, fmt.Sprintf("%s=%s", key, value))
	}
	return merged
}

func exitCodeFromError(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return 124
	}
	return 1
}
