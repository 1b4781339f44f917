package notify

import (
	"fmt"
	"os/exec"
	"runtime"
	"sort"
	"strings"
)

// Notifier sends desktop notifications when a run ends.
type Notifier struct {
	Enabled bool
	// run executes the notification command; nil uses os/exec.
	run func(name string, args ...string) error
}

// Send sends a system notification.
// On macOS it uses osascript, on Linux notify-send. Elsewhere it is a no-op.
func (n *Notifier) Send(title, message string) error {
	if n == nil || !n.Enabled {
		return nil
	}
	run := n.run
	if run == nil {
		run = execRun
	}
	name, args, ok := command(runtime.GOOS, title, message)
	if !ok {
		return nil
	}
	if err := run(name, args...); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

func command(goos, title, message string) (string, []string, bool) {
	switch goos {
	case "darwin":
		title = strings.ReplaceAll(title, `"`, `\"`)
		message = strings.ReplaceAll(message, `"`, `\"`)
		script := fmt.Sprintf(`display notification "%s" with title "%s"`, message, title)
		return "osascript", []string{"-e", script}, true
	case "linux":
		return "notify-send", []string{title, message}, true
	default:
		return "", nil, false
	}
}

func execRun(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

// FormatRunComplete formats the notification for a finished run.
func FormatRunComplete(dataset, model string, metrics map[string]float64) (title, message string) {
	title = "autotab run complete"
	parts := make([]string, 0, len(metrics))
	for name, v := range metrics {
		parts = append(parts, fmt.Sprintf("%s=%.3f", name, v))
	}
	sort.Strings(parts)
	message = fmt.Sprintf("%s: %s", dataset, model)
	if len(parts) > 0 {
		message += " (" + strings.Join(parts, ", ") + ")"
	}
	return title, message
}

// FormatRunFailed formats the notification for a run that ended in error.
func FormatRunFailed(dataset string, err error) (title, message string) {
	return "autotab run failed", fmt.Sprintf("%s: %v", dataset, err)
}
