package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"autotab/internal/audit"
	"autotab/internal/config"
	"autotab/internal/logging"
	"autotab/internal/workspace"
)

const appName = "autotab"

func main() {
	flag.String("workspace", "", "Path to workspace root (default: current directory)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s: plan, validate, execute and repair tabular ML runs\n\n", appName)
		fmt.Fprintf(os.Stderr, "Usage:\n  %s [--workspace DIR] [command] [flags]\n\n", appName)
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr, "  init      Initialize a workspace")
		fmt.Fprintln(os.Stderr, "  run       Plan, train and report on a CSV dataset")
		fmt.Fprintln(os.Stderr, "  plan      Ask the planner for a plan and print it")
		fmt.Fprintln(os.Stderr, "  overview  Print the dataset overview and problem type")
		fmt.Fprintln(os.Stderr, "  runlog    Inspect stored run logs")
		fmt.Fprintln(os.Stderr, "  help      Show this help")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		flag.PrintDefaults()
	}

	workspacePath, remaining, err := extractWorkspaceFlag(os.Args[1:])
	if err != nil {
		fail(err)
	}

	args := remaining
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		flag.Usage()
		return
	}

	var cmdErr error
	switch args[0] {
	case "init":
		cmdErr = runInit(args[1:], workspacePath)
	case "run":
		cmdErr = runRun(args[1:], workspacePath)
	case "plan":
		cmdErr = runPlan(args[1:], workspacePath)
	case "overview":
		cmdErr = runOverview(args[1:], workspacePath)
	case "runlog":
		cmdErr = runRunLog(args[1:], workspacePath)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		flag.Usage()
		os.Exit(1)
	}
	if cmdErr != nil {
		fail(cmdErr)
	}
}

func fail(err error) {
	logging.Close()
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func extractWorkspaceFlag(args []string) (string, []string, error) {
	var workspacePath string
	remaining := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--workspace" {
			if i+1 >= len(args) {
				return "", nil, fmt.Errorf("--workspace requires a value")
			}
			workspacePath = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--workspace=") {
			workspacePath = strings.TrimPrefix(arg, "--workspace=")
			continue
		}
		remaining = append(remaining, arg)
	}
	return workspacePath, remaining, nil
}

// env is the resolved workspace and configuration shared by every command.
type env struct {
	ws    *workspace.Workspace
	cfg   config.Config
	audit *audit.Logger
}

func loadEnv(workspacePath string) (*env, error) {
	ws, err := workspace.Resolve(workspacePath)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(ws.EnvPath, ws.ConfigPath)
	if err != nil {
		return nil, err
	}
	dbPath := ws.AuditDBPath
	if cfg.Audit.DBPath != "" {
		dbPath, err = ws.ResolvePath(cfg.Audit.DBPath)
		if err != nil {
			return nil, fmt.Errorf("resolve audit db: %w", err)
		}
	}
	return &env{ws: ws, cfg: cfg, audit: audit.NewLogger(dbPath)}, nil
}

// configureLogging applies the logging settings once the workspace exists.
func (e *env) configureLogging() error {
	return logging.Configure(e.cfg.Logging.Level, e.cfg.Logging.ToFile, e.ws.LogsDir)
}

func newRunID(now time.Time) string {
	return now.UTC().Format("20060102-150405") + "-" + uuid.NewString()[:8]
}

// datasetName is the --name override or the CSV base name without extension.
func datasetName(name, csvPath string) string {
	if strings.TrimSpace(name) != "" {
		return strings.TrimSpace(name)
	}
	base := filepath.Base(csvPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func requireFlag(fs *flag.FlagSet, name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s %s: --%s is required", appName, fs.Name(), name)
	}
	return nil
}
