package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"autotab/internal/audit"
	"autotab/internal/oracle"
	"autotab/internal/planner"
	"autotab/internal/workspace"
)

const sampleConfig = `# autotab workspace configuration
oracle:
  provider: gemini
  # model: gemini-1.5-flash
  # timeout-sec: 0
narrative:
  enabled: false
planner:
  max-candidates: 2
automl:
  backend: portfolio
logging:
  level: info
  to-file: false
notify: false
`

func runInit(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(workspacePath) == "" {
		workspacePath = "."
	}
	if err := os.MkdirAll(workspacePath, 0o755); err != nil {
		return fmt.Errorf("create workspace root: %w", err)
	}
	ws, err := workspace.Resolve(workspacePath)
	if err != nil {
		return err
	}

	logger := audit.NewLogger(ws.AuditDBPath)
	if err := logger.LogEvent("cli", "workspace_init_started", map[string]any{"workspace": ws.Root}); err != nil {
		fmt.Fprintln(os.Stderr, "audit log failed:", err)
	}
	var finishErr error
	defer func() {
		payload := map[string]any{"workspace": ws.Root}
		if finishErr != nil {
			payload["error"] = finishErr.Error()
		}
		_ = logger.LogEvent("cli", "workspace_init_finished", payload)
	}()

	if finishErr = ws.EnsureDirs(); finishErr != nil {
		return finishErr
	}
	if _, err := os.Stat(ws.ConfigPath); errors.Is(err, os.ErrNotExist) {
		if finishErr = audit.WriteFileAtomic(ws.ConfigPath, []byte(sampleConfig)); finishErr != nil {
			return finishErr
		}
	}
	fmt.Printf("Initialized workspace at %s\n", ws.Root)
	return nil
}

// runPlan prints the plan a run would start from, after sanitizing and clamping.
func runPlan(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	csvPath := fs.String("csv", "", "Path to CSV")
	target := fs.String("target", "", "Target column name")
	oracleName := fs.String("oracle", "", "Oracle provider: gemini, openai, codex, mock")
	outPath := fs.String("out", "", "Also write the plan to this file (usable with run --plan)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlag(fs, "csv", *csvPath); err != nil {
		return err
	}
	if err := requireFlag(fs, "target", *target); err != nil {
		return err
	}

	e, err := loadEnv(workspacePath)
	if err != nil {
		return err
	}
	if *oracleName != "" {
		e.cfg.Oracle.Provider = *oracleName
	}
	if err := e.configureLogging(); err != nil {
		return err
	}
	path, err := e.ws.ResolvePath(*csvPath)
	if err != nil {
		return fmt.Errorf("resolve --csv: %w", err)
	}
	ds, err := loadDataset(path, *target)
	if err != nil {
		return err
	}

	opts := planner.Options{MaxCandidates: e.cfg.Planner.MaxCandidates}
	plan, err := requestPlan(context.Background(), e, log.StandardLogger(), ds, opts)
	if err != nil {
		log.WithError(err).Warn("planning failed; using default plan")
		plan = planner.DefaultPlan(ds.problem)
	}
	plan = planner.Clamp(plan, ds.problem, opts)
	if *outPath != "" {
		out, err := e.ws.ResolvePath(*outPath)
		if err != nil {
			return fmt.Errorf("resolve --out: %w", err)
		}
		if err := planner.WritePlan(out, plan); err != nil {
			return err
		}
	}
	return printJSON(map[string]any{"problem": ds.problem, "plan": plan})
}

func requestPlan(ctx context.Context, e *env, logger log.FieldLogger, ds *loaded, opts planner.Options) (planner.Plan, error) {
	provider := oracleProvider(e, logger)
	if provider == nil {
		return planner.Plan{}, fmt.Errorf("oracle %q unavailable", e.cfg.Oracle.Provider)
	}
	raw, err := oracle.NewPlanner(provider).Plan(ctx, ds.overview, ds.problem)
	if err != nil {
		return planner.Plan{}, err
	}
	return planner.Sanitize(raw, ds.problem, opts)
}

func runOverview(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("overview", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	csvPath := fs.String("csv", "", "Path to CSV")
	target := fs.String("target", "", "Target column name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlag(fs, "csv", *csvPath); err != nil {
		return err
	}
	if err := requireFlag(fs, "target", *target); err != nil {
		return err
	}
	ws, err := workspace.Resolve(workspacePath)
	if err != nil {
		return err
	}
	path, err := ws.ResolvePath(*csvPath)
	if err != nil {
		return fmt.Errorf("resolve --csv: %w", err)
	}
	ds, err := loadDataset(path, *target)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"problem": ds.problem, "overview": ds.overview})
}

func runRunLog(args []string, workspacePath string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		return fmt.Errorf("%s runlog: missing subcommand", appName)
	}
	switch args[0] {
	case "show":
		return runRunLogShow(args[1:], workspacePath)
	default:
		return fmt.Errorf("%s runlog: unknown subcommand %q", appName, args[0])
	}
}

func runRunLogShow(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("runlog show", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	key := fs.String("key", "", "Print only this field (gjson path)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%s runlog show: expected RUN_ID", appName)
	}
	ws, err := workspace.Resolve(workspacePath)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(ws.RunLogPath(fs.Arg(0)))
	if err != nil {
		return fmt.Errorf("read runlog: %w", err)
	}
	if *key == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	value := gjson.GetBytes(data, *key)
	if !value.Exists() {
		return fmt.Errorf("runlog %s has no %q", fs.Arg(0), *key)
	}
	if value.Type == gjson.String {
		fmt.Println(value.String())
		return nil
	}
	fmt.Println(value.Raw)
	return nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
