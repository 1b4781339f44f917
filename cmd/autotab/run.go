package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"autotab/internal/audit"
	"autotab/internal/automl"
	"autotab/internal/config"
	"autotab/internal/dataset"
	"autotab/internal/logging"
	"autotab/internal/narrative"
	"autotab/internal/notify"
	"autotab/internal/oracle"
	"autotab/internal/pipeline"
	"autotab/internal/planner"
	"autotab/internal/preprocess"
	"autotab/internal/report"
	"autotab/internal/strategy"
)

// KeyReport is the RunLog key holding the report path.
const KeyReport = "report"

type runFlags struct {
	csv, target, name string
	planPath          string
	oracle            string
	maxCandidates     int
	narrative         bool
	noNarrative       bool
	automl            string
	notify            bool
}

func runRun(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var f runFlags
	fs.StringVar(&f.csv, "csv", "", "Path to CSV")
	fs.StringVar(&f.target, "target", "", "Target column name")
	fs.StringVar(&f.name, "name", "", "Dataset name for the report (default: CSV base name)")
	fs.StringVar(&f.planPath, "plan", "", "Start from this plan file instead of asking the planner")
	fs.StringVar(&f.oracle, "oracle", "", "Oracle provider: gemini, openai, codex, mock")
	fs.IntVar(&f.maxCandidates, "max-candidates", 0, "Maximum candidates kept from a plan")
	fs.BoolVar(&f.narrative, "narrative", false, "Add an LLM narrative to the report")
	fs.BoolVar(&f.noNarrative, "no-narrative", false, "Skip the LLM narrative")
	fs.StringVar(&f.automl, "automl", "", "Automated search backend: portfolio, none")
	fs.BoolVar(&f.notify, "notify", false, "Send a desktop notification when the run ends")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlag(fs, "csv", f.csv); err != nil {
		return err
	}
	if err := requireFlag(fs, "target", f.target); err != nil {
		return err
	}

	e, err := loadEnv(workspacePath)
	if err != nil {
		return err
	}
	applyRunFlags(&e.cfg, f)
	if err := e.ws.EnsureDirs(); err != nil {
		return err
	}
	if err := e.configureLogging(); err != nil {
		return err
	}
	defer logging.Close()

	csvPath, err := e.ws.ResolvePath(f.csv)
	if err != nil {
		return fmt.Errorf("resolve --csv: %w", err)
	}
	planPath, err := e.ws.ResolvePath(f.planPath)
	if err != nil {
		return fmt.Errorf("resolve --plan: %w", err)
	}
	name := datasetName(f.name, csvPath)
	runID := newRunID(time.Now())
	logger := log.WithField("run_id", runID)

	startPayload := map[string]any{"run_id": runID, "csv": csvPath, "target": f.target, "oracle": e.cfg.Oracle.Provider}
	if err := e.audit.LogEvent("cli", "run_started", startPayload); err != nil {
		fmt.Fprintln(os.Stderr, "audit log failed:", err)
	}

	var finishErr error
	var res *runResult
	notifier := &notify.Notifier{Enabled: e.cfg.Notify}
	defer func() {
		finishPayload := map[string]any{"run_id": runID}
		if finishErr != nil {
			finishPayload["error"] = finishErr.Error()
			title, msg := notify.FormatRunFailed(name, finishErr)
			_ = notifier.Send(title, msg)
		} else if res != nil {
			finishPayload["model"] = res.model
			finishPayload["report"] = res.reportPath
			title, msg := notify.FormatRunComplete(name, res.model, res.metrics)
			_ = notifier.Send(title, msg)
		}
		_ = e.audit.LogEvent("cli", "run_finished", finishPayload)
	}()

	res, finishErr = execute(context.Background(), e, logger, runID, name, csvPath, f.target, planPath)
	if finishErr != nil {
		return finishErr
	}
	fmt.Printf("Done. Report: %s\n", res.reportPath)
	return nil
}

func applyRunFlags(cfg *config.Config, f runFlags) {
	if f.oracle != "" {
		cfg.Oracle.Provider = f.oracle
	}
	if f.maxCandidates > 0 {
		cfg.Planner.MaxCandidates = f.maxCandidates
	}
	if f.narrative {
		cfg.Narrative.Enabled = true
	}
	if f.noNarrative {
		cfg.Narrative.Enabled = false
	}
	if f.automl != "" {
		cfg.AutoML.Backend = f.automl
	}
	if f.notify {
		cfg.Notify = true
	}
}

type runResult struct {
	model      string
	metrics    map[string]float64
	reportPath string
}

// loaded is a dataset ready for planning.
type loaded struct {
	frame    *dataset.Frame
	problem  planner.ProblemType
	overview dataset.Overview
}

func loadDataset(csvPath, target string) (*loaded, error) {
	frame, err := dataset.LoadCSV(csvPath)
	if err != nil {
		return nil, err
	}
	if _, ok := frame.Column(target); !ok {
		return nil, fmt.Errorf("target %q not in columns", target)
	}
	problem, err := dataset.DetectProblemType(frame, target)
	if err != nil {
		return nil, err
	}
	return &loaded{frame: frame, problem: problem, overview: dataset.Summarize(frame, target)}, nil
}

// oracleProvider builds the configured planning/repair provider. A provider that
// cannot be built is logged and left nil; the pipeline then plans with defaults.
func oracleProvider(e *env, logger log.FieldLogger) oracle.Provider {
	p, err := oracle.New(e.cfg.Oracle.Provider, oracle.Options{
		Model:   e.cfg.Oracle.Model,
		APIKey:  e.cfg.Oracle.APIKey,
		BaseURL: e.cfg.Oracle.BaseURL,
		Timeout: time.Duration(e.cfg.Oracle.TimeoutSec) * time.Second,
		WorkDir: e.ws.Root,
	})
	if err != nil {
		logger.WithError(err).Warn("oracle unavailable; planning and repair will use defaults")
		return nil
	}
	return p
}

func execute(ctx context.Context, e *env, logger log.FieldLogger, runID, name, csvPath, target, planPath string) (*runResult, error) {
	ds, err := loadDataset(csvPath, target)
	if err != nil {
		return nil, err
	}
	logger.WithFields(log.Fields{"problem": ds.problem, "rows": ds.overview.NumRows}).Info("dataset loaded")

	split, err := dataset.Partition(ds.frame, target, ds.problem, dataset.SplitOptions{
		TestSize: dataset.DefaultTestSize,
		Seed:     dataset.DefaultSeed,
	})
	if err != nil {
		return nil, err
	}

	searcher, err := automl.New(e.cfg.AutoML.Backend)
	if err != nil {
		return nil, err
	}

	runLog := audit.NewRunLog(runID, e.ws.RunLogPath(runID), e.audit)
	p := &pipeline.Pipeline{
		Builder:  pipeline.BuilderFunc(preprocess.Build),
		Selector: strategy.NewSelector(searcher, logger),
		Log:      runLog,
		Logger:   logger,
		Options:  planner.Options{MaxCandidates: e.cfg.Planner.MaxCandidates},
	}
	if provider := oracleProvider(e, logger); provider != nil {
		p.Planner = oracle.NewPlanner(provider)
		p.Repairer = oracle.NewRepairer(provider)
	}
	if planPath != "" {
		p.Planner = filePlan{path: planPath, opts: p.Options}
	}

	out, err := p.Run(ctx, pipeline.Input{Problem: ds.problem, Overview: ds.overview, Split: split})
	if err != nil {
		return nil, err
	}

	modelPath := filepath.Join(e.ws.ArtifactsDir, "best_model_"+runID+".json")
	if err := out.Result.Model.Save(modelPath); err != nil {
		return nil, err
	}
	metricsJSON, err := json.MarshalIndent(out.Result.Metrics, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode metrics: %w", err)
	}
	if err := audit.WriteFileAtomic(filepath.Join(e.ws.ArtifactsDir, "metrics_"+runID+".json"), append(metricsJSON, '\n')); err != nil {
		return nil, err
	}

	data := report.Data{
		DatasetName: name,
		RunID:       runID,
		Problem:     ds.problem,
		Overview:    ds.overview,
		Plan:        out.Plan,
		Patches:     out.Patches,
		ModelName:   out.Result.Name,
		Metrics:     out.Result.Metrics,
	}
	if _, ok := runLog.Get(pipeline.KeyPlanFallback); ok {
		data.PlanFallback = true
	}
	if out.Result.Fallback != nil {
		data.AutomatedError = out.Result.Fallback.Error()
	}
	if e.cfg.Narrative.Enabled {
		data.Narrative, data.NarrativeFailed = writeNarrative(ctx, e, logger, narrative.Input{
			DatasetName: name,
			Problem:     ds.problem,
			Overview:    ds.overview,
			ModelName:   out.Result.Name,
			Metrics:     out.Result.Metrics,
		})
	}

	reportPath := filepath.Join(e.ws.ReportsDir, name+"_"+runID+".md")
	if err := audit.WriteFileAtomic(reportPath, []byte(report.Render(data))); err != nil {
		return nil, err
	}
	if err := runLog.Record(KeyReport, reportPath); err != nil {
		return nil, err
	}
	return &runResult{model: out.Result.Name, metrics: out.Result.Metrics, reportPath: reportPath}, nil
}

// filePlan serves a plan stored on disk in place of the planning oracle. A file that
// cannot be read falls back to the default plan like any other planning failure.
type filePlan struct {
	path string
	opts planner.Options
}

func (f filePlan) Plan(_ context.Context, _ dataset.Overview, problem planner.ProblemType) ([]byte, error) {
	plan, err := planner.LoadPlan(f.path, problem, f.opts)
	if err != nil {
		return nil, err
	}
	return json.Marshal(plan)
}

func writeNarrative(ctx context.Context, e *env, logger log.FieldLogger, in narrative.Input) (string, bool) {
	provider, err := oracle.New(e.cfg.Narrative.Provider, oracle.Options{
		Model:   e.cfg.Narrative.Model,
		APIKey:  e.cfg.Narrative.APIKey,
		BaseURL: e.cfg.Narrative.BaseURL,
		Timeout: time.Duration(e.cfg.Oracle.TimeoutSec) * time.Second,
		WorkDir: e.ws.Root,
	})
	if err != nil {
		logger.WithError(err).Warn("narrative provider unavailable")
		return "", true
	}
	text, err := narrative.NewGenerator(provider, logger).Generate(ctx, in)
	if err != nil {
		return "", true
	}
	return text, false
}
