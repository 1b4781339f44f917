// Package pipeline drives one run through planning, preprocessing and modeling,
// spending at most one repair per stage.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
	log "github.com/sirupsen/logrus"

	"autotab/internal/dataset"
	"autotab/internal/planner"
	"autotab/internal/preprocess"
	"autotab/internal/strategy"
)

// States recorded in the RunLog steps.
const (
	StatePlan             = "PLAN"
	StatePreprocess       = "PREPROCESS"
	StateRepairPreprocess = "REPAIR_PREPROCESS"
	StateModel            = "MODEL"
	StateRepairModel      = "REPAIR_MODEL"
	StateDone             = "DONE"
	StateFatal            = "FATAL"
)

// RunLog keys written by Run.
const (
	KeyProblem           = "problem"
	KeyPlanInitial       = "plan_initial"
	KeyPlanInitialError  = "plan_initial_error"
	KeyPlanFallback      = "plan_initial_fallback"
	KeyModelAutomatedErr = "model_automated_error"
	KeyPlanFinal         = "plan_final"
	KeyModelName         = "model_name"
	KeyModelSearch       = "model_search"
	KeyMetrics           = "metrics"
)

var (
	// ErrFatal marks a stage that failed again after its one repair.
	ErrFatal = errors.New("pipeline: fatal stage failure")
	// ErrMisconfigured is returned before any state is entered when a required
	// collaborator or the split is missing.
	ErrMisconfigured = errors.New("pipeline: misconfigured")
)

// StageError carries the stage that ended the run and its last error.
type StageError struct {
	Stage planner.Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed after repair: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() []error { return []error{ErrFatal, e.Err} }

type PlanOracle interface {
	Plan(ctx context.Context, overview dataset.Overview, problem planner.ProblemType) ([]byte, error)
}

type RepairOracle interface {
	Repair(ctx context.Context, stage planner.Stage, errText string, problem planner.ProblemType) (planner.Patch, error)
}

// Builder constructs the preprocessing transformer for a feature frame.
type Builder interface {
	Build(features *dataset.Frame, opts planner.Preprocess) (*preprocess.Transformer, error)
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(features *dataset.Frame, opts planner.Preprocess) (*preprocess.Transformer, error)

func (f BuilderFunc) Build(features *dataset.Frame, opts planner.Preprocess) (*preprocess.Transformer, error) {
	return f(features, opts)
}

type Selector interface {
	Select(ctx context.Context, req strategy.Request) (*strategy.Result, error)
}

// Recorder is the RunLog sink.
type Recorder interface {
	Record(key string, value any) error
	Step(state, detail string) error
}

// Input is everything a run needs about its dataset.
type Input struct {
	Problem  planner.ProblemType
	Overview dataset.Overview
	Split    *dataset.Split
}

// Outcome is the result of a successful run.
type Outcome struct {
	Result  *strategy.Result
	Plan    planner.Plan
	Patches []planner.Patch
}

// Pipeline wires the collaborators of a run.
type Pipeline struct {
	Planner  PlanOracle
	Repairer RepairOracle
	Builder  Builder
	Selector Selector
	Log      Recorder
	Logger   log.FieldLogger
	Options  planner.Options
}

type run struct {
	*Pipeline
	ctx     context.Context
	logger  log.FieldLogger
	in      Input
	plan    planner.Plan
	patches []planner.Patch

	fallbackRecorded bool
}

// Run executes the state machine. Planning failures fall back to the default plan.
// A stage that fails twice ends the run with an error wrapping ErrFatal.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Outcome, error) {
	if err := p.check(in); err != nil {
		return nil, err
	}
	r := &run{Pipeline: p, ctx: ctx, logger: p.Logger, in: in}
	if r.logger == nil {
		r.logger = log.StandardLogger()
	}

	if err := r.record(KeyProblem, string(in.Problem)); err != nil {
		return nil, err
	}
	if err := r.planStage(); err != nil {
		return nil, err
	}
	transformer, err := r.preprocessStage()
	if err != nil {
		return nil, err
	}
	result, err := r.modelStage(transformer)
	if err != nil {
		return nil, err
	}

	if err := r.step(StateDone, result.Name); err != nil {
		return nil, err
	}
	if err := r.record(KeyPlanFinal, r.plan); err != nil {
		return nil, err
	}
	if err := r.record(KeyModelName, result.Name); err != nil {
		return nil, err
	}
	if result.Search != nil {
		if err := r.record(KeyModelSearch, result.Search); err != nil {
			return nil, err
		}
	}
	if err := r.record(KeyMetrics, result.Metrics); err != nil {
		return nil, err
	}
	return &Outcome{Result: result, Plan: r.plan, Patches: r.patches}, nil
}

func (p *Pipeline) check(in Input) error {
	switch {
	case p == nil:
		return fmt.Errorf("%w: nil pipeline", ErrMisconfigured)
	case p.Builder == nil:
		return fmt.Errorf("%w: no builder", ErrMisconfigured)
	case p.Selector == nil:
		return fmt.Errorf("%w: no selector", ErrMisconfigured)
	case in.Split == nil:
		return fmt.Errorf("%w: no split", ErrMisconfigured)
	}
	return nil
}

func (r *run) planStage() error {
	if err := r.step(StatePlan, ""); err != nil {
		return err
	}
	plan, err := r.requestPlan()
	if err != nil {
		r.logger.WithError(err).Warn("planning failed; using default plan")
		if err := r.record(KeyPlanInitialError, err.Error()); err != nil {
			return err
		}
		if err := r.record(KeyPlanFallback, true); err != nil {
			return err
		}
		plan = planner.DefaultPlan(r.in.Problem)
	}
	r.plan = planner.Clamp(planner.SanitizePlan(plan, r.in.Problem, r.Options), r.in.Problem, r.Options)
	return r.record(KeyPlanInitial, r.plan)
}

func (r *run) requestPlan() (planner.Plan, error) {
	if r.Planner == nil {
		return planner.Plan{}, errors.New("no planning oracle configured")
	}
	raw, err := r.Planner.Plan(r.ctx, r.in.Overview, r.in.Problem)
	if err != nil {
		return planner.Plan{}, err
	}
	return planner.Sanitize(raw, r.in.Problem, r.Options)
}

func (r *run) preprocessStage() (*preprocess.Transformer, error) {
	if err := r.step(StatePreprocess, ""); err != nil {
		return nil, err
	}
	build := func() (*preprocess.Transformer, error) {
		return r.Builder.Build(r.in.Split.TrainX, r.plan.Preprocess)
	}
	t, err := build()
	if err == nil {
		return t, nil
	}

	if err := r.step(StateRepairPreprocess, err.Error()); err != nil {
		return nil, err
	}
	patch, rerr := r.repair(planner.StagePreprocess, err)
	if rerr != nil {
		return nil, rerr
	}
	before := r.plan.Preprocess
	after, perr := planner.ApplyPreprocessPatch(before, patch)
	if err := r.afterPatch(planner.StagePreprocess, patch, before, after, perr); err != nil {
		return nil, err
	}
	if perr == nil {
		r.plan.Preprocess = after
	}

	if err := r.step(StatePreprocess, "retry"); err != nil {
		return nil, err
	}
	t, err = build()
	if err != nil {
		return nil, r.fatal(planner.StagePreprocess, err)
	}
	return t, nil
}

func (r *run) modelStage(t *preprocess.Transformer) (*strategy.Result, error) {
	if err := r.step(StateModel, r.plan.Modeling.Strategy); err != nil {
		return nil, err
	}
	sel := func() (*strategy.Result, error) {
		res, err := r.Selector.Select(r.ctx, strategy.Request{
			Problem:       r.in.Problem,
			Transformer:   t,
			Split:         r.in.Split,
			Strategy:      r.plan.Modeling.Strategy,
			Candidates:    r.plan.Modeling.Candidates,
			TimeBudgetSec: r.plan.TimeBudgetSec,
			CVFolds:       r.plan.Evaluation.CVFolds,
		})
		if err == nil && res.Fallback != nil && !r.fallbackRecorded {
			r.fallbackRecorded = true
			if rerr := r.record(KeyModelAutomatedErr, res.Fallback.Error()); rerr != nil {
				return nil, rerr
			}
		}
		return res, err
	}
	res, err := sel()
	if err == nil {
		return res, nil
	}
	var persistErr *recordError
	if errors.As(err, &persistErr) {
		return nil, err
	}

	if err := r.step(StateRepairModel, err.Error()); err != nil {
		return nil, err
	}
	patch, rerr := r.repair(planner.StageModeling, err)
	if rerr != nil {
		return nil, rerr
	}
	before := r.plan.Modeling
	after, perr := planner.ApplyModelingPatch(before, patch)
	if err := r.afterPatch(planner.StageModeling, patch, before, after, perr); err != nil {
		return nil, err
	}
	if perr == nil {
		r.plan.Modeling = after
	}

	if err := r.step(StateModel, "retry"); err != nil {
		return nil, err
	}
	res, err = sel()
	if err != nil {
		if errors.As(err, &persistErr) {
			return nil, err
		}
		return nil, r.fatal(planner.StageModeling, err)
	}
	return res, nil
}

// repair records the stage error and asks the oracle once. Oracle failures are
// recorded and yield an empty patch; only RunLog failures are returned.
func (r *run) repair(stage planner.Stage, cause error) (planner.Patch, error) {
	r.logger.WithError(cause).WithField("stage", stage).Warn("stage failed; requesting repair")
	if err := r.record(repairKey(stage, "error"), cause.Error()); err != nil {
		return planner.Patch{}, err
	}
	empty := planner.Patch{Stage: stage}
	if r.Repairer == nil {
		return empty, nil
	}
	patch, err := r.Repairer.Repair(r.ctx, stage, cause.Error(), r.in.Problem)
	if err != nil {
		r.logger.WithError(err).WithField("stage", stage).Warn("repair oracle failed; retrying unpatched")
		return empty, nil
	}
	patch.Stage = stage
	return patch, nil
}

// afterPatch records the applied patch and a unified diff of the stage, or the
// reason the patch could not be applied.
func (r *run) afterPatch(stage planner.Stage, patch planner.Patch, before, after any, applyErr error) error {
	if err := r.record(repairKey(stage, "patch"), patch); err != nil {
		return err
	}
	if applyErr != nil {
		r.logger.WithError(applyErr).WithField("stage", stage).Warn("repair patch could not be applied")
		return r.record(repairKey(stage, "patch_error"), applyErr.Error())
	}
	r.patches = append(r.patches, patch)
	diff, err := stageDiff(stage, before, after)
	if err != nil {
		return err
	}
	return r.record(repairKey(stage, "diff"), diff)
}

func (r *run) fatal(stage planner.Stage, err error) error {
	r.logger.WithError(err).WithField("stage", stage).Error("stage failed after repair")
	if rerr := r.record(repairKey(stage, "failed"), err.Error()); rerr != nil {
		return rerr
	}
	if rerr := r.step(StateFatal, string(stage)); rerr != nil {
		return rerr
	}
	return &StageError{Stage: stage, Err: err}
}

func (r *run) step(state, detail string) error {
	r.logger.WithField("state", state).Info("transition")
	if r.Log == nil {
		return nil
	}
	if err := r.Log.Step(state, detail); err != nil {
		return &recordError{err: err}
	}
	return nil
}

func (r *run) record(key string, value any) error {
	if r.Log == nil {
		return nil
	}
	if err := r.Log.Record(key, value); err != nil {
		return &recordError{err: fmt.Errorf("record %s: %w", key, err)}
	}
	return nil
}

// recordError is a RunLog persistence failure; it aborts the run without repair.
type recordError struct{ err error }

func (e *recordError) Error() string { return "runlog: " + e.err.Error() }
func (e *recordError) Unwrap() error { return e.err }

func repairKey(stage planner.Stage, suffix string) string {
	return fmt.Sprintf("repair_%s_%s", stage, suffix)
}

// stageDiff renders a unified diff between the indented JSON of two stage values.
func stageDiff(stage planner.Stage, before, after any) (string, error) {
	a, err := json.MarshalIndent(before, "", "  ")
	if err != nil {
		return "", err
	}
	b, err := json.MarshalIndent(after, "", "  ")
	if err != nil {
		return "", err
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(a) + "\n"),
		B:        difflib.SplitLines(string(b) + "\n"),
		FromFile: string(stage) + ".before",
		ToFile:   string(stage) + ".after",
		Context:  3,
	})
}
