package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"autotab/internal/automl"
	"autotab/internal/dataset"
	"autotab/internal/learn"
	"autotab/internal/planner"
	"autotab/internal/preprocess"
)

const (
	minAttemptSec = 10
	maxAttemptSec = 30
)

// fallbackEstimator is used when no requested candidate belongs to the pool.
var fallbackEstimator = map[planner.ProblemType]string{
	planner.Classification: planner.LogisticRegression,
	planner.Regression:     planner.Ridge,
}

// Request is one modeling-stage execution.
type Request struct {
	Problem       planner.ProblemType
	Transformer   *preprocess.Transformer
	Split         *dataset.Split
	Strategy      string
	Candidates    []string
	TimeBudgetSec int
	CVFolds       int
}

// Result is the chosen model with its held-out metrics.
type Result struct {
	Model   *Model
	Metrics map[string]float64
	Name    string
	// Fallback is the swallowed automated-search error, if the search was attempted
	// and failed.
	Fallback error
	// Search is set when the automated search produced the model.
	Search *SearchSummary
}

// SearchSummary is what the automated search tried before settling on a model.
type SearchSummary struct {
	CVMetrics map[string]float64 `json:"cv_metrics"`
	Trials    []automl.Trial     `json:"trials"`
}

// Selector runs the automated search or the baseline pool and picks the best model.
type Selector struct {
	Searcher automl.Searcher
	Logger   log.FieldLogger
	// New builds baseline estimators by pool name. Nil means learn.New.
	New func(name string) (learn.Estimator, error)
}

func NewSelector(searcher automl.Searcher, logger log.FieldLogger) *Selector {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Selector{Searcher: searcher, Logger: logger, New: learn.New}
}

// AttemptCap is the per-attempt cap for a time budget: budget/6 clamped to [10,30]s.
func AttemptCap(budgetSec int) time.Duration {
	sec := budgetSec / 6
	if sec < minAttemptSec {
		sec = minAttemptSec
	}
	if sec > maxAttemptSec {
		sec = maxAttemptSec
	}
	return time.Duration(sec) * time.Second
}

// Select executes the modeling stage. Automated-search failures never surface here;
// only a baseline path where every candidate fails returns an error.
func (s *Selector) Select(ctx context.Context, req Request) (*Result, error) {
	if req.Transformer == nil || req.Split == nil {
		return nil, fmt.Errorf("select: missing transformer or split")
	}
	if req.Strategy != planner.StrategyAutomated {
		return s.baseline(ctx, req)
	}
	res, primaryErr, err := withFallback(
		func() (*Result, error) { return s.automated(ctx, req) },
		func() (*Result, error) { return s.baseline(ctx, req) },
	)
	if primaryErr != nil {
		s.Logger.WithError(primaryErr).Warn("automated search failed; falling back to baseline pool")
		if res != nil {
			res.Fallback = primaryErr
		}
	}
	return res, err
}

func (s *Selector) automated(ctx context.Context, req Request) (*Result, error) {
	if s.Searcher == nil {
		return nil, automl.ErrUnavailable
	}
	out, err := s.Searcher.Search(ctx, automl.Request{
		Problem:        req.Problem,
		Transformer:    req.Transformer,
		Train:          req.Split.TrainX,
		Target:         req.Split.TrainY,
		CVFolds:        req.CVFolds,
		Budget:         time.Duration(req.TimeBudgetSec) * time.Second,
		AttemptTimeout: AttemptCap(req.TimeBudgetSec),
	})
	if err != nil {
		return nil, err
	}
	model := &Model{Name: out.Name, Prep: out.Prep, Estimator: out.Estimator, Classes: req.Split.TrainY.Classes}
	metrics, err := evaluate(req, model)
	if err != nil {
		return nil, err
	}
	s.Logger.WithFields(log.Fields{"model": out.Name, "trials": len(out.Trials)}).Info("automated search selected model")
	return &Result{
		Model:   model,
		Metrics: metrics,
		Name:    out.Name,
		Search:  &SearchSummary{CVMetrics: out.CVMetrics, Trials: out.Trials},
	}, nil
}

// ResolveCandidates keeps names from problem's pool, in order; an empty result
// becomes the single fallback estimator.
func ResolveCandidates(problem planner.ProblemType, names []string) []string {
	var out []string
	for _, name := range names {
		if planner.IsAllowedCandidate(problem, name) {
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		out = []string{fallbackEstimator[problem]}
	}
	return out
}

func (s *Selector) baseline(ctx context.Context, req Request) (*Result, error) {
	var (
		best *Result
		errs []error
	)
	for _, name := range ResolveCandidates(req.Problem, req.Candidates) {
		res, err := s.fitCandidate(ctx, req, name)
		if err != nil {
			s.Logger.WithError(err).WithField("candidate", name).Warn("baseline candidate failed")
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		s.Logger.WithFields(log.Fields{"candidate": name, "metrics": res.Metrics}).Info("baseline candidate evaluated")
		if best == nil || learn.Better(req.Problem, res.Metrics, best.Metrics) {
			best = res
		}
	}
	if best == nil {
		return nil, fmt.Errorf("all baseline candidates failed: %w", errors.Join(errs...))
	}
	return best, nil
}

func (s *Selector) fitCandidate(ctx context.Context, req Request, name string) (*Result, error) {
	newEstimator := s.New
	if newEstimator == nil {
		newEstimator = learn.New
	}
	est, err := newEstimator(name)
	if err != nil {
		return nil, err
	}
	prep, err := req.Transformer.Fit(req.Split.TrainX)
	if err != nil {
		return nil, err
	}
	x, err := prep.Transform(req.Split.TrainX)
	if err != nil {
		return nil, err
	}
	if err := est.Fit(ctx, x, req.Split.TrainY.Y); err != nil {
		return nil, err
	}
	model := &Model{Name: name, Prep: prep, Estimator: est, Classes: req.Split.TrainY.Classes}
	metrics, err := evaluate(req, model)
	if err != nil {
		return nil, err
	}
	return &Result{Model: model, Metrics: metrics, Name: name}, nil
}

func evaluate(req Request, model *Model) (map[string]float64, error) {
	pred, err := model.Predict(req.Split.TestX)
	if err != nil {
		return nil, err
	}
	return learn.Evaluate(req.Problem, req.Split.TestY.Y, pred)
}
