package automl

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"autotab/internal/dataset"
	"autotab/internal/learn"
	"autotab/internal/planner"
	"autotab/internal/preprocess"
)

// NamePrefix prefixes model names chosen by automated search.
const NamePrefix = "AutoML/"

// Config is one entry of the search portfolio.
type Config struct {
	Label string
	New   func() learn.Estimator
}

func defaultPortfolio(problem planner.ProblemType) []Config {
	if problem == planner.Regression {
		return []Config{
			{"Ridge(alpha=1)", func() learn.Estimator { return learn.NewRidge(1) }},
			{"Ridge(alpha=10)", func() learn.Estimator { return learn.NewRidge(10) }},
			{"Ridge(alpha=0.1)", func() learn.Estimator { return learn.NewRidge(0.1) }},
			{"RandomForestRegressor(trees=100)", func() learn.Estimator {
				return learn.NewRandomForestRegressor(learn.ForestParams{Trees: 100})
			}},
			{"RandomForestRegressor(trees=50,depth=8,min_leaf=3)", func() learn.Estimator {
				return learn.NewRandomForestRegressor(learn.ForestParams{Trees: 50, MaxDepth: 8, MinLeaf: 3})
			}},
		}
	}
	return []Config{
		{"LogisticRegression(C=1)", func() learn.Estimator { return learn.NewLogisticRegression(1) }},
		{"LogisticRegression(C=0.1)", func() learn.Estimator { return learn.NewLogisticRegression(0.1) }},
		{"LogisticRegression(C=10)", func() learn.Estimator { return learn.NewLogisticRegression(10) }},
		{"RandomForestClassifier(trees=100)", func() learn.Estimator {
			return learn.NewRandomForestClassifier(learn.ForestParams{Trees: 100})
		}},
		{"RandomForestClassifier(trees=50,depth=8,min_leaf=3)", func() learn.Estimator {
			return learn.NewRandomForestClassifier(learn.ForestParams{Trees: 50, MaxDepth: 8, MinLeaf: 3})
		}},
	}
}

// Portfolio cross-validates a fixed list of configurations and refits the best.
type Portfolio struct {
	Configs func(planner.ProblemType) []Config
	Now     func() time.Time
}

func NewPortfolio() *Portfolio {
	return &Portfolio{Configs: defaultPortfolio, Now: time.Now}
}

func (p *Portfolio) Name() string { return BackendPortfolio }

func (p *Portfolio) Search(ctx context.Context, req Request) (*Outcome, error) {
	if req.Transformer == nil || req.Train == nil {
		return nil, fmt.Errorf("search: missing transformer or training data")
	}
	n := len(req.Target.Y)
	if n != req.Train.NumRows() {
		return nil, fmt.Errorf("search: %d rows but %d targets", req.Train.NumRows(), n)
	}
	folds := ClampFolds(req.CVFolds)
	if n < folds {
		return nil, fmt.Errorf("search: %d rows is fewer than %d folds", n, folds)
	}
	assign := foldAssignment(req.Problem, req.Target.Y, folds)

	now := p.Now
	if now == nil {
		now = time.Now
	}
	start := now()
	configs := p.Configs(req.Problem)

	var (
		trials   []Trial
		errs     []error
		best     *Config
		bestMets map[string]float64
	)
	for i := range configs {
		cfg := &configs[i]
		if req.Budget > 0 && now().Sub(start) >= req.Budget {
			errs = append(errs, fmt.Errorf("%s: budget of %s exhausted", cfg.Label, req.Budget))
			break
		}
		metrics, err := p.crossValidate(ctx, req, cfg, assign, folds)
		if err != nil {
			trials = append(trials, Trial{Config: cfg.Label, Error: err.Error()})
			errs = append(errs, fmt.Errorf("%s: %w", cfg.Label, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		trials = append(trials, Trial{Config: cfg.Label, Metrics: metrics})
		if learn.Better(req.Problem, metrics, bestMets) {
			best, bestMets = cfg, metrics
		}
	}
	if best == nil {
		return nil, fmt.Errorf("search: no configuration succeeded: %w", errors.Join(errs...))
	}

	attemptCtx, cancel := p.attemptContext(ctx, req)
	defer cancel()
	prep, est, err := fitPipeline(attemptCtx, req.Transformer, best, req.Train, req.Target.Y)
	if err != nil {
		return nil, fmt.Errorf("search: refit %s: %w", best.Label, err)
	}
	return &Outcome{
		Name:      NamePrefix + best.Label,
		Prep:      prep,
		Estimator: est,
		CVMetrics: bestMets,
		Trials:    trials,
	}, nil
}

func (p *Portfolio) attemptContext(ctx context.Context, req Request) (context.Context, context.CancelFunc) {
	if req.AttemptTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, req.AttemptTimeout)
}

// crossValidate averages each metric across folds.
func (p *Portfolio) crossValidate(ctx context.Context, req Request, cfg *Config, assign []int, folds int) (map[string]float64, error) {
	attemptCtx, cancel := p.attemptContext(ctx, req)
	defer cancel()

	sum := map[string]float64{}
	for k := 0; k < folds; k++ {
		var trainRows, testRows []int
		for i, f := range assign {
			if f == k {
				testRows = append(testRows, i)
			} else {
				trainRows = append(trainRows, i)
			}
		}
		if len(testRows) == 0 || len(trainRows) == 0 {
			continue
		}
		prep, est, err := fitPipeline(attemptCtx, req.Transformer, cfg, req.Train.Rows(trainRows), pick(req.Target.Y, trainRows))
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", k, err)
		}
		x, err := prep.Transform(req.Train.Rows(testRows))
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", k, err)
		}
		pred, err := est.Predict(x)
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", k, err)
		}
		metrics, err := learn.Evaluate(req.Problem, pick(req.Target.Y, testRows), pred)
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", k, err)
		}
		for name, v := range metrics {
			sum[name] += v
		}
	}
	for name := range sum {
		sum[name] /= float64(folds)
	}
	return sum, nil
}

func fitPipeline(ctx context.Context, t *preprocess.Transformer, cfg *Config, frame *dataset.Frame, y []float64) (*preprocess.Fitted, learn.Estimator, error) {
	prep, err := t.Fit(frame)
	if err != nil {
		return nil, nil, err
	}
	x, err := prep.Transform(frame)
	if err != nil {
		return nil, nil, err
	}
	est := cfg.New()
	if err := est.Fit(ctx, x, y); err != nil {
		return nil, nil, err
	}
	return prep, est, nil
}

// foldAssignment deals classification rows round-robin within each class so every fold
// sees every label; regression rows are split into contiguous blocks.
func foldAssignment(problem planner.ProblemType, y []float64, folds int) []int {
	n := len(y)
	assign := make([]int, n)
	if problem == planner.Regression {
		for i := range assign {
			assign[i] = i * folds / n
		}
		return assign
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return y[order[a]] < y[order[b]] })
	for rank, i := range order {
		assign[i] = rank % folds
	}
	return assign
}

func pick(values []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for k, i := range idx {
		out[k] = values[i]
	}
	return out
}
