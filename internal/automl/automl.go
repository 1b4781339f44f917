package automl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"autotab/internal/dataset"
	"autotab/internal/learn"
	"autotab/internal/planner"
	"autotab/internal/preprocess"
)

const (
	BackendPortfolio = "portfolio"
	BackendNone      = "none"

	minFolds = 2
	maxFolds = 10
)

// ErrUnavailable means no automated search backend is installed or enabled.
var ErrUnavailable = errors.New("automated search backend unavailable")

// Request is one automated search over the training split.
type Request struct {
	Problem     planner.ProblemType
	Transformer *preprocess.Transformer
	Train       *dataset.Frame
	Target      dataset.Target
	CVFolds     int
	// Budget bounds the whole search; no configuration starts after it elapses.
	Budget time.Duration
	// AttemptTimeout caps each configuration's cross-validation and refit.
	AttemptTimeout time.Duration
}

// Trial records one evaluated configuration.
type Trial struct {
	Config  string             `json:"config"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// Outcome is the best configuration refit on the full training split.
type Outcome struct {
	Name      string
	Prep      *preprocess.Fitted
	Estimator learn.Estimator
	CVMetrics map[string]float64
	Trials    []Trial
}

type Searcher interface {
	Name() string
	Search(ctx context.Context, req Request) (*Outcome, error)
}

// New returns the searcher for a configured backend name.
func New(backend string) (Searcher, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendPortfolio:
		return NewPortfolio(), nil
	case BackendNone:
		return Unavailable{}, nil
	default:
		return nil, fmt.Errorf("unknown automl backend %q", backend)
	}
}

// Unavailable is the "none" backend.
type Unavailable struct{}

func (Unavailable) Name() string { return BackendNone }

func (Unavailable) Search(context.Context, Request) (*Outcome, error) {
	return nil, ErrUnavailable
}

// ClampFolds keeps cv_folds within [2,10].
func ClampFolds(folds int) int {
	if folds < minFolds {
		return minFolds
	}
	if folds > maxFolds {
		return maxFolds
	}
	return folds
}
