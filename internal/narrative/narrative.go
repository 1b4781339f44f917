// Package narrative asks a language model for a short prose summary of a finished run.
package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"autotab/internal/dataset"
	"autotab/internal/oracle"
	"autotab/internal/planner"
)

// ErrEmpty is returned when the provider replies with blank text.
var ErrEmpty = errors.New("narrative: empty reply")

const instructions = "You are a data science assistant. Write a factual, concise narrative for a report.\n" +
	"Only use the numbers provided in the JSON context. Do not invent values.\n" +
	"Explain data shape, notable missingness, target balance (if classification),\n" +
	"what model won and how it likely helped (one sentence), and key metric(s).\n" +
	"Tone: professional, 10 - 15 sentences. Use plain Markdown, no emojis.\n\n"

// Input is the run summary the narrative may draw on.
type Input struct {
	DatasetName string
	Problem     planner.ProblemType
	Overview    dataset.Overview
	ModelName   string
	Metrics     map[string]float64
}

type promptContext struct {
	DatasetName  string              `json:"dataset_name"`
	Problem      planner.ProblemType `json:"problem"`
	NumRows      int                 `json:"n_rows"`
	NumCols      int                 `json:"n_cols"`
	TopMissing   map[string]float64  `json:"top_missing"`
	TargetCounts map[string]int      `json:"target_value_counts"`
	Model        string              `json:"selected_model"`
	Metrics      map[string]float64  `json:"metrics"`
}

// Generator produces report narratives through Provider.
type Generator struct {
	Provider oracle.Provider
	Logger   log.FieldLogger
}

func NewGenerator(p oracle.Provider, logger log.FieldLogger) *Generator {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Generator{Provider: p, Logger: logger}
}

// Prompt renders the narrative request for in.
func Prompt(in Input) (string, error) {
	missing := map[string]float64{}
	for _, m := range in.Overview.TopMissing(5) {
		missing[m.Column] = m.Fraction
	}
	raw, err := json.MarshalIndent(promptContext{
		DatasetName:  in.DatasetName,
		Problem:      in.Problem,
		NumRows:      in.Overview.NumRows,
		NumCols:      in.Overview.NumCols,
		TopMissing:   missing,
		TargetCounts: in.Overview.TargetCounts,
		Model:        in.ModelName,
		Metrics:      in.Metrics,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode narrative context: %w", err)
	}
	return instructions + "CONTEXT JSON:\n```json\n" + string(raw) + "\n```\nWrite the narrative now.", nil
}

// Generate returns the narrative text. Failures are logged as warnings and returned;
// the caller decides whether the report goes out without one.
func (g *Generator) Generate(ctx context.Context, in Input) (string, error) {
	text, err := g.generate(ctx, in)
	if err != nil {
		g.Logger.WithError(err).Warn("narrative generation failed")
		return "", err
	}
	return text, nil
}

func (g *Generator) generate(ctx context.Context, in Input) (string, error) {
	if g.Provider == nil {
		return "", errors.New("narrative: no provider configured")
	}
	prompt, err := Prompt(in)
	if err != nil {
		return "", err
	}
	reply, err := g.Provider.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("narrative via %s: %w", g.Provider.Name(), err)
	}
	text := strings.TrimSpace(reply)
	if text == "" {
		return "", ErrEmpty
	}
	return text, nil
}
