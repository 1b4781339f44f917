// Package report renders the markdown summary of a run.
package report

import (
	"fmt"
	"sort"
	"strings"

	"autotab/internal/dataset"
	"autotab/internal/planner"
)

const (
	missingRows      = 10
	targetCountsRows = 5

	NarrativeUnavailable = "_Narrative unavailable._"
)

// Data is everything the report shows about one run.
type Data struct {
	DatasetName  string
	RunID        string
	Problem      planner.ProblemType
	Overview     dataset.Overview
	Plan         planner.Plan
	PlanFallback bool
	Patches      []planner.Patch
	ModelName    string
	Metrics      map[string]float64
	// AutomatedError is set when the automated search was abandoned for the baseline pool.
	AutomatedError string
	// Narrative is empty when generation was disabled; NarrativeFailed marks an attempt
	// that produced nothing.
	Narrative       string
	NarrativeFailed bool
}

// Render produces the markdown report.
func Render(d Data) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# AutoML Agent Report - %s\n\n", d.DatasetName)
	if d.RunID != "" {
		fmt.Fprintf(&b, "Run `%s`\n\n", d.RunID)
	}

	b.WriteString("## Overview\n")
	fmt.Fprintf(&b, "- Problem Type: **%s**\n", d.Problem)
	fmt.Fprintf(&b, "- Rows: %d, Cols: %d\n", d.Overview.NumRows, d.Overview.NumCols)
	if top := topCounts(d.Overview.TargetCounts, targetCountsRows); top != "" {
		fmt.Fprintf(&b, "- Target distribution (top): %s\n", top)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## Missingness (top %d)\n", missingRows)
	missing := d.Overview.TopMissing(missingRows)
	if len(missing) == 0 {
		b.WriteString("No columns.\n\n")
	} else {
		b.WriteString("| column | missing |\n|---|---|\n")
		for _, m := range missing {
			fmt.Fprintf(&b, "| %s | %.2f%% |\n", escapeCell(m.Column), m.Fraction*100)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Plan\n")
	if d.PlanFallback {
		b.WriteString("- Planning failed; the default plan was used.\n")
	}
	p := d.Plan
	fmt.Fprintf(&b, "- Preprocess: impute numeric `%s`, impute categorical `%s`, scale %t, one-hot %t\n",
		p.Preprocess.ImputeNumeric, p.Preprocess.ImputeCategorical, p.Preprocess.ScaleNumeric, p.Preprocess.OneHotEncode)
	fmt.Fprintf(&b, "- Modeling: strategy `%s`, candidates %s\n", p.Modeling.Strategy, strings.Join(p.Modeling.Candidates, ", "))
	fmt.Fprintf(&b, "- Evaluation: %s, %d folds\n", p.Evaluation.PrimaryMetric, p.Evaluation.CVFolds)
	fmt.Fprintf(&b, "- Time budget: %ds\n\n", p.TimeBudgetSec)

	if len(d.Patches) > 0 {
		b.WriteString("## Repairs\n")
		for _, patch := range d.Patches {
			raw, err := patch.MarshalJSON()
			if err != nil {
				raw = []byte("{}")
			}
			fmt.Fprintf(&b, "- %s: `%s`\n", patch.Stage, raw)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Model & Metrics\n")
	fmt.Fprintf(&b, "- Selected model: **%s**\n", d.ModelName)
	if d.AutomatedError != "" {
		fmt.Fprintf(&b, "- Automated search skipped: %s\n", d.AutomatedError)
	}
	b.WriteString("\n| metric | value |\n|---|---|\n")
	for _, name := range sortedKeys(d.Metrics) {
		fmt.Fprintf(&b, "| %s | %.4f |\n", name, d.Metrics[name])
	}
	b.WriteString("\n")

	switch {
	case d.Narrative != "":
		b.WriteString("## Narrative\n")
		b.WriteString(strings.TrimSpace(d.Narrative))
		b.WriteString("\n")
	case d.NarrativeFailed:
		b.WriteString("## Narrative\n")
		b.WriteString(NarrativeUnavailable)
		b.WriteString("\n")
	}
	return b.String()
}

// topCounts renders the n most frequent target values, ties broken by label.
func topCounts(counts map[string]int, n int) string {
	if len(counts) == 0 {
		return ""
	}
	labels := make([]string, 0, len(counts))
	for k := range counts {
		labels = append(labels, k)
	}
	sort.Slice(labels, func(i, j int) bool {
		if counts[labels[i]] != counts[labels[j]] {
			return counts[labels[i]] > counts[labels[j]]
		}
		return labels[i] < labels[j]
	})
	if len(labels) > n {
		labels = labels[:n]
	}
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = fmt.Sprintf("%s: %d", l, counts[l])
	}
	return strings.Join(parts, ", ")
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
