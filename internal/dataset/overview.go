package dataset

import (
	"fmt"
	"sort"

	"autotab/internal/planner"
)

// Overview is the read-only dataset summary handed to the planner and the report.
type Overview struct {
	NumRows      int                `json:"n_rows"`
	NumCols      int                `json:"n_cols"`
	Columns      []string           `json:"columns"`
	Dtypes       map[string]string  `json:"dtypes"`
	MissingPerc  map[string]float64 `json:"missing_perc"`
	TargetCounts map[string]int     `json:"target_value_counts"`
}

// ColumnMissing pairs a column with its missing fraction.
type ColumnMissing struct {
	Column   string  `json:"column"`
	Fraction float64 `json:"fraction"`
}

// Summarize builds the Overview for frame. TargetCounts is empty when target is absent.
func Summarize(frame *Frame, target string) Overview {
	ov := Overview{
		NumRows:      frame.NumRows(),
		NumCols:      len(frame.Columns),
		Columns:      frame.Names(),
		Dtypes:       make(map[string]string, len(frame.Columns)),
		MissingPerc:  make(map[string]float64, len(frame.Columns)),
		TargetCounts: map[string]int{},
	}
	for i := range frame.Columns {
		c := &frame.Columns[i]
		ov.Dtypes[c.Name] = c.Dtype()
		missing := 0
		for r := range c.Str {
			if c.Missing(r) {
				missing++
			}
		}
		if ov.NumRows > 0 {
			ov.MissingPerc[c.Name] = float64(missing) / float64(ov.NumRows)
		} else {
			ov.MissingPerc[c.Name] = 0
		}
	}
	if tc, ok := frame.Column(target); ok {
		for r := range tc.Str {
			ov.TargetCounts[tc.Label(r)]++
		}
	}
	return ov
}

// TopMissing returns the n columns with the highest missing fraction, ties by name.
func (o Overview) TopMissing(n int) []ColumnMissing {
	out := make([]ColumnMissing, 0, len(o.MissingPerc))
	for name, frac := range o.MissingPerc {
		out = append(out, ColumnMissing{Column: name, Fraction: frac})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Fraction != out[j].Fraction {
			return out[i].Fraction > out[j].Fraction
		}
		return out[i].Column < out[j].Column
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// DetectProblemType classifies target as classification or regression. A numeric
// target with few distinct values (at most max(20, 5% of rows)) is classification.
// Non-numeric targets are always classification.
func DetectProblemType(frame *Frame, target string) (planner.ProblemType, error) {
	col, ok := frame.Column(target)
	if !ok {
		return "", fmt.Errorf("target %q not in columns", target)
	}
	if !col.Numeric {
		return planner.Classification, nil
	}
	distinct := map[float64]struct{}{}
	n := 0
	for i, v := range col.Num {
		if col.Missing(i) {
			continue
		}
		n++
		distinct[v] = struct{}{}
	}
	if n == 0 {
		return "", fmt.Errorf("target %q has no values", target)
	}
	threshold := int(0.05 * float64(len(col.Num)))
	if threshold < 20 {
		threshold = 20
	}
	if len(distinct) <= threshold {
		return planner.Classification, nil
	}
	return planner.Regression, nil
}
