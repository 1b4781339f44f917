package preprocess

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"autotab/internal/dataset"
	"autotab/internal/planner"
)

const (
	ImputeMean         = "mean"
	ImputeMedian       = "median"
	ImputeMostFrequent = "most_frequent"
	ImputeConstant     = "constant"

	// Fill value for categorical constant imputation.
	MissingCategory = "missing"
)

var (
	ErrNoFeatures      = errors.New("no feature columns")
	ErrUnknownImputer  = errors.New("unknown imputer strategy")
	ErrCategoricalData = errors.New("categorical columns require one_hot_encode")
)

var numericImputers = map[string]bool{
	ImputeMean:         true,
	ImputeMedian:       true,
	ImputeMostFrequent: true,
	ImputeConstant:     true,
}

var categoricalImputers = map[string]bool{
	ImputeMostFrequent: true,
	ImputeConstant:     true,
}

// Transformer is an unfitted preprocessing pipeline bound to a set of feature columns.
type Transformer struct {
	Options     planner.Preprocess
	Numeric     []string
	Categorical []string
}

// Build validates opts against the feature columns. Imputer names are only checked for
// column kinds that are present.
func Build(features *dataset.Frame, opts planner.Preprocess) (*Transformer, error) {
	if features == nil || len(features.Columns) == 0 {
		return nil, ErrNoFeatures
	}
	t := &Transformer{Options: opts}
	for _, c := range features.Columns {
		if c.Numeric {
			t.Numeric = append(t.Numeric, c.Name)
		} else {
			t.Categorical = append(t.Categorical, c.Name)
		}
	}
	if len(t.Numeric) > 0 && !numericImputers[opts.ImputeNumeric] {
		return nil, fmt.Errorf("impute_numeric %q: %w", opts.ImputeNumeric, ErrUnknownImputer)
	}
	if len(t.Categorical) > 0 {
		if !categoricalImputers[opts.ImputeCategorical] {
			return nil, fmt.Errorf("impute_categorical %q: %w", opts.ImputeCategorical, ErrUnknownImputer)
		}
		if !opts.OneHotEncode {
			return nil, fmt.Errorf("%d categorical columns %v: %w", len(t.Categorical), t.Categorical, ErrCategoricalData)
		}
	}
	return t, nil
}

type numericStep struct {
	Name  string  `json:"name"`
	Fill  float64 `json:"fill"`
	Mean  float64 `json:"mean"`
	Scale float64 `json:"scale"`
}

type categoricalStep struct {
	Name       string   `json:"name"`
	Fill       string   `json:"fill"`
	Categories []string `json:"categories"`
}

// Fitted holds learned fill values, scaler moments and categories.
type Fitted struct {
	ScaleNumeric bool              `json:"scale_numeric"`
	Numeric      []numericStep     `json:"numeric"`
	Categorical  []categoricalStep `json:"categorical"`
}

// Fit learns the transformation from frame.
func (t *Transformer) Fit(frame *dataset.Frame) (*Fitted, error) {
	if frame.NumRows() == 0 {
		return nil, fmt.Errorf("fit preprocessing: empty frame")
	}
	fitted := &Fitted{ScaleNumeric: t.Options.ScaleNumeric}
	for _, name := range t.Numeric {
		col, ok := frame.Column(name)
		if !ok {
			return nil, fmt.Errorf("fit preprocessing: column %q missing", name)
		}
		present := presentValues(col)
		fill := numericFill(t.Options.ImputeNumeric, present)
		imputed := make([]float64, len(col.Num))
		for i, v := range col.Num {
			if math.IsNaN(v) {
				v = fill
			}
			imputed[i] = v
		}
		step := numericStep{Name: name, Fill: fill, Scale: 1}
		if t.Options.ScaleNumeric {
			mean, std := stat.PopMeanStdDev(imputed, nil)
			step.Mean = mean
			if std > 0 {
				step.Scale = std
			}
		}
		fitted.Numeric = append(fitted.Numeric, step)
	}
	for _, name := range t.Categorical {
		col, ok := frame.Column(name)
		if !ok {
			return nil, fmt.Errorf("fit preprocessing: column %q missing", name)
		}
		fill := categoricalFill(t.Options.ImputeCategorical, col)
		seen := map[string]struct{}{}
		for i, v := range col.Str {
			if col.Missing(i) {
				v = fill
			}
			seen[v] = struct{}{}
		}
		cats := make([]string, 0, len(seen))
		for v := range seen {
			cats = append(cats, v)
		}
		sort.Strings(cats)
		fitted.Categorical = append(fitted.Categorical, categoricalStep{Name: name, Fill: fill, Categories: cats})
	}
	return fitted, nil
}

// Width is the number of output columns.
func (f *Fitted) Width() int {
	w := len(f.Numeric)
	for _, c := range f.Categorical {
		w += len(c.Categories)
	}
	return w
}

// Transform encodes frame into a dense matrix. Unseen categories encode as all zeros.
func (f *Fitted) Transform(frame *dataset.Frame) (*mat.Dense, error) {
	n := frame.NumRows()
	if n == 0 {
		return nil, fmt.Errorf("transform: empty frame")
	}
	out := mat.NewDense(n, f.Width(), nil)
	j := 0
	for _, step := range f.Numeric {
		col, ok := frame.Column(step.Name)
		if !ok {
			return nil, fmt.Errorf("transform: column %q missing", step.Name)
		}
		for i := 0; i < n; i++ {
			v := step.Fill
			if col.Numeric && !col.Missing(i) {
				v = col.Num[i]
			}
			if f.ScaleNumeric {
				v = (v - step.Mean) / step.Scale
			}
			out.Set(i, j, v)
		}
		j++
	}
	for _, step := range f.Categorical {
		col, ok := frame.Column(step.Name)
		if !ok {
			return nil, fmt.Errorf("transform: column %q missing", step.Name)
		}
		for i := 0; i < n; i++ {
			v := step.Fill
			if !col.Missing(i) {
				v = col.Str[i]
			}
			if k := sort.SearchStrings(step.Categories, v); k < len(step.Categories) && step.Categories[k] == v {
				out.Set(i, j+k, 1)
			}
		}
		j += len(step.Categories)
	}
	return out, nil
}

func presentValues(col *dataset.Column) []float64 {
	out := make([]float64, 0, len(col.Num))
	for _, v := range col.Num {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

func numericFill(strategy string, present []float64) float64 {
	if len(present) == 0 || strategy == ImputeConstant {
		return 0
	}
	switch strategy {
	case ImputeMean:
		return stat.Mean(present, nil)
	case ImputeMostFrequent:
		counts := map[float64]int{}
		for _, v := range present {
			counts[v]++
		}
		best, bestN := 0.0, -1
		for v, c := range counts {
			if c > bestN || (c == bestN && v < best) {
				best, bestN = v, c
			}
		}
		return best
	default:
		sorted := append([]float64(nil), present...)
		sort.Float64s(sorted)
		mid := len(sorted) / 2
		if len(sorted)%2 == 1 {
			return sorted[mid]
		}
		return (sorted[mid-1] + sorted[mid]) / 2
	}
}

func categoricalFill(strategy string, col *dataset.Column) string {
	if strategy == ImputeConstant {
		return MissingCategory
	}
	counts := map[string]int{}
	for i, v := range col.Str {
		if !col.Missing(i) {
			counts[v]++
		}
	}
	best, bestN := MissingCategory, 0
	for v, c := range counts {
		if c > bestN || (c == bestN && v < best) {
			best, bestN = v, c
		}
	}
	return best
}
