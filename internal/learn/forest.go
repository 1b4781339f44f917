package learn

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const defaultTrees = 100

// ForestParams configures a random forest. Zero values select the defaults: 100 trees,
// unlimited depth, one sample per leaf, seed 42.
type ForestParams struct {
	Trees    int    `json:"trees"`
	MaxDepth int    `json:"max_depth,omitempty"`
	MinLeaf  int    `json:"min_leaf"`
	Seed     uint64 `json:"seed"`
}

func (p ForestParams) withDefaults() ForestParams {
	if p.Trees <= 0 {
		p.Trees = defaultTrees
	}
	if p.MinLeaf <= 0 {
		p.MinLeaf = 1
	}
	if p.Seed == 0 {
		p.Seed = Seed
	}
	return p
}

// Node is a tree node. Leaves have Feature -1 and carry Value: class probabilities for
// classification, a single mean for regression.
type Node struct {
	Feature   int       `json:"f"`
	Threshold float64   `json:"t,omitempty"`
	Left      int       `json:"l,omitempty"`
	Right     int       `json:"r,omitempty"`
	Value     []float64 `json:"v,omitempty"`
}

type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) leaf(row []float64) []float64 {
	i := 0
	for t.Nodes[i].Feature >= 0 {
		n := t.Nodes[i]
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return t.Nodes[i].Value
}

// Forest is a bagged ensemble of CART trees. Classifiers split on gini impurity over
// sqrt(d) random features; regressors split on squared error over all features.
type Forest struct {
	Params     ForestParams `json:"params"`
	Classifier bool         `json:"classifier"`
	Classes    int          `json:"classes,omitempty"`
	Features   int          `json:"features"`
	Trees      []Tree       `json:"trees,omitempty"`
}

func NewRandomForestClassifier(p ForestParams) *Forest {
	return &Forest{Params: p.withDefaults(), Classifier: true}
}

func NewRandomForestRegressor(p ForestParams) *Forest {
	return &Forest{Params: p.withDefaults()}
}

func (f *Forest) Name() string {
	if f.Classifier {
		return "RandomForestClassifier"
	}
	return "RandomForestRegressor"
}

func (f *Forest) Fit(ctx context.Context, x *mat.Dense, y []float64) error {
	n, d, err := checkFitInput(x, y)
	if err != nil {
		return err
	}
	cols := make([][]float64, d)
	for j := range cols {
		cols[j] = mat.Col(nil, j, x)
	}

	b := &treeBuilder{
		cols:        cols,
		y:           y,
		classifier:  f.Classifier,
		minLeaf:     f.Params.MinLeaf,
		maxDepth:    f.Params.MaxDepth,
		maxFeatures: d,
		rng:         rand.New(rand.NewPCG(f.Params.Seed, f.Params.Seed)),
	}
	if f.Classifier {
		b.classes = numClasses(y)
		b.maxFeatures = int(math.Max(1, math.Floor(math.Sqrt(float64(d)))))
	}

	trees := make([]Tree, 0, f.Params.Trees)
	for t := 0; t < f.Params.Trees; t++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("forest: stopped after %d trees: %w", t, err)
		}
		sample := make([]int, n)
		for i := range sample {
			sample[i] = b.rng.IntN(n)
		}
		b.nodes = nil
		b.grow(sample, 0)
		trees = append(trees, Tree{Nodes: b.nodes})
	}

	f.Trees = trees
	f.Features = d
	f.Classes = b.classes
	return nil
}

func (f *Forest) Predict(x *mat.Dense) ([]float64, error) {
	if len(f.Trees) == 0 {
		return nil, ErrNotFitted
	}
	n, err := checkPredictInput(x, f.Features)
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	width := 1
	if f.Classifier {
		width = f.Classes
	}
	acc := make([]float64, width)
	row := make([]float64, f.Features)
	for i := 0; i < n; i++ {
		mat.Row(row, i, x)
		for k := range acc {
			acc[k] = 0
		}
		for t := range f.Trees {
			floats.Add(acc, f.Trees[t].leaf(row))
		}
		if f.Classifier {
			out[i] = float64(floats.MaxIdx(acc))
		} else {
			out[i] = acc[0] / float64(len(f.Trees))
		}
	}
	return out, nil
}

type treeBuilder struct {
	cols        [][]float64
	y           []float64
	classifier  bool
	classes     int
	minLeaf     int
	maxDepth    int
	maxFeatures int
	rng         *rand.Rand
	nodes       []Node
}

func (b *treeBuilder) value(idx []int) []float64 {
	if b.classifier {
		v := make([]float64, b.classes)
		for _, i := range idx {
			v[int(b.y[i])]++
		}
		floats.Scale(1/float64(len(idx)), v)
		return v
	}
	var sum float64
	for _, i := range idx {
		sum += b.y[i]
	}
	return []float64{sum / float64(len(idx))}
}

func pure(v []float64, classifier bool) bool {
	if !classifier {
		return false
	}
	return floats.Max(v) == 1
}

// grow appends the subtree for idx and returns its node index.
func (b *treeBuilder) grow(idx []int, depth int) int {
	id := len(b.nodes)
	value := b.value(idx)
	b.nodes = append(b.nodes, Node{Feature: -1, Value: value})

	if len(idx) < 2*b.minLeaf || (b.maxDepth > 0 && depth >= b.maxDepth) || pure(value, b.classifier) {
		return id
	}
	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		return id
	}

	var left, right []int
	for _, i := range idx {
		if b.cols[feature][i] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[id] = Node{Feature: feature, Threshold: threshold, Left: l, Right: r}
	return id
}

// bestSplit maximizes the weighted purity score: sum(counts²)/n per side for gini,
// sum²/n per side for squared error. Both are equivalent to minimizing impurity.
func (b *treeBuilder) bestSplit(idx []int) (int, float64, bool) {
	d := len(b.cols)
	features := b.rng.Perm(d)[:b.maxFeatures]
	n := len(idx)

	parent := b.score(idx)
	best := parent + 1e-12
	bestFeature, bestThreshold, found := -1, 0.0, false

	order := make([]int, n)
	for _, f := range features {
		col := b.cols[f]
		copy(order, idx)
		sort.SliceStable(order, func(a, c int) bool { return col[order[a]] < col[order[c]] })

		var sumL, sumR float64
		var cntL, cntR []float64
		var sqL, sqR float64
		if b.classifier {
			cntL = make([]float64, b.classes)
			cntR = make([]float64, b.classes)
			for _, i := range order {
				cntR[int(b.y[i])]++
			}
			for _, c := range cntR {
				sqR += c * c
			}
		} else {
			for _, i := range order {
				sumR += b.y[i]
			}
		}

		for k := 0; k < n-1; k++ {
			yi := b.y[order[k]]
			if b.classifier {
				c := int(yi)
				sqL += 2*cntL[c] + 1
				sqR -= 2*cntR[c] - 1
				cntL[c]++
				cntR[c]--
			} else {
				sumL += yi
				sumR -= yi
			}
			nL, nR := k+1, n-k-1
			if nL < b.minLeaf || nR < b.minLeaf {
				continue
			}
			lo, hi := col[order[k]], col[order[k+1]]
			if lo == hi {
				continue
			}
			var s float64
			if b.classifier {
				s = sqL/float64(nL) + sqR/float64(nR)
			} else {
				s = sumL*sumL/float64(nL) + sumR*sumR/float64(nR)
			}
			if s > best {
				best = s
				bestFeature = f
				bestThreshold = lo + (hi-lo)/2
				if bestThreshold == hi {
					bestThreshold = lo
				}
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}

func (b *treeBuilder) score(idx []int) float64 {
	n := float64(len(idx))
	if b.classifier {
		counts := make([]float64, b.classes)
		for _, i := range idx {
			counts[int(b.y[i])]++
		}
		return floats.Dot(counts, counts) / n
	}
	var sum float64
	for _, i := range idx {
		sum += b.y[i]
	}
	return sum * sum / n
}
