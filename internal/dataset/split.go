package dataset

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"autotab/internal/planner"
)

const (
	DefaultTestSize = 0.2
	DefaultSeed     = 42
	// Classification targets with fewer distinct labels than this are split stratified.
	stratifyMaxClasses = 50
)

// Target holds encoded target values. For classification Y holds class indices into
// Classes; for regression Y holds the values and Classes is nil.
type Target struct {
	Classes []string
	Y       []float64
}

// Split is a train/test partition of features and target.
type Split struct {
	TrainX *Frame
	TestX  *Frame
	TrainY Target
	TestY  Target
}

// SplitOptions controls Partition.
type SplitOptions struct {
	TestSize float64
	Seed     uint64
}

// Partition drops rows with a missing target, encodes the target, and splits rows
// into train and test. Classification targets are stratified when they have fewer
// than 50 labels.
func Partition(frame *Frame, target string, problem planner.ProblemType, opts SplitOptions) (*Split, error) {
	if opts.TestSize <= 0 || opts.TestSize >= 1 {
		opts.TestSize = DefaultTestSize
	}
	if opts.Seed == 0 {
		opts.Seed = DefaultSeed
	}
	col, ok := frame.Column(target)
	if !ok {
		return nil, fmt.Errorf("target %q not in columns", target)
	}

	var rows []int
	for i := range col.Str {
		if !col.Missing(i) {
			rows = append(rows, i)
		}
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("need at least 2 rows with a target value, have %d", len(rows))
	}

	features := frame.Without(target).Rows(rows)
	y, classes, err := encodeTarget(col, rows, problem)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))
	var trainIdx, testIdx []int
	if problem == planner.Classification && len(classes) < stratifyMaxClasses {
		trainIdx, testIdx = stratifiedSplit(y, len(classes), opts.TestSize, rng)
	} else {
		trainIdx, testIdx = shuffleSplit(len(y), opts.TestSize, rng)
	}

	return &Split{
		TrainX: features.Rows(trainIdx),
		TestX:  features.Rows(testIdx),
		TrainY: Target{Classes: classes, Y: pick(y, trainIdx)},
		TestY:  Target{Classes: classes, Y: pick(y, testIdx)},
	}, nil
}

func encodeTarget(col *Column, rows []int, problem planner.ProblemType) ([]float64, []string, error) {
	y := make([]float64, len(rows))
	if problem == planner.Regression {
		if !col.Numeric {
			return nil, nil, fmt.Errorf("regression target %q is not numeric", col.Name)
		}
		for k, i := range rows {
			y[k] = col.Num[i]
		}
		return y, nil, nil
	}

	seen := map[string]struct{}{}
	for _, i := range rows {
		seen[col.Label(i)] = struct{}{}
	}
	classes := make([]string, 0, len(seen))
	for label := range seen {
		classes = append(classes, label)
	}
	sort.Strings(classes)
	index := make(map[string]int, len(classes))
	for i, label := range classes {
		index[label] = i
	}
	for k, i := range rows {
		y[k] = float64(index[col.Label(i)])
	}
	return y, classes, nil
}

func shuffleSplit(n int, testSize float64, rng *rand.Rand) ([]int, []int) {
	perm := rng.Perm(n)
	nTest := int(math.Ceil(testSize * float64(n)))
	if nTest >= n {
		nTest = n - 1
	}
	test := append([]int(nil), perm[:nTest]...)
	train := append([]int(nil), perm[nTest:]...)
	sort.Ints(test)
	sort.Ints(train)
	return train, test
}

func stratifiedSplit(y []float64, nClasses int, testSize float64, rng *rand.Rand) ([]int, []int) {
	byClass := make([][]int, nClasses)
	for i, v := range y {
		byClass[int(v)] = append(byClass[int(v)], i)
	}
	var train, test []int
	for _, members := range byClass {
		rng.Shuffle(len(members), func(i, j int) { members[i], members[j] = members[j], members[i] })
		nTest := int(math.Round(testSize * float64(len(members))))
		if nTest >= len(members) {
			nTest = len(members) - 1
		}
		test = append(test, members[:nTest]...)
		train = append(train, members[nTest:]...)
	}
	if len(test) == 0 {
		// Every class too small to contribute; move one training row over.
		test = append(test, train[len(train)-1])
		train = train[:len(train)-1]
	}
	sort.Ints(test)
	sort.Ints(train)
	return train, test
}

func pick(values []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for k, i := range idx {
		out[k] = values[i]
	}
	return out
}
