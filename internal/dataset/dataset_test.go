package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotab/internal/planner"
)

const irisLike = `sepal,petal,colour,species
5.1,1.4,red,setosa
4.9,1.4,,setosa
6.2,4.5,blue,versicolor
NA,4.1,blue,versicolor
6.9,5.8,green,virginica
6.5,5.5,green,virginica
,,,
`

func TestReadCSVInfersTypesAndMissing(t *testing.T) {
	frame, err := ReadCSV(strings.NewReader(irisLike))
	require.NoError(t, err)

	assert.Equal(t, []string{"sepal", "petal", "colour", "species"}, frame.Names())
	assert.Equal(t, 6, frame.NumRows(), "fully empty row dropped")

	sepal, ok := frame.Column("sepal")
	require.True(t, ok)
	assert.True(t, sepal.Numeric)
	assert.Equal(t, "float64", sepal.Dtype())
	assert.True(t, sepal.Missing(3))

	colour, _ := frame.Column("colour")
	assert.False(t, colour.Numeric)
	assert.Equal(t, "object", colour.Dtype())
	assert.True(t, colour.Missing(1))
}

func TestReadCSVDropsEmptyColumns(t *testing.T) {
	frame, err := ReadCSV(strings.NewReader("a,empty,b\n1,,x\n2,null,y\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, frame.Names())
	a, _ := frame.Column("a")
	assert.Equal(t, "int64", a.Dtype())
}

func TestReadCSVEmptyInput(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	require.Error(t, err)
}

func TestLoadCSVMissingFile(t *testing.T) {
	_, err := LoadCSV(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
}

func TestSummarize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iris.csv")
	require.NoError(t, os.WriteFile(path, []byte(irisLike), 0o644))
	frame, err := LoadCSV(path)
	require.NoError(t, err)

	ov := Summarize(frame, "species")
	assert.Equal(t, 6, ov.NumRows)
	assert.Equal(t, 4, ov.NumCols)
	assert.Equal(t, "object", ov.Dtypes["species"])
	assert.InDelta(t, 1.0/6.0, ov.MissingPerc["sepal"], 1e-9)
	assert.Equal(t, map[string]int{"setosa": 2, "versicolor": 2, "virginica": 2}, ov.TargetCounts)

	top := ov.TopMissing(2)
	require.Len(t, top, 2)
	assert.Equal(t, "colour", top[0].Column, "ties broken by name")
	assert.Equal(t, "sepal", top[1].Column)
}

func TestSummarizeUnknownTarget(t *testing.T) {
	frame, err := ReadCSV(strings.NewReader("a\n1\n"))
	require.NoError(t, err)
	assert.Empty(t, Summarize(frame, "y").TargetCounts)
}

func numericFrame(name string, values []float64) *Frame {
	var b strings.Builder
	b.WriteString("x," + name + "\n")
	for i, v := range values {
		fmt.Fprintf(&b, "%d,%g\n", i, v)
	}
	frame, err := ReadCSV(strings.NewReader(b.String()))
	if err != nil {
		panic(err)
	}
	return frame
}

func TestDetectProblemType(t *testing.T) {
	few := make([]float64, 100)
	for i := range few {
		few[i] = float64(i % 3)
	}
	problem, err := DetectProblemType(numericFrame("y", few), "y")
	require.NoError(t, err)
	assert.Equal(t, planner.Classification, problem)

	many := make([]float64, 100)
	for i := range many {
		many[i] = float64(i) * 1.5
	}
	problem, err = DetectProblemType(numericFrame("y", many), "y")
	require.NoError(t, err)
	assert.Equal(t, planner.Regression, problem)

	frame, err := ReadCSV(strings.NewReader(irisLike))
	require.NoError(t, err)
	problem, err = DetectProblemType(frame, "species")
	require.NoError(t, err)
	assert.Equal(t, planner.Classification, problem, "string target is classification")

	_, err = DetectProblemType(frame, "missing")
	require.Error(t, err)
}

func TestDetectProblemTypeThresholdScalesWithRows(t *testing.T) {
	// 1000 rows, 40 distinct values: threshold is max(20, 50) so still classification.
	values := make([]float64, 1000)
	for i := range values {
		values[i] = float64(i % 40)
	}
	problem, err := DetectProblemType(numericFrame("y", values), "y")
	require.NoError(t, err)
	assert.Equal(t, planner.Classification, problem)
}

func TestPartitionStratifiedIsDeterministic(t *testing.T) {
	var b strings.Builder
	b.WriteString("f,label\n")
	for i := 0; i < 100; i++ {
		label := "a"
		if i%4 == 0 {
			label = "b"
		}
		fmt.Fprintf(&b, "%d,%s\n", i, label)
	}
	b.WriteString("100,\n")
	frame, err := ReadCSV(strings.NewReader(b.String()))
	require.NoError(t, err)

	s1, err := Partition(frame, "label", planner.Classification, SplitOptions{})
	require.NoError(t, err)
	s2, err := Partition(frame, "label", planner.Classification, SplitOptions{})
	require.NoError(t, err)

	assert.Equal(t, 80, s1.TrainX.NumRows(), "missing-target row dropped")
	assert.Equal(t, 20, s1.TestX.NumRows())
	assert.Equal(t, []string{"a", "b"}, s1.TrainY.Classes)
	assert.Equal(t, s1.TestY.Y, s2.TestY.Y)
	assert.Equal(t, s1.TestX.Columns[0].Str, s2.TestX.Columns[0].Str)
	assert.Equal(t, []string{"f"}, s1.TrainX.Names())

	bInTest := 0
	for _, y := range s1.TestY.Y {
		if y == 1 {
			bInTest++
		}
	}
	assert.Equal(t, 5, bInTest, "class proportions preserved")
}

func TestPartitionRegression(t *testing.T) {
	values := make([]float64, 50)
	for i := range values {
		values[i] = float64(i) / 3
	}
	split, err := Partition(numericFrame("y", values), "y", planner.Regression, SplitOptions{TestSize: 0.2, Seed: 7})
	require.NoError(t, err)
	assert.Equal(t, 40, len(split.TrainY.Y))
	assert.Equal(t, 10, len(split.TestY.Y))
	assert.Nil(t, split.TrainY.Classes)
}

func TestPartitionRejectsTinyInput(t *testing.T) {
	frame, err := ReadCSV(strings.NewReader("x,y\n1,2\n"))
	require.NoError(t, err)
	_, err = Partition(frame, "y", planner.Regression, SplitOptions{})
	require.Error(t, err)
}
