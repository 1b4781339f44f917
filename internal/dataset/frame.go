package dataset

import (
	"math"
	"strconv"
)

// Column is one feature or target column. Str always holds the raw cell text ("" when
// missing); Num is populated for numeric columns with NaN marking missing cells.
type Column struct {
	Name     string
	Numeric  bool
	Integral bool
	Num      []float64
	Str      []string
}

// Missing reports whether row i has no value.
func (c *Column) Missing(i int) bool {
	if c.Numeric {
		return math.IsNaN(c.Num[i])
	}
	return c.Str[i] == ""
}

// Dtype mirrors the dtype names reported in a DatasetOverview.
func (c *Column) Dtype() string {
	switch {
	case c.Numeric && c.Integral:
		return "int64"
	case c.Numeric:
		return "float64"
	default:
		return "object"
	}
}

// Label renders row i as a class label. Numeric values are canonicalized so "1" and
// "1.0" are the same label.
func (c *Column) Label(i int) string {
	if c.Missing(i) {
		return "NaN"
	}
	if !c.Numeric {
		return c.Str[i]
	}
	v := c.Num[i]
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (c *Column) subset(rows []int) Column {
	out := Column{Name: c.Name, Numeric: c.Numeric, Integral: c.Integral, Str: make([]string, len(rows))}
	if c.Numeric {
		out.Num = make([]float64, len(rows))
	}
	for j, i := range rows {
		out.Str[j] = c.Str[i]
		if c.Numeric {
			out.Num[j] = c.Num[i]
		}
	}
	return out
}

// Frame is a column-oriented table.
type Frame struct {
	Columns []Column
}

// NumRows returns the row count (0 for a frame without columns).
func (f *Frame) NumRows() int {
	if f == nil || len(f.Columns) == 0 {
		return 0
	}
	return len(f.Columns[0].Str)
}

// Column looks up a column by name.
func (f *Frame) Column(name string) (*Column, bool) {
	for i := range f.Columns {
		if f.Columns[i].Name == name {
			return &f.Columns[i], true
		}
	}
	return nil, false
}

// Names returns the column names in order.
func (f *Frame) Names() []string {
	names := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		names[i] = c.Name
	}
	return names
}

// Without returns a frame sharing no column slices with f and lacking name.
func (f *Frame) Without(name string) *Frame {
	all := make([]int, f.NumRows())
	for i := range all {
		all[i] = i
	}
	out := &Frame{}
	for i := range f.Columns {
		if f.Columns[i].Name == name {
			continue
		}
		out.Columns = append(out.Columns, f.Columns[i].subset(all))
	}
	return out
}

// Rows returns a new frame with only the given rows, in the given order.
func (f *Frame) Rows(rows []int) *Frame {
	out := &Frame{Columns: make([]Column, len(f.Columns))}
	for i := range f.Columns {
		out.Columns[i] = f.Columns[i].subset(rows)
	}
	return out
}
