package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

var missingTokens = map[string]struct{}{
	"":     {},
	"na":   {},
	"n/a":  {},
	"nan":  {},
	"null": {},
	"none": {},
}

// LoadCSV reads a CSV file with a header row and drops fully empty columns and rows.
func LoadCSV(path string) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	frame, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return frame, nil
}

// ReadCSV parses CSV from r. See LoadCSV.
func ReadCSV(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("csv is empty")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	raw := make([][]string, len(header))
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		for j := range header {
			cell := ""
			if j < len(record) {
				cell = normalizeCell(record[j])
			}
			raw[j] = append(raw[j], cell)
		}
	}

	var keepCols []int
	for j := range header {
		if !allEmpty(raw[j]) {
			keepCols = append(keepCols, j)
		}
	}

	nRows := 0
	if len(raw) > 0 {
		nRows = len(raw[0])
	}
	var keepRows []int
	for i := 0; i < nRows; i++ {
		for _, j := range keepCols {
			if raw[j][i] != "" {
				keepRows = append(keepRows, i)
				break
			}
		}
	}

	frame := &Frame{}
	for _, j := range keepCols {
		values := make([]string, len(keepRows))
		for k, i := range keepRows {
			values[k] = raw[j][i]
		}
		frame.Columns = append(frame.Columns, inferColumn(strings.TrimSpace(header[j]), values))
	}
	return frame, nil
}

func normalizeCell(cell string) string {
	cell = strings.TrimSpace(cell)
	if _, ok := missingTokens[strings.ToLower(cell)]; ok {
		return ""
	}
	return cell
}

func allEmpty(values []string) bool {
	for _, v := range values {
		if v != "" {
			return false
		}
	}
	return true
}

func inferColumn(name string, values []string) Column {
	col := Column{Name: name, Str: values}
	nums := make([]float64, len(values))
	integral := true
	for i, v := range values {
		if v == "" {
			nums[i] = math.NaN()
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsInf(f, 0) {
			return col
		}
		if f != math.Trunc(f) {
			integral = false
		}
		nums[i] = f
	}
	col.Numeric = true
	col.Integral = integral
	col.Num = nums
	return col
}
