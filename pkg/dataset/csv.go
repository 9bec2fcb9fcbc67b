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
	"time"

	"gonum.org/v1/gonum/mat"
)

// LoadCSV loads a process table from a CSV file.
func LoadCSV(path string, schema Schema) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	table, err := ReadCSV(f, schema)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	table.Source = path

	return table, nil
}

// ReadCSV reads a process table. The first record is the header. Every
// declared column must be present; extra columns are ignored.
func ReadCSV(r io.Reader, schema Schema) (*Table, error) {
	err := schema.Validate()
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: missing header", ErrEmptyTable)
		}

		return nil, fmt.Errorf("read header: %w", err)
	}

	idx, err := columnIndex(header, schema)
	if err != nil {
		return nil, err
	}

	var (
		data []float64
		rows []RowMeta
	)

	for line := 2; ; line++ {
		record, readErr := reader.Read()
		if errors.Is(readErr, io.EOF) {
			break
		}

		if readErr != nil {
			return nil, fmt.Errorf("read line %d: %w", line, readErr)
		}

		for j, col := range idx.variables {
			v, parseErr := parseNumber(record[col])
			if parseErr != nil {
				return nil, fmt.Errorf("%w: line %d column %q: %q", ErrInvalidValue, line, schema.Variables[j], record[col])
			}

			data = append(data, v)
		}

		meta, metaErr := idx.meta(record, schema.TimestampLayout)
		if metaErr != nil {
			return nil, fmt.Errorf("line %d: %w", line, metaErr)
		}

		rows = append(rows, meta)
	}

	if len(rows) == 0 {
		return nil, ErrEmptyTable
	}

	return &Table{
		Schema: schema,
		Matrix: mat.NewDense(len(rows), len(schema.Variables), data),
		Rows:   rows,
	}, nil
}

// ReadHeader returns the header record of a CSV file.
func ReadHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	header, err := csv.NewReader(f).Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	return header, nil
}

type columns struct {
	variables  []int
	partID     int
	timestamp  int
	rejectType int
}

func columnIndex(header []string, schema Schema) (columns, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.TrimSpace(h)] = i
	}

	find := func(name string) (int, error) {
		if name == "" {
			return -1, nil
		}

		i, ok := pos[name]
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrMissingColumn, name)
		}

		return i, nil
	}

	var (
		idx columns
		err error
	)

	idx.variables = make([]int, len(schema.Variables))
	for j, v := range schema.Variables {
		idx.variables[j], err = find(v)
		if err != nil {
			return idx, err
		}
	}

	if idx.partID, err = find(schema.PartID); err != nil {
		return idx, err
	}

	if idx.timestamp, err = find(schema.Timestamp); err != nil {
		return idx, err
	}

	if idx.rejectType, err = find(schema.RejectType); err != nil {
		return idx, err
	}

	return idx, nil
}

func (c columns) meta(record []string, layout string) (RowMeta, error) {
	var m RowMeta

	if c.partID >= 0 {
		m.PartID = strings.TrimSpace(record[c.partID])
	}

	if c.rejectType >= 0 {
		m.RejectType = strings.TrimSpace(record[c.rejectType])
	}

	if c.timestamp >= 0 {
		raw := strings.TrimSpace(record[c.timestamp])
		if raw != "" {
			ts, err := ParseTimestamp(raw, layout)
			if err != nil {
				return m, err
			}

			m.Timestamp = ts
		}
	}

	return m, nil
}

// ParseTimestamp parses raw with layout, or with the common layouts when
// layout is empty.
func ParseTimestamp(raw, layout string) (time.Time, error) {
	if layout != "" {
		ts, err := time.Parse(layout, raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: timestamp %q: %w", ErrInvalidValue, raw, err)
		}

		return ts, nil
	}

	for _, l := range timestampLayouts {
		ts, err := time.Parse(l, raw)
		if err == nil {
			return ts, nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: timestamp %q matches no known layout", ErrInvalidValue, raw)
}

func parseNumber(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrInvalidValue
	}

	return v, nil
}
