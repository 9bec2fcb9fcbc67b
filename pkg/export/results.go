package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/Sumatoshi-tech/fillspc/pkg/dataset"
	"github.com/Sumatoshi-tech/fillspc/pkg/pca"
	"github.com/Sumatoshi-tech/fillspc/pkg/pipeline"
)

// Statistic and flag column names of the results table.
const (
	ColumnT2      = "T2"
	ColumnQ       = "Q"
	ColumnT2Flag  = "T2_flag"
	ColumnQFlag   = "Q_flag"
	ColumnAnomaly = "anomaly"
)

var componentColumn = regexp.MustCompile(`^PC([1-9][0-9]*)$`)

// ResultsHeader returns the results table header: declared auxiliary
// columns, PC1..PCk, then the statistics and flags.
func ResultsHeader(schema dataset.Schema, components int) []string {
	header := schema.AuxiliaryColumns()

	for i := range components {
		header = append(header, fmt.Sprintf("PC%d", i+1))
	}

	return append(header, ColumnT2, ColumnQ, ColumnT2Flag, ColumnQFlag, ColumnAnomaly)
}

// WriteResults writes the scored observations of result as CSV.
func WriteResults(w io.Writer, result *pipeline.Result) error {
	k := result.Model.Components()
	schema := result.Schema
	layout := timestampLayout(schema)

	cw := csv.NewWriter(w)

	err := cw.Write(ResultsHeader(schema, k))
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, 0, len(schema.AuxiliaryColumns())+k+5)

	for i := range result.Observations {
		obs := &result.Observations[i]
		record = record[:0]

		if schema.PartID != "" {
			record = append(record, obs.PartID)
		}

		if schema.Timestamp != "" {
			record = append(record, formatTimestamp(obs.Timestamp, layout))
		}

		if schema.RejectType != "" {
			record = append(record, obs.RejectType)
		}

		for _, s := range obs.Scores {
			record = append(record, formatFloat(s))
		}

		record = append(record,
			formatFloat(obs.T2),
			formatFloat(obs.Q),
			strconv.FormatBool(obs.T2Flag),
			strconv.FormatBool(obs.QFlag),
			strconv.FormatBool(obs.Anomaly),
		)

		err = cw.Write(record)
		if err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	cw.Flush()

	return cw.Error()
}

// resultsColumns maps header names to their positions.
type resultsColumns struct {
	partID, timestamp, rejectType int
	components                    []int
	t2, q, t2Flag, qFlag, anomaly int
}

// ReadResults parses a results table written by WriteResults. Auxiliary
// columns are located by the names declared in schema.
func ReadResults(r io.Reader, schema dataset.Schema) ([]pipeline.ScoredObservation, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %w", ErrMalformedResults, err)
	}

	cols, err := locateColumns(header, schema)
	if err != nil {
		return nil, err
	}

	layout := timestampLayout(schema)

	var observations []pipeline.ScoredObservation

	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedResults, line, err)
		}

		obs, err := cols.parse(record, layout)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedResults, line, err)
		}

		obs.Row = len(observations)
		observations = append(observations, obs)
	}

	return observations, nil
}

func locateColumns(header []string, schema dataset.Schema) (resultsColumns, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[h] = i
	}

	cols := resultsColumns{}

	var errs []error

	for _, c := range []struct {
		name string
		dst  *int
	}{
		{schema.PartID, &cols.partID},
		{schema.Timestamp, &cols.timestamp},
		{schema.RejectType, &cols.rejectType},
		{ColumnT2, &cols.t2},
		{ColumnQ, &cols.q},
		{ColumnT2Flag, &cols.t2Flag},
		{ColumnQFlag, &cols.qFlag},
		{ColumnAnomaly, &cols.anomaly},
	} {
		*c.dst = -1

		if c.name == "" {
			continue
		}

		pos, ok := index[c.name]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: missing column %q", ErrMalformedResults, c.name))

			continue
		}

		*c.dst = pos
	}

	err := errors.Join(errs...)
	if err != nil {
		return resultsColumns{}, err
	}

	for k := 1; ; k++ {
		pos, ok := index[fmt.Sprintf("PC%d", k)]
		if !ok {
			break
		}

		cols.components = append(cols.components, pos)
	}

	for _, h := range header {
		if m := componentColumn.FindStringSubmatch(h); m != nil {
			if n, _ := strconv.Atoi(m[1]); n > len(cols.components) {
				return resultsColumns{}, fmt.Errorf("%w: component columns are not contiguous", ErrMalformedResults)
			}
		}
	}

	return cols, nil
}

func (c resultsColumns) parse(record []string, layout string) (pipeline.ScoredObservation, error) {
	var (
		obs pipeline.ScoredObservation
		err error
	)

	if c.partID >= 0 {
		obs.PartID = record[c.partID]
	}

	if c.rejectType >= 0 {
		obs.RejectType = record[c.rejectType]
	}

	if c.timestamp >= 0 && record[c.timestamp] != "" {
		obs.Timestamp, err = dataset.ParseTimestamp(record[c.timestamp], layout)
		if err != nil {
			return obs, err
		}
	}

	obs.Scores = make([]float64, len(c.components))

	for i, pos := range c.components {
		obs.Scores[i], err = strconv.ParseFloat(record[pos], 64)
		if err != nil {
			return obs, fmt.Errorf("PC%d: %w", i+1, err)
		}
	}

	obs.T2, err = strconv.ParseFloat(record[c.t2], 64)
	if err != nil {
		return obs, fmt.Errorf("%s: %w", ColumnT2, err)
	}

	obs.Q, err = strconv.ParseFloat(record[c.q], 64)
	if err != nil {
		return obs, fmt.Errorf("%s: %w", ColumnQ, err)
	}

	for _, f := range []struct {
		name string
		pos  int
		dst  *bool
	}{
		{ColumnT2Flag, c.t2Flag, &obs.T2Flag},
		{ColumnQFlag, c.qFlag, &obs.QFlag},
		{ColumnAnomaly, c.anomaly, &obs.Anomaly},
	} {
		*f.dst, err = strconv.ParseBool(record[f.pos])
		if err != nil {
			return obs, fmt.Errorf("%s: %w", f.name, err)
		}
	}

	return obs, nil
}

// WriteLoadings writes the variable × component loadings table.
func WriteLoadings(w io.Writer, model *pca.Model) error {
	cw := csv.NewWriter(w)

	err := cw.Write(append([]string{"variable"}, model.ComponentNames()...))
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	loadings := model.Loadings()
	row := make([]float64, model.Components())

	for i, name := range model.VariableNames() {
		mat.Row(row, i, loadings)

		record := []string{name}
		for _, v := range row {
			record = append(record, formatFloat(v))
		}

		err = cw.Write(record)
		if err != nil {
			return fmt.Errorf("write loadings of %s: %w", name, err)
		}
	}

	cw.Flush()

	return cw.Error()
}

func timestampLayout(schema dataset.Schema) string {
	if schema.TimestampLayout != "" {
		return schema.TimestampLayout
	}

	return time.RFC3339
}

func formatTimestamp(ts time.Time, layout string) string {
	if ts.IsZero() {
		return ""
	}

	return ts.Format(layout)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
