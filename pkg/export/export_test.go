package export_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/fillspc/pkg/dataset"
	"github.com/Sumatoshi-tech/fillspc/pkg/export"
	"github.com/Sumatoshi-tech/fillspc/pkg/pca/pcatest"
	"github.com/Sumatoshi-tech/fillspc/pkg/pipeline"
)

var created = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func scoredRun(t *testing.T) *pipeline.Result {
	t.Helper()

	table := dataset.FromMatrix(pcatest.FillingLine(1, 60), pcatest.FillingLineNames())
	table.Schema.PartID = "part_id"
	table.Schema.Timestamp = "entry_timestamp"
	table.Schema.RejectType = "reject_type"

	for i := range table.Rows {
		table.Rows[i] = dataset.RowMeta{
			PartID:    fmt.Sprintf("P-%03d", i),
			Timestamp: created.Add(time.Duration(i) * time.Minute),
		}

		if i%10 == 0 {
			table.Rows[i].RejectType = "underfill"
		}
	}

	runner := &pipeline.Runner{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	result, err := runner.Run(context.Background(), table, nil, pipeline.DefaultConfig())
	require.NoError(t, err)

	return result
}

func TestWriteAndLoad_RoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	result := scoredRun(t)

	require.NoError(t, export.Write(dir, result, export.Options{Now: func() time.Time { return created }}))

	for _, name := range []string{export.ResultsFile, export.LoadingsFile, "limits.json", "model.json"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	loaded, err := export.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, *result.Limits, *loaded.Limits)
	assert.Equal(t, result.Schema, loaded.Schema)
	require.NotNil(t, loaded.Model)
	assert.Equal(t, result.Model.Snapshot(), loaded.Model.Snapshot())

	require.Len(t, loaded.Observations, len(result.Observations))

	for i, want := range result.Observations {
		got := loaded.Observations[i]

		assert.Equal(t, want.Row, got.Row)
		assert.Equal(t, want.PartID, got.PartID)
		assert.Equal(t, want.RejectType, got.RejectType)
		assert.True(t, want.Timestamp.Equal(got.Timestamp), "row %d timestamp", i)
		assert.Equal(t, want.Scores, got.Scores)
		assert.Equal(t, want.T2, got.T2)
		assert.Equal(t, want.Q, got.Q)
		assert.Equal(t, want.Flags(), got.Flags())
	}
}

func TestSidecar_TopLevelLimitKeys(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	result := scoredRun(t)

	require.NoError(t, export.Write(dir, result, export.Options{Now: func() time.Time { return created }}))

	raw, err := os.ReadFile(filepath.Join(dir, "limits.json"))
	require.NoError(t, err)

	var doc map[string]any

	require.NoError(t, json.Unmarshal(raw, &doc))

	assert.InDelta(t, result.Limits.T2, doc["T2_limit"], 1e-12)
	assert.InDelta(t, result.Limits.Q, doc["Q_limit"], 1e-12)
	assert.InDelta(t, 2, doc["component_count"], 0)
	assert.InDelta(t, 0.95, doc["confidence"], 1e-12)
	assert.Equal(t, "f", doc["t2_method"])
	assert.Equal(t, []any{"PC1", "PC2"}, doc["components"])
	assert.InDelta(t, 60, doc["rows"], 0)
	assert.Equal(t, "2024-05-06T07:08:09Z", doc["created_at"])
}

func TestWrite_CompressedModel(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	result := scoredRun(t)

	require.NoError(t, export.Write(dir, result, export.Options{CompressModel: true}))

	assert.FileExists(t, filepath.Join(dir, "model.json.lz4"))
	assert.NoFileExists(t, filepath.Join(dir, "model.json"))

	model, err := export.LoadModel(dir)
	require.NoError(t, err)
	assert.Equal(t, result.Model.Snapshot(), model.Snapshot())

	fromFile, err := export.LoadModel(filepath.Join(dir, "model.json.lz4"))
	require.NoError(t, err)
	assert.Equal(t, result.Model.Snapshot(), fromFile.Snapshot())
}

func TestLoad_MissingSidecar(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, export.Write(dir, scoredRun(t), export.Options{}))
	require.NoError(t, os.Remove(filepath.Join(dir, "limits.json")))

	_, err := export.Load(dir)
	require.ErrorIs(t, err, export.ErrMissingLimits)
}

func TestLoad_MissingResults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, export.Write(dir, scoredRun(t), export.Options{}))
	require.NoError(t, os.Remove(filepath.Join(dir, export.ResultsFile)))

	_, err := export.Load(dir)
	require.ErrorIs(t, err, export.ErrMissingResults)
}

func TestLoad_WithoutModel(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, export.Write(dir, scoredRun(t), export.Options{}))
	require.NoError(t, os.Remove(filepath.Join(dir, "model.json")))

	loaded, err := export.Load(dir)
	require.NoError(t, err)
	assert.Nil(t, loaded.Model)
	assert.NotEmpty(t, loaded.Observations)

	_, err = export.LoadModel(dir)
	require.ErrorIs(t, err, export.ErrMissingModel)
}

func TestWrite_RequiresLimits(t *testing.T) {
	t.Parallel()

	result := scoredRun(t)
	result.Limits = nil

	err := export.Write(t.TempDir(), result, export.Options{})
	require.ErrorIs(t, err, export.ErrMissingLimits)
}

func TestResultsHeader(t *testing.T) {
	t.Parallel()

	schema := dataset.Schema{Variables: []string{"a", "b"}, PartID: "id", RejectType: "reject"}

	assert.Equal(t,
		[]string{"id", "reject", "PC1", "PC2", "PC3", "T2", "Q", "T2_flag", "Q_flag", "anomaly"},
		export.ResultsHeader(schema, 3))
}

func TestReadResults(t *testing.T) {
	t.Parallel()

	schema := dataset.Schema{Variables: []string{"a"}, PartID: "part_id"}

	tests := []struct {
		name    string
		input   string
		wantErr bool
		want    []pipeline.ScoredObservation
	}{
		{
			name:  "valid",
			input: "part_id,PC1,T2,Q,T2_flag,Q_flag,anomaly\nP1,0.5,1.25,0.1,false,true,true\n",
			want: []pipeline.ScoredObservation{
				{PartID: "P1", Scores: []float64{0.5}, T2: 1.25, Q: 0.1, QFlag: true, Anomaly: true},
			},
		},
		{
			name:  "pandas booleans",
			input: "part_id,PC1,T2,Q,T2_flag,Q_flag,anomaly\nP1,0,0,0,False,False,False\nP2,1,2,3,True,False,True\n",
			want: []pipeline.ScoredObservation{
				{PartID: "P1", Scores: []float64{0}},
				{Row: 1, PartID: "P2", Scores: []float64{1}, T2: 2, Q: 3, T2Flag: true, Anomaly: true},
			},
		},
		{name: "missing Q", input: "part_id,PC1,T2,T2_flag,Q_flag,anomaly\n", wantErr: true},
		{name: "missing part id", input: "PC1,T2,Q,T2_flag,Q_flag,anomaly\n", wantErr: true},
		{name: "bad number", input: "part_id,PC1,T2,Q,T2_flag,Q_flag,anomaly\nP1,x,1,1,false,false,false\n", wantErr: true},
		{name: "bad flag", input: "part_id,PC1,T2,Q,T2_flag,Q_flag,anomaly\nP1,1,1,1,maybe,false,false\n", wantErr: true},
		{name: "gap in components", input: "part_id,PC1,PC3,T2,Q,T2_flag,Q_flag,anomaly\n", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := export.ReadResults(strings.NewReader(tt.input), schema)
			if tt.wantErr {
				require.ErrorIs(t, err, export.ErrMalformedResults)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteLoadings(t *testing.T) {
	t.Parallel()

	result := scoredRun(t)

	var sb strings.Builder

	require.NoError(t, export.WriteLoadings(&sb, result.Model))

	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "variable,PC1,PC2", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "fill_volume,"))
	assert.True(t, strings.HasPrefix(lines[4], "temperature,"))
}
