package dataset_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/fillspc/pkg/dataset"
)

const numericCSV = `part_id,entry_timestamp,fill_volume,nozzle_pressure,reject_type,batch
P-001,2024-03-01 08:00:00,500.2,2.51,,7
P-002,2024-03-01 08:00:05,499.1,2.48,underfill,7
`

func writeCSV(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "line.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoader_InfersVariables(t *testing.T) {
	t.Parallel()

	path := writeCSV(t, numericCSV)
	loader := &dataset.Loader{}

	table, err := loader.Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, []string{"fill_volume", "nozzle_pressure", "batch"}, table.Schema.Variables)
	assert.Equal(t, "part_id", table.Schema.PartID)
	assert.Equal(t, "underfill", table.Rows[1].RejectType)
}

func TestLoader_DeclaredAuxiliaryColumnsLeaveVariables(t *testing.T) {
	t.Parallel()

	path := writeCSV(t, numericCSV)
	loader := &dataset.Loader{Schema: dataset.Schema{PartID: "batch"}}

	schema, err := loader.ResolveSchema(path)
	require.NoError(t, err)

	assert.Equal(t, "batch", schema.PartID)
	assert.Equal(t, []string{"fill_volume", "nozzle_pressure"}, schema.Variables)
}

func TestLoader_DeclaredVariablesWin(t *testing.T) {
	t.Parallel()

	loader := &dataset.Loader{Schema: dataset.Schema{Variables: []string{"fill_volume"}}}

	schema, err := loader.ResolveSchema("does-not-need-to-exist.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"fill_volume"}, schema.Variables)
}

func TestLoader_CacheLookups(t *testing.T) {
	t.Parallel()

	path := writeCSV(t, numericCSV)

	var hits []bool

	loader := &dataset.Loader{
		Schema:        dataset.Schema{Variables: []string{"fill_volume", "nozzle_pressure"}},
		Cache:         dataset.NewCache(1 << 20),
		OnCacheLookup: func(_ context.Context, hit bool) { hits = append(hits, hit) },
	}

	first, err := loader.Load(context.Background(), path)
	require.NoError(t, err)

	second, err := loader.Load(context.Background(), path)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, []bool{false, true}, hits)
}

func TestLoader_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := (&dataset.Loader{}).Load(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
}
