package dataset_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/fillspc/pkg/dataset"
)

func TestCache_HitAndContentChange(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "line.csv")
	require.NoError(t, os.WriteFile(path, []byte(lineCSV), 0o600))

	c := dataset.NewCache(1 << 20)

	first, hit, err := c.Load(path, lineSchema())
	require.NoError(t, err)
	assert.False(t, hit)

	second, hit, err := c.Load(path, lineSchema())
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Same(t, first, second)

	// Same path, different schema: separate entry.
	_, hit, err = c.Load(path, dataset.Schema{Variables: []string{"fill_volume"}})
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, os.WriteFile(path, []byte(lineCSV+"P-004,2024-03-01 08:00:15,500.0,2.50,,cy\n"), 0o600))

	changed, hit, err := c.Load(path, lineSchema())
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 4, changed.Len())
}

func TestCache_InvalidateAndPurge(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := filepath.Join(dir, "a.csv")
	b := filepath.Join(dir, "b.csv")

	require.NoError(t, os.WriteFile(a, []byte(lineCSV), 0o600))
	require.NoError(t, os.WriteFile(b, []byte(lineCSV), 0o600))

	c := dataset.NewCache(0)

	for _, p := range []string{a, b} {
		_, _, err := c.Load(p, lineSchema())
		require.NoError(t, err)
	}

	assert.Equal(t, 1, c.Invalidate(a))
	assert.Equal(t, 0, c.Invalidate(a))

	_, hit, err := c.Load(a, lineSchema())
	require.NoError(t, err)
	assert.False(t, hit)

	_, hit, err = c.Load(b, lineSchema())
	require.NoError(t, err)
	assert.True(t, hit)

	c.Purge()
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestCache_LoadErrors(t *testing.T) {
	t.Parallel()

	c := dataset.NewCache(0)

	_, _, err := c.Load(filepath.Join(t.TempDir(), "missing.csv"), lineSchema())
	require.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("a\nzz\n"), 0o600))

	_, _, err = c.Load(path, dataset.Schema{Variables: []string{"a"}})
	require.ErrorIs(t, err, dataset.ErrInvalidValue)
}
