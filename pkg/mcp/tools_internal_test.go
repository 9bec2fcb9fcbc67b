package mcp

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/fillspc/pkg/pipeline"
)

func TestValidatePath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	tests := []struct {
		name      string
		path      string
		mustExist bool
		wantErr   error
	}{
		{name: "empty", path: "", mustExist: true, wantErr: ErrEmptyPath},
		{name: "relative", path: "data/line.csv", mustExist: false, wantErr: ErrPathNotAbsolute},
		{name: "missing", path: filepath.Join(dir, "line.csv"), mustExist: true, wantErr: ErrPathNotFound},
		{name: "missing output dir", path: filepath.Join(dir, "out"), mustExist: false},
		{name: "existing", path: dir, mustExist: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := validatePath(tt.path, tt.mustExist)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
		})
	}
}

func TestMonitorConfig(t *testing.T) {
	t.Parallel()

	srv := NewServer(ServerDeps{})

	defaults := srv.monitorConfig(MonitorInput{})
	assert.Equal(t, pipeline.DefaultConfig(), defaults)

	byCount := srv.monitorConfig(MonitorInput{Components: 3, VarianceThreshold: 0.9})
	assert.Equal(t, 3, byCount.Components)
	assert.Zero(t, byCount.VarianceThreshold)

	byVariance := srv.monitorConfig(MonitorInput{VarianceThreshold: 0.9, Confidence: 0.99})
	assert.Zero(t, byVariance.Components)
	assert.InDelta(t, 0.9, byVariance.VarianceThreshold, 0)
	assert.InDelta(t, 0.99, byVariance.Confidence, 0)
}
