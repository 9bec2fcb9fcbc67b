package spc_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/fillspc/pkg/pca"
	"github.com/Sumatoshi-tech/fillspc/pkg/pca/pcatest"
	"github.com/Sumatoshi-tech/fillspc/pkg/spc"
)

func fitAndScore(t *testing.T, seed uint64, n, k int) (*pca.Model, *pca.Scores) {
	t.Helper()

	x := pcatest.FillingLine(seed, n)

	model, err := pca.Fit(x, pca.FitOptions{Components: k})
	require.NoError(t, err)

	scores, err := model.Score(x)
	require.NoError(t, err)

	return model, scores
}

// syntheticModel builds a one-component model with a chosen eigenvalue spectrum.
func syntheticModel(t *testing.T, samples int, eigenvalues []float64) *pca.Model {
	t.Helper()

	vars := len(eigenvalues)
	names := make([]string, vars)
	loadings := make([][]float64, vars)

	for i := range vars {
		names[i] = string(rune('a' + i))
		loadings[i] = []float64{0}
	}

	loadings[0][0] = 1

	model, err := pca.FromSnapshot(pca.Snapshot{
		Variables:   names,
		Scaling:     pca.ScalingCenter,
		Samples:     samples,
		Components:  1,
		Mean:        make([]float64, vars),
		Loadings:    loadings,
		Eigenvalues: eigenvalues,
	})
	require.NoError(t, err)

	return model
}

func TestFQuantile_KnownValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		p, d1, d2, want float64
	}{
		{p: 0.95, d1: 1, d2: 10, want: 4.9646},
		{p: 0.95, d1: 2, d2: 98, want: 3.0892},
		{p: 0.99, d1: 5, d2: 20, want: 4.1027},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, spc.FQuantile(tt.p, tt.d1, tt.d2), 1e-3)
	}
}

func TestComputeLimits_T2Methods(t *testing.T) {
	t.Parallel()

	model, scores := fitAndScore(t, 41, 100, 2)

	fLimits, err := spc.ComputeLimits(model, scores.T2, scores.Q, 0.95, spc.LimitOptions{})
	require.NoError(t, err)
	assert.Equal(t, spc.T2MethodF, fLimits.T2Method)
	assert.InDelta(t, 2*99.0/98.0*3.0892, fLimits.T2, 1e-2)

	chi, err := spc.ComputeLimits(model, scores.T2, scores.Q, 0.95, spc.LimitOptions{T2Method: spc.T2MethodChiSquare})
	require.NoError(t, err)
	assert.InDelta(t, 5.9915, chi.T2, 1e-3)
	assert.Greater(t, fLimits.T2, chi.T2)

	emp, err := spc.ComputeLimits(model, scores.T2, scores.Q, 0.95, spc.LimitOptions{T2Method: spc.T2MethodEmpirical})
	require.NoError(t, err)

	var above int
	for _, v := range scores.T2 {
		if v > emp.T2 {
			above++
		}
	}

	assert.Equal(t, 5, above)
}

func TestComputeLimits_QSingleResidualEigenvalue(t *testing.T) {
	t.Parallel()

	model := syntheticModel(t, 100, []float64{3, 2})

	box, err := spc.ComputeLimits(model, nil, nil, 0.95, spc.LimitOptions{QMethod: spc.QMethodBox})
	require.NoError(t, err)
	// One residual eigenvalue: Q/λ is χ²(1).
	assert.InDelta(t, 2*3.8415, box.Q, 1e-3)

	jm, err := spc.ComputeLimits(model, nil, nil, 0.95, spc.LimitOptions{})
	require.NoError(t, err)
	assert.Equal(t, spc.QMethodJacksonMudholkar, jm.QMethod)
	assert.InEpsilon(t, box.Q, jm.Q, 0.05)
	assert.Empty(t, jm.Warnings)
}

func TestComputeLimits_BoxFallback(t *testing.T) {
	t.Parallel()

	eigenvalues := []float64{5, 1}
	for range 20 {
		eigenvalues = append(eigenvalues, 0.1)
	}

	model := syntheticModel(t, 200, eigenvalues)

	jm, err := spc.ComputeLimits(model, nil, nil, 0.99, spc.LimitOptions{})
	require.NoError(t, err)
	assert.True(t, jm.HasWarning(spc.BoxFallbackWarning))

	box, err := spc.ComputeLimits(model, nil, nil, 0.99, spc.LimitOptions{QMethod: spc.QMethodBox})
	require.NoError(t, err)
	assert.InDelta(t, box.Q, jm.Q, 1e-12)
	assert.False(t, box.HasWarning(spc.BoxFallbackWarning))
}

func TestComputeLimits_QAcrossConfidences(t *testing.T) {
	t.Parallel()

	model, scores := fitAndScore(t, 7, 100, 3)

	tests := []struct {
		confidence float64
		boxed      bool
	}{
		{confidence: 0.01, boxed: true},
		{confidence: 0.05, boxed: true},
		{confidence: 0.5},
		{confidence: 0.99},
	}

	previous := 0.0

	for _, tt := range tests {
		limits, err := spc.ComputeLimits(model, scores.T2, scores.Q, tt.confidence, spc.LimitOptions{})
		require.NoError(t, err)

		assert.False(t, math.IsNaN(limits.Q), "c=%v", tt.confidence)
		assert.False(t, math.IsInf(limits.Q, 0), "c=%v", tt.confidence)
		assert.Greater(t, limits.Q, previous, "c=%v", tt.confidence)
		assert.Equal(t, tt.boxed, limits.HasWarning(spc.BoxFallbackWarning), "c=%v", tt.confidence)

		if tt.confidence <= 0.5 {
			flags, err := spc.ClassifyAll(scores.T2, scores.Q, limits)
			require.NoError(t, err)
			assert.Positive(t, spc.Count(flags).Q, "c=%v", tt.confidence)
		}

		previous = limits.Q
	}
}

func TestComputeLimits_QMethodsAgree(t *testing.T) {
	t.Parallel()

	model, scores := fitAndScore(t, 42, 500, 2)

	methods := []spc.QMethod{spc.QMethodJacksonMudholkar, spc.QMethodBox, spc.QMethodMoments, spc.QMethodEmpirical}
	limits := make(map[spc.QMethod]float64, len(methods))

	for _, m := range methods {
		l, err := spc.ComputeLimits(model, scores.T2, scores.Q, 0.95, spc.LimitOptions{QMethod: m})
		require.NoError(t, err)
		assert.Positive(t, l.Q, "%s", m)

		limits[m] = l.Q
	}

	for _, m := range methods[1:] {
		assert.InEpsilon(t, limits[spc.QMethodJacksonMudholkar], limits[m], 0.35, "%s", m)
	}
}

func TestComputeLimits_EmptyResidual(t *testing.T) {
	t.Parallel()

	model, scores := fitAndScore(t, 43, 100, 4)

	for _, m := range []spc.QMethod{spc.QMethodJacksonMudholkar, spc.QMethodBox, spc.QMethodMoments, spc.QMethodEmpirical} {
		limits, err := spc.ComputeLimits(model, scores.T2, scores.Q, 0.95, spc.LimitOptions{QMethod: m})
		require.NoError(t, err)
		assert.Zero(t, limits.Q)
		assert.True(t, limits.HasWarning(spc.EmptyResidualWarning))
		assert.NotEmpty(t, spc.EmptyResidualWarning.Message())
	}
}

func TestComputeLimits_Joint(t *testing.T) {
	t.Parallel()

	model, scores := fitAndScore(t, 44, 100, 2)

	single, err := spc.ComputeLimits(model, scores.T2, scores.Q, 0.95, spc.LimitOptions{})
	require.NoError(t, err)

	joint, err := spc.ComputeLimits(model, scores.T2, scores.Q, 0.95, spc.LimitOptions{Joint: true})
	require.NoError(t, err)

	assert.True(t, joint.Joint)
	assert.InDelta(t, 0.95, joint.Confidence, 0)
	assert.Greater(t, joint.T2, single.T2)
	assert.Greater(t, joint.Q, single.Q)
}

func TestComputeLimits_Errors(t *testing.T) {
	t.Parallel()

	model, scores := fitAndScore(t, 45, 30, 2)
	small := syntheticModel(t, 1, []float64{3, 2})

	tests := []struct {
		name  string
		model *pca.Model
		t2, q []float64
		c     float64
		opts  spc.LimitOptions
		want  error
	}{
		{name: "confidence one", model: model, c: 1.0, want: spc.ErrInvalidConfidence},
		{name: "confidence zero", model: model, c: 0, want: spc.ErrInvalidConfidence},
		{name: "confidence above one", model: model, c: 95, want: spc.ErrInvalidConfidence},
		{name: "no model", c: 0.95, want: spc.ErrNoModel},
		{name: "length mismatch", model: model, t2: scores.T2, q: scores.Q[:3], c: 0.95, want: spc.ErrDimensionMismatch},
		{name: "unknown T2 method", model: model, c: 0.95, opts: spc.LimitOptions{T2Method: "beta"}, want: spc.ErrUnknownMethod},
		{name: "unknown Q method", model: model, c: 0.95, opts: spc.LimitOptions{QMethod: "gamma"}, want: spc.ErrUnknownMethod},
		{name: "empirical without data", model: model, c: 0.95, opts: spc.LimitOptions{T2Method: spc.T2MethodEmpirical}, want: spc.ErrInsufficientData},
		{name: "moments without data", model: model, c: 0.95, opts: spc.LimitOptions{QMethod: spc.QMethodMoments}, want: spc.ErrInsufficientData},
		{name: "F needs N greater than k", model: small, c: 0.95, want: spc.ErrInsufficientData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := spc.ComputeLimits(tt.model, tt.t2, tt.q, tt.c, tt.opts)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseMethods(t *testing.T) {
	t.Parallel()

	m, err := spc.ParseT2Method("")
	require.NoError(t, err)
	assert.Equal(t, spc.T2MethodF, m)

	q, err := spc.ParseQMethod("moments")
	require.NoError(t, err)
	assert.Equal(t, spc.QMethodMoments, q)
}
