package pca

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// Scaling selects the per-variable transform applied before decomposition.
type Scaling string

const (
	// ScalingCenter subtracts the training mean only (covariance PCA).
	ScalingCenter Scaling = "center"
	// ScalingAutoscale subtracts the mean and divides by the sample standard
	// deviation (correlation PCA).
	ScalingAutoscale Scaling = "autoscale"
)

// Model is a fitted PCA model. It is immutable and safe for concurrent use.
type Model struct {
	variables   []string
	scaling     Scaling
	samples     int
	components  int
	mean        []float64
	scale       []float64
	loadings    *mat.Dense
	eigenvalues []float64
}

// Components returns the number of retained principal components (k).
func (m *Model) Components() int { return m.components }

// Variables returns the number of original process variables (M).
func (m *Model) Variables() int { return len(m.mean) }

// VariableNames returns the process variable names in column order.
func (m *Model) VariableNames() []string { return slices.Clone(m.variables) }

// Samples returns the number of training observations the model was fitted on.
func (m *Model) Samples() int { return m.samples }

// Scaling returns the scaling convention used at fit time.
func (m *Model) Scaling() Scaling { return m.scaling }

// Mean returns the training mean vector.
func (m *Model) Mean() []float64 { return slices.Clone(m.mean) }

// Scale returns the training scale vector, or nil for centre-only models.
func (m *Model) Scale() []float64 { return slices.Clone(m.scale) }

// Loadings returns a copy of the M×k loadings matrix. Columns are orthonormal.
func (m *Model) Loadings() *mat.Dense { return mat.DenseCopyOf(m.loadings) }

// Eigenvalues returns the full eigenvalue spectrum in descending order.
func (m *Model) Eigenvalues() []float64 { return slices.Clone(m.eigenvalues) }

// ExplainedVariance returns the variances of the k retained components.
func (m *Model) ExplainedVariance() []float64 {
	return slices.Clone(m.eigenvalues[:m.components])
}

// ExplainedVarianceRatio returns the share of total variance each retained
// component explains.
func (m *Model) ExplainedVarianceRatio() []float64 {
	return varianceRatios(m.eigenvalues)[:m.components]
}

// ResidualEigenvalues returns the eigenvalues of the components not retained.
// The slice is empty when every component is retained.
func (m *Model) ResidualEigenvalues() []float64 {
	return slices.Clone(m.eigenvalues[m.components:])
}

// HasEmptyResidual reports whether every component is retained, in which case
// Q is identically zero.
func (m *Model) HasEmptyResidual() bool {
	return m.components == len(m.mean)
}

// ComponentNames returns PC1..PCk.
func (m *Model) ComponentNames() []string {
	names := make([]string, m.components)

	for i := range names {
		names[i] = fmt.Sprintf("PC%d", i+1)
	}

	return names
}

// Snapshot is the serialisable form of a Model.
type Snapshot struct {
	Variables   []string    `json:"variables"              yaml:"variables"`
	Scaling     Scaling     `json:"scaling"                yaml:"scaling"`
	Samples     int         `json:"sample_count"           yaml:"sample_count"`
	Components  int         `json:"component_count"        yaml:"component_count"`
	Mean        []float64   `json:"mean_vector"            yaml:"mean_vector"`
	Scale       []float64   `json:"scale_vector,omitempty" yaml:"scale_vector,omitempty"`
	Loadings    [][]float64 `json:"loadings"               yaml:"loadings"`
	Eigenvalues []float64   `json:"eigenvalues"            yaml:"eigenvalues"`
}

// Snapshot returns a deep copy of the model parameters for persistence.
func (m *Model) Snapshot() Snapshot {
	rows, _ := m.loadings.Dims()
	loadings := make([][]float64, rows)

	for i := range rows {
		loadings[i] = slices.Clone(m.loadings.RawRowView(i))
	}

	return Snapshot{
		Variables:   m.VariableNames(),
		Scaling:     m.scaling,
		Samples:     m.samples,
		Components:  m.components,
		Mean:        m.Mean(),
		Scale:       m.Scale(),
		Loadings:    loadings,
		Eigenvalues: m.Eigenvalues(),
	}
}

// FromSnapshot rebuilds a Model from its persisted form.
func FromSnapshot(snap Snapshot) (*Model, error) {
	vars := len(snap.Mean)

	switch {
	case vars == 0:
		return nil, fmt.Errorf("%w: empty mean vector", ErrInvalidSnapshot)
	case len(snap.Variables) != vars:
		return nil, fmt.Errorf("%w: %d variable names for %d variables", ErrInvalidSnapshot, len(snap.Variables), vars)
	case snap.Scale != nil && len(snap.Scale) != vars:
		return nil, fmt.Errorf("%w: scale vector length %d", ErrInvalidSnapshot, len(snap.Scale))
	case snap.Components < 1 || snap.Components > vars:
		return nil, fmt.Errorf("%w: component count %d", ErrInvalidSnapshot, snap.Components)
	case len(snap.Eigenvalues) != vars:
		return nil, fmt.Errorf("%w: %d eigenvalues for %d variables", ErrInvalidSnapshot, len(snap.Eigenvalues), vars)
	case len(snap.Loadings) != vars:
		return nil, fmt.Errorf("%w: %d loading rows for %d variables", ErrInvalidSnapshot, len(snap.Loadings), vars)
	}

	// T² divides by every retained eigenvalue.
	for j, v := range snap.Eigenvalues[:snap.Components] {
		if !(v > 0) || math.IsInf(v, 1) {
			return nil, fmt.Errorf("%w: retained eigenvalue %d is %g", ErrInvalidSnapshot, j, v)
		}
	}

	loadings := mat.NewDense(vars, snap.Components, nil)

	for i, row := range snap.Loadings {
		if len(row) != snap.Components {
			return nil, fmt.Errorf("%w: loading row %d has %d columns", ErrInvalidSnapshot, i, len(row))
		}

		loadings.SetRow(i, row)
	}

	return &Model{
		variables:   slices.Clone(snap.Variables),
		scaling:     snap.Scaling,
		samples:     snap.Samples,
		components:  snap.Components,
		mean:        slices.Clone(snap.Mean),
		scale:       slices.Clone(snap.Scale),
		loadings:    loadings,
		eigenvalues: slices.Clone(snap.Eigenvalues),
	}, nil
}

func varianceRatios(eigenvalues []float64) []float64 {
	var total float64

	for _, v := range eigenvalues {
		total += v
	}

	ratios := make([]float64, len(eigenvalues))
	if total == 0 {
		return ratios
	}

	for i, v := range eigenvalues {
		ratios[i] = v / total
	}

	return ratios
}
