package pca

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Scores holds the monitoring statistics of a batch of observations.
type Scores struct {
	// Scores is the N×k projection onto the retained components.
	Scores *mat.Dense
	// T2 is Hotelling's T² per observation.
	T2 []float64
	// Q is the squared prediction error per observation.
	Q []float64
}

// RowScore holds the statistics of a single observation.
type RowScore struct {
	Scores []float64
	T2     float64
	Q      float64
}

// Score projects every row of x with the training parameters and computes
// its T² and Q statistics.
func (m *Model) Score(x mat.Matrix) (*Scores, error) {
	if m == nil {
		return nil, ErrNoModel
	}

	rows, cols := x.Dims()
	if cols != m.Variables() {
		return nil, fmt.Errorf("%w: %d columns, model has %d variables", ErrDimensionMismatch, cols, m.Variables())
	}

	if rows == 0 {
		return &Scores{Scores: &mat.Dense{}, T2: []float64{}, Q: []float64{}}, nil
	}

	out := &Scores{
		Scores: mat.NewDense(rows, m.components, nil),
		T2:     make([]float64, rows),
		Q:      make([]float64, rows),
	}

	row := make([]float64, cols)

	for i := range rows {
		mat.Row(row, i, x)

		rs, err := m.ScoreRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}

		out.Scores.SetRow(i, rs.Scores)
		out.T2[i] = rs.T2
		out.Q[i] = rs.Q
	}

	return out, nil
}

// ScoreRow computes the statistics of one observation. It allocates its own
// buffers and may be called concurrently.
func (m *Model) ScoreRow(row []float64) (RowScore, error) {
	if m == nil {
		return RowScore{}, ErrNoModel
	}

	if len(row) != m.Variables() {
		return RowScore{}, fmt.Errorf("%w: %d values, model has %d variables", ErrDimensionMismatch, len(row), m.Variables())
	}

	centred := m.centre(row)
	scores := make([]float64, m.components)

	var t2 float64

	for j := range scores {
		var t float64
		for i, c := range centred {
			t += c * m.loadings.At(i, j)
		}

		scores[j] = t
		t2 += t * t / m.eigenvalues[j]
	}

	var q float64

	if !m.HasEmptyResidual() {
		for i, c := range centred {
			var fitted float64
			for j, t := range scores {
				fitted += t * m.loadings.At(i, j)
			}

			r := c - fitted
			q += r * r
		}
	}

	if math.IsNaN(t2) || math.IsNaN(q) {
		return RowScore{}, fmt.Errorf("%w: statistic is NaN", ErrNonFinite)
	}

	return RowScore{Scores: scores, T2: t2, Q: q}, nil
}

// Transform centres (and scales) x with the training parameters.
func (m *Model) Transform(x mat.Matrix) (*mat.Dense, error) {
	if m == nil {
		return nil, ErrNoModel
	}

	rows, cols := x.Dims()
	if cols != m.Variables() {
		return nil, fmt.Errorf("%w: %d columns, model has %d variables", ErrDimensionMismatch, cols, m.Variables())
	}

	out := mat.NewDense(rows, cols, nil)
	out.Apply(func(_, j int, v float64) float64 {
		return standardize(v, j, m.mean, m.scale)
	}, x)

	return out, nil
}

// Reconstruct maps N×k scores back to centred variable space (t·Pᵀ).
func (m *Model) Reconstruct(scores mat.Matrix) (*mat.Dense, error) {
	if m == nil {
		return nil, ErrNoModel
	}

	rows, cols := scores.Dims()
	if cols != m.components {
		return nil, fmt.Errorf("%w: %d score columns, model has %d components", ErrDimensionMismatch, cols, m.components)
	}

	out := mat.NewDense(rows, m.Variables(), nil)
	out.Mul(scores, m.loadings.T())

	return out, nil
}

// Residuals returns the part of the centred observations the retained
// components do not reconstruct.
func (m *Model) Residuals(x mat.Matrix) (*mat.Dense, error) {
	centred, err := m.Transform(x)
	if err != nil {
		return nil, err
	}

	var scores mat.Dense
	scores.Mul(centred, m.loadings)

	fitted, err := m.Reconstruct(&scores)
	if err != nil {
		return nil, err
	}

	centred.Sub(centred, fitted)

	return centred, nil
}

func (m *Model) centre(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = standardize(v, j, m.mean, m.scale)
	}

	return out
}
