package pca

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// eigenTolerance is the magnitude below which an eigenvalue is treated as zero.
const eigenTolerance = 1e-12

// FitOptions controls model fitting.
type FitOptions struct {
	// Components is the number of components to retain. Zero defers to
	// VarianceThreshold.
	Components int
	// VarianceThreshold selects the smallest k whose cumulative explained
	// variance ratio reaches the threshold. Used only when Components is zero.
	VarianceThreshold float64
	// Scaling selects centre-only or autoscaled PCA. Empty means autoscale.
	Scaling Scaling
	// Variables names the columns of the training matrix. Empty generates x1..xM.
	Variables []string
}

// Fit fits a PCA model on an N×M training matrix.
func Fit(x mat.Matrix, opts FitOptions) (*Model, error) {
	rows, cols := x.Dims()

	err := validateFit(rows, cols, opts)
	if err != nil {
		return nil, err
	}

	names, err := variableNames(opts.Variables, cols)
	if err != nil {
		return nil, err
	}

	scaling := opts.Scaling
	if scaling == "" {
		scaling = ScalingAutoscale
	}

	mean, scale, err := columnParameters(x, scaling)
	if err != nil {
		return nil, err
	}

	centred := mat.NewDense(rows, cols, nil)
	centred.Apply(func(_, j int, v float64) float64 {
		return standardize(v, j, mean, scale)
	}, x)

	cov := mat.NewSymDense(cols, nil)
	stat.CovarianceMatrix(cov, centred, nil)

	var eig mat.EigenSym
	if !eig.Factorize(cov, true) {
		return nil, fmt.Errorf("%w: %d×%d covariance", ErrDecomposition, cols, cols)
	}

	values, vectors := sortedEigenpairs(&eig)

	k := opts.Components
	if k == 0 {
		k = ComponentsForVariance(values, opts.VarianceThreshold)
	}

	if rows < k {
		return nil, fmt.Errorf("%w: %d observations for %d components", ErrInsufficientData, rows, k)
	}

	if values[k-1] <= eigenTolerance {
		return nil, fmt.Errorf("%w: training data has rank below %d", ErrInsufficientData, k)
	}

	loadings := mat.DenseCopyOf(vectors.Slice(0, cols, 0, k))

	return &Model{
		variables:   names,
		scaling:     scaling,
		samples:     rows,
		components:  k,
		mean:        mean,
		scale:       scale,
		loadings:    loadings,
		eigenvalues: values,
	}, nil
}

// ComponentsForVariance returns the smallest k whose cumulative explained
// variance ratio reaches threshold. Eigenvalues must be in descending order.
func ComponentsForVariance(eigenvalues []float64, threshold float64) int {
	ratios := varianceRatios(eigenvalues)

	var cumulative float64

	for i, r := range ratios {
		cumulative += r
		if cumulative >= threshold-eigenTolerance {
			return i + 1
		}
	}

	return len(eigenvalues)
}

func validateFit(rows, cols int, opts FitOptions) error {
	switch {
	case cols == 0:
		return fmt.Errorf("%w: matrix has no variables", ErrInsufficientData)
	case rows < 2:
		return fmt.Errorf("%w: %d observations, need at least 2", ErrInsufficientData, rows)
	case opts.Components < 0:
		return fmt.Errorf("%w: component count %d", ErrInvalidComponents, opts.Components)
	case opts.Components > cols:
		return fmt.Errorf("%w: %d components for %d variables", ErrInvalidComponents, opts.Components, cols)
	case opts.Components > rows:
		return fmt.Errorf("%w: %d observations for %d components", ErrInsufficientData, rows, opts.Components)
	case opts.Components == 0 && opts.VarianceThreshold <= 0:
		return ErrComponentsRequired
	case opts.Components == 0 && opts.VarianceThreshold > 1:
		return fmt.Errorf("%w: variance threshold %g outside (0,1]", ErrInvalidComponents, opts.VarianceThreshold)
	}

	switch opts.Scaling {
	case "", ScalingCenter, ScalingAutoscale:
		return nil
	default:
		return fmt.Errorf("%w: unknown scaling %q", ErrInvalidComponents, opts.Scaling)
	}
}

func variableNames(names []string, cols int) ([]string, error) {
	if len(names) == 0 {
		generated := make([]string, cols)
		for i := range generated {
			generated[i] = fmt.Sprintf("x%d", i+1)
		}

		return generated, nil
	}

	if len(names) != cols {
		return nil, fmt.Errorf("%w: %d variable names for %d columns", ErrDimensionMismatch, len(names), cols)
	}

	return append([]string(nil), names...), nil
}

// columnParameters returns per-column means and, for autoscaling, sample
// standard deviations. Constant columns keep a scale of 1.
func columnParameters(x mat.Matrix, scaling Scaling) (mean, scale []float64, err error) {
	rows, cols := x.Dims()
	mean = make([]float64, cols)

	if scaling == ScalingAutoscale {
		scale = make([]float64, cols)
	}

	col := make([]float64, rows)

	for j := range cols {
		mat.Col(col, j, x)

		for i, v := range col {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, nil, fmt.Errorf("%w: non-finite value at row %d column %d", ErrNonFinite, i, j)
			}
		}

		m, sd := stat.MeanStdDev(col, nil)
		mean[j] = m

		if scale != nil {
			if sd <= eigenTolerance {
				sd = 1
			}

			scale[j] = sd
		}
	}

	return mean, scale, nil
}

func standardize(v float64, j int, mean, scale []float64) float64 {
	v -= mean[j]
	if scale != nil {
		v /= scale[j]
	}

	return v
}

// sortedEigenpairs orders eigenpairs by descending eigenvalue and flips each
// eigenvector so its largest-magnitude entry is positive.
func sortedEigenpairs(eig *mat.EigenSym) ([]float64, *mat.Dense) {
	raw := eig.Values(nil)

	var rawVectors mat.Dense
	eig.VectorsTo(&rawVectors)

	order := make([]int, len(raw))
	for i := range order {
		order[i] = i
	}

	sort.SliceStable(order, func(a, b int) bool { return raw[order[a]] > raw[order[b]] })

	dim := len(raw)
	values := make([]float64, dim)
	vectors := mat.NewDense(dim, dim, nil)
	col := make([]float64, dim)

	for dst, src := range order {
		values[dst] = math.Max(raw[src], 0)

		mat.Col(col, src, &rawVectors)
		orientColumn(col)
		vectors.SetCol(dst, col)
	}

	return values, vectors
}

func orientColumn(col []float64) {
	pivot := 0

	for i, v := range col {
		if math.Abs(v) > math.Abs(col[pivot]) {
			pivot = i
		}
	}

	if col[pivot] < 0 {
		for i := range col {
			col[i] = -col[i]
		}
	}
}
