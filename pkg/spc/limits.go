// Package spc derives control limits for the PCA monitoring statistics and
// classifies observations against them.
//
// Limits are computed once per (model, confidence) pair and are immutable.
// Classification compares each observation independently; consecutive
// near-limit points are never aggregated into run-rule alarms.
package spc

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/Sumatoshi-tech/fillspc/pkg/alg/stats"
	"github.com/Sumatoshi-tech/fillspc/pkg/pca"
)

// T2Method selects how the T² limit is derived.
type T2Method string

// T² limit methods.
const (
	// T2MethodF uses k(N−1)/(N−k)·F(k, N−k).
	T2MethodF T2Method = "f"
	// T2MethodChiSquare uses χ²(k), the large-N approximation.
	T2MethodChiSquare T2Method = "chi2"
	// T2MethodEmpirical uses the confidence percentile of the training T².
	T2MethodEmpirical T2Method = "empirical"
)

// QMethod selects how the Q limit is derived.
type QMethod string

// Q limit methods.
const (
	// QMethodJacksonMudholkar uses the normal approximation of the residual
	// eigenvalue moments θ1, θ2, θ3.
	QMethodJacksonMudholkar QMethod = "jackson-mudholkar"
	// QMethodBox uses the weighted chi-square g·χ²(h) from θ1 and θ2.
	QMethodBox QMethod = "box"
	// QMethodMoments fits g·χ²(h) to the mean and variance of the training Q.
	QMethodMoments QMethod = "moments"
	// QMethodEmpirical uses the confidence percentile of the training Q.
	QMethodEmpirical QMethod = "empirical"
)

// eigenTolerance is the residual variance below which the residual subspace
// is treated as empty.
const eigenTolerance = 1e-12

// LimitOptions selects the limit methods. The zero value uses the F
// distribution for T² and Jackson–Mudholkar for Q.
type LimitOptions struct {
	T2Method T2Method
	QMethod  QMethod
	// Joint applies a Šidák adjustment: each limit is computed at √c so the
	// false-alarm rate of T2_flag OR Q_flag stays close to 1−c.
	Joint bool
}

// Limits is an immutable pair of control limits with its provenance.
type Limits struct {
	T2         float64   `json:"T2_limit"           yaml:"T2_limit"`
	Q          float64   `json:"Q_limit"            yaml:"Q_limit"`
	Components int       `json:"component_count"    yaml:"component_count"`
	Confidence float64   `json:"confidence"         yaml:"confidence"`
	T2Method   T2Method  `json:"t2_method"          yaml:"t2_method"`
	QMethod    QMethod   `json:"q_method"           yaml:"q_method"`
	Joint      bool      `json:"joint"              yaml:"joint"`
	Warnings   []Warning `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// HasWarning reports whether w was recorded while computing the limits.
func (l *Limits) HasWarning(w Warning) bool {
	return l != nil && slices.Contains(l.Warnings, w)
}

// ParseT2Method validates a T² method name. Empty selects the F method.
func ParseT2Method(name string) (T2Method, error) {
	switch m := T2Method(name); m {
	case "":
		return T2MethodF, nil
	case T2MethodF, T2MethodChiSquare, T2MethodEmpirical:
		return m, nil
	default:
		return "", fmt.Errorf("%w: T2 method %q", ErrUnknownMethod, name)
	}
}

// ParseQMethod validates a Q method name. Empty selects Jackson–Mudholkar.
func ParseQMethod(name string) (QMethod, error) {
	switch m := QMethod(name); m {
	case "":
		return QMethodJacksonMudholkar, nil
	case QMethodJacksonMudholkar, QMethodBox, QMethodMoments, QMethodEmpirical:
		return m, nil
	default:
		return "", fmt.Errorf("%w: Q method %q", ErrUnknownMethod, name)
	}
}

// ValidateConfidence returns ErrInvalidConfidence unless c is in (0,1).
func ValidateConfidence(c float64) error {
	if !(c > 0 && c < 1) {
		return fmt.Errorf("%w: got %v", ErrInvalidConfidence, c)
	}

	return nil
}

// ComputeLimits derives the T² and Q limits of a fitted model at the given
// confidence. trainingT2 and trainingQ are the in-sample statistics; they are
// required only by the empirical and moments methods.
func ComputeLimits(model *pca.Model, trainingT2, trainingQ []float64, confidence float64, opts LimitOptions) (*Limits, error) {
	if model == nil {
		return nil, ErrNoModel
	}

	err := ValidateConfidence(confidence)
	if err != nil {
		return nil, err
	}

	if len(trainingT2) != len(trainingQ) {
		return nil, fmt.Errorf("%w: %d T2 values, %d Q values", ErrDimensionMismatch, len(trainingT2), len(trainingQ))
	}

	t2Method, err := ParseT2Method(string(opts.T2Method))
	if err != nil {
		return nil, err
	}

	qMethod, err := ParseQMethod(string(opts.QMethod))
	if err != nil {
		return nil, err
	}

	level := confidence
	if opts.Joint {
		level = math.Sqrt(confidence)
	}

	limits := &Limits{
		Components: model.Components(),
		Confidence: confidence,
		T2Method:   t2Method,
		QMethod:    qMethod,
		Joint:      opts.Joint,
	}

	limits.T2, err = t2Limit(t2Method, model.Components(), model.Samples(), trainingT2, level)
	if err != nil {
		return nil, err
	}

	limits.Q, limits.Warnings, err = qLimit(qMethod, model.ResidualEigenvalues(), trainingQ, level)
	if err != nil {
		return nil, err
	}

	return limits, nil
}

func t2Limit(method T2Method, k, n int, training []float64, c float64) (float64, error) {
	switch method {
	case T2MethodChiSquare:
		return distuv.ChiSquared{K: float64(k)}.Quantile(c), nil
	case T2MethodEmpirical:
		if len(training) == 0 {
			return 0, fmt.Errorf("%w: empirical T2 limit needs training statistics", ErrInsufficientData)
		}

		return stats.Percentile(training, c), nil
	default:
		if n <= k {
			return 0, fmt.Errorf("%w: F limit needs more than %d training observations, got %d", ErrInsufficientData, k, n)
		}

		kf, nf := float64(k), float64(n)

		return kf * (nf - 1) / (nf - kf) * FQuantile(c, kf, nf-kf), nil
	}
}

// FQuantile returns the p-quantile of the F(d1, d2) distribution, derived
// from the Beta(d1/2, d2/2) quantile x as d2·x / (d1·(1−x)).
func FQuantile(p, d1, d2 float64) float64 {
	x := distuv.Beta{Alpha: d1 / 2, Beta: d2 / 2}.Quantile(p)

	return d2 * x / (d1 * (1 - x))
}

func qLimit(method QMethod, residual, training []float64, c float64) (float64, []Warning, error) {
	theta1, theta2, theta3 := thetas(residual)
	if len(residual) == 0 || theta1 <= eigenTolerance {
		return 0, []Warning{EmptyResidualWarning}, nil
	}

	switch method {
	case QMethodBox:
		return boxLimit(theta1, theta2, c), nil, nil
	case QMethodMoments:
		limit, err := momentsLimit(training, c)

		return limit, nil, err
	case QMethodEmpirical:
		if len(training) == 0 {
			return 0, nil, fmt.Errorf("%w: empirical Q limit needs training statistics", ErrInsufficientData)
		}

		return stats.Percentile(training, c), nil, nil
	default:
		limit, ok := jacksonMudholkarLimit(theta1, theta2, theta3, c)
		if !ok {
			return boxLimit(theta1, theta2, c), []Warning{BoxFallbackWarning}, nil
		}

		return limit, nil, nil
	}
}

// jacksonMudholkarLimit is only used in the upper tail. Below c = 0.5 the
// normal quantile is negative and the base of the power transform can reach
// zero, which turns the limit into NaN or collapses it to zero.
func jacksonMudholkarLimit(theta1, theta2, theta3, c float64) (float64, bool) {
	h0 := 1 - 2*theta1*theta3/(3*theta2*theta2)
	if h0 <= 0 || c < 0.5 {
		return 0, false
	}

	z := distuv.UnitNormal.Quantile(c)
	base := z*math.Sqrt(2*theta2*h0*h0)/theta1 + 1 + theta2*h0*(h0-1)/(theta1*theta1)

	if base <= 0 {
		return 0, false
	}

	limit := theta1 * math.Pow(base, 1/h0)
	if !(limit > 0) || math.IsInf(limit, 1) {
		return 0, false
	}

	return limit, true
}

func thetas(eigenvalues []float64) (theta1, theta2, theta3 float64) {
	for _, v := range eigenvalues {
		theta1 += v
		theta2 += v * v
		theta3 += v * v * v
	}

	return theta1, theta2, theta3
}

// boxLimit returns g·χ²_h(c) with g = θ2/θ1 and h = θ1²/θ2.
func boxLimit(theta1, theta2, c float64) float64 {
	return weightedChiSquare(theta2/theta1, theta1*theta1/theta2, c)
}

// momentsLimit matches g·χ²_h to the sample mean m and variance v of the
// training Q: g = v/(2m), h = 2m²/v.
func momentsLimit(training []float64, c float64) (float64, error) {
	if len(training) < 2 {
		return 0, fmt.Errorf("%w: moments Q limit needs at least 2 training statistics", ErrInsufficientData)
	}

	m, v := stats.MeanVariance(training)
	if m <= 0 || v <= 0 {
		return 0, fmt.Errorf("%w: training Q has mean %g and variance %g", ErrInsufficientData, m, v)
	}

	return weightedChiSquare(v/(2*m), 2*m*m/v, c), nil
}

func weightedChiSquare(g, h, c float64) float64 {
	return g * distuv.ChiSquared{K: h}.Quantile(c)
}
