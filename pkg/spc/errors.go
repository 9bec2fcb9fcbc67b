package spc

import (
	"errors"

	"github.com/Sumatoshi-tech/fillspc/pkg/pca"
)

// Sentinel errors.
var (
	// ErrInvalidConfidence is returned when a confidence level is outside (0,1).
	ErrInvalidConfidence = errors.New("confidence must be in (0,1)")
	// ErrMissingLimits is returned when classification is attempted without limits.
	ErrMissingLimits = errors.New("control limits are missing")
	// ErrUnknownMethod is returned for an unrecognised limit method name.
	ErrUnknownMethod = errors.New("unknown limit method")
	// ErrInsufficientData is returned when the training statistics cannot support a limit.
	ErrInsufficientData = pca.ErrInsufficientData
	// ErrDimensionMismatch is returned when statistic slices have different lengths.
	ErrDimensionMismatch = pca.ErrDimensionMismatch
	// ErrNoModel is returned when limits are requested without a fitted model.
	ErrNoModel = pca.ErrNoModel
)

// Warning is a non-fatal condition recorded on computed limits.
type Warning string

const (
	// EmptyResidualWarning means every component is retained, so Q is
	// identically zero and its limit is zero.
	EmptyResidualWarning Warning = "empty_residual"
	// BoxFallbackWarning means the Jackson–Mudholkar approximation does not
	// apply (h0 not positive, or a confidence below 0.5) and the Box
	// approximation was used instead.
	BoxFallbackWarning Warning = "jackson_mudholkar_fallback_to_box"
)

// Message returns a human-readable description of the warning.
func (w Warning) Message() string {
	switch w {
	case EmptyResidualWarning:
		return "all components retained: residual subspace is empty, Q is always 0"
	case BoxFallbackWarning:
		return "Jackson-Mudholkar approximation does not apply, Q limit uses the Box approximation"
	default:
		return string(w)
	}
}
