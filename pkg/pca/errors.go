package pca

import "errors"

// Sentinel errors.
var (
	// ErrInsufficientData is returned when the training matrix cannot support the requested model.
	ErrInsufficientData = errors.New("insufficient training data")
	// ErrDimensionMismatch is returned when a matrix does not have the model's variable count.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrComponentsRequired is returned when neither a component count nor a variance threshold is given.
	ErrComponentsRequired = errors.New("component count or variance threshold is required")
	// ErrInvalidComponents is returned for a component count or threshold outside the valid range.
	ErrInvalidComponents = errors.New("invalid component selection")
	// ErrNonFinite is returned when a matrix contains NaN or infinite values.
	ErrNonFinite = errors.New("non-finite value")
	// ErrDecomposition is returned when the eigendecomposition does not converge.
	ErrDecomposition = errors.New("eigendecomposition failed")
	// ErrNoModel is returned when scoring is attempted without a fitted model.
	ErrNoModel = errors.New("no fitted model")
	// ErrInvalidSnapshot is returned when a persisted model is internally inconsistent.
	ErrInvalidSnapshot = errors.New("invalid model snapshot")
)
