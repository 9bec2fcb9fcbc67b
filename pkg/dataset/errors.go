package dataset

import "errors"

// Sentinel errors.
var (
	// ErrInvalidSchema is returned when a schema document or declaration is invalid.
	ErrInvalidSchema = errors.New("invalid dataset schema")
	// ErrMissingColumn is returned when a declared column is absent from the CSV header.
	ErrMissingColumn = errors.New("missing column")
	// ErrInvalidValue is returned when a cell cannot be parsed.
	ErrInvalidValue = errors.New("invalid value")
	// ErrEmptyTable is returned when a CSV has a header but no data rows.
	ErrEmptyTable = errors.New("table has no rows")
)
