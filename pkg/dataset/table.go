package dataset

import (
	"time"

	"gonum.org/v1/gonum/mat"
)

// RowMeta holds the auxiliary columns of one observation.
type RowMeta struct {
	PartID     string    `json:"part_id,omitempty"`
	Timestamp  time.Time `json:"timestamp,omitzero"`
	RejectType string    `json:"reject_type,omitempty"`
}

// Table is an immutable, loaded process table.
type Table struct {
	Schema Schema
	// Matrix is N×M with columns in Schema.Variables order.
	Matrix *mat.Dense
	// Rows holds the auxiliary columns, aligned with Matrix rows.
	Rows []RowMeta
	// Source is the path the table was loaded from, if any.
	Source string
}

// Len returns the number of observations.
func (t *Table) Len() int { return len(t.Rows) }

// SizeBytes estimates the memory held by the table.
func (t *Table) SizeBytes() int64 {
	const (
		float64Size = 8
		rowOverhead = 64
	)

	rows, cols := t.Matrix.Dims()
	size := int64(rows*cols*float64Size + rows*rowOverhead)

	for _, r := range t.Rows {
		size += int64(len(r.PartID) + len(r.RejectType))
	}

	return size
}

// FromMatrix wraps a matrix with empty auxiliary columns. It is used for
// synthetic data and tests.
func FromMatrix(x *mat.Dense, variables []string) *Table {
	rows, _ := x.Dims()

	return &Table{
		Schema: Schema{Variables: append([]string(nil), variables...)},
		Matrix: x,
		Rows:   make([]RowMeta, rows),
	}
}
