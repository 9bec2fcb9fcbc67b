// Package pipeline runs the monitoring flow: fit a PCA model on training
// data, derive control limits from the training statistics, then score and
// classify a batch. The same scoring path serves in-sample, self-scoring
// and out-of-sample batches.
package pipeline

import (
	"errors"
	"time"

	"github.com/Sumatoshi-tech/fillspc/pkg/dataset"
	"github.com/Sumatoshi-tech/fillspc/pkg/pca"
	"github.com/Sumatoshi-tech/fillspc/pkg/spc"
)

// Defaults used when Config fields are zero.
const (
	DefaultComponents = 2
	DefaultConfidence = 0.95
	DefaultChunkSize  = 1024

	// DefaultJoint splits the confidence between T² and Q so the anomaly
	// flag, not each statistic, fires on about 1−c of in-control rows.
	DefaultJoint = true
)

// ErrVariableMismatch is returned when a batch declares different variables
// than the model was fitted on.
var ErrVariableMismatch = errors.New("batch variables do not match model")

// Config holds the fitting and limit options of a run.
type Config struct {
	// Components fixes k. Zero with a VarianceThreshold derives k instead.
	Components int
	// VarianceThreshold selects the smallest k whose cumulative explained
	// variance ratio reaches it.
	VarianceThreshold float64
	Scaling           pca.Scaling
	Confidence        float64
	Limits            spc.LimitOptions
}

// DefaultConfig returns two components, autoscaling and joint limits at
// 95% confidence.
func DefaultConfig() Config {
	return Config{
		Components: DefaultComponents,
		Scaling:    pca.ScalingAutoscale,
		Confidence: DefaultConfidence,
		Limits:     spc.LimitOptions{Joint: DefaultJoint},
	}
}

func (c Config) fitOptions(variables []string) pca.FitOptions {
	return pca.FitOptions{
		Components:        c.Components,
		VarianceThreshold: c.VarianceThreshold,
		Scaling:           c.Scaling,
		Variables:         variables,
	}
}

// ScoredObservation is one scored row with its auxiliary columns re-attached
// by position.
type ScoredObservation struct {
	Row        int       `json:"row"`
	PartID     string    `json:"part_id,omitempty"`
	Timestamp  time.Time `json:"timestamp,omitzero"`
	RejectType string    `json:"reject_type,omitempty"`
	Scores     []float64 `json:"scores"`
	T2         float64   `json:"T2"`
	Q          float64   `json:"Q"`
	T2Flag     bool      `json:"T2_flag"`
	QFlag      bool      `json:"Q_flag"`
	Anomaly    bool      `json:"anomaly"`
}

// Flags returns the classification of the observation.
func (o *ScoredObservation) Flags() spc.Flags {
	return spc.Flags{T2: o.T2Flag, Q: o.QFlag, Anomaly: o.Anomaly}
}

// Result is the output of a run. It is computed once and shared read-only
// by every consumer.
type Result struct {
	Model        *pca.Model
	Limits       *spc.Limits
	Schema       dataset.Schema
	Observations []ScoredObservation
}

// Counts tallies the flagged observations.
func (r *Result) Counts() spc.Counts {
	flags := make([]spc.Flags, len(r.Observations))
	for i := range r.Observations {
		flags[i] = r.Observations[i].Flags()
	}

	return spc.Count(flags)
}

// T2 returns the T² column.
func (r *Result) T2() []float64 {
	out := make([]float64, len(r.Observations))
	for i := range r.Observations {
		out[i] = r.Observations[i].T2
	}

	return out
}

// Q returns the Q column.
func (r *Result) Q() []float64 {
	out := make([]float64, len(r.Observations))
	for i := range r.Observations {
		out[i] = r.Observations[i].Q
	}

	return out
}
