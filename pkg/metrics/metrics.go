// Package metrics defines self-describing metrics: a computation over some
// input plus the metadata needed to label its value in tables, dashboards
// and API responses.
package metrics

import "slices"

// Kind tells consumers how to render a value.
type Kind string

// Metric kinds.
const (
	KindCount    Kind = "count"
	KindPercent  Kind = "percent"
	KindCategory Kind = "category"
	KindValue    Kind = "value"
)

// Metric is a named computation over In.
type Metric[In, Out any] interface {
	// Name returns the machine-readable identifier (snake_case, unique).
	Name() string
	// DisplayName returns the label shown in reports.
	DisplayName() string
	// Description documents what the value measures.
	Description() string
	Kind() Kind
	Compute(input In) Out
}

// Meta holds the common metadata of a metric. Embed it to satisfy the
// metadata methods of Metric.
type Meta struct {
	MetricName        string
	MetricDisplayName string
	MetricDescription string
	MetricKind        Kind
}

// Name returns the machine-readable identifier.
func (m Meta) Name() string { return m.MetricName }

// DisplayName returns the label shown in reports.
func (m Meta) DisplayName() string { return m.MetricDisplayName }

// Description returns the documentation of the metric.
func (m Meta) Description() string { return m.MetricDescription }

// Kind returns the rendering kind.
func (m Meta) Kind() Kind { return m.MetricKind }

// Func adapts a function into a Metric.
type Func[In, Out any] struct {
	Meta

	Fn func(In) Out
}

// Compute calls Fn.
func (f Func[In, Out]) Compute(input In) Out { return f.Fn(input) }

// Value is one evaluated metric.
type Value struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Kind        Kind   `json:"kind"`
	Value       any    `json:"value"`
}

// Set evaluates metrics over a shared input in registration order.
type Set[In any] struct {
	names   []string
	entries []func(In) Value
}

// NewSet creates an empty set.
func NewSet[In any]() *Set[In] {
	return &Set[In]{}
}

// Add registers m. A metric whose name is already registered replaces the
// earlier one in place.
func Add[In, Out any](s *Set[In], m Metric[In, Out]) {
	eval := func(input In) Value {
		return Value{
			Name:        m.Name(),
			DisplayName: m.DisplayName(),
			Kind:        m.Kind(),
			Value:       m.Compute(input),
		}
	}

	if i := slices.Index(s.names, m.Name()); i >= 0 {
		s.entries[i] = eval

		return
	}

	s.names = append(s.names, m.Name())
	s.entries = append(s.entries, eval)
}

// Names returns the registered metric names in order.
func (s *Set[In]) Names() []string {
	return slices.Clone(s.names)
}

// Evaluate computes every metric over input.
func (s *Set[In]) Evaluate(input In) []Value {
	values := make([]Value, len(s.entries))

	for i, eval := range s.entries {
		values[i] = eval(input)
	}

	return values
}
