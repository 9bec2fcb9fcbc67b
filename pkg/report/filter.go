// Package report turns a scored run into KPIs, summaries, terminal tables and
// an HTML dashboard. Every consumer works on the same shared result.
package report

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/fillspc/pkg/pipeline"
)

// ErrInvalidFilter is returned for malformed or contradictory filters.
var ErrInvalidFilter = errors.New("invalid filter")

// Query parameter names understood by FilterFromQuery.
const (
	ParamPartID        = "part_id"
	ParamRejectType    = "reject_type"
	ParamFrom          = "from"
	ParamTo            = "to"
	ParamAnomaliesOnly = "anomalies"
)

// timeLayouts are tried in order. The last one is date-only.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// Filter selects observations. Empty fields match everything; the time
// range is inclusive on both ends.
type Filter struct {
	PartIDs       []string  `json:"part_ids,omitempty"     yaml:"part_ids,omitempty"`
	RejectTypes   []string  `json:"reject_types,omitempty" yaml:"reject_types,omitempty"`
	From          time.Time `json:"from,omitzero"          yaml:"from,omitempty"`
	To            time.Time `json:"to,omitzero"            yaml:"to,omitempty"`
	AnomaliesOnly bool      `json:"anomalies_only,omitempty" yaml:"anomalies_only,omitempty"`
}

// IsZero reports whether the filter matches everything.
func (f Filter) IsZero() bool {
	return len(f.PartIDs) == 0 && len(f.RejectTypes) == 0 && f.From.IsZero() && f.To.IsZero() && !f.AnomaliesOnly
}

// Validate rejects an inverted time range.
func (f Filter) Validate() error {
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return fmt.Errorf("%w: from %s is after to %s", ErrInvalidFilter,
			f.From.Format(time.RFC3339), f.To.Format(time.RFC3339))
	}

	return nil
}

// Match reports whether o passes the filter. Rows without a reject type never
// match a reject type filter and rows without a timestamp never match a time
// bound.
func (f Filter) Match(o *pipeline.ScoredObservation) bool {
	if f.AnomaliesOnly && !o.Anomaly {
		return false
	}

	if len(f.PartIDs) > 0 && !slices.Contains(f.PartIDs, o.PartID) {
		return false
	}

	if len(f.RejectTypes) > 0 && (o.RejectType == "" || !slices.Contains(f.RejectTypes, o.RejectType)) {
		return false
	}

	if f.From.IsZero() && f.To.IsZero() {
		return true
	}

	if o.Timestamp.IsZero() {
		return false
	}

	if !f.From.IsZero() && o.Timestamp.Before(f.From) {
		return false
	}

	return f.To.IsZero() || !o.Timestamp.After(f.To)
}

// Apply returns the matching observations in their original order. The
// result shares no backing array with observations.
func (f Filter) Apply(observations []pipeline.ScoredObservation) []pipeline.ScoredObservation {
	out := make([]pipeline.ScoredObservation, 0, len(observations))

	for i := range observations {
		if f.Match(&observations[i]) {
			out = append(out, observations[i])
		}
	}

	return out
}

// FilterFromQuery parses filter query parameters. List parameters may be
// repeated or comma separated.
func FilterFromQuery(q url.Values) (Filter, error) {
	f := Filter{
		PartIDs:     splitList(q[ParamPartID]),
		RejectTypes: splitList(q[ParamRejectType]),
	}

	var err error

	if raw := q.Get(ParamFrom); raw != "" {
		f.From, err = ParseTime(raw, false)
		if err != nil {
			return Filter{}, err
		}
	}

	if raw := q.Get(ParamTo); raw != "" {
		f.To, err = ParseTime(raw, true)
		if err != nil {
			return Filter{}, err
		}
	}

	if raw := q.Get(ParamAnomaliesOnly); raw != "" {
		f.AnomaliesOnly, err = strconv.ParseBool(raw)
		if err != nil {
			return Filter{}, fmt.Errorf("%w: %s=%q", ErrInvalidFilter, ParamAnomaliesOnly, raw)
		}
	}

	return f, f.Validate()
}

// ParseTime parses a filter bound. A date-only upper bound covers the whole
// day.
func ParseTime(raw string, upper bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)

	for i, layout := range timeLayouts {
		t, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}

		if upper && i == len(timeLayouts)-1 {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}

		return t, nil
	}

	return time.Time{}, fmt.Errorf("%w: unrecognized time %q", ErrInvalidFilter, raw)
}

func splitList(values []string) []string {
	var out []string

	for _, v := range values {
		for part := range strings.SplitSeq(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}

	return out
}
