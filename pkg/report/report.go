package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/fillspc/pkg/metrics"
	"github.com/Sumatoshi-tech/fillspc/pkg/pipeline"
	"github.com/Sumatoshi-tech/fillspc/pkg/spc"
)

// ErrUnknownFormat is returned for an unsupported output format.
var ErrUnknownFormat = errors.New("unknown output format")

// Format is a summary output format.
type Format string

// Output formats.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name. Empty selects text.
func ParseFormat(name string) (Format, error) {
	switch f := Format(name); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
}

// Anomaly is one out-of-control observation in a summary.
type Anomaly struct {
	Row        int       `json:"row"                   yaml:"row"`
	PartID     string    `json:"part_id,omitempty"     yaml:"part_id,omitempty"`
	Timestamp  time.Time `json:"timestamp,omitzero"    yaml:"timestamp,omitempty"`
	RejectType string    `json:"reject_type,omitempty" yaml:"reject_type,omitempty"`
	T2         float64   `json:"T2"                    yaml:"T2"`
	Q          float64   `json:"Q"                     yaml:"Q"`
	T2Flag     bool      `json:"T2_flag"               yaml:"T2_flag"`
	QFlag      bool      `json:"Q_flag"                yaml:"Q_flag"`
}

// Summary is the filtered view of a run shared by the CLI, the HTTP API and
// the MCP tools.
type Summary struct {
	KPIs                   KPIs       `json:"kpis"                               yaml:"kpis"`
	Limits                 spc.Limits `json:"limits"                             yaml:"limits"`
	Components             []string   `json:"components,omitempty"               yaml:"components,omitempty"`
	ExplainedVarianceRatio []float64  `json:"explained_variance_ratio,omitempty" yaml:"explained_variance_ratio,omitempty"`
	Filter                 Filter     `json:"filter"                             yaml:"filter"`
	Anomalies              []Anomaly  `json:"anomalies"                          yaml:"anomalies"`
}

// Summarize applies f to the run and computes its summary.
func Summarize(result *pipeline.Result, f Filter) (*Summary, error) {
	if result == nil || result.Limits == nil {
		return nil, spc.ErrMissingLimits
	}

	err := f.Validate()
	if err != nil {
		return nil, err
	}

	selected := f.Apply(result.Observations)

	summary := &Summary{
		KPIs:      ComputeKPIs(selected),
		Limits:    *result.Limits,
		Filter:    f,
		Anomalies: make([]Anomaly, 0),
	}

	if result.Model != nil {
		summary.Components = result.Model.ComponentNames()
		summary.ExplainedVarianceRatio = result.Model.ExplainedVarianceRatio()
	}

	for i := range selected {
		o := &selected[i]
		if !o.Anomaly {
			continue
		}

		summary.Anomalies = append(summary.Anomalies, Anomaly{
			Row:        o.Row,
			PartID:     o.PartID,
			Timestamp:  o.Timestamp,
			RejectType: o.RejectType,
			T2:         o.T2,
			Q:          o.Q,
			T2Flag:     o.T2Flag,
			QFlag:      o.QFlag,
		})
	}

	return summary, nil
}

// WriteSummary writes s in the requested format.
func WriteSummary(w io.Writer, s *Summary, format Format, opts TextOptions) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		err := enc.Encode(s)
		if err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}

		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)

		err := enc.Encode(s)
		if err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}

		return enc.Close()
	case FormatText, "":
		return WriteText(w, s, opts)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// FormatValue renders a metric value for display: counts get thousands
// separators and percentages two decimals.
func FormatValue(v metrics.Value) string {
	switch x := v.Value.(type) {
	case int:
		return humanize.Comma(int64(x))
	case float64:
		if v.Kind == metrics.KindPercent {
			return strconv.FormatFloat(x, 'f', 2, 64) + "%"
		}

		return humanize.FtoaWithDigits(x, 4)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
