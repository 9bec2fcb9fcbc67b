package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// DefaultMaxRows bounds the anomaly table of the text summary.
const DefaultMaxRows = 20

// TextOptions controls the text summary.
type TextOptions struct {
	// MaxRows bounds the anomaly table. Zero means DefaultMaxRows, negative
	// means unbounded.
	MaxRows int
	// NoColor disables ANSI colors.
	NoColor bool
}

func (o TextOptions) maxRows() int {
	if o.MaxRows == 0 {
		return DefaultMaxRows
	}

	return o.MaxRows
}

// WriteText writes s as terminal tables.
func WriteText(w io.Writer, s *Summary, opts TextOptions) error {
	var sb strings.Builder

	title := color.New(color.Bold)
	ok := color.New(color.FgGreen)
	bad := color.New(color.FgRed)
	warn := color.New(color.FgYellow)

	for _, c := range []*color.Color{title, ok, bad, warn} {
		if opts.NoColor {
			c.DisableColor()
		} else {
			c.EnableColor()
		}
	}

	title.Fprintf(&sb, "SPC summary: %s parts\n", humanize.Comma(int64(s.KPIs.TotalParts)))

	if s.KPIs.TotalAnomalies == 0 {
		ok.Fprintln(&sb, "All observations in control")
	} else {
		bad.Fprintf(&sb, "%s observations out of control (%.2f%%)\n",
			humanize.Comma(int64(s.KPIs.TotalAnomalies)), s.KPIs.AnomalyPercent)
	}

	for _, warning := range s.Limits.Warnings {
		warn.Fprintf(&sb, "warning: %s\n", warning.Message())
	}

	sb.WriteString("\n")
	sb.WriteString(kpiTable(s))
	sb.WriteString("\n\n")
	sb.WriteString(limitsTable(s))
	sb.WriteString("\n")

	if len(s.Anomalies) > 0 {
		sb.WriteString("\n")
		sb.WriteString(anomalyTable(s.Anomalies, opts.maxRows()))
		sb.WriteString("\n")
	}

	_, err := io.WriteString(w, sb.String())
	if err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	return nil
}

func newTable() table.Writer {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.DrawBorder = false

	return tbl
}

func kpiTable(s *Summary) string {
	tbl := newTable()
	tbl.AppendHeader(table.Row{"KPI", "Value"})

	for _, v := range s.KPIs.Values() {
		tbl.AppendRow(table.Row{v.DisplayName, FormatValue(v)})
	}

	tbl.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})

	return tbl.Render()
}

func limitsTable(s *Summary) string {
	tbl := newTable()
	tbl.AppendHeader(table.Row{"Statistic", "Limit", "Method"})
	tbl.AppendRow(table.Row{"T²", humanize.FtoaWithDigits(s.Limits.T2, 4), string(s.Limits.T2Method)})
	tbl.AppendRow(table.Row{"Q", humanize.FtoaWithDigits(s.Limits.Q, 4), string(s.Limits.QMethod)})
	tbl.AppendFooter(table.Row{
		"k = " + strconv.Itoa(s.Limits.Components),
		"c = " + strconv.FormatFloat(s.Limits.Confidence, 'f', -1, 64),
		jointLabel(s.Limits.Joint),
	})

	return tbl.Render()
}

func anomalyTable(anomalies []Anomaly, maxRows int) string {
	tbl := newTable()
	tbl.AppendHeader(table.Row{"Row", "Part", "Timestamp", "Reject", "T²", "Q", "Flags"})

	shown := anomalies
	if maxRows > 0 && len(shown) > maxRows {
		shown = shown[:maxRows]
	}

	for _, a := range shown {
		ts := ""
		if !a.Timestamp.IsZero() {
			ts = a.Timestamp.Format(time.DateTime)
		}

		tbl.AppendRow(table.Row{
			a.Row, a.PartID, ts, a.RejectType,
			humanize.FtoaWithDigits(a.T2, 3), humanize.FtoaWithDigits(a.Q, 3), flagLabel(a),
		})
	}

	if hidden := len(anomalies) - len(shown); hidden > 0 {
		tbl.AppendFooter(table.Row{"", "", "", "", "", "", fmt.Sprintf("+%s more", humanize.Comma(int64(hidden)))})
	}

	return tbl.Render()
}

func flagLabel(a Anomaly) string {
	switch {
	case a.T2Flag && a.QFlag:
		return "T²+Q"
	case a.T2Flag:
		return "T²"
	default:
		return "Q"
	}
}

func jointLabel(joint bool) string {
	if joint {
		return "joint"
	}

	return "per statistic"
}
