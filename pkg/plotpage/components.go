package plotpage

import (
	"fmt"
	"html/template"
	"io"
)

const maxGridColumns = 4

// Tone selects the color of stats and alerts.
type Tone string

// Tones.
const (
	ToneNeutral Tone = "neutral"
	ToneGood    Tone = "good"
	ToneWarning Tone = "warning"
	ToneBad     Tone = "bad"
)

func (t Tone) textClass() string {
	switch t {
	case ToneGood:
		return "text-teal-600 dark:text-teal-400"
	case ToneWarning:
		return "text-yellow-600 dark:text-yellow-400"
	case ToneBad:
		return "text-red-600 dark:text-red-400"
	default:
		return "text-slate-500 dark:text-slate-400"
	}
}

func (t Tone) alertClasses() string {
	switch t {
	case ToneGood:
		return "bg-teal-50 border-teal-300 text-teal-800 dark:bg-teal-950 dark:border-teal-700 dark:text-teal-200"
	case ToneWarning:
		return "bg-yellow-50 border-yellow-300 text-yellow-800 dark:bg-yellow-950 dark:border-yellow-700 dark:text-yellow-200"
	case ToneBad:
		return "bg-red-50 border-red-300 text-red-800 dark:bg-red-950 dark:border-red-700 dark:text-red-200"
	default:
		return "bg-slate-50 border-slate-300 text-slate-800 dark:bg-slate-900 dark:border-slate-700 dark:text-slate-200"
	}
}

// Stat is a single KPI tile.
type Stat struct {
	Label string
	Value string
	Trend string
	Tone  Tone
}

// NewStat creates a KPI tile.
func NewStat(label, value string) *Stat {
	return &Stat{Label: label, Value: value, Tone: ToneNeutral}
}

// WithTrend sets the caption under the value and its tone.
func (s *Stat) WithTrend(trend string, tone Tone) *Stat {
	s.Trend = trend
	s.Tone = tone

	return s
}

// Render writes the tile.
func (s *Stat) Render(w io.Writer) error {
	return execute(w, "stat.html", struct {
		Label, Value, Trend, TrendClass string
	}{s.Label, s.Value, s.Trend, s.Tone.textClass()})
}

// Grid lays components out in equal columns.
type Grid struct {
	Columns int
	Items   []Renderable
}

// NewGrid creates a grid with columns clamped to [1, 4].
func NewGrid(columns int, items ...Renderable) *Grid {
	return &Grid{Columns: max(1, min(columns, maxGridColumns)), Items: items}
}

// Render writes the grid.
func (g *Grid) Render(w io.Writer) error {
	items := make([]template.HTML, 0, len(g.Items))

	for i, item := range g.Items {
		html, err := renderFragment(item)
		if err != nil {
			return fmt.Errorf("grid item %d: %w", i, err)
		}

		items = append(items, html)
	}

	return execute(w, "grid.html", struct {
		ColClass string
		Items    []template.HTML
	}{fmt.Sprintf("md:grid-cols-%d", g.Columns), items})
}

// Table is a plain HTML table. Highlighted rows are drawn in the alert tone.
type Table struct {
	Headers   []string
	Rows      [][]string
	Highlight []bool
	Striped   bool
}

// NewTable creates a striped table.
func NewTable(headers ...string) *Table {
	return &Table{Headers: headers, Striped: true}
}

// AddRow appends a row.
func (t *Table) AddRow(cells ...string) *Table {
	return t.add(false, cells)
}

// AddHighlightedRow appends a row drawn in the alert tone.
func (t *Table) AddHighlightedRow(cells ...string) *Table {
	return t.add(true, cells)
}

func (t *Table) add(highlight bool, cells []string) *Table {
	t.Rows = append(t.Rows, cells)
	t.Highlight = append(t.Highlight, highlight)

	return t
}

// Render writes the table.
func (t *Table) Render(w io.Writer) error {
	type row struct {
		Cells     []string
		Highlight bool
	}

	rows := make([]row, len(t.Rows))
	for i, cells := range t.Rows {
		rows[i] = row{Cells: cells, Highlight: i < len(t.Highlight) && t.Highlight[i]}
	}

	return execute(w, "table.html", struct {
		Headers []string
		Rows    []row
		Striped bool
	}{t.Headers, rows, t.Striped})
}

// Alert is a highlighted message box.
type Alert struct {
	Title   string
	Message string
	Tone    Tone
}

// NewAlert creates an alert.
func NewAlert(title, message string, tone Tone) *Alert {
	return &Alert{Title: title, Message: message, Tone: tone}
}

// Render writes the alert.
func (a *Alert) Render(w io.Writer) error {
	return execute(w, "alert.html", struct {
		Title, Message, Classes string
	}{a.Title, a.Message, a.Tone.alertClasses()})
}

// Stack renders components one after another.
type Stack []Renderable

// Render writes every component in order.
func (s Stack) Render(w io.Writer) error {
	for i, item := range s {
		html, err := renderFragment(item)
		if err != nil {
			return fmt.Errorf("stack item %d: %w", i, err)
		}

		_, err = io.WriteString(w, string(html))
		if err != nil {
			return fmt.Errorf("write stack item %d: %w", i, err)
		}
	}

	return nil
}
