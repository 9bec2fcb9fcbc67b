package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Sumatoshi-tech/fillspc/pkg/pipeline"
	"github.com/Sumatoshi-tech/fillspc/pkg/plotpage"
)

// DefaultExplorerRows bounds the data explorer table of the dashboard.
const DefaultExplorerRows = 500

// DashboardOptions controls the HTML dashboard.
type DashboardOptions struct {
	Title string
	Theme plotpage.Theme
	// ExplorerRows bounds the data explorer table. Zero means
	// DefaultExplorerRows, negative means unbounded.
	ExplorerRows int
}

// RenderDashboard builds the dashboard of the filtered run and writes it to w.
func RenderDashboard(w io.Writer, result *pipeline.Result, f Filter, opts DashboardOptions) error {
	page, err := Dashboard(result, f, opts)
	if err != nil {
		return err
	}

	return page.Render(w)
}

// Dashboard builds the dashboard page: KPI tiles, T² and Q control charts,
// the PC1/PC2 score plot, the scree chart, the loadings and the data
// explorer. Model-derived sections are skipped when the run has no model.
func Dashboard(result *pipeline.Result, f Filter, opts DashboardOptions) (*plotpage.Page, error) {
	summary, err := Summarize(result, f)
	if err != nil {
		return nil, err
	}

	title := opts.Title
	if title == "" {
		title = "Filling line monitoring"
	}

	theme := opts.Theme
	if theme == "" {
		theme = plotpage.ThemeDark
	}

	selected := f.Apply(result.Observations)

	page := plotpage.NewPage(title, describe(summary)).WithTheme(theme)
	page.Add(overviewSection(summary))
	page.Add(controlSections(selected, summary, theme)...)

	if summary.Limits.Components >= 2 {
		page.Add(scoreSection(selected, theme))
	}

	if result.Model != nil {
		page.Add(screeSection(summary, theme), loadingsSection(result))
	}

	page.Add(explorerSection(selected, opts.ExplorerRows))

	return page, nil
}

func describe(s *Summary) string {
	desc := fmt.Sprintf("%s parts, k = %d, confidence %s",
		humanize.Comma(int64(s.KPIs.TotalParts)), s.Limits.Components,
		strconv.FormatFloat(s.Limits.Confidence, 'f', -1, 64))

	if !s.Filter.IsZero() {
		desc += " (filtered)"
	}

	return desc
}

func overviewSection(s *Summary) plotpage.Section {
	values := s.KPIs.Values()
	tiles := make([]plotpage.Renderable, 0, len(values))

	for _, v := range values[:4] {
		stat := plotpage.NewStat(v.DisplayName, FormatValue(v))
		if v.Name == anomalyPercent.Name() {
			stat.WithTrend(fmt.Sprintf("T² %d / Q %d", s.KPIs.T2Flags, s.KPIs.QFlags), anomalyTone(s.KPIs))
		}

		tiles = append(tiles, stat)
	}

	content := plotpage.Stack{plotpage.NewGrid(len(tiles), tiles...)}

	for _, w := range s.Limits.Warnings {
		content = append(content, plotpage.NewAlert("Limit warning", w.Message(), plotpage.ToneWarning))
	}

	return plotpage.Section{Title: "Overview", Chart: content}
}

func anomalyTone(k KPIs) plotpage.Tone {
	if k.TotalAnomalies == 0 {
		return plotpage.ToneGood
	}

	return plotpage.ToneBad
}

func controlSections(selected []pipeline.ScoredObservation, s *Summary, theme plotpage.Theme) []plotpage.Section {
	labels := make([]string, len(selected))
	t2 := make([]float64, len(selected))
	q := make([]float64, len(selected))
	t2Flags := make([]bool, len(selected))
	qFlags := make([]bool, len(selected))

	for i := range selected {
		o := &selected[i]
		labels[i] = observationLabel(o)
		t2[i], q[i] = o.T2, o.Q
		t2Flags[i], qFlags[i] = o.T2Flag, o.QFlag
	}

	return []plotpage.Section{
		{
			Title:    "Hotelling T² control chart",
			Subtitle: fmt.Sprintf("Limit %s (%s)", humanize.FtoaWithDigits(s.Limits.T2, 4), s.Limits.T2Method),
			Hint: plotpage.Hint{Items: []string{
				"T² measures distance from the process centre inside the model plane.",
				"Points above the dashed limit are unusual combinations of the modeled variation.",
			}},
			Chart: plotpage.NewControlChart(plotpage.ControlSeries{
				Name: "T²", Labels: labels, Values: t2, Limit: s.Limits.T2, Flags: t2Flags,
			}, theme),
		},
		{
			Title:    "Q (SPE) control chart",
			Subtitle: fmt.Sprintf("Limit %s (%s)", humanize.FtoaWithDigits(s.Limits.Q, 4), s.Limits.QMethod),
			Hint: plotpage.Hint{Items: []string{
				"Q is the squared reconstruction error outside the model plane.",
				"Points above the dashed limit break the correlation structure seen in training.",
			}},
			Chart: plotpage.NewControlChart(plotpage.ControlSeries{
				Name: "Q", Labels: labels, Values: q, Limit: s.Limits.Q, Flags: qFlags,
			}, theme),
		},
	}
}

func scoreSection(selected []pipeline.ScoredObservation, theme plotpage.Theme) plotpage.Section {
	points := make([]plotpage.Point, 0, len(selected))

	for i := range selected {
		o := &selected[i]
		if len(o.Scores) < 2 {
			continue
		}

		points = append(points, plotpage.Point{X: o.Scores[0], Y: o.Scores[1], Name: observationLabel(o), Alert: o.Anomaly})
	}

	return plotpage.Section{
		Title:    "PCA score plot",
		Subtitle: "PC1 against PC2",
		Chart:    plotpage.NewScatterChart("PC1", "PC2", points, theme),
	}
}

func screeSection(s *Summary, theme plotpage.Theme) plotpage.Section {
	cumulative := make([]float64, len(s.ExplainedVarianceRatio))

	var sum float64
	for i, r := range s.ExplainedVarianceRatio {
		sum += r
		cumulative[i] = sum
	}

	chart := plotpage.NewBarChart(theme).
		XAxis("Component", s.Components).
		YAxis("Explained variance ratio").
		Legend().
		Series("Ratio", s.ExplainedVarianceRatio, "").
		Series("Cumulative", cumulative, "").
		Build()

	return plotpage.Section{Title: "Explained variance", Chart: chart}
}

func loadingsSection(result *pipeline.Result) plotpage.Section {
	model := result.Model
	components := model.ComponentNames()
	loadings := model.Loadings()

	tbl := plotpage.NewTable(append([]string{"Variable"}, components...)...)

	for i, name := range model.VariableNames() {
		cells := make([]string, 0, len(components)+1)
		cells = append(cells, name)

		for j := range components {
			cells = append(cells, strconv.FormatFloat(loadings.At(i, j), 'f', 4, 64))
		}

		tbl.AddRow(cells...)
	}

	return plotpage.Section{
		Title:    "Loadings",
		Subtitle: "Contribution of each variable to the retained components",
		Chart:    tbl,
	}
}

func explorerSection(selected []pipeline.ScoredObservation, limit int) plotpage.Section {
	if limit == 0 {
		limit = DefaultExplorerRows
	}

	shown := selected
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}

	tbl := plotpage.NewTable("Row", "Part", "Timestamp", "Reject", "T²", "Q", "Anomaly")

	for i := range shown {
		o := &shown[i]

		ts := ""
		if !o.Timestamp.IsZero() {
			ts = o.Timestamp.Format(time.DateTime)
		}

		cells := []string{
			strconv.Itoa(o.Row), o.PartID, ts, o.RejectType,
			humanize.FtoaWithDigits(o.T2, 3), humanize.FtoaWithDigits(o.Q, 3), strconv.FormatBool(o.Anomaly),
		}

		if o.Anomaly {
			tbl.AddHighlightedRow(cells...)
		} else {
			tbl.AddRow(cells...)
		}
	}

	subtitle := humanize.Comma(int64(len(selected))) + " observations"
	if len(shown) < len(selected) {
		subtitle = fmt.Sprintf("first %s of %s observations",
			humanize.Comma(int64(len(shown))), humanize.Comma(int64(len(selected))))
	}

	return plotpage.Section{Title: "Data explorer", Subtitle: subtitle, Chart: tbl}
}

func observationLabel(o *pipeline.ScoredObservation) string {
	if o.PartID != "" {
		return o.PartID
	}

	return strconv.Itoa(o.Row)
}
