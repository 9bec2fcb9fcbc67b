package plotpage

import (
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const (
	statLineWidth     = 1.5
	limitLineWidth    = 2
	markerSize        = 9
	scatterSymbolSize = 8
	labelFontSize     = 10
	gap               = "-"
)

// ControlSeries is one monitored statistic plotted against its limit.
type ControlSeries struct {
	Name   string
	Labels []string
	Values []float64
	Limit  float64
	Flags  []bool
}

// NewControlChart builds a control chart: the statistic as a line, its
// upper control limit as a dashed line and flagged observations as markers.
func NewControlChart(series ControlSeries, theme Theme) *charts.Line {
	st := styleFor(theme)

	values := make([]opts.LineData, len(series.Values))
	limit := make([]opts.LineData, len(series.Values))
	flagged := make([]opts.LineData, len(series.Values))

	for i, v := range series.Values {
		values[i] = opts.LineData{Value: v}
		limit[i] = opts.LineData{Value: series.Limit}

		if i < len(series.Flags) && series.Flags[i] {
			flagged[i] = opts.LineData{Value: v, Symbol: "circle", SymbolSize: markerSize}
		} else {
			flagged[i] = opts.LineData{Value: gap}
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(st.base("axis")...)
	line.SetGlobalOptions(st.legend(), st.zoom(), charts.WithXAxisOpts(st.xAxis("Observation", false)), st.yAxis(series.Name))
	line.SetXAxis(series.Labels)
	line.AddSeries(series.Name, values,
		charts.WithItemStyleOpts(opts.ItemStyle{Color: st.palette.InControl}),
		charts.WithLineStyleOpts(opts.LineStyle{Width: statLineWidth}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	line.AddSeries("UCL", limit,
		charts.WithItemStyleOpts(opts.ItemStyle{Color: st.palette.Limit}),
		charts.WithLineStyleOpts(opts.LineStyle{Width: limitLineWidth, Type: "dashed"}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	line.AddSeries("Out of control", flagged,
		charts.WithItemStyleOpts(opts.ItemStyle{Color: st.palette.OutOfControl}),
		charts.WithLineStyleOpts(opts.LineStyle{Width: 0, Opacity: opts.Float(0)}),
	)

	return line
}

// Point is one labeled scatter point.
type Point struct {
	X, Y  float64
	Name  string
	Alert bool
}

// NewScatterChart plots points, splitting alerted ones into their own series.
func NewScatterChart(xName, yName string, points []Point, theme Theme) *charts.Scatter {
	st := styleFor(theme)

	var normal, alert []opts.ScatterData

	for _, p := range points {
		d := opts.ScatterData{Value: []any{p.X, p.Y, p.Name}, SymbolSize: scatterSymbolSize}
		if p.Alert {
			alert = append(alert, d)
		} else {
			normal = append(normal, d)
		}
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(st.base("item")...)
	scatter.SetGlobalOptions(st.legend(), charts.WithXAxisOpts(st.xAxis(xName, true)), st.yAxis(yName))
	scatter.AddSeries("In control", normal, charts.WithItemStyleOpts(opts.ItemStyle{Color: st.palette.InControl}))
	scatter.AddSeries("Out of control", alert, charts.WithItemStyleOpts(opts.ItemStyle{Color: st.palette.OutOfControl}))

	return scatter
}

// BarBuilder builds bar charts fluently.
type BarBuilder struct {
	st  style
	bar *charts.Bar
}

// NewBarChart creates a bar chart builder.
func NewBarChart(theme Theme) *BarBuilder {
	st := styleFor(theme)
	bar := charts.NewBar()
	bar.SetGlobalOptions(st.base("axis")...)

	return &BarBuilder{st: st, bar: bar}
}

// XAxis sets the category labels.
func (b *BarBuilder) XAxis(name string, labels []string) *BarBuilder {
	axis := b.st.xAxis(name, false)
	axis.AxisLabel.Interval = "0"
	axis.AxisLabel.FontSize = labelFontSize

	b.bar.SetGlobalOptions(charts.WithXAxisOpts(axis))
	b.bar.SetXAxis(labels)

	return b
}

// YAxis sets the value axis name.
func (b *BarBuilder) YAxis(name string) *BarBuilder {
	b.bar.SetGlobalOptions(b.st.yAxis(name))

	return b
}

// Legend shows the legend.
func (b *BarBuilder) Legend() *BarBuilder {
	b.bar.SetGlobalOptions(b.st.legend())

	return b
}

// Series adds a series. An empty color picks the next palette color.
func (b *BarBuilder) Series(name string, data []float64, color string) *BarBuilder {
	if color == "" {
		series := b.st.palette.Series
		color = series[len(b.bar.MultiSeries)%len(series)]
	}

	bars := make([]opts.BarData, len(data))
	for i, v := range data {
		bars[i] = opts.BarData{Value: v}
	}

	b.bar.AddSeries(name, bars, charts.WithItemStyleOpts(opts.ItemStyle{Color: color}))

	return b
}

// Build returns the chart.
func (b *BarBuilder) Build() *charts.Bar {
	return b.bar
}
