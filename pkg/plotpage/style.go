package plotpage

import (
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const (
	chartWidth  = "100%"
	chartHeight = "420px"
)

// style derives go-echarts options from a theme's colors.
type style struct {
	colors  ThemeConfig
	palette Palette
}

func styleFor(theme Theme) style {
	return style{colors: GetThemeConfig(theme), palette: GetPalette(theme)}
}

// base is shared by every chart: size, background, margins and tooltip.
func (s style) base(trigger string) []charts.GlobalOpts {
	return []charts.GlobalOpts{
		charts.WithInitializationOpts(opts.Initialization{
			Width: chartWidth, Height: chartHeight, BackgroundColor: s.colors.ChartBackground,
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: trigger}),
		charts.WithGridOpts(opts.Grid{Top: "15%", Bottom: "15%", Left: "5%", Right: "5%", ContainLabel: opts.Bool(true)}),
	}
}

func (s style) legend() charts.GlobalOpts {
	return charts.WithLegendOpts(opts.Legend{
		Show: opts.Bool(true), Type: "scroll", Top: "2%", Left: "center",
		TextStyle: &opts.TextStyle{Color: s.colors.ChartTextMuted},
	})
}

// zoom adds a slider under the x axis plus wheel zoom.
func (s style) zoom() charts.GlobalOpts {
	return charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}, opts.DataZoom{Type: "inside"})
}

func (s style) splitLine() *opts.SplitLine {
	return &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: s.colors.ChartGrid}}
}

// xAxis is a category axis; numeric makes it a value axis with grid lines.
func (s style) xAxis(name string, numeric bool) opts.XAxis {
	axis := opts.XAxis{
		Name:      name,
		AxisLabel: &opts.AxisLabel{Color: s.colors.ChartTextMuted},
		AxisLine:  &opts.AxisLine{LineStyle: &opts.LineStyle{Color: s.colors.ChartAxis}},
	}

	if numeric {
		axis.Type = "value"
		axis.SplitLine = s.splitLine()
	}

	return axis
}

func (s style) yAxis(name string) charts.GlobalOpts {
	return charts.WithYAxisOpts(opts.YAxis{
		Name:      name,
		AxisLabel: &opts.AxisLabel{Color: s.colors.ChartTextMuted},
		AxisLine:  &opts.AxisLine{LineStyle: &opts.LineStyle{Color: s.colors.ChartAxis}},
		SplitLine: s.splitLine(),
	})
}
