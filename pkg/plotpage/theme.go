package plotpage

// Theme represents a color theme for dashboards.
type Theme string

const (
	// ThemeLight is the light color theme.
	ThemeLight Theme = "light"
	// ThemeDark is the dark color theme.
	ThemeDark Theme = "dark"
)

// ParseTheme maps a configuration value to a Theme. Unknown values fall back
// to dark.
func ParseTheme(name string) Theme {
	if Theme(name) == ThemeLight {
		return ThemeLight
	}

	return ThemeDark
}

// ThemeConfig holds the chart colors of a theme.
type ThemeConfig struct {
	ChartBackground string
	ChartGrid       string
	ChartAxis       string
	ChartText       string
	ChartTextMuted  string
}

// Palette holds series colors plus the colors that carry control-chart meaning.
type Palette struct {
	Series []string
	// InControl marks observations within both limits.
	InControl string
	// OutOfControl marks flagged observations.
	OutOfControl string
	// Limit draws control limit lines.
	Limit string
}

// GetThemeConfig returns the configuration for a given theme.
func GetThemeConfig(theme Theme) ThemeConfig {
	if theme == ThemeLight {
		return lightTheme
	}

	return darkTheme
}

// GetPalette returns the chart palette for a given theme.
func GetPalette(theme Theme) Palette {
	if theme == ThemeLight {
		return lightPalette
	}

	return darkPalette
}

var lightTheme = ThemeConfig{
	ChartBackground: "transparent",
	ChartGrid:       "#e2e8f0", // slate-200.
	ChartAxis:       "#94a3b8", // slate-400.
	ChartText:       "#334155", // slate-700.
	ChartTextMuted:  "#64748b", // slate-500.
}

var darkTheme = ThemeConfig{
	ChartBackground: "transparent",
	ChartGrid:       "#334155", // slate-700.
	ChartAxis:       "#475569", // slate-600.
	ChartText:       "#cbd5e1", // slate-300.
	ChartTextMuted:  "#94a3b8", // slate-400.
}

var lightPalette = Palette{
	Series:       []string{"#0f766e", "#0369a1", "#7c3aed", "#c2410c", "#4d7c0f", "#be185d"},
	InControl:    "#0f766e", // teal-700.
	OutOfControl: "#dc2626", // red-600.
	Limit:        "#ca8a04", // yellow-600.
}

var darkPalette = Palette{
	Series:       []string{"#2dd4bf", "#38bdf8", "#a78bfa", "#fb923c", "#a3e635", "#f472b6"},
	InControl:    "#2dd4bf", // teal-400.
	OutOfControl: "#f87171", // red-400.
	Limit:        "#facc15", // yellow-400.
}
