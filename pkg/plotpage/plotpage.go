// Package plotpage renders self-contained HTML dashboards from sections of
// go-echarts charts and small layout components.
package plotpage

import (
	"fmt"
	"html/template"
	"io"
	"strings"
)

// Hint is reading guidance shown under a section.
type Hint struct {
	Title string
	Items []string
}

// Section is one titled block of a page. Chart may be any component.
type Section struct {
	Title    string
	Subtitle string
	Hint     Hint
	Chart    Renderable
}

// Page is a complete dashboard.
type Page struct {
	Title           string
	Description     string
	ProjectName     string
	ProjectSubtitle string
	ShowThemeToggle bool
	Theme           Theme

	// ExtraCSS is appended to the page stylesheet.
	ExtraCSS string
	Sections []Section
}

// NewPage creates a dark-themed fillspc page.
func NewPage(title, description string) *Page {
	return &Page{
		Title:           title,
		Description:     description,
		ProjectName:     "fillspc",
		ProjectSubtitle: "Filling line SPC",
		ShowThemeToggle: true,
		Theme:           ThemeDark,
	}
}

// WithTheme sets the page theme.
func (p *Page) WithTheme(theme Theme) *Page {
	p.Theme = theme

	return p
}

// Add appends sections.
func (p *Page) Add(sections ...Section) {
	p.Sections = append(p.Sections, sections...)
}

// Renderable writes an HTML fragment. Every go-echarts chart qualifies.
type Renderable interface {
	Render(w io.Writer) error
}

// Render writes the page as one HTML document.
func (p *Page) Render(w io.Writer) error {
	header, err := fragment("header.html", struct {
		ProjectName, Subtitle, Title, Description string
		ShowThemeToggle                           bool
	}{p.ProjectName, p.ProjectSubtitle, p.Title, p.Description, p.ShowThemeToggle})
	if err != nil {
		return err
	}

	var content strings.Builder

	for _, s := range p.Sections {
		err = writeSection(&content, s)
		if err != nil {
			return fmt.Errorf("section %q: %w", s.Title, err)
		}
	}

	scripts, err := fragment("scripts.html", nil)
	if err != nil {
		return err
	}

	var root string
	if p.Theme == ThemeDark {
		root = "dark"
	}

	css := template.CSS(p.ExtraCSS)         //nolint:gosec // caller-supplied stylesheet.
	body := template.HTML(content.String()) //nolint:gosec // assembled from escaped templates.

	return execute(w, "page.html", struct {
		Title, DarkClass         string
		Theme                    ThemeConfig
		ExtraCSS                 template.CSS
		Header, Content, Scripts template.HTML
	}{
		Title:     p.Title,
		DarkClass: root,
		Theme:     GetThemeConfig(p.Theme),
		ExtraCSS:  css,
		Header:    header,
		Content:   body,
		Scripts:   scripts,
	})
}

func writeSection(w io.Writer, s Section) error {
	chart, err := renderFragment(s.Chart)
	if err != nil {
		return err
	}

	var hint *Hint
	if len(s.Hint.Items) > 0 {
		hint = &s.Hint
	}

	return execute(w, "section.html", struct {
		Title, Subtitle string
		Chart           template.HTML
		Hint            *Hint
	}{s.Title, s.Subtitle, chart, hint})
}

// renderFragment renders r, reducing a full go-echarts page to its chart.
func renderFragment(r Renderable) (template.HTML, error) {
	if r == nil {
		return "", nil
	}

	var sb strings.Builder

	err := r.Render(&sb)
	if err != nil {
		return "", fmt.Errorf("render chart: %w", err)
	}

	return template.HTML(extractChartContent(sb.String())), nil //nolint:gosec // chart output.
}

// extractChartContent cuts a standalone go-echarts document down to its
// container div and script, retagged as an echart-box and without inline
// styles. Anything that is not a full document is returned as is.
func extractChartContent(doc string) string {
	head := strings.TrimSpace(doc)
	if !strings.HasPrefix(head, "<!DOCTYPE") && !strings.HasPrefix(head, "<html") {
		return doc
	}

	_, body, found := strings.Cut(doc, `<div class="container">`)
	if !found {
		return doc
	}

	body, _, found = strings.Cut(body, "</body>")
	if !found {
		return doc
	}

	var out strings.Builder

	out.WriteString(`<div class="echart-box">`)

	for {
		before, rest, open := strings.Cut(body, "<style>")
		out.WriteString(before)

		if !open {
			break
		}

		_, after, closed := strings.Cut(rest, "</style>")
		if !closed {
			out.WriteString("<style>" + rest)

			break
		}

		body = after
	}

	return out.String()
}
