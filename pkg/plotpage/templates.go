package plotpage

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

var views = template.Must(template.New("plotpage").
	Funcs(template.FuncMap{"odd": func(i int) bool { return i%2 == 1 }}).
	ParseFS(templateFS, "templates/*.html"))

func execute(w io.Writer, name string, data any) error {
	err := views.ExecuteTemplate(w, name, data)
	if err != nil {
		return fmt.Errorf("execute %s: %w", name, err)
	}

	return nil
}

// fragment executes name for embedding in an enclosing template.
func fragment(name string, data any) (template.HTML, error) {
	var sb strings.Builder

	err := execute(&sb, name, data)
	if err != nil {
		return "", err
	}

	return template.HTML(sb.String()), nil //nolint:gosec // html/template output is escaped.
}
