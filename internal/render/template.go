package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"
)

//go:embed templates/version.html
var templateFS embed.FS

var versionTemplate = template.Must(template.New("version.html").Funcs(template.FuncMap{
	"formatDate": func(t time.Time) string { return t.Format("02.01.2006") },
}).ParseFS(templateFS, "templates/version.html"))

type templateData struct {
	Title       string
	ClientName  string
	Content     template.HTML
	Boilerplate []template.HTML
	Version     int
	Date        time.Time
	Preview     bool
}

// renderHTML produces the print page. Document content is trusted HTML
// authored in the editor.
func renderHTML(req Request) (string, error) {
	data := templateData{
		Title:      req.Title,
		ClientName: req.ClientName,
		Content:    template.HTML(req.MainContent),
		Version:    req.Version,
		Date:       req.Date,
		Preview:    req.Preview,
	}
	for _, section := range req.BoilerplateSections {
		data.Boilerplate = append(data.Boilerplate, template.HTML(section))
	}

	var buf bytes.Buffer
	if err := versionTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute version template: %w", err)
	}
	return buf.String(), nil
}
