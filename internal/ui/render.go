package ui

import (
	"embed"
	"html/template"
	"io"

	"github.com/cockroachdb/errors"
)

//go:embed templates/page.html.tmpl
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/page.html.tmpl"))

// Links are the form targets of the page controls.
type Links struct {
	Toggle string
	Next   string
	Play   string
}

// View carries everything the page template needs.
type View struct {
	Title          string
	RefreshSeconds int
	Links          Links
	Page           Snapshot
}

// WriteHTML renders the current page to w.
func (p *Page) WriteHTML(w io.Writer, links Links) error {
	return WriteView(w, View{
		Title:          "Player",
		RefreshSeconds: 5,
		Links:          links,
		Page:           p.Snapshot(),
	})
}

// WriteView renders an arbitrary view to w.
func WriteView(w io.Writer, v View) error {
	if err := pageTemplate.Execute(w, v); err != nil {
		return errors.Wrap(err, "failed to render page")
	}
	return nil
}
