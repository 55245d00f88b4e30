package api

import (
	"embed"
	"html/template"
	"io"

	"github.com/labstack/echo/v4"

	"storefront/internal/entity"
)

//go:embed templates/*.html
var templateFS embed.FS

// TemplateRenderer renders the storefront views.
type TemplateRenderer struct {
	templates *template.Template
}

func NewTemplateRenderer() (*TemplateRenderer, error) {
	t, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &TemplateRenderer{templates: t}, nil
}

func (r *TemplateRenderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return r.templates.ExecuteTemplate(w, name, data)
}

// page is the data every storefront view is rendered with.
type page struct {
	Title           string
	BasePath        string
	ErrorMessage    string
	Products        []entity.Product
	Product         *entity.Product
	SubmissionToken string
	LinkURL         string
	PageName        string
}
