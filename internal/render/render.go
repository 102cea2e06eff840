package render

import (
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/cuongbtq/cv-forge/internal/domain"
)

//go:embed templates/*.tex
var templateFS embed.FS

// RenderError is returned when a document cannot be rendered with a template.
type RenderError struct {
	Template string
	Field    string
	Err      error
}

func (e *RenderError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("render %s: missing required field %q", e.Template, e.Field)
	}
	return fmt.Sprintf("render %s: %v", e.Template, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// Renderer merges documents into LaTeX templates.
type Renderer struct {
	templates map[TemplateKey]*template.Template
}

// New parses every registered template.
func New() (*Renderer, error) {
	r := &Renderer{templates: make(map[TemplateKey]*template.Template, len(registry))}
	for key, def := range registry {
		src, err := templateFS.ReadFile("templates/" + def.SourceFile)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", def.SourceFile, err)
		}
		tmpl, err := template.New(def.SourceFile).
			Delims("<<", ">>").
			Funcs(template.FuncMap{
				"esc":     escFunc,
				"dates":   datesFunc,
				"join":    joinFunc,
				"compact": compactFunc,
			}).
			Parse(string(src))
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", def.SourceFile, err)
		}
		r.templates[key] = tmpl
	}
	return r, nil
}

// Render produces compiler-ready source. Failures are render-class StageErrors.
func (r *Renderer) Render(key string, doc domain.Document) (string, error) {
	source, err := r.render(key, doc)
	if err != nil {
		return "", domain.NewStageError(domain.ClassRender, domain.StageRender, err)
	}
	return source, nil
}

func (r *Renderer) render(key string, doc domain.Document) (string, error) {
	def, err := Lookup(key)
	if err != nil {
		return "", &RenderError{Template: key, Err: err}
	}
	tmpl, ok := r.templates[def.Key]
	if !ok {
		return "", &RenderError{Template: key, Err: ErrUnknownTemplate}
	}
	for _, field := range def.Required {
		if isBlank(doc[field]) {
			return "", &RenderError{Template: key, Field: field}
		}
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, map[string]any(doc)); err != nil {
		return "", &RenderError{Template: key, Err: err}
	}
	return b.String(), nil
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	default:
		return false
	}
}
