package render

import (
	"errors"
	"fmt"

	"github.com/cuongbtq/cv-forge/internal/domain"
	"github.com/cuongbtq/cv-forge/internal/extract"
)

// TemplateKey is the stable identifier linking a catalog row to a template source.
type TemplateKey string

const (
	KeyClassicArabic  TemplateKey = "classic_arabic"
	KeyClassicEnglish TemplateKey = "classic_english"
)

// Definition describes one renderable template.
type Definition struct {
	Key        TemplateKey
	SourceFile string
	SchemaName string
	Required   []string
}

var classicRequired = []string{"full_name", "contact", "professional_summary", "education", "skills"}

var registry = map[TemplateKey]Definition{
	KeyClassicArabic: {
		Key:        KeyClassicArabic,
		SourceFile: "classic_arabic_v1.tex",
		SchemaName: extract.SchemaClassicCV,
		Required:   classicRequired,
	},
	KeyClassicEnglish: {
		Key:        KeyClassicEnglish,
		SourceFile: "classic_english_v1.tex",
		SchemaName: extract.SchemaClassicCV,
		Required:   classicRequired,
	},
}

// ErrUnknownTemplate is returned for keys with no registered source.
var ErrUnknownTemplate = errors.New("unknown template")

// Lookup returns the definition registered for key.
func Lookup(key string) (Definition, error) {
	def, ok := registry[TemplateKey(key)]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, key)
	}
	return def, nil
}

// Verify checks every active catalog template against the registry.
func Verify(catalog []domain.Template) error {
	var errs []error
	for _, t := range catalog {
		if !t.IsActive {
			continue
		}
		def, err := Lookup(t.Key)
		if err != nil {
			errs = append(errs, fmt.Errorf("template %s: %w", t.Slug, err))
			continue
		}
		if def.SourceFile != t.SourceFile {
			errs = append(errs, fmt.Errorf("template %s: source file %q, registered %q", t.Slug, t.SourceFile, def.SourceFile))
		}
		if def.SchemaName != t.SchemaName {
			errs = append(errs, fmt.Errorf("template %s: schema %q, registered %q", t.Slug, t.SchemaName, def.SchemaName))
		}
		if !extract.HasSchema(t.SchemaName) {
			errs = append(errs, fmt.Errorf("template %s: schema %q is not registered", t.Slug, t.SchemaName))
		}
	}
	return errors.Join(errs...)
}
