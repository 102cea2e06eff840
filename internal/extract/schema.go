package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaClassicCV names the schema shared by the classic templates.
const SchemaClassicCV = "classic_cv"

var schemaBuilders = map[string]func() map[string]any{
	SchemaClassicCV: BuildClassicCVSchema,
}

var (
	compiledMu sync.Mutex
	compiled   = map[string]*jsonschema.Schema{}
)

// HasSchema reports whether name is a registered schema.
func HasSchema(name string) bool {
	_, ok := schemaBuilders[name]
	return ok
}

// SchemaFor returns the JSON schema registered under name.
func SchemaFor(name string) (map[string]any, error) {
	build, ok := schemaBuilders[name]
	if !ok {
		return nil, fmt.Errorf("unknown schema %q", name)
	}
	return build(), nil
}

// BuildClassicCVSchema returns the résumé schema as a generic map. It is sent
// to the model as the output contract and used locally to validate the reply.
func BuildClassicCVSchema() map[string]any {
	str := map[string]any{"type": "string"}
	optStr := map[string]any{"type": []any{"string", "null"}}
	reqStr := map[string]any{"type": "string", "minLength": 1}
	strList := map[string]any{"type": "array", "items": str}

	entry := func(required []string, props map[string]any) map[string]any {
		return map[string]any{
			"type":       "object",
			"properties": props,
			"required":   required,
		}
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"full_name": reqStr,
			"contact": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"email":    optStr,
					"phone":    optStr,
					"linkedin": optStr,
					"github":   optStr,
					"location": optStr,
				},
			},
			"professional_summary": reqStr,
			"education": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items": entry([]string{"degree", "institution"}, map[string]any{
					"degree":      reqStr,
					"institution": reqStr,
					"date_range":  optStr,
					"location":    optStr,
					"gpa":         optStr,
					"details":     strList,
				}),
			},
			"projects": map[string]any{
				"type": "array",
				"items": entry([]string{"name"}, map[string]any{
					"name":         reqStr,
					"description":  optStr,
					"technologies": strList,
					"details":      strList,
				}),
			},
			"experience": map[string]any{
				"type": "array",
				"items": entry([]string{"role", "company"}, map[string]any{
					"role":             reqStr,
					"company":          reqStr,
					"date_range":       optStr,
					"location":         optStr,
					"responsibilities": strList,
				}),
			},
			"skills": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items": entry([]string{"category_name", "skills"}, map[string]any{
					"category_name": reqStr,
					"skills":        strList,
				}),
			},
			"responsibilities": map[string]any{
				"type": "array",
				"items": entry([]string{"title", "organization"}, map[string]any{
					"title":        reqStr,
					"organization": reqStr,
					"date_range":   optStr,
					"location":     optStr,
					"details":      strList,
				}),
			},
		},
		"required": []any{"full_name", "contact", "professional_summary", "education", "skills"},
	}
}

// Validate checks data against the named schema.
func Validate(name string, data []byte) error {
	schema, err := compiledSchema(name)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

func compiledSchema(name string) (*jsonschema.Schema, error) {
	compiledMu.Lock()
	defer compiledMu.Unlock()

	if s, ok := compiled[name]; ok {
		return s, nil
	}
	schemaMap, err := SchemaFor(name)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	url := name + ".json"
	if err := compiler.AddResource(url, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	s, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	compiled[name] = s
	return s, nil
}
