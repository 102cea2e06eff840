package extract

import (
	"html"
	"regexp"
	"strings"

	"github.com/cuongbtq/cv-forge/internal/domain"
)

// Report lists what the caller should add to improve the document.
type Report struct {
	MissingCritical []string `json:"missing_critical"`
	Warnings        []string `json:"warnings"`
}

// MissingFields inspects an extracted document for gaps worth surfacing.
func MissingFields(doc domain.Document) Report {
	r := Report{MissingCritical: []string{}, Warnings: []string{}}

	contact, _ := doc["contact"].(map[string]any)
	if str(contact["email"]) == "" {
		r.MissingCritical = append(r.MissingCritical, "email")
	}
	if str(contact["phone"]) == "" {
		r.MissingCritical = append(r.MissingCritical, "phone")
	}
	if isEmptyList(doc["experience"]) {
		r.Warnings = append(r.Warnings, "no work experience")
	}
	if isEmptyList(doc["projects"]) {
		r.Warnings = append(r.Warnings, "no projects")
	}
	return r
}

func str(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func isEmptyList(v any) bool {
	list, ok := v.([]any)
	return !ok || len(list) == 0
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// CleanPrompt strips markup from a free-text prompt and trims it.
func CleanPrompt(s string) string {
	return strings.TrimSpace(html.UnescapeString(tagPattern.ReplaceAllString(s, "")))
}
