package render

import (
	"fmt"
	"regexp"
	"strings"
)

// latexReplacer escapes LaTeX specials in one pass, so the sequences it
// inserts are never escaped again. Backslash is listed first.
var latexReplacer = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	`&`, `\&`,
	`%`, `\%`,
	`$`, `\$`,
	`#`, `\#`,
	`_`, `\_`,
	`{`, `\{`,
	`}`, `\}`,
	`~`, `\textasciitilde{}`,
	`^`, `\textasciicircum{}`,
)

// Escape makes s safe for literal inclusion in LaTeX source.
func Escape(s string) string {
	return latexReplacer.Replace(s)
}

// Present is the canonical token for an ongoing date range.
const Present = "Present"

var (
	arabicOngoing  = regexp.MustCompile(`حتى الآن|الآن|حالياً|حاليا`)
	englishOngoing = regexp.MustCompile(`(?i)\b(present|current|now)\b`)
)

// NormalizeDateRange maps "ongoing" phrases to Present and trims whitespace.
func NormalizeDateRange(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = arabicOngoing.ReplaceAllString(s, Present)
	return englishOngoing.ReplaceAllString(s, Present)
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return fmt.Sprintf("%g", t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func escFunc(v any) string {
	return Escape(text(v))
}

func datesFunc(v any) string {
	return Escape(NormalizeDateRange(text(v)))
}

// joinFunc escapes and joins the non-empty items of a list.
func joinFunc(sep string, v any) string {
	var items []string
	switch list := v.(type) {
	case []any:
		for _, item := range list {
			if s := escFunc(item); s != "" {
				items = append(items, s)
			}
		}
	case []string:
		for _, item := range list {
			if s := escFunc(item); s != "" {
				items = append(items, s)
			}
		}
	}
	return strings.Join(items, sep)
}

func compactFunc(vs ...any) []string {
	out := []string{}
	for _, v := range vs {
		if s := text(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}
