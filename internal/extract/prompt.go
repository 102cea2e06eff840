package extract

import (
	"strings"

	"github.com/cuongbtq/cv-forge/internal/domain"
)

const parseInputLimit = 10000

func authorSystemPrompt(language string) string {
	skillsLang := "Arabic"
	if language == domain.LanguageEnglish {
		skillsLang = "English"
	}
	return strings.Join([]string{
		"You are an expert résumé writer producing ATS-friendly CVs for any profession.",
		"Turn the user's draft into a concise, results-focused résumé.",
		"Write in direct voice: start with the job title or an action verb, never third person.",
		"Professional summary: 2-4 dense sentences covering title, years of experience, core skills and the value offered.",
		"Start every experience bullet with a strong action verb and prefer achievements over routine duties.",
		"Technical terms stay in English; soft skills are written in " + skillsLang + ".",
		"Never invent facts such as employers, dates, degrees or contact details; leave unknown fields null.",
		`Format date ranges as "MMM YYYY - MMM YYYY".`,
		"Return ONLY JSON that matches the JSON Schema provided.",
	}, " ")
}

func parseSystemPrompt() string {
	return strings.Join([]string{
		"You are a precise data extraction engine.",
		"Extract structured data from the résumé text EXACTLY as it appears; do not invent or rephrase.",
		"Map the data strictly to the JSON Schema provided.",
		"If a field is missing in the text, leave it null or as an empty list.",
		"Detect the résumé language automatically.",
		"Group skills into categories when possible, otherwise use a single 'General' category.",
		"Return ONLY JSON.",
	}, " ")
}

func parseUserPrompt(text string) string {
	return "Resume Text:\n" + domain.Truncate(text, parseInputLimit)
}
