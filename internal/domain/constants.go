package domain

// Job status constants
const (
	JobStatusQueued     = "QUEUED"
	JobStatusProcessing = "PROCESSING"
	JobStatusSuccess    = "SUCCESS"
	JobStatusFailed     = "FAILED"
	JobStatusCancelled  = "CANCELLED"
)

// Pipeline stages. A job's Stage names the next stage to run.
const (
	StageExtraction = "extraction"
	StageRender     = "render"
	StageCompile    = "compile"
)

// Extraction modes
const (
	ModeAuthor = "author"
	ModeParse  = "parse"
)

// Résumé languages
const (
	LanguageArabic  = "ar"
	LanguageEnglish = "en"
)

// Identity tiers
const (
	TierStandard = "standard"
	TierPremium  = "premium"
)

// Field length bounds persisted on the job row
const (
	MaxErrorMessageLen = 1000
	MaxLogsLen         = 5000
)

// IsTerminal reports whether status is absorbing.
func IsTerminal(status string) bool {
	switch status {
	case JobStatusSuccess, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}
