package domain

import "time"

// Template categories
const (
	CategoryClassic      = "classic"
	CategoryProfessional = "professional"
	CategoryCreative     = "creative"
	CategoryGraduate     = "graduate"
)

// Template is a named render configuration stored in the catalog.
type Template struct {
	ID         string    `db:"id" json:"id"`
	Key        string    `db:"key" json:"key"`
	Slug       string    `db:"slug" json:"slug"`
	Name       string    `db:"name" json:"name"`
	Category   string    `db:"category" json:"category"`
	SourceFile string    `db:"source_file" json:"-"`
	SchemaName string    `db:"schema_name" json:"-"`
	IsActive   bool      `db:"is_active" json:"-"`
	IsPremium  bool      `db:"is_premium" json:"is_premium"`
	UsageCount int       `db:"usage_count" json:"usage_count"`
	CreatedAt  time.Time `db:"created_at" json:"-"`
	UpdatedAt  time.Time `db:"updated_at" json:"-"`
}
