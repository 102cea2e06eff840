package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cuongbtq/cv-forge/internal/domain"
)

const templateColumns = `
	id, key, slug, name, category, source_file, schema_name,
	is_active, is_premium, usage_count, created_at, updated_at`

// ListActiveTemplates returns active templates, most used first
func (s *Storage) ListActiveTemplates(ctx context.Context) ([]domain.Template, error) {
	templates := []domain.Template{}
	err := s.db.SelectContext(ctx, &templates,
		`SELECT`+templateColumns+` FROM cv_templates WHERE is_active ORDER BY usage_count DESC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return templates, nil
}

// GetTemplate returns an active template by id
func (s *Storage) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	return s.getTemplate(ctx, `SELECT`+templateColumns+` FROM cv_templates WHERE id = $1 AND is_active`, id)
}

// GetTemplateByKey returns an active template by its stable key
func (s *Storage) GetTemplateByKey(ctx context.Context, key string) (*domain.Template, error) {
	return s.getTemplate(ctx, `SELECT`+templateColumns+` FROM cv_templates WHERE key = $1 AND is_active`, key)
}

func (s *Storage) getTemplate(ctx context.Context, query, arg string) (*domain.Template, error) {
	var t domain.Template
	if err := s.db.GetContext(ctx, &t, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return &t, nil
}

// RefreshTemplateUsage recounts SUCCESS jobs per template. Counts never decrease.
func (s *Storage) RefreshTemplateUsage(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE cv_templates t
		SET usage_count = GREATEST(t.usage_count, sub.cnt),
		    updated_at = NOW()
		FROM (
			SELECT template_id, COUNT(*) AS cnt
			FROM compile_jobs
			WHERE status = 'SUCCESS'
			GROUP BY template_id
		) sub
		WHERE t.id = sub.template_id AND t.usage_count < sub.cnt`)
	if err != nil {
		return 0, fmt.Errorf("failed to refresh template usage: %w", err)
	}
	return result.RowsAffected()
}
