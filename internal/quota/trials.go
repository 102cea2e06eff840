package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// PostgresTrials keeps guest trials in the guest_trials table so every API
// replica sees the same state.
type PostgresTrials struct {
	db *sqlx.DB
}

// NewPostgresTrials creates a PostgreSQL-backed trial store
func NewPostgresTrials(db *sqlx.DB) *PostgresTrials {
	return &PostgresTrials{db: db}
}

// TrialActive reports whether origin consumed a trial that has not expired.
func (p *PostgresTrials) TrialActive(ctx context.Context, origin string, now time.Time) (bool, error) {
	var active bool
	err := p.db.GetContext(ctx, &active,
		`SELECT EXISTS (SELECT 1 FROM guest_trials WHERE origin = $1 AND expires_at > $2)`, origin, now)
	if err != nil {
		return false, fmt.Errorf("failed to check trial: %w", err)
	}
	return active, nil
}

// ConsumeTrial records origin's trial until expiresAt.
func (p *PostgresTrials) ConsumeTrial(ctx context.Context, origin string, expiresAt time.Time) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO guest_trials (origin, expires_at) VALUES ($1, $2)
		ON CONFLICT (origin) DO UPDATE SET expires_at = EXCLUDED.expires_at`,
		origin, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to consume trial: %w", err)
	}
	return nil
}

// PurgeExpired deletes trials that ended before now.
func (p *PostgresTrials) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := p.db.ExecContext(ctx, `DELETE FROM guest_trials WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge trials: %w", err)
	}
	return result.RowsAffected()
}
