package worker

import (
	"context"
	"log/slog"
	"time"
)

// JobJanitor is the job-store surface the maintenance loop drives.
type JobJanitor interface {
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
	FailExpiredLeases(ctx context.Context, grace time.Duration) (int64, error)
	RefreshTemplateUsage(ctx context.Context) (int64, error)
}

// TrialPurger drops guest trial records whose window has passed.
type TrialPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// MaintenanceConfig holds housekeeping settings
type MaintenanceConfig struct {
	Interval   time.Duration
	Retention  time.Duration
	LeaseGrace time.Duration
}

// Maintenance periodically cleans up after the pipeline: it fails jobs whose
// worker vanished, prunes old failed/cancelled jobs, refreshes template usage
// counters and purges expired guest trials.
type Maintenance struct {
	cfg    MaintenanceConfig
	jobs   JobJanitor
	trials TrialPurger
	logger *slog.Logger
	now    func() time.Time
}

// NewMaintenance creates the housekeeping loop
func NewMaintenance(cfg MaintenanceConfig, jobs JobJanitor, trials TrialPurger, logger *slog.Logger) *Maintenance {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &Maintenance{cfg: cfg, jobs: jobs, trials: trials, logger: logger, now: time.Now}
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
func (m *Maintenance) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep runs every housekeeping task once. Failures are logged and the next
// task still runs.
func (m *Maintenance) Sweep(ctx context.Context) {
	now := m.now()

	if n, err := m.jobs.FailExpiredLeases(ctx, m.cfg.LeaseGrace); err != nil {
		m.logger.Error("Failed to reap expired leases", slog.String("error", err.Error()))
	} else if n > 0 {
		m.logger.Warn("Reaped jobs with expired leases", slog.Int64("count", n))
	}

	if m.cfg.Retention > 0 {
		if n, err := m.jobs.DeleteTerminalBefore(ctx, now.Add(-m.cfg.Retention)); err != nil {
			m.logger.Error("Failed to prune old jobs", slog.String("error", err.Error()))
		} else if n > 0 {
			m.logger.Info("Pruned old jobs", slog.Int64("count", n))
		}
	}

	if _, err := m.jobs.RefreshTemplateUsage(ctx); err != nil {
		m.logger.Error("Failed to refresh template usage", slog.String("error", err.Error()))
	}

	if m.trials != nil {
		if n, err := m.trials.PurgeExpired(ctx, now); err != nil {
			m.logger.Error("Failed to purge guest trials", slog.String("error", err.Error()))
		} else if n > 0 {
			m.logger.Debug("Purged expired guest trials", slog.Int64("count", n))
		}
	}
}
