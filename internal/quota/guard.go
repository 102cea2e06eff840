package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/cuongbtq/cv-forge/internal/domain"
)

// Denial reasons
const (
	ReasonTrialUsed     = "guest_trial_used"
	ReasonDailyLimit    = "daily_limit_reached"
	ReasonMissingOrigin = "missing_origin"
)

// TrialStore records consumed guest trials per network origin.
type TrialStore interface {
	TrialActive(ctx context.Context, origin string, now time.Time) (bool, error)
	ConsumeTrial(ctx context.Context, origin string, expiresAt time.Time) error
}

// JobCounter counts an identity's jobs.
type JobCounter interface {
	CountCreatedSince(ctx context.Context, ownerID string, since time.Time) (int, error)
}

// Config holds admission ceilings
type Config struct {
	GuestWindow   time.Duration
	StandardDaily int
	PremiumDaily  int
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed      bool   `json:"allowed"`
	Reason       string `json:"reason,omitempty"`
	RequiresAuth bool   `json:"requires_auth"`
	Limit        int    `json:"limit"`
	Used         int    `json:"used"`
}

// Guard enforces the guest trial and the daily per-user ceiling. It never
// reads or writes job state beyond counting jobs.
type Guard struct {
	cfg    Config
	trials TrialStore
	jobs   JobCounter
	now    func() time.Time
}

// NewGuard creates a Guard
func NewGuard(cfg Config, trials TrialStore, jobs JobCounter) *Guard {
	return &Guard{cfg: cfg, trials: trials, jobs: jobs, now: time.Now}
}

// WithClock replaces the guard's time source.
func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

// Admit decides whether id may create a job now.
func (g *Guard) Admit(ctx context.Context, id domain.Identity) (Decision, error) {
	if !id.Authenticated() {
		return g.admitGuest(ctx, id)
	}

	limit := g.limitFor(id.Tier)
	used, err := g.jobs.CountCreatedSince(ctx, id.UserID, g.dayStart())
	if err != nil {
		return Decision{}, fmt.Errorf("failed to count jobs: %w", err)
	}
	d := Decision{Allowed: used < limit, Limit: limit, Used: used}
	if !d.Allowed {
		d.Reason = ReasonDailyLimit
	}
	return d, nil
}

func (g *Guard) admitGuest(ctx context.Context, id domain.Identity) (Decision, error) {
	if id.Origin == "" {
		return Decision{Reason: ReasonMissingOrigin, RequiresAuth: true, Limit: 1}, nil
	}
	active, err := g.trials.TrialActive(ctx, id.Origin, g.now())
	if err != nil {
		return Decision{}, fmt.Errorf("failed to check guest trial: %w", err)
	}
	if active {
		return Decision{Reason: ReasonTrialUsed, RequiresAuth: true, Limit: 1, Used: 1}, nil
	}
	return Decision{Allowed: true, Limit: 1}, nil
}

// Commit marks a guest's trial consumed. Call it only after the job was
// enqueued; it is a no-op for authenticated identities, whose jobs count themselves.
func (g *Guard) Commit(ctx context.Context, id domain.Identity) error {
	if id.Authenticated() {
		return nil
	}
	if err := g.trials.ConsumeTrial(ctx, id.Origin, g.now().Add(g.cfg.GuestWindow)); err != nil {
		return fmt.Errorf("failed to record guest trial: %w", err)
	}
	return nil
}

// Remaining returns how many more jobs id may create in the current window.
func (g *Guard) Remaining(ctx context.Context, id domain.Identity) (int, error) {
	d, err := g.Admit(ctx, id)
	if err != nil {
		return 0, err
	}
	if d.Used >= d.Limit {
		return 0, nil
	}
	return d.Limit - d.Used, nil
}

func (g *Guard) limitFor(tier string) int {
	if tier == domain.TierPremium {
		return g.cfg.PremiumDaily
	}
	return g.cfg.StandardDaily
}

// dayStart is midnight of the current calendar day in server time.
func (g *Guard) dayStart() time.Time {
	return DayStart(g.now())
}

// DayStart returns midnight of t's calendar day in t's location.
func DayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
