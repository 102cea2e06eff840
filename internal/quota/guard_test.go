package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuongbtq/cv-forge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCounter struct {
	counts map[string]int
	since  time.Time
	err    error
}

func (f *fakeCounter) CountCreatedSince(ctx context.Context, ownerID string, since time.Time) (int, error) {
	f.since = since
	return f.counts[ownerID], f.err
}

type memoryTrials struct {
	expires map[string]time.Time
}

func newMemoryTrials() *memoryTrials {
	return &memoryTrials{expires: map[string]time.Time{}}
}

func (m *memoryTrials) TrialActive(_ context.Context, origin string, now time.Time) (bool, error) {
	end, ok := m.expires[origin]
	return ok && now.Before(end), nil
}

func (m *memoryTrials) ConsumeTrial(_ context.Context, origin string, expiresAt time.Time) error {
	m.expires[origin] = expiresAt
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newGuard(counter *fakeCounter, c *clock) *Guard {
	return NewGuard(Config{GuestWindow: 24 * time.Hour, StandardDaily: 10, PremiumDaily: 50}, newMemoryTrials(), counter).
		WithClock(c.now)
}

func TestGuard_GuestTrial(t *testing.T) {
	c := &clock{t: time.Date(2026, 5, 1, 15, 0, 0, 0, time.UTC)}
	g := newGuard(&fakeCounter{}, c)
	guest := domain.Identity{Origin: "203.0.113.7"}
	ctx := context.Background()

	d, err := g.Admit(ctx, guest)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	// Admission alone does not consume the trial.
	d, err = g.Admit(ctx, guest)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	require.NoError(t, g.Commit(ctx, guest))

	d, err = g.Admit(ctx, guest)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.True(t, d.RequiresAuth)
	assert.Equal(t, ReasonTrialUsed, d.Reason)

	other, err := g.Admit(ctx, domain.Identity{Origin: "198.51.100.1"})
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	c.t = c.t.Add(24*time.Hour - time.Second)
	d, _ = g.Admit(ctx, guest)
	assert.False(t, d.Allowed)

	c.t = c.t.Add(time.Second)
	d, _ = g.Admit(ctx, guest)
	assert.True(t, d.Allowed, "trial resets after the window")
}

func TestGuard_GuestWithoutOrigin(t *testing.T) {
	g := newGuard(&fakeCounter{}, &clock{t: time.Now()})
	d, err := g.Admit(context.Background(), domain.Identity{})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonMissingOrigin, d.Reason)
}

func TestGuard_DailyCeiling(t *testing.T) {
	tests := []struct {
		name    string
		tier    string
		used    int
		allowed bool
		limit   int
	}{
		{name: "standard 10th job", tier: domain.TierStandard, used: 9, allowed: true, limit: 10},
		{name: "standard 11th job", tier: domain.TierStandard, used: 10, allowed: false, limit: 10},
		{name: "unknown tier is standard", tier: "", used: 10, allowed: false, limit: 10},
		{name: "premium 50th job", tier: domain.TierPremium, used: 49, allowed: true, limit: 50},
		{name: "premium 51st job", tier: domain.TierPremium, used: 50, allowed: false, limit: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter := &fakeCounter{counts: map[string]int{"u1": tt.used}}
			c := &clock{t: time.Date(2026, 5, 1, 15, 30, 0, 0, time.UTC)}
			g := newGuard(counter, c)

			d, err := g.Admit(context.Background(), domain.Identity{UserID: "u1", Tier: tt.tier})
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.limit, d.Limit)
			assert.Equal(t, tt.used, d.Used)
			assert.False(t, d.RequiresAuth)
			if !tt.allowed {
				assert.Equal(t, ReasonDailyLimit, d.Reason)
			}
			assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), counter.since)
		})
	}
}

func TestGuard_CommitIsNoopForUsers(t *testing.T) {
	trials := newMemoryTrials()
	g := NewGuard(Config{GuestWindow: time.Hour}, trials, &fakeCounter{})
	require.NoError(t, g.Commit(context.Background(), domain.Identity{UserID: "u1", Origin: "1.2.3.4"}))

	active, err := trials.TrialActive(context.Background(), "1.2.3.4", time.Now())
	require.NoError(t, err)
	assert.False(t, active)
}

func TestGuard_Remaining(t *testing.T) {
	g := newGuard(&fakeCounter{counts: map[string]int{"u1": 7, "u2": 12}}, &clock{t: time.Now()})

	n, err := g.Remaining(context.Background(), domain.Identity{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = g.Remaining(context.Background(), domain.Identity{UserID: "u2"})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestGuard_CounterError(t *testing.T) {
	g := newGuard(&fakeCounter{err: errors.New("db down")}, &clock{t: time.Now()})
	_, err := g.Admit(context.Background(), domain.Identity{UserID: "u1"})
	assert.Error(t, err)
}

func TestDayStart(t *testing.T) {
	loc := time.FixedZone("AST", 3*3600)
	got := DayStart(time.Date(2026, 5, 1, 1, 30, 0, 0, loc))
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, loc), got)
}
