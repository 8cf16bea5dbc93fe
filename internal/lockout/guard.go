// Package lockout throttles password guessing per login identifier: too many
// failures inside a trailing window lock the identifier for a fixed duration.
package lockout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

type Store interface {
	// AddFailure records a failure at now, drops failures older than now-window
	// and returns how many remain.
	AddFailure(ctx context.Context, id string, now time.Time, window time.Duration) (int, error)
	// Lock sets the lock and discards the failure history, so an identifier
	// starts from zero once the lock lapses.
	Lock(ctx context.Context, id string, until time.Time, now time.Time) error
	// LockedUntil reports an active lock. An expired lock is cleared together
	// with the failure history.
	LockedUntil(ctx context.Context, id string, now time.Time) (time.Time, bool, error)
	Clear(ctx context.Context, id string) error
	Sweep(ctx context.Context, now time.Time, window time.Duration) (int, error)
}

type Config struct {
	Threshold int
	Window    time.Duration
	Duration  time.Duration
}

func DefaultConfig() Config {
	return Config{Threshold: 5, Window: 15 * time.Minute, Duration: 15 * time.Minute}
}

type Status struct {
	Locked    bool
	Failures  int
	Remaining time.Duration
}

// RetryAfterSeconds rounds the remaining lock time up to whole seconds.
func (s Status) RetryAfterSeconds() int {
	if !s.Locked || s.Remaining <= 0 {
		return 0
	}
	return int((s.Remaining + time.Second - 1) / time.Second)
}

type Guard struct {
	cfg   Config
	store Store
	now   func() time.Time
}

func NewGuard(cfg Config, store Store) (*Guard, error) {
	if cfg.Threshold < 1 {
		return nil, errors.New("lockout threshold must be at least 1")
	}
	if cfg.Window <= 0 || cfg.Duration <= 0 {
		return nil, errors.New("lockout window and duration must be positive")
	}
	if store == nil {
		return nil, errors.New("lockout store is required")
	}
	return &Guard{cfg: cfg, store: store, now: time.Now}, nil
}

func (g *Guard) SetClock(now func() time.Time) {
	g.now = now
}

func (g *Guard) Check(ctx context.Context, id string) (Status, error) {
	now := g.now()
	until, locked, err := g.store.LockedUntil(ctx, id, now)
	if err != nil {
		return Status{}, fmt.Errorf("check lockout: %w", err)
	}
	if !locked {
		return Status{}, nil
	}
	return Status{Locked: true, Remaining: until.Sub(now)}, nil
}

// RecordFailure counts a failed attempt. The attempt that reaches the threshold
// locks the identifier and is itself reported as locked.
func (g *Guard) RecordFailure(ctx context.Context, id string) (Status, error) {
	now := g.now()
	failures, err := g.store.AddFailure(ctx, id, now, g.cfg.Window)
	if err != nil {
		return Status{}, fmt.Errorf("record login failure: %w", err)
	}

	if failures < g.cfg.Threshold {
		return Status{Failures: failures}, nil
	}

	until := now.Add(g.cfg.Duration)
	if err := g.store.Lock(ctx, id, until, now); err != nil {
		return Status{}, fmt.Errorf("lock identifier: %w", err)
	}
	slog.Warn("login identifier locked", "failures", failures, "until", until)
	return Status{Locked: true, Failures: failures, Remaining: g.cfg.Duration}, nil
}

func (g *Guard) Clear(ctx context.Context, id string) error {
	if err := g.store.Clear(ctx, id); err != nil {
		return fmt.Errorf("clear lockout: %w", err)
	}
	return nil
}

func (g *Guard) Sweep(ctx context.Context) (int, error) {
	removed, err := g.store.Sweep(ctx, g.now(), g.cfg.Window)
	if err != nil {
		return 0, fmt.Errorf("sweep lockouts: %w", err)
	}
	if removed > 0 {
		slog.Debug("lockout entries swept", "removed", removed)
	}
	return removed, nil
}
