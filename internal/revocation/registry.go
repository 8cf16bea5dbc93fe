// Package revocation tracks access tokens that were invalidated before their expiry.
package revocation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"citizen-voice/internal/token"
)

type Store interface {
	Add(ctx context.Context, key string, expiresAt time.Time, now time.Time) error
	Contains(ctx context.Context, key string, now time.Time) (bool, error)
	Sweep(ctx context.Context, now time.Time) (int, error)
}

type Registry struct {
	store Store
	now   func() time.Time
}

func NewRegistry(store Store) *Registry {
	return &Registry{store: store, now: time.Now}
}

func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// Blacklist records the token until expiresAt. Tokens already past expiry are
// rejected by signature validation anyway and are not stored.
func (r *Registry) Blacklist(ctx context.Context, raw string, expiresAt time.Time) error {
	now := r.now()
	if raw == "" || !expiresAt.After(now) {
		return nil
	}
	if err := r.store.Add(ctx, token.Hash(raw), expiresAt, now); err != nil {
		return fmt.Errorf("blacklist token: %w", err)
	}
	return nil
}

func (r *Registry) IsBlacklisted(ctx context.Context, raw string) (bool, error) {
	found, err := r.store.Contains(ctx, token.Hash(raw), r.now())
	if err != nil {
		return false, fmt.Errorf("check blacklist: %w", err)
	}
	return found, nil
}

func (r *Registry) Sweep(ctx context.Context) (int, error) {
	removed, err := r.store.Sweep(ctx, r.now())
	if err != nil {
		return 0, fmt.Errorf("sweep blacklist: %w", err)
	}
	if removed > 0 {
		slog.Debug("blacklist swept", "removed", removed)
	}
	return removed, nil
}
