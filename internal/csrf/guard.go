// Package csrf binds anti-forgery tokens to server-side sessions.
package csrf

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const tokenBytes = 32

var ErrNoToken = errors.New("no csrf token for session")

type Store interface {
	Get(ctx context.Context, sessionID string, now time.Time) (string, error)
	// SetIfAbsent stores token unless the session already holds a live one, and
	// returns whichever token the session ends up with.
	SetIfAbsent(ctx context.Context, sessionID string, token string, expiresAt time.Time, now time.Time) (string, error)
	Sweep(ctx context.Context, now time.Time) (int, error)
}

type Guard struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

func NewGuard(store Store, ttl time.Duration) *Guard {
	return &Guard{store: store, ttl: ttl, now: time.Now}
}

func (g *Guard) SetClock(now func() time.Time) {
	g.now = now
}

func NewSessionID() (string, error) {
	return randomHex()
}

// IssueToken returns the session's token, creating one on first use. Repeated
// and concurrent calls for the same live session return the same value.
func (g *Guard) IssueToken(ctx context.Context, sessionID string) (string, error) {
	now := g.now()
	existing, err := g.store.Get(ctx, sessionID, now)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNoToken) {
		return "", fmt.Errorf("load csrf token: %w", err)
	}

	tok, err := randomHex()
	if err != nil {
		return "", err
	}
	stored, err := g.store.SetIfAbsent(ctx, sessionID, tok, now.Add(g.ttl), now)
	if err != nil {
		return "", fmt.Errorf("store csrf token: %w", err)
	}
	return stored, nil
}

// Token returns the token of a live session and ErrNoToken for ids the server
// never issued or that have expired.
func (g *Guard) Token(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", ErrNoToken
	}
	tok, err := g.store.Get(ctx, sessionID, g.now())
	if err != nil && !errors.Is(err, ErrNoToken) {
		return "", fmt.Errorf("load csrf token: %w", err)
	}
	return tok, err
}

// NewSession mints a server-chosen session id together with its token.
func (g *Guard) NewSession(ctx context.Context) (string, string, error) {
	sessionID, err := NewSessionID()
	if err != nil {
		return "", "", err
	}
	tok, err := g.IssueToken(ctx, sessionID)
	if err != nil {
		return "", "", err
	}
	return sessionID, tok, nil
}

// Verify reports whether supplied matches the session's token.
func (g *Guard) Verify(ctx context.Context, sessionID string, supplied string) (bool, error) {
	if sessionID == "" || supplied == "" {
		return false, nil
	}

	expected, err := g.store.Get(ctx, sessionID, g.now())
	if errors.Is(err, ErrNoToken) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load csrf token: %w", err)
	}

	return subtle.ConstantTimeCompare([]byte(expected), []byte(supplied)) == 1, nil
}

func (g *Guard) Sweep(ctx context.Context) (int, error) {
	removed, err := g.store.Sweep(ctx, g.now())
	if err != nil {
		return 0, fmt.Errorf("sweep csrf sessions: %w", err)
	}
	if removed > 0 {
		slog.Debug("csrf sessions swept", "removed", removed)
	}
	return removed, nil
}

func randomHex() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
