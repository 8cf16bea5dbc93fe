package csrf

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	for name, store := range map[string]Store{"memory": NewMemoryStore(), "redis": NewRedisStore(client)} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			guard := NewGuard(store, time.Hour)

			session, err := NewSessionID()
			require.NoError(t, err)

			tok, err := guard.IssueToken(ctx, session)
			require.NoError(t, err)
			assert.Len(t, tok, 64)

			again, err := guard.IssueToken(ctx, session)
			require.NoError(t, err)
			assert.Equal(t, tok, again)

			ok, err := guard.Verify(ctx, session, tok)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = guard.Verify(ctx, session, "")
			require.NoError(t, err)
			assert.False(t, ok)

			wrong := []byte(tok)
			wrong[0] ^= 1
			ok, err = guard.Verify(ctx, session, string(wrong))
			require.NoError(t, err)
			assert.False(t, ok)

			other, err := NewSessionID()
			require.NoError(t, err)
			ok, err = guard.Verify(ctx, other, tok)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestMemorySessionsExpire(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	guard := NewGuard(store, time.Hour)

	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	guard.SetClock(func() time.Time { return now })

	tok, err := guard.IssueToken(ctx, "session-1")
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	ok, err := guard.Verify(ctx, "session-1", tok)
	require.NoError(t, err)
	assert.False(t, ok)

	removed, err := guard.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	fresh, err := guard.IssueToken(ctx, "session-1")
	require.NoError(t, err)
	assert.NotEqual(t, tok, fresh)
}

func TestRedisSessionsExpire(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	guard := NewGuard(NewRedisStore(client), time.Hour)
	tok, err := guard.IssueToken(ctx, "session-1")
	require.NoError(t, err)

	mr.FastForward(61 * time.Minute)
	ok, err := guard.Verify(ctx, "session-1", tok)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConcurrentIssueAgreesOnOneToken(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	for name, store := range map[string]Store{"memory": NewMemoryStore(), "redis": NewRedisStore(client)} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			guard := NewGuard(store, time.Hour)

			session, err := NewSessionID()
			require.NoError(t, err)

			const callers = 16
			tokens := make([]string, callers)
			errs := make([]error, callers)
			var wg sync.WaitGroup
			for i := range callers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					tokens[i], errs[i] = guard.IssueToken(ctx, session)
				}()
			}
			wg.Wait()

			for i := range callers {
				require.NoError(t, errs[i])
				assert.Equal(t, tokens[0], tokens[i])
			}

			ok, err := guard.Verify(ctx, session, tokens[0])
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestTokenRejectsUnknownSessions(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	for name, store := range map[string]Store{"memory": NewMemoryStore(), "redis": NewRedisStore(client)} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			guard := NewGuard(store, time.Hour)

			_, err := guard.Token(ctx, "chosen-by-client")
			assert.ErrorIs(t, err, ErrNoToken)
			_, err = guard.Token(ctx, "")
			assert.ErrorIs(t, err, ErrNoToken)

			session, tok, err := guard.NewSession(ctx)
			require.NoError(t, err)
			assert.Len(t, session, 64)
			assert.NotEqual(t, tok, session)

			got, err := guard.Token(ctx, session)
			require.NoError(t, err)
			assert.Equal(t, tok, got)
		})
	}
}
