package lockout

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func stores(t *testing.T) map[string]Store {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  NewRedisStore(client),
	}
}

func newGuard(t *testing.T, store Store) (*Guard, *clock) {
	t.Helper()

	guard, err := NewGuard(DefaultConfig(), store)
	require.NoError(t, err)

	clk := &clock{now: time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)}
	guard.SetClock(clk.Now)
	return guard, clk
}

func TestFifthFailureLocks(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			guard, clk := newGuard(t, store)
			id := "victim@example.com"

			for i := 1; i <= 4; i++ {
				status, err := guard.RecordFailure(ctx, id)
				require.NoError(t, err)
				assert.False(t, status.Locked, "attempt %d", i)
				assert.Equal(t, i, status.Failures)
				clk.Advance(10 * time.Second)
			}

			status, err := guard.RecordFailure(ctx, id)
			require.NoError(t, err)
			assert.True(t, status.Locked)
			assert.Equal(t, 900, status.RetryAfterSeconds())

			// The sixth attempt is refused before any credential check.
			clk.Advance(time.Minute)
			status, err = guard.Check(ctx, id)
			require.NoError(t, err)
			assert.True(t, status.Locked)
			assert.Equal(t, 14*time.Minute, status.Remaining)
			assert.Equal(t, 840, status.RetryAfterSeconds())

			other, err := guard.Check(ctx, "someone-else@example.com")
			require.NoError(t, err)
			assert.False(t, other.Locked)
		})
	}
}

func TestLockExpiresAndResetsHistory(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			guard, clk := newGuard(t, store)
			id := "victim@example.com"

			for range 5 {
				_, err := guard.RecordFailure(ctx, id)
				require.NoError(t, err)
			}

			clk.Advance(15*time.Minute + time.Second)
			status, err := guard.Check(ctx, id)
			require.NoError(t, err)
			assert.False(t, status.Locked)

			status, err = guard.RecordFailure(ctx, id)
			require.NoError(t, err)
			assert.False(t, status.Locked)
			assert.Equal(t, 1, status.Failures)
		})
	}
}

func TestShortLockStartsFromZeroAfterExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := Config{Threshold: 5, Window: 15 * time.Minute, Duration: 5 * time.Minute}
	memory := NewMemoryStore()

	tests := []struct {
		name   string
		store  Store
		expire func(ctx context.Context, guard *Guard)
	}{
		{
			name:   "redis",
			store:  NewRedisStore(client),
			expire: func(context.Context, *Guard) { mr.FastForward(5*time.Minute + time.Second) },
		},
		{
			name:  "memory with sweep",
			store: memory,
			expire: func(ctx context.Context, guard *Guard) {
				removed, err := guard.Sweep(ctx)
				require.NoError(t, err)
				assert.Equal(t, 1, removed)
				assert.Zero(t, memory.Len())
			},
		},
		{
			name:   "memory without sweep",
			store:  NewMemoryStore(),
			expire: func(context.Context, *Guard) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			guard, err := NewGuard(cfg, tt.store)
			require.NoError(t, err)
			clk := &clock{now: time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)}
			guard.SetClock(clk.Now)
			id := "short@example.com"

			for range 5 {
				_, err := guard.RecordFailure(ctx, id)
				require.NoError(t, err)
			}

			clk.Advance(5*time.Minute + time.Second)
			tt.expire(ctx, guard)

			status, err := guard.Check(ctx, id)
			require.NoError(t, err)
			assert.False(t, status.Locked)

			status, err = guard.RecordFailure(ctx, id)
			require.NoError(t, err)
			assert.False(t, status.Locked)
			assert.Equal(t, 1, status.Failures)
		})
	}
}

func TestFailuresOutsideWindowDoNotCount(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			guard, clk := newGuard(t, store)
			id := "slow@example.com"

			for range 4 {
				_, err := guard.RecordFailure(ctx, id)
				require.NoError(t, err)
			}

			clk.Advance(16 * time.Minute)
			status, err := guard.RecordFailure(ctx, id)
			require.NoError(t, err)
			assert.False(t, status.Locked)
			assert.Equal(t, 1, status.Failures)
		})
	}
}

func TestClear(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			guard, _ := newGuard(t, store)
			id := "reset@example.com"

			for range 5 {
				_, err := guard.RecordFailure(ctx, id)
				require.NoError(t, err)
			}
			require.NoError(t, guard.Clear(ctx, id))

			status, err := guard.Check(ctx, id)
			require.NoError(t, err)
			assert.False(t, status.Locked)
		})
	}
}

func TestMemorySweep(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	guard, clk := newGuard(t, store)

	_, err := guard.RecordFailure(ctx, "stale@example.com")
	require.NoError(t, err)
	for range 5 {
		_, err := guard.RecordFailure(ctx, "locked@example.com")
		require.NoError(t, err)
	}

	clk.Advance(15*time.Minute + time.Second)
	_, err = guard.RecordFailure(ctx, "fresh@example.com")
	require.NoError(t, err)

	removed, err := guard.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, store.Len())
}

func TestNewGuardValidation(t *testing.T) {
	_, err := NewGuard(Config{Threshold: 0, Window: time.Minute, Duration: time.Minute}, NewMemoryStore())
	assert.Error(t, err)

	_, err = NewGuard(Config{Threshold: 3, Window: 0, Duration: time.Minute}, NewMemoryStore())
	assert.Error(t, err)

	_, err = NewGuard(DefaultConfig(), nil)
	assert.Error(t, err)
}
