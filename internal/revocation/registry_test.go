package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestMemoryRegistry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	registry := NewRegistry(store)

	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	registry.SetClock(func() time.Time { return now })

	require.NoError(t, registry.Blacklist(ctx, "token-a", now.Add(10*time.Minute)))
	require.NoError(t, registry.Blacklist(ctx, "token-b", now.Add(time.Hour)))
	require.NoError(t, registry.Blacklist(ctx, "already-expired", now.Add(-time.Minute)))
	assert.Equal(t, 2, store.Len())

	blocked, err := registry.IsBlacklisted(ctx, "token-a")
	require.NoError(t, err)
	assert.True(t, blocked)

	blocked, err = registry.IsBlacklisted(ctx, "token-c")
	require.NoError(t, err)
	assert.False(t, blocked)

	now = now.Add(15 * time.Minute)
	blocked, err = registry.IsBlacklisted(ctx, "token-a")
	require.NoError(t, err)
	assert.False(t, blocked)

	removed, err := registry.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Len())

	blocked, err = registry.IsBlacklisted(ctx, "token-b")
	require.NoError(t, err)
	assert.True(t, blocked)
}

func TestRedisRegistry(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	registry := NewRegistry(NewRedisStore(client))

	require.NoError(t, registry.Blacklist(ctx, "token-a", time.Now().Add(10*time.Minute)))

	blocked, err := registry.IsBlacklisted(ctx, "token-a")
	require.NoError(t, err)
	assert.True(t, blocked)

	// Raw tokens never reach Redis.
	for _, key := range mr.Keys() {
		assert.NotContains(t, key, "token-a")
	}

	mr.FastForward(11 * time.Minute)
	blocked, err = registry.IsBlacklisted(ctx, "token-a")
	require.NoError(t, err)
	assert.False(t, blocked)

	removed, err := registry.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestRedisRegistryUnavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	registry := NewRegistry(NewRedisStore(client))
	mr.Close()

	_, err := registry.IsBlacklisted(context.Background(), "token-a")
	assert.Error(t, err)
}
