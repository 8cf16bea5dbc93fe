package lockout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	failuresPrefix = "cv:lockout:failures:"
	lockPrefix     = "cv:lockout:lock:"
)

// RedisStore keeps failure timestamps in a sorted set scored by unix millis and
// the lock as a key expiring with it. Locking drops the failure set, so nothing
// is left to reset when Redis expires the lock. Redis expiry replaces sweeping.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) AddFailure(ctx context.Context, id string, now time.Time, window time.Duration) (int, error) {
	key := failuresPrefix + id
	cutoff := now.Add(-window).UnixMilli()

	var card *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10))
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: uuid.NewString()})
		card = pipe.ZCard(ctx, key)
		pipe.PExpire(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis record failure: %w", err)
	}
	return int(card.Val()), nil
}

func (s *RedisStore) Lock(ctx context.Context, id string, until time.Time, now time.Time) error {
	ttl := until.Sub(now)
	if ttl <= 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, failuresPrefix+id)
		pipe.Set(ctx, lockPrefix+id, until.UnixMilli(), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis lock: %w", err)
	}
	return nil
}

func (s *RedisStore) LockedUntil(ctx context.Context, id string, now time.Time) (time.Time, bool, error) {
	ms, err := s.client.Get(ctx, lockPrefix+id).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis lock lookup: %w", err)
	}

	until := time.UnixMilli(ms)
	if !now.Before(until) {
		if err := s.Clear(ctx, id); err != nil {
			return time.Time{}, false, err
		}
		return time.Time{}, false, nil
	}
	return until, true, nil
}

func (s *RedisStore) Clear(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, failuresPrefix+id, lockPrefix+id).Err(); err != nil {
		return fmt.Errorf("redis clear lockout: %w", err)
	}
	return nil
}

func (s *RedisStore) Sweep(context.Context, time.Time, time.Duration) (int, error) {
	return 0, nil
}
