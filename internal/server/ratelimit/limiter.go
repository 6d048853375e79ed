// Package ratelimit holds Redis-backed guards: fixed-window counters for
// public endpoints and MFA attempts, and a one-time marker for challenge
// tokens.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/redis/go-redis/v9"
)

var ErrUnavailable = errors.New("rate limiter unavailable")

// Limiter allows at most limit hits per key within each window.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
	limit  int64
	window time.Duration
}

func NewLimiter(client redis.UniversalClient, prefix string, limit int, window time.Duration) *Limiter {
	return &Limiter{redis: client, prefix: prefix, limit: int64(limit), window: window}
}

// Allow records a hit for key and returns common.ErrRateLimited once the
// window budget is spent. Redis failures are wrapped in ErrUnavailable.
func (l *Limiter) Allow(ctx context.Context, key string) error {
	count, err := incrementWithTTL(ctx, l.redis, l.prefix+key, l.window)
	if err != nil {
		return err
	}
	if count > l.limit {
		return common.ErrRateLimited
	}
	return nil
}

// AttemptLimiter counts failed MFA answers per account.
type AttemptLimiter struct {
	redis       redis.UniversalClient
	maxAttempts int64
	window      time.Duration
}

func NewAttemptLimiter(client redis.UniversalClient, maxAttempts int, window time.Duration) *AttemptLimiter {
	return &AttemptLimiter{redis: client, maxAttempts: int64(maxAttempts), window: window}
}

func (l *AttemptLimiter) key(accountID string) string {
	return "mfa:att:" + accountID
}

// Check fails with common.ErrTooManyMFAAttempts once the account has used up
// its failures for the window.
func (l *AttemptLimiter) Check(ctx context.Context, accountID string) error {
	count, err := l.redis.Get(ctx, l.key(accountID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count >= l.maxAttempts {
		return common.ErrTooManyMFAAttempts
	}
	return nil
}

func (l *AttemptLimiter) RecordFailure(ctx context.Context, accountID string) error {
	_, err := incrementWithTTL(ctx, l.redis, l.key(accountID), l.window)
	return err
}

func (l *AttemptLimiter) Reset(ctx context.Context, accountID string) error {
	if err := l.redis.Del(ctx, l.key(accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// OnceMarker remembers ids that were already redeemed.
type OnceMarker struct {
	redis  redis.UniversalClient
	prefix string
}

func NewOnceMarker(client redis.UniversalClient, prefix string) *OnceMarker {
	return &OnceMarker{redis: client, prefix: prefix}
}

// Redeem marks id as used for ttl. It reports false when id was redeemed
// before. ttl is rounded up to one second.
func (m *OnceMarker) Redeem(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	if ttl < time.Second {
		ttl = time.Second
	}
	ok, err := m.redis.SetNX(ctx, m.prefix+id, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ok, nil
}

func incrementWithTTL(ctx context.Context, client redis.UniversalClient, key string, ttl time.Duration) (int64, error) {
	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// Fixed window: the first hit starts the clock.
	if count == 1 {
		if err := client.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return count, nil
}
