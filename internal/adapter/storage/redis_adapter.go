package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

var (
	_ port.IdempotencyStore = (*RedisAdapter)(nil)
	_ port.AllocationLocker = (*RedisAdapter)(nil)
)

const (
	idempotencyKeyPrefix = "idempotency:"
	allocationKeyPrefix  = "allocation:"

	defaultIdempotencyTTL = 24 * time.Hour
	defaultLockTTL        = 5 * time.Second
	lockRetryInterval     = 50 * time.Millisecond
)

type RedisAdapter struct {
	client         *redis.Client
	locker         *redislock.Client
	idempotencyTTL time.Duration
	lockTTL        time.Duration
}

// NewRedisAdapter wraps client. Zero TTLs fall back to 24h for idempotency
// keys and 5s for allocation locks.
func NewRedisAdapter(client *redis.Client, idempotencyTTL, lockTTL time.Duration) *RedisAdapter {
	if idempotencyTTL <= 0 {
		idempotencyTTL = defaultIdempotencyTTL
	}
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	return &RedisAdapter{
		client:         client,
		locker:         redislock.New(client),
		idempotencyTTL: idempotencyTTL,
		lockTTL:        lockTTL,
	}
}

func (r *RedisAdapter) ClaimRequest(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, r.idempotencyTTL).Result()
	if err != nil {
		return false, fmt.Errorf("claim request: %w", err)
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseRequest(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, idempotencyKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("release request: %w", err)
	}
	return nil
}

// LockAllocation holds a lock on one product in one branch for at most the
// lock TTL. Waiting stops after half the TTL; a lock that is not obtained in
// time is reported as a transaction conflict so the caller may retry.
func (r *RedisAdapter) LockAllocation(ctx context.Context, productID, branchID int64) (func(context.Context) error, error) {
	key := fmt.Sprintf("%s%d:%d", allocationKeyPrefix, productID, branchID)
	retries := max(int(r.lockTTL/(2*lockRetryInterval)), 1)

	lock, err := r.locker.Obtain(ctx, key, r.lockTTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(lockRetryInterval), retries),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: allocation lock %s busy", domain.ErrTransactionConflict, key)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain allocation lock: %w", err)
	}

	return func(ctx context.Context) error {
		err := lock.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			// expired before release; nothing left to undo
			return nil
		}
		return err
	}, nil
}
