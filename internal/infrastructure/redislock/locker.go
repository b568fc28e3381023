package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/wms-platform/shipping-service/pkg/logging"
)

// Config holds Redis connection settings for the shipment lock.
type Config struct {
	Address   string
	Password  string
	DB        int
	PoolSize  int
	KeyPrefix string
	// RetryInterval is how often a blocked Lock call retries; it gives up when ctx ends.
	RetryInterval time.Duration
}

// DefaultConfig returns the lock defaults for addr.
func DefaultConfig(addr string) *Config {
	return &Config{
		Address:       addr,
		PoolSize:      100,
		KeyPrefix:     "lock:shipment:",
		RetryInterval: 25 * time.Millisecond,
	}
}

// ErrLockNotObtained is returned when ctx ends before the lock is free.
var ErrLockNotObtained = errors.New("shipment lock not obtained")

// Locker is a domain.Locker backed by Redis so transitions on one shipment are
// serialized across API and worker processes.
type Locker struct {
	rdb    *redis.Client
	client *redislock.Client
	config *Config
	logger *logging.Logger
}

// NewLocker connects to Redis and pings it.
func NewLocker(ctx context.Context, config *Config, logger *logging.Logger) (*Locker, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", config.Address, err)
	}

	return &Locker{
		rdb:    rdb,
		client: redislock.New(rdb),
		config: config,
		logger: logger.WithComponent("redis-lock"),
	}, nil
}

// Lock obtains key for ttl, retrying until ctx is done. The returned unlock
// releases the lock; releasing an expired lock is logged and ignored.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	lock, err := l.client.Obtain(ctx, l.config.KeyPrefix+key, ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(l.config.RetryInterval),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrLockNotObtained, key)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLockNotObtained, key, ctxErr)
		}
		return nil, fmt.Errorf("failed to obtain lock %s: %w", key, err)
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.WithError(err).Warn("Failed to release lock", "key", key)
		}
	}, nil
}

// HealthCheck pings Redis.
func (l *Locker) HealthCheck(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}

// Close closes the Redis client.
func (l *Locker) Close() error {
	return l.rdb.Close()
}
