// Package lock provides a best effort distributed mutex on Redis. It sits
// in front of the database row lock taken by settlement so that requests
// racing for the same listing fail fast instead of queueing on MySQL.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrLocked is returned when another holder owns the key.
var ErrLocked = errors.New("lock: already held")

// releaseScript deletes the key only if it still carries our token, so a
// holder whose TTL ran out cannot release somebody else's lock.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// RedisLocker hands out SET NX PX locks. A nil client turns every
// Acquire into a no-op, and Redis errors degrade the same way: the
// database lock still guards correctness.
type RedisLocker struct {
	rdb    *redis.Client
	prefix string
	log    *logrus.Entry
}

// NewRedisLocker returns a locker namespacing its keys under prefix.
func NewRedisLocker(rdb *redis.Client, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = "lock"
	}
	return &RedisLocker{rdb: rdb, prefix: prefix, log: logrus.WithField("component", "lock")}
}

// Acquire takes key for at most ttl. The returned release func is always
// non-nil when err is nil and is safe to call more than once.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if l == nil || l.rdb == nil {
		return func() {}, nil
	}
	full := l.prefix + ":" + key
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		l.log.WithError(err).WithField("key", full).Warn("redis lock unavailable, continuing without it")
		return func() {}, nil
	}
	if !ok {
		return nil, ErrLocked
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		// the caller's context may already be cancelled
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.rdb, []string{full}, token).Err(); err != nil {
			l.log.WithError(err).WithField("key", full).Warn("failed to release lock")
		}
	}, nil
}
