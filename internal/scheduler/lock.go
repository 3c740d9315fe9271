package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"portal_usap_backend/platform/apperr"
	"portal_usap_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultLockKey = "crm:sync:lock"
	defaultLockTTL = 2 * time.Hour
)

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript resets the expiry only while the lock still holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RunLock keeps reconciliation runs from overlapping: an in-process flag for
// this instance and, when Redis is configured, a SET NX PX lock across
// instances.
type RunLock struct {
	running atomic.Bool
	rdb     redis.UniversalClient
	key     string
	ttl     time.Duration
	log     *logger.Logger

	mu    sync.Mutex
	token string
}

// NewRunLock creates a lock. rdb may be nil for a single-instance deployment.
func NewRunLock(rdb redis.UniversalClient, ttl time.Duration, log *logger.Logger) *RunLock {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RunLock{rdb: rdb, key: defaultLockKey, ttl: ttl, log: log}
}

// Acquire takes the lock or fails with an apperr Conflict.
func (l *RunLock) Acquire(ctx context.Context) (func(), error) {
	if !l.running.CompareAndSwap(false, true) {
		return nil, apperr.Conflict("sync already running")
	}
	if l.rdb == nil {
		return func() { l.running.Store(false) }, nil
	}

	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		l.running.Store(false)
		return nil, fmt.Errorf("acquire sync lock: %w", err)
	}
	if !ok {
		l.running.Store(false)
		return nil, apperr.Conflict("sync already running on another instance")
	}
	l.setToken(token)

	return func() {
		l.setToken("")
		if err := releaseScript.Run(context.WithoutCancel(ctx), l.rdb, []string{l.key}, token).Err(); err != nil {
			l.log.Warn("failed to release sync lock", "error", err)
		}
		l.running.Store(false)
	}, nil
}

// Extend pushes the expiry out by a full TTL. Long runs call it between
// partners. It fails with an apperr Conflict once the lock is no longer ours.
func (l *RunLock) Extend(ctx context.Context) error {
	if !l.running.Load() {
		return apperr.Conflict("sync lock not held")
	}
	if l.rdb == nil {
		return nil
	}

	l.mu.Lock()
	token := l.token
	l.mu.Unlock()

	n, err := extendScript.Run(ctx, l.rdb, []string{l.key}, token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("extend sync lock: %w", err)
	}
	if n == 0 {
		return apperr.Conflict("sync lock expired or taken by another instance")
	}
	return nil
}

func (l *RunLock) setToken(token string) {
	l.mu.Lock()
	l.token = token
	l.mu.Unlock()
}
