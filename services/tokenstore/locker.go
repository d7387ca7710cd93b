package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
	"github.com/tech-arch1tect/tokenchain/services/logging"
	"go.uber.org/zap"
)

var ErrLockHeld = errors.New("lock is held by another owner")

// Locker serialises work on a key. The returned release func is safe to call more than once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

type MemoryLocker struct {
	mu             sync.Mutex
	locks          map[string]*memoryLock
	acquireTimeout time.Duration
}

type memoryLock struct {
	sem  chan struct{}
	refs int
}

func NewMemoryLocker(acquireTimeout time.Duration) *MemoryLocker {
	return &MemoryLocker{
		locks:          make(map[string]*memoryLock),
		acquireTimeout: acquireTimeout,
	}
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string) (func(), error) {
	if l.acquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.acquireTimeout)
		defer cancel()
	}

	l.mu.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &memoryLock{sem: make(chan struct{}, 1)}
		l.locks[key] = lock
	}
	lock.refs++
	l.mu.Unlock()

	select {
	case lock.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-lock.sem
				l.unref(key, lock)
			})
		}, nil
	case <-ctx.Done():
		l.unref(key, lock)
		return nil, fmt.Errorf("failed to acquire lock %q: %w", key, ctx.Err())
	}
}

func (l *MemoryLocker) unref(key string, lock *memoryLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, key)
	}
}

// size reports the number of keys currently tracked.
func (l *MemoryLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// Deletes the key only while it still holds this owner's value.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client         redis.UniversalClient
	prefix         string
	ttl            time.Duration
	acquireTimeout time.Duration
	logger         *logging.Service
}

func NewRedisLocker(client redis.UniversalClient, ttl, acquireTimeout time.Duration, logger *logging.Service) *RedisLocker {
	return &RedisLocker{
		client:         client,
		prefix:         "tokenchain:lock:",
		ttl:            ttl,
		acquireTimeout: acquireTimeout,
		logger:         logger,
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + key
	owner := uuid.NewString()

	backoff := retry.NewExponential(5 * time.Millisecond)
	backoff = retry.WithCappedDuration(100*time.Millisecond, backoff)
	if l.acquireTimeout > 0 {
		backoff = retry.WithMaxDuration(l.acquireTimeout, backoff)
	}

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		acquired, err := l.client.SetNX(ctx, redisKey, owner, l.ttl).Result()
		if err != nil {
			return err
		}
		if !acquired {
			return retry.RetryableError(ErrLockHeld)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %q: %w", key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := unlockScript.Run(context.Background(), l.client, []string{redisKey}, owner).Err(); err != nil {
				if l.logger != nil {
					l.logger.Warn("failed to release redis lock", zap.String("key", redisKey), zap.Error(err))
				}
			}
		})
	}, nil
}
