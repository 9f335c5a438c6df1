package permits

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Locker serializes issuance for a single vehicle
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// KeyedMutex is an in-process Locker. It protects a single instance only.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

// keyedLock is dropped from the map once no caller holds or waits for it
type keyedLock struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex returns an empty KeyedMutex
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: map[string]*keyedLock{}}
}

// Lock blocks until key is free or ctx is done
func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = map[string]*keyedLock{}
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-l.ch
				k.release(key, l)
			})
		}, nil
	case <-ctx.Done():
		k.release(key, l)
		return nil, ctx.Err()
	}
}

func (k *KeyedMutex) release(key string, l *keyedLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

var extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`)

// DefaultLockTTL is used when NewRedisLocker gets no ttl
const DefaultLockTTL = time.Minute

// RedisLocker holds a lock key in Redis so several instances share it.
// The key expires after TTL in case the holder dies, and is extended every
// TTL/3 while it is held.
type RedisLocker struct {
	Client *redis.Client
	TTL    time.Duration
	Retry  time.Duration
}

// NewRedisLocker connects to the Redis server at url
func NewRedisLocker(url string, ttl time.Duration) (*RedisLocker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RedisLocker{
		Client: redis.NewClient(opt),
		TTL:    ttl,
		Retry:  100 * time.Millisecond,
	}, nil
}

// Lock polls SETNX until the key is acquired or ctx is done
func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	k := "permit-issue-lock:" + key
	token := uuid.NewString()
	for {
		ok, err := r.Client.SetNX(ctx, k, token, r.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", k, err)
		}
		if ok {
			done := make(chan struct{})
			go r.keepAlive(k, token, done)
			var once sync.Once
			return func() {
				once.Do(func() {
					close(done)
					r.release(k, token)
				})
			}, nil
		}
		select {
		case <-time.After(r.Retry):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (r *RedisLocker) keepAlive(key, token string, done <-chan struct{}) {
	ticker := time.NewTicker(r.TTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			n, err := extendScript.Run(context.Background(), r.Client, []string{key}, token, r.TTL.Milliseconds()).Int()
			if err != nil {
				zap.S().Warnw("failed to extend issuance lock", "key", key, "error", err)
				continue
			}
			if n == 0 {
				zap.S().Warnw("issuance lock lost while held", "key", key)
				return
			}
		}
	}
}

func (r *RedisLocker) release(key, token string) {
	n, err := releaseScript.Run(context.Background(), r.Client, []string{key}, token).Int()
	if err != nil {
		zap.S().Errorw("failed to release issuance lock", "key", key, "error", err)
		return
	}
	if n == 0 {
		zap.S().Warnw("issuance lock expired before release", "key", key, "ttl", r.TTL)
	}
}
