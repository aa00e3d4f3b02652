package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultLeaseKey is the Redis key guarding the processing run.
const DefaultLeaseKey = "scanvault:worker:lease"

// Lease makes sure at most one run is active at a time, across processes
// when it is backed by Redis.
type Lease interface {
	Acquire(ctx context.Context, owner string) (bool, error)
	Release(ctx context.Context, owner string) error
}

// redisScripter is the part of *redis.Client the lease uses.
type redisScripter interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// releaseScript deletes the key only while it still names the caller, so
// a run that outlived its TTL cannot drop a successor's lease.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

type RedisLease struct {
	client redisScripter
	key    string
	ttl    time.Duration
}

func NewRedisLease(client redisScripter, key string, ttl time.Duration) *RedisLease {
	if key == "" {
		key = DefaultLeaseKey
	}
	return &RedisLease{client: client, key: key, ttl: ttl}
}

func (l *RedisLease) Acquire(ctx context.Context, owner string) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lease acquire: %w", err)
	}
	return ok, nil
}

func (l *RedisLease) Release(ctx context.Context, owner string) error {
	if err := l.client.Eval(ctx, releaseScript, []string{l.key}, owner).Err(); err != nil {
		return fmt.Errorf("lease release: %w", err)
	}
	return nil
}

// LocalLease serialises runs inside one process. It is used when no Redis
// address is configured.
type LocalLease struct {
	mu    sync.Mutex
	owner string
}

func (l *LocalLease) Acquire(ctx context.Context, owner string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner != "" {
		return false, nil
	}
	l.owner = owner
	return true, nil
}

func (l *LocalLease) Release(ctx context.Context, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner == owner {
		l.owner = ""
	}
	return nil
}
