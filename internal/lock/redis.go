package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while the caller's token is still the
// value, so a lease that expired mid-flight cannot free a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisManager is a Manager backed by redis SET NX PX, giving exclusion
// across runtime instances sharing one redis.
type RedisManager struct {
	client *redis.Client
	prefix string
}

// NewRedis connects a lock manager to the given redis URL. Keys are stored
// under the given prefix, "agentbot:lock:" when empty.
func NewRedis(url, prefix string) (*RedisManager, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if prefix == "" {
		prefix = "agentbot:lock:"
	}
	return &RedisManager{client: redis.NewClient(opt), prefix: prefix}, nil
}

func (m *RedisManager) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	token := uuid.New().String()
	full := m.prefix + key

	ok, err := m.client.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("setnx %s: %w", full, err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}

	return &Lease{
		Key:   key,
		Token: token,
		release: func(ctx context.Context) error {
			if err := releaseScript.Run(ctx, m.client, []string{full}, token).Err(); err != nil && err != redis.Nil {
				return fmt.Errorf("release %s: %w", full, err)
			}
			return nil
		},
	}, nil
}

// Close releases the underlying client.
func (m *RedisManager) Close() error {
	return m.client.Close()
}

var _ Manager = (*RedisManager)(nil)
