package redisclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// unlockScript deletes a lock key only when the caller still owns it, so a
// holder whose lease expired cannot release a lock re-acquired by someone
// else.
const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

type Client struct {
	rdb    *redis.Client
	unlock *redis.Script
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:    rdb,
		unlock: redis.NewScript(unlockScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// SyncLock is a redis-backed per-config lock with a lease. The TTL bounds
// how long a crashed worker can leave a config locked; release is
// token-checked so only the current holder can unlock.
type SyncLock struct {
	client *Client

	mu     sync.Mutex
	tokens map[int64]string
}

// NewSyncLock creates a new distributed sync lock
func NewSyncLock(client *Client) *SyncLock {
	return &SyncLock{
		client: client,
		tokens: make(map[int64]string),
	}
}

func lockKey(configID int64) string {
	return fmt.Sprintf("sync:lock:%d", configID)
}

// TryLock attempts to acquire the lock for a config without blocking.
// Returns false when another run holds it.
func (l *SyncLock) TryLock(ctx context.Context, configID int64, ttl time.Duration) (bool, error) {
	token := uuid.New().String()

	ok, err := l.client.rdb.SetNX(ctx, lockKey(configID), token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	if !ok {
		return false, nil
	}

	l.mu.Lock()
	l.tokens[configID] = token
	l.mu.Unlock()
	return true, nil
}

// Unlock releases the lock for a config if this instance still holds it
func (l *SyncLock) Unlock(ctx context.Context, configID int64) error {
	l.mu.Lock()
	token, ok := l.tokens[configID]
	delete(l.tokens, configID)
	l.mu.Unlock()

	if !ok {
		return nil
	}

	if err := l.unlockScriptRun(ctx, lockKey(configID), token); err != nil {
		return fmt.Errorf("failed to release sync lock: %w", err)
	}
	return nil
}

func (l *SyncLock) unlockScriptRun(ctx context.Context, key, token string) error {
	return l.client.unlock.Run(ctx, l.client.rdb, []string{key}, token).Err()
}
