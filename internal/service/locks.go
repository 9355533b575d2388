package service

import (
	"context"
	"sync"
	"time"
)

// Locker provides the at-most-one-run-per-config guarantee. TryLock never
// blocks: it reports false when the lock is already held. Every
// implementation must expire a lock after its ttl so a crashed holder cannot
// wedge a config forever.
type Locker interface {
	TryLock(ctx context.Context, configID int64, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, configID int64) error
}

// MemoryLocker is a process-local Locker for single-node deployments.
// Multi-node deployments need the redis-backed locker instead.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[int64]time.Time
}

// NewMemoryLocker creates a new in-process locker
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[int64]time.Time)}
}

// TryLock acquires the lock for a config unless it is held and unexpired
func (l *MemoryLocker) TryLock(_ context.Context, configID int64, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if expiry, ok := l.held[configID]; ok && time.Now().Before(expiry) {
		return false, nil
	}
	l.held[configID] = time.Now().Add(ttl)
	return true, nil
}

// Unlock releases the lock for a config
func (l *MemoryLocker) Unlock(_ context.Context, configID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.held, configID)
	return nil
}
