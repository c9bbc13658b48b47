package dispatch

import (
	"context"
	"sync"
	"time"
)

// DefaultLockTTL outlives a normal tick but expires before the next minute.
const DefaultLockTTL = 50 * time.Second

const windowKeyPrefix = "dispatch:tick:"

// Locker is an atomic add-if-absent lock with a TTL.
// Release must be a no-op when the key expired or belongs to another token.
type Locker interface {
	Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, token string) error
}

// WindowKey derives the fleet-wide lock key for now's local minute.
func WindowKey(now time.Time) string {
	return windowKeyPrefix + now.Format("200601021504")
}

// MemoryLock is a single-process Locker. Expired keys are dropped lazily.
type MemoryLock struct {
	mu    sync.Mutex
	held  map[string]memoryLease
	clock func() time.Time
}

type memoryLease struct {
	token     string
	expiresAt time.Time
}

// NewMemoryLock creates an empty lock table. A nil clock uses time.Now.
func NewMemoryLock(clock func() time.Time) *MemoryLock {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryLock{held: make(map[string]memoryLease), clock: clock}
}

func (l *MemoryLock) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if lease, ok := l.held[key]; ok && now.Before(lease.expiresAt) {
		return false, nil
	}
	l.held[key] = memoryLease{token: token, expiresAt: now.Add(ttl)}
	return true, nil
}

func (l *MemoryLock) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lease, ok := l.held[key]; ok && lease.token == token {
		delete(l.held, key)
	}
	return nil
}

// Held reports whether key is currently locked.
func (l *MemoryLock) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	lease, ok := l.held[key]
	return ok && l.clock().Before(lease.expiresAt)
}
