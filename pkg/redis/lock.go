package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Locker is a token based mutual exclusion lock shared by every process that
// talks to the same server. A holder that crashes releases implicitly through
// the key TTL.
type Locker struct {
	client redis.UniversalClient
}

// NewLocker wraps a connected client.
func NewLocker(client redis.UniversalClient) (*Locker, error) {
	if client == nil {
		return nil, ErrClientNil
	}
	return &Locker{client: client}, nil
}

// Acquire sets key to token if it is absent (SET NX PX). It reports false when
// another holder owns the key.
func (l *Locker) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %q: %w", key, err)
	}
	return ok, nil
}

// Release removes key if it is still held by token. Releasing an expired key
// or one taken over by another holder is a no-op.
func (l *Locker) Release(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release lock %q: %w", key, err)
	}
	return nil
}
