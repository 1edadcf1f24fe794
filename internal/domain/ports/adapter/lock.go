package adapter

import (
	"context"
	"time"
)

// Locker is a distributed mutual-exclusion primitive. TryLock returns an
// opaque token that must be presented to Unlock, so only the holder can
// release the lock.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}
