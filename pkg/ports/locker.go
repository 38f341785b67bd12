package ports

import (
	"context"
	"time"
)

// UnlockFunc is a function that releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker coordinates single-writer access to a session across
// multiple controller replicas. The in-process mutex in pkg/controller
// handles the single-replica case; this interface extends it to a fleet.
type DistributedLocker interface {
	// Lock attempts to acquire a distributed lock for the given key
	// (the session ID). It blocks until the lock is acquired or the
	// context is canceled. Returns an UnlockFunc that MUST be called
	// to release the lock; the TTL bounds how long a crashed holder
	// can keep it.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
