package driven

import (
	"context"
	"time"
)

// DistributedLock guards a sync unit so only one invocation at a time
// reads and writes its state.
type DistributedLock interface {
	// Acquire attempts to take a named lock for ttl.
	// Returns false when another holder has it.
	Acquire(ctx context.Context, name string, ttl time.Duration) (acquired bool, err error)

	// Release drops the lock if this instance holds it.
	// Releasing an expired or foreign lock is not an error.
	Release(ctx context.Context, name string) error

	// Extend pushes out the expiry of a lock held by this instance.
	Extend(ctx context.Context, name string, ttl time.Duration) error

	// Ping checks if the lock backend is healthy.
	Ping(ctx context.Context) error
}

// SyncUnitLockName returns the lock name guarding one sync unit.
func SyncUnitLockName(syncUnitID string) string {
	return "sync-unit:" + syncUnitID
}
