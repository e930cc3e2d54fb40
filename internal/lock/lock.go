// Package lock provides expiring mutual exclusion leases keyed by string,
// with an in-process manager and a redis backed one for multi-node runtimes.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNotAcquired is returned by Acquire when another holder owns the key.
var ErrNotAcquired = errors.New("lock: not acquired")

// Lease is a held lock. The token fences the release: a lease that expired
// and was re-acquired elsewhere cannot release the new holder's lock.
type Lease struct {
	Key   string
	Token string

	release func(ctx context.Context) error
}

// Release gives the lock up. Releasing an expired or already released lease
// is a no-op.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil || l.release == nil {
		return nil
	}
	release := l.release
	l.release = nil
	return release(ctx)
}

// Manager hands out leases. Acquire is non-blocking: a held key returns
// ErrNotAcquired immediately.
type Manager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error)
}
