package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestMemoryManager_MutualExclusion(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	lease, err := m.Acquire(ctx, "book:s-1", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if lease.Token == "" {
		t.Error("expected non-empty fencing token")
	}

	if _, err := m.Acquire(ctx, "book:s-1", time.Minute); !errors.Is(err, ErrNotAcquired) {
		t.Errorf("second acquire = %v, want ErrNotAcquired", err)
	}

	// A different key is independent.
	other, err := m.Acquire(ctx, "book:s-2", time.Minute)
	if err != nil {
		t.Fatalf("acquire other key: %v", err)
	}
	defer other.Release(ctx)

	if err := lease.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := m.Acquire(ctx, "book:s-1", time.Minute); err != nil {
		t.Errorf("acquire after release = %v, want nil", err)
	}
}

func TestMemoryManager_TTLExpiry(t *testing.T) {
	m := NewMemory()
	clock := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }
	ctx := context.Background()

	stale, err := m.Acquire(ctx, "book:s-1", 30*time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	clock = clock.Add(31 * time.Second)

	fresh, err := m.Acquire(ctx, "book:s-1", 30*time.Second)
	if err != nil {
		t.Fatalf("acquire after expiry = %v, want nil", err)
	}

	// The stale lease's release must not free the new holder's lock.
	if err := stale.Release(ctx); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if _, err := m.Acquire(ctx, "book:s-1", 30*time.Second); !errors.Is(err, ErrNotAcquired) {
		t.Errorf("acquire after stale release = %v, want ErrNotAcquired", err)
	}

	if err := fresh.Release(ctx); err != nil {
		t.Fatalf("fresh release: %v", err)
	}
}

func TestLease_ReleaseIsIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	lease, err := m.Acquire(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := lease.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := lease.Release(ctx); err != nil {
		t.Fatalf("second release: %v", err)
	}

	var nilLease *Lease
	if err := nilLease.Release(ctx); err != nil {
		t.Fatalf("nil release: %v", err)
	}
}

func newTestRedisManager(t *testing.T) (*RedisManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	m, err := NewRedis("redis://"+mr.Addr(), "")
	if err != nil {
		t.Fatalf("new redis manager: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m, mr
}

func TestRedisManager_MutualExclusion(t *testing.T) {
	m, _ := newTestRedisManager(t)
	ctx := context.Background()

	lease, err := m.Acquire(ctx, "book:s-1", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if _, err := m.Acquire(ctx, "book:s-1", time.Minute); !errors.Is(err, ErrNotAcquired) {
		t.Errorf("second acquire = %v, want ErrNotAcquired", err)
	}

	if err := lease.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := m.Acquire(ctx, "book:s-1", time.Minute); err != nil {
		t.Errorf("acquire after release = %v, want nil", err)
	}
}

func TestRedisManager_StaleReleaseDoesNotFreeNewHolder(t *testing.T) {
	m, mr := newTestRedisManager(t)
	ctx := context.Background()

	stale, err := m.Acquire(ctx, "book:s-1", time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	mr.FastForward(2 * time.Second)

	if _, err := m.Acquire(ctx, "book:s-1", time.Minute); err != nil {
		t.Fatalf("acquire after expiry = %v, want nil", err)
	}

	if err := stale.Release(ctx); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if _, err := m.Acquire(ctx, "book:s-1", time.Minute); !errors.Is(err, ErrNotAcquired) {
		t.Errorf("acquire after stale release = %v, want ErrNotAcquired", err)
	}
}
