package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	token   string
	expires time.Time
}

// MemoryManager is the in-process Manager. Expired entries are reclaimed
// lazily on the next Acquire of the same key.
type MemoryManager struct {
	mu    sync.Mutex
	locks map[string]memoryEntry
	now   func() time.Time
}

// NewMemory creates an in-process lock manager.
func NewMemory() *MemoryManager {
	return &MemoryManager{
		locks: make(map[string]memoryEntry),
		now:   time.Now,
	}
}

func (m *MemoryManager) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.locks[key]; ok && m.now().Before(e.expires) {
		return nil, ErrNotAcquired
	}

	token := uuid.New().String()
	m.locks[key] = memoryEntry{token: token, expires: m.now().Add(ttl)}

	return &Lease{
		Key:   key,
		Token: token,
		release: func(context.Context) error {
			m.mu.Lock()
			defer m.mu.Unlock()
			if e, ok := m.locks[key]; ok && e.token == token {
				delete(m.locks, key)
			}
			return nil
		},
	}, nil
}

var _ Manager = (*MemoryManager)(nil)
