package capability

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// KeyedMutex gives each key its own mutual-exclusion domain. Waiting for a key
// honors context cancellation; different keys never block each other.
// The zero value is ready to use.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sem  *semaphore.Weighted
	refs int
}

// Lock blocks until key is free or ctx is done. The returned func releases
// the key and must be called exactly once.
func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	if m.locks == nil {
		m.locks = make(map[string]*keyedLock)
	}

	l, ok := m.locks[key]
	if !ok {
		l = &keyedLock{sem: semaphore.NewWeighted(1)}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	if err := l.sem.Acquire(ctx, 1); err != nil {
		m.drop(key, l)
		return nil, Canceled(ctx, err)
	}

	var once sync.Once

	return func() {
		once.Do(func() {
			l.sem.Release(1)
			m.drop(key, l)
		})
	}, nil
}

// drop releases one reference and forgets the key once nobody holds or waits on it.
func (m *KeyedMutex) drop(key string, l *keyedLock) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
}

// Len returns the number of keys currently held or waited on.
func (m *KeyedMutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.locks)
}
