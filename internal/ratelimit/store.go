// Package ratelimit admits or rejects requests against fixed-window
// budgets keyed by client identity and route class. Counter state lives
// behind the Store interface so single-instance deployments run on
// process memory and multi-instance deployments share Redis.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Store counts hits in fixed windows. Incr returns the count after this
// hit for the window that key currently occupies, creating the window
// with the given lifetime on first hit.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// MemoryStore is an in-process Store. Windows expire lazily on access
// and a background sweep drops abandoned keys.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*memWindow
	done    chan struct{}
	once    sync.Once

	now func() time.Time // test seam
}

type memWindow struct {
	count   int64
	resetAt time.Time
}

const sweepInterval = time.Minute

// NewMemoryStore creates a MemoryStore and starts its sweeper. Call
// Close when done.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		windows: make(map[string]*memWindow),
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go s.sweep()
	return s
}

// Incr implements Store.
func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &memWindow{resetAt: now.Add(window)}
		s.windows[key] = w
	}
	w.count++
	return w.count, nil
}

// Close stops the sweeper.
func (s *MemoryStore) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *MemoryStore) sweep() {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-t.C:
			now := s.now()
			s.mu.Lock()
			for k, w := range s.windows {
				if now.After(w.resetAt) {
					delete(s.windows, k)
				}
			}
			s.mu.Unlock()
		}
	}
}
