package cache

import (
	"context"
	"sync"
	"time"
)

type entry[V any] struct {
	v       V
	expires time.Time
}

// Memory is an in-process TTL cache. A janitor goroutine drops expired
// entries every TTL; Close stops it.
type Memory[V any] struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]entry[V]

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func NewMemory[V any](ttl time.Duration) *Memory[V] {
	m := &Memory[V]{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry[V]),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go m.janitor()
	return m
}

func (m *Memory[V]) Get(_ context.Context, key string) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || !m.now().Before(e.expires) {
		var zero V
		return zero, false
	}
	return e.v, true
}

func (m *Memory[V]) Set(_ context.Context, key string, v V) {
	m.mu.Lock()
	m.entries[key] = entry[V]{v: v, expires: m.now().Add(m.ttl)}
	m.mu.Unlock()
}

func (m *Memory[V]) Delete(_ context.Context, key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// Len returns the number of stored entries, expired or not.
func (m *Memory[V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory[V]) Close() error {
	m.once.Do(func() { close(m.stop) })
	<-m.done
	return nil
}

func (m *Memory[V]) janitor() {
	defer close(m.done)
	interval := m.ttl
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-t.C:
			m.sweep()
		}
	}
}

func (m *Memory[V]) sweep() {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, k)
		}
	}
}
