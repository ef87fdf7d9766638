package storage

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// Backend is a flat string-keyed byte store, the shape of browser localStorage.
// Keys passed to a Backend already carry the store namespace.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// ErrBusy marks a failure caused by another process holding the data. It is
// transient: the store reports the operation as failed but keeps the backend.
var ErrBusy = errors.New("storage busy")

// UpdateFunc receives the current value of a key and returns its replacement.
// write false leaves the key untouched. It may run more than once.
type UpdateFunc func(current []byte, found bool) (next []byte, write bool)

// Updater is implemented by backends that can read and replace one key
// atomically, including against other processes sharing the same data.
type Updater interface {
	Update(ctx context.Context, key string, fn UpdateFunc) error
}

// update runs fn through b's Updater, or as a plain Get then Set.
func update(ctx context.Context, b Backend, key string, fn UpdateFunc) error {
	if u, ok := b.(Updater); ok {
		return u.Update(ctx, key, fn)
	}
	current, found, err := b.Get(ctx, key)
	if err != nil {
		return err
	}
	next, write := fn(current, found)
	if !write {
		return nil
	}
	return b.Set(ctx, key, next)
}

// MemoryBackend keeps values in a map for the lifetime of the process.
type MemoryBackend struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemoryBackend constructs an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: make(map[string][]byte)}
}

// Get implements Backend.
func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

// Set implements Backend.
func (m *MemoryBackend) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
	return nil
}

// Update implements Updater.
func (m *MemoryBackend) Update(_ context.Context, key string, fn UpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, found := m.values[key]
	next, write := fn(append([]byte(nil), current...), found)
	if write {
		m.values[key] = append([]byte(nil), next...)
	}
	return nil
}

// Delete implements Backend.
func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// Keys implements Backend.
func (m *MemoryBackend) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0)
	for key := range m.values {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close implements Backend.
func (m *MemoryBackend) Close() error { return nil }
