// Package storage is the client's local durable cache: namespaced JSON entries
// with optional expiry over a pluggable key/value backend.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"reflect"
	"strings"
	"sync"
	"time"
)

// DefaultNamespace prefixes every key the store writes.
const DefaultNamespace = "fitness_tracker_"

// Entry is the persisted envelope around a cached value.
type Entry struct {
	Value       json.RawMessage `json:"value"`
	StoredAtMs  int64           `json:"timestamp"`
	ExpiresAtMs *int64          `json:"expiration"`
}

// Expired reports whether the entry is logically absent at nowMs.
func (e Entry) Expired(nowMs int64) bool {
	return e.ExpiresAtMs != nil && nowMs > *e.ExpiresAtMs
}

// Store reads and writes namespaced entries. Failures of the backend are
// logged and never returned; after the first failure the store switches to
// an in-memory backend for the rest of the session. Lock contention with
// another process (ErrBusy) fails the operation without switching.
type Store struct {
	mu        sync.Mutex
	backend   Backend
	namespace string
	degraded  bool
	now       func() time.Time
	logger    *log.Logger
}

// Option customises a Store.
type Option func(*Store)

// WithNamespace overrides DefaultNamespace.
func WithNamespace(namespace string) Option {
	return func(s *Store) {
		if namespace != "" {
			s.namespace = namespace
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger overrides the store logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New wraps backend. A nil backend starts in memory.
func New(backend Backend, opts ...Option) *Store {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	s := &Store{
		backend:   backend,
		namespace: DefaultNamespace,
		now:       time.Now,
		logger:    log.New(os.Stderr, "[storage] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Set stores value under key. A ttl of zero or less never expires.
// It reports whether the value was written.
func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(ctx, key, value, ttl)
}

// Get decodes the live value under key into dst. Expired entries are removed
// and reported absent.
func (s *Store) Get(ctx context.Context, key string, dst any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(ctx, key, dst)
}

// Remove deletes key.
func (s *Store) Remove(ctx context.Context, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withBackend(ctx, "remove "+key, func(b Backend) error {
		return b.Delete(ctx, s.namespace+key)
	})
}

// ClearByPrefix deletes every key starting with prefix and returns how many
// were removed. An empty prefix clears the namespace.
func (s *Store) ClearByPrefix(ctx context.Context, prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	s.withBackend(ctx, "clear "+prefix, func(b Backend) error {
		keys, err := b.Keys(ctx, s.namespace+prefix)
		if err != nil {
			return err
		}
		removed = 0
		for _, key := range keys {
			if err := b.Delete(ctx, key); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed
}

// Keys lists the live keys under prefix, without the namespace.
func (s *Store) Keys(ctx context.Context, prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	s.withBackend(ctx, "keys "+prefix, func(b Backend) error {
		raw, err := b.Keys(ctx, s.namespace+prefix)
		if err != nil {
			return err
		}
		keys = make([]string, 0, len(raw))
		for _, key := range raw {
			keys = append(keys, strings.TrimPrefix(key, s.namespace))
		}
		return nil
	})
	return keys
}

// Update runs a read-modify-write on key. fn receives whether a live value
// was decoded into dst and returns the value to store, or nil to leave the
// key untouched. dst is zeroed before each read. Backends implementing
// Updater run the read and the write atomically, so processes sharing the
// backend do not lose each other's updates.
func (s *Store) Update(ctx context.Context, key string, dst any, ttl time.Duration, fn func(found bool) any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var wrote bool
	ok := s.withBackend(ctx, "update "+key, func(b Backend) error {
		wrote = false
		return update(ctx, b, s.namespace+key, func(current []byte, found bool) ([]byte, bool) {
			resetValue(dst)
			live := found && s.decodeLive(key, current, dst)
			next := fn(live)
			if next == nil {
				return nil, false
			}
			payload, err := s.encode(key, next, ttl)
			if err != nil {
				return nil, false
			}
			wrote = true
			return payload, true
		})
	})
	return ok && wrote
}

// Degraded reports whether the store fell back to memory.
func (s *Store) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// Close releases the backend.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Close()
}

func (s *Store) setLocked(ctx context.Context, key string, value any, ttl time.Duration) bool {
	payload, err := s.encode(key, value, ttl)
	if err != nil {
		return false
	}
	return s.withBackend(ctx, "set "+key, func(b Backend) error {
		return b.Set(ctx, s.namespace+key, payload)
	})
}

// encode wraps value in an Entry stamped with the current time.
func (s *Store) encode(key string, value any, ttl time.Duration) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		s.logger.Printf("encode %s: %v", key, err)
		return nil, err
	}
	nowMs := s.now().UnixMilli()
	entry := Entry{Value: raw, StoredAtMs: nowMs}
	if ttl > 0 {
		expires := nowMs + ttl.Milliseconds()
		entry.ExpiresAtMs = &expires
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		s.logger.Printf("encode entry %s: %v", key, err)
		return nil, err
	}
	return payload, nil
}

func (s *Store) getLocked(ctx context.Context, key string, dst any) bool {
	var (
		payload []byte
		found   bool
	)
	ok := s.withBackend(ctx, "get "+key, func(b Backend) error {
		var err error
		payload, found, err = b.Get(ctx, s.namespace+key)
		return err
	})
	if !ok || !found {
		return false
	}
	if s.expired(key, payload) {
		s.withBackend(ctx, "evict "+key, func(b Backend) error {
			return b.Delete(ctx, s.namespace+key)
		})
		return false
	}
	return s.decodeLive(key, payload, dst)
}

// expired reports whether payload holds an entry past its expiry.
func (s *Store) expired(key string, payload []byte) bool {
	var entry Entry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return false
	}
	return entry.Expired(s.now().UnixMilli())
}

// decodeLive decodes the value of a stored entry into dst. Undecodable and
// expired entries are reported absent.
func (s *Store) decodeLive(key string, payload []byte, dst any) bool {
	var entry Entry
	if err := json.Unmarshal(payload, &entry); err != nil {
		s.logger.Printf("decode entry %s: %v", key, err)
		return false
	}
	if entry.Expired(s.now().UnixMilli()) {
		return false
	}
	if dst == nil {
		return true
	}
	if err := json.Unmarshal(entry.Value, dst); err != nil {
		s.logger.Printf("decode value %s: %v", key, err)
		return false
	}
	return true
}

// resetValue zeroes the value dst points to.
func resetValue(dst any) {
	v := reflect.ValueOf(dst)
	if v.Kind() == reflect.Pointer && !v.IsNil() {
		v.Elem().Set(reflect.Zero(v.Elem().Type()))
	}
}

// withBackend runs op against the current backend. On failure the store
// degrades to memory and retries once there, so callers see a consistent
// session-local view.
func (s *Store) withBackend(ctx context.Context, what string, op func(Backend) error) bool {
	err := op(s.backend)
	if err == nil {
		return true
	}
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, ErrBusy) {
		s.logger.Printf("%s failed, storage is in use by another process: %v", what, err)
		recordBusy()
		return false
	}
	if s.degraded {
		s.logger.Printf("%s failed: %v", what, err)
		return false
	}

	s.logger.Printf("%s failed, continuing with in-memory storage for this session: %v", what, err)
	recordFallback()
	_ = s.backend.Close()
	s.backend = NewMemoryBackend()
	s.degraded = true
	if err := op(s.backend); err != nil {
		s.logger.Printf("%s failed in memory: %v", what, err)
		return false
	}
	return true
}
