package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func quietLogger() *log.Logger {
	return log.New(&bytes.Buffer{}, "", 0)
}

func TestSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := New(nil, WithLogger(quietLogger()))

	require.True(t, store.Set(ctx, "greeting", map[string]string{"hello": "world"}, 0))

	var got map[string]string
	require.True(t, store.Get(ctx, "greeting", &got))
	require.Equal(t, "world", got["hello"])

	require.False(t, store.Get(ctx, "missing", &got))
}

func TestExpiredEntryIsEvictedOnRead(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	backend := NewMemoryBackend()
	store := New(backend, WithClock(clock.Now), WithLogger(quietLogger()))

	require.True(t, store.Set(ctx, "cache_/workouts", []int{1, 2}, 5*time.Minute))

	clock.Advance(5 * time.Minute)
	var got []int
	require.True(t, store.Get(ctx, "cache_/workouts", &got), "entry is live until now exceeds expiry")

	clock.Advance(time.Millisecond)
	require.False(t, store.Get(ctx, "cache_/workouts", &got))

	_, found, err := backend.Get(ctx, DefaultNamespace+"cache_/workouts")
	require.NoError(t, err)
	require.False(t, found, "expired entry must be physically removed")
	require.False(t, store.Get(ctx, "cache_/workouts", &got))
}

func TestKeysAreNamespaced(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	store := New(backend, WithNamespace("ns_"), WithLogger(quietLogger()))

	require.NoError(t, backend.Set(ctx, "foreign_key", []byte("{}")))
	require.True(t, store.Set(ctx, "cache_/a", 1, 0))
	require.True(t, store.Set(ctx, "cache_/b", 2, 0))
	require.True(t, store.Set(ctx, "user_settings", 3, 0))

	require.Equal(t, []string{"cache_/a", "cache_/b"}, store.Keys(ctx, CachePrefix))
	require.Equal(t, 2, store.ClearByPrefix(ctx, CachePrefix))
	require.Equal(t, []string{"user_settings"}, store.Keys(ctx, ""))

	_, found, err := backend.Get(ctx, "foreign_key")
	require.NoError(t, err)
	require.True(t, found)
}

type failingBackend struct {
	*MemoryBackend
	failSet bool
	failGet bool
}

var errQuota = errors.New("quota exceeded")

func (f *failingBackend) Set(ctx context.Context, key string, value []byte) error {
	if f.failSet {
		return errQuota
	}
	return f.MemoryBackend.Set(ctx, key, value)
}

func (f *failingBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.failGet {
		return nil, false, errQuota
	}
	return f.MemoryBackend.Get(ctx, key)
}

func TestBackendFailureDegradesToMemory(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	backend := &failingBackend{MemoryBackend: NewMemoryBackend(), failSet: true}
	store := New(backend, WithLogger(log.New(&logs, "", 0)))

	require.True(t, store.Set(ctx, "pending_workouts", []string{"a"}, 0), "write lands in the fallback")
	require.True(t, store.Degraded())
	require.Contains(t, logs.String(), "quota exceeded")

	var got []string
	require.True(t, store.Get(ctx, "pending_workouts", &got))
	require.Equal(t, []string{"a"}, got)
}

type busyBackend struct {
	*MemoryBackend
}

func (b *busyBackend) Set(context.Context, string, []byte) error {
	return fmt.Errorf("%w: database is locked", ErrBusy)
}

func (b *busyBackend) Update(context.Context, string, UpdateFunc) error {
	return fmt.Errorf("%w: database is locked", ErrBusy)
}

func TestBusyBackendFailsWithoutDegrading(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	store := New(&busyBackend{MemoryBackend: NewMemoryBackend()}, WithLogger(log.New(&logs, "", 0)))

	require.False(t, store.Set(ctx, "pending_workouts", []string{"a"}, 0))
	var got []string
	require.False(t, store.Update(ctx, "pending_workouts", &got, 0, func(bool) any {
		return []string{"a"}
	}))
	require.False(t, store.Degraded())
	require.Contains(t, logs.String(), "in use by another process")
}

func TestUpdateZeroesDestinationBeforeReading(t *testing.T) {
	ctx := context.Background()
	store := New(nil, WithLogger(quietLogger()))
	require.True(t, store.Set(ctx, "names", []string{"stored"}, 0))

	got := []string{"stale"}
	store.Update(ctx, "names", &got, 0, func(found bool) any {
		require.True(t, found)
		return nil
	})
	require.Equal(t, []string{"stored"}, got)

	got = []string{"stale"}
	store.Update(ctx, "missing", &got, 0, func(found bool) any {
		require.False(t, found)
		return nil
	})
	require.Nil(t, got)
}

func TestSQLiteUpdatesFromTwoStoresInterleave(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")

	stores := make([]*Store, 2)
	for i := range stores {
		backend, err := NewSQLiteBackend(path)
		require.NoError(t, err)
		stores[i] = New(backend, WithLogger(quietLogger()))
		t.Cleanup(func() { _ = stores[i].Close() })
	}

	const perStore = 50
	var wg sync.WaitGroup
	for _, store := range stores {
		wg.Add(1)
		go func(store *Store) {
			defer wg.Done()
			for i := 0; i < perStore; i++ {
				var counter int
				store.Update(ctx, "counter", &counter, 0, func(bool) any {
					return counter + 1
				})
			}
		}(store)
	}
	wg.Wait()

	var counter int
	require.True(t, stores[0].Get(ctx, "counter", &counter))
	require.Equal(t, 2*perStore, counter)
	require.False(t, stores[0].Degraded())
	require.False(t, stores[1].Degraded())
}

func TestUpdateIsSerialised(t *testing.T) {
	ctx := context.Background()
	store := New(nil, WithLogger(quietLogger()))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var counter int
			store.Update(ctx, "counter", &counter, 0, func(bool) any {
				return counter + 1
			})
		}()
	}
	wg.Wait()

	var counter int
	require.True(t, store.Get(ctx, "counter", &counter))
	require.Equal(t, 50, counter)
}

func TestUpdateNilLeavesKeyUntouched(t *testing.T) {
	ctx := context.Background()
	store := New(nil, WithLogger(quietLogger()))
	var v int
	require.False(t, store.Update(ctx, "k", &v, 0, func(found bool) any {
		require.False(t, found)
		return nil
	}))
	require.False(t, store.Get(ctx, "k", &v))
}

func TestSQLiteBackendPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "fittrack.db")

	backend, err := NewSQLiteBackend(path)
	require.NoError(t, err)
	store := New(backend, WithLogger(quietLogger()))
	require.True(t, store.Set(ctx, "pending_workouts", []string{"queued"}, 0))
	require.True(t, store.Set(ctx, "cache_/stats", 1, time.Minute))
	require.True(t, store.Set(ctx, "cache_100%", 2, time.Minute))
	require.NoError(t, store.Close())

	backend, err = NewSQLiteBackend(path)
	require.NoError(t, err)
	store = New(backend, WithLogger(quietLogger()))
	t.Cleanup(func() { _ = store.Close() })

	var got []string
	require.True(t, store.Get(ctx, "pending_workouts", &got))
	require.Equal(t, []string{"queued"}, got)
	require.Equal(t, []string{"cache_/stats", "cache_100%"}, store.Keys(ctx, CachePrefix))
	require.Empty(t, store.Keys(ctx, "cache_1000"))
	require.False(t, store.Degraded())
}
