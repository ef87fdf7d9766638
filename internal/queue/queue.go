// Package queue persists workouts that could not be delivered to the server so
// they can be replayed once connectivity returns.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/storage"
)

// ErrNotStored is returned when the queue could not be written.
var ErrNotStored = errors.New("pending workout not stored")

// Entry is a queued workout awaiting acknowledgement by the server.
type Entry struct {
	domain.Workout
	TempID         int64     `json:"tempId"`
	IdempotencyKey string    `json:"idempotencyKey"`
	QueuedAt       time.Time `json:"queuedAt"`
}

// Queue is the FIFO of pending workouts, persisted as one JSON array.
type Queue struct {
	mu     sync.Mutex
	store  *storage.Store
	lastID int64
	now    func() time.Time
	newKey func() string
}

// Option customises a Queue.
type Option func(*Queue)

// WithClock overrides the time source used for temporary ids.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// WithKeyGenerator overrides the idempotency key generator.
func WithKeyGenerator(fn func() string) Option {
	return func(q *Queue) {
		if fn != nil {
			q.newKey = fn
		}
	}
}

// New constructs a Queue over store.
func New(store *storage.Store, opts ...Option) *Queue {
	q := &Queue{
		store:  store,
		now:    time.Now,
		newKey: uuid.NewString,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends w with a fresh temporary id and idempotency key. Any server
// id on w is dropped.
func (q *Queue) Enqueue(ctx context.Context, w domain.Workout) (Entry, error) {
	return q.EnqueueWithKey(ctx, w, "")
}

// EnqueueWithKey is Enqueue with the idempotency key of an earlier attempt,
// so a submission whose response was lost is not recorded twice on replay.
// An empty key gets a fresh one.
func (q *Queue) EnqueueWithKey(ctx context.Context, w domain.Workout, idempotencyKey string) (Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var (
		entries []Entry
		entry   Entry
	)
	ok := q.store.Update(ctx, storage.KeyPendingWorkouts, &entries, 0, func(bool) any {
		q.observeLocked(entries)

		w.ID = ""
		now := q.now()
		key := idempotencyKey
		if key == "" {
			key = q.newKey()
		}
		entry = Entry{
			Workout:        w,
			TempID:         q.nextIDLocked(now),
			IdempotencyKey: key,
			QueuedAt:       now.UTC(),
		}
		return append(entries, entry)
	})
	if !ok {
		return Entry{}, ErrNotStored
	}
	setDepth(len(entries) + 1)
	return entry, nil
}

// List returns a snapshot of the queue in submission order.
func (q *Queue) List(ctx context.Context) []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	var entries []Entry
	if !q.store.Get(ctx, storage.KeyPendingWorkouts, &entries) || entries == nil {
		return []Entry{}
	}
	return entries
}

// Len returns the number of pending entries.
func (q *Queue) Len(ctx context.Context) int {
	return len(q.List(ctx))
}

// Dequeue removes the acknowledged entry. Unknown ids are a no-op.
func (q *Queue) Dequeue(ctx context.Context, tempID int64) bool {
	return q.remove(ctx, tempID)
}

// Cancel removes an entry the user no longer wants delivered.
func (q *Queue) Cancel(ctx context.Context, tempID int64) bool {
	return q.remove(ctx, tempID)
}

func (q *Queue) remove(ctx context.Context, tempID int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	var (
		entries []Entry
		removed bool
		remain  int
	)
	q.store.Update(ctx, storage.KeyPendingWorkouts, &entries, 0, func(bool) any {
		q.observeLocked(entries)
		kept := make([]Entry, 0, len(entries))
		for _, e := range entries {
			if e.TempID == tempID {
				removed = true
				continue
			}
			kept = append(kept, e)
		}
		remain = len(kept)
		if !removed {
			return nil
		}
		return kept
	})
	if removed {
		setDepth(remain)
	}
	return removed
}

// observeLocked makes temporary ids continue after the ones already
// persisted, including those written by another process.
func (q *Queue) observeLocked(entries []Entry) {
	for _, e := range entries {
		if e.TempID > q.lastID {
			q.lastID = e.TempID
		}
	}
}

func (q *Queue) nextIDLocked(now time.Time) int64 {
	id := now.UnixMilli()
	if id <= q.lastID {
		id = q.lastID + 1
	}
	q.lastID = id
	return id
}
