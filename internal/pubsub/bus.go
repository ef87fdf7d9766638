// Package pubsub is the in-process event bus that carries client
// notifications (toasts, achievement unlocks, sync results) to subscribers.
package pubsub

import (
	"sync"
	"time"
)

// Kind names an event.
type Kind string

const (
	WorkoutCreated      Kind = "workout.created"
	WorkoutQueued       Kind = "workout.queued"
	WorkoutSynced       Kind = "workout.synced"
	WorkoutDeleted      Kind = "workout.deleted"
	ReplayCompleted     Kind = "replay.completed"
	AchievementUnlocked Kind = "achievement.unlocked"
	ConnectivityChanged Kind = "connectivity.changed"
	SettingsUpdated     Kind = "settings.updated"
)

// Level is the severity a notification is shown with.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Event is a single notification.
type Event struct {
	Kind    Kind
	Level   Level
	Message string
	Payload any
	At      time.Time
}

// Handler receives published events.
type Handler func(Event)

// Bus fans events out to subscribers synchronously, in subscription order.
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[uint64]Handler
	order    []uint64
	now      func() time.Time
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{handlers: make(map[uint64]Handler), now: time.Now}
}

// Subscribe registers h and returns a function that removes it.
// Calling the returned function more than once is harmless.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[id] = h
	b.order = append(b.order, id)

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.handlers, id)
	for i, existing := range b.order {
		if existing == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			return
		}
	}
}

// Publish delivers e to every current subscriber. Handlers may subscribe or
// unsubscribe while being called; changes apply to the next Publish.
func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = b.now()
	}
	if e.Level == "" {
		e.Level = LevelInfo
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		handlers = append(handlers, b.handlers[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.order)
}
