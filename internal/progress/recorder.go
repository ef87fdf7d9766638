package progress

import (
	"context"
	"time"

	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/pubsub"
)

// Store persists the ledger. *storage.Library satisfies it.
type Store interface {
	Progress(ctx context.Context, dst any) bool
	UpdateProgress(ctx context.Context, dst any, fn func(found bool) any) bool
}

// Recorder applies completed workouts to the persisted ledger and announces
// unlocked achievements.
type Recorder struct {
	store Store
	bus   *pubsub.Bus
	now   func() time.Time
}

// Option customises a Recorder.
type Option func(*Recorder)

// WithClock overrides the time source. Days and weeks follow the clock's
// location.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRecorder constructs a Recorder. bus may be nil.
func NewRecorder(store Store, bus *pubsub.Bus, opts ...Option) *Recorder {
	r := &Recorder{store: store, bus: bus, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record adds w to the ledger and returns newly unlocked achievements.
func (r *Recorder) Record(ctx context.Context, w domain.Workout) []Achievement {
	var (
		ledger   Ledger
		unlocked []Achievement
	)
	at := r.now()
	r.store.UpdateProgress(ctx, &ledger, func(bool) any {
		unlocked = ledger.Record(w, at)
		return ledger
	})

	if r.bus != nil {
		for _, a := range unlocked {
			r.bus.Publish(pubsub.Event{
				Kind:    pubsub.AchievementUnlocked,
				Level:   pubsub.LevelSuccess,
				Message: "Achievement unlocked: " + a.Name,
				Payload: a,
			})
		}
	}
	return unlocked
}

// Ledger returns the saved ledger, or an empty one.
func (r *Recorder) Ledger(ctx context.Context) Ledger {
	var ledger Ledger
	if !r.store.Progress(ctx, &ledger) {
		ledger = Ledger{}
	}
	if ledger.WeeklyStats == nil {
		ledger.WeeklyStats = map[string]WeekStats{}
	}
	if ledger.Achievements == nil {
		ledger.Achievements = []Achievement{}
	}
	return ledger
}
