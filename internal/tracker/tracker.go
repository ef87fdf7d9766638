// Package tracker is the client-side workout tracker: it submits workouts
// online, queues them offline, and keeps the local history and progress
// ledger current.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"example.com/fittrack/internal/apiclient"
	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/gateway"
	"example.com/fittrack/internal/progress"
	"example.com/fittrack/internal/pubsub"
	"example.com/fittrack/internal/queue"
	"example.com/fittrack/internal/replay"
	"example.com/fittrack/internal/storage"
)

// Status says what happened to an added workout.
type Status string

const (
	StatusSaved  Status = "saved"
	StatusQueued Status = "queued"
)

// AddResult is the outcome of AddWorkout.
type AddResult struct {
	Status       Status
	Workout      domain.Workout
	Pending      *queue.Entry
	Achievements []progress.Achievement
}

// Tracker wires the gateway, queue, replayer and local library together.
type Tracker struct {
	api      *apiclient.Client
	gw       *gateway.Gateway
	queue    *queue.Queue
	library  *storage.Library
	progress *progress.Recorder
	replayer *replay.Replayer
	bus      *pubsub.Bus
	now      func() time.Time
	logger   *log.Logger
}

// Option customises a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithLogger overrides the tracker logger. It is also handed to the replayer.
func WithLogger(logger *log.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// New builds a Tracker on top of gw and store. bus may be nil.
func New(gw *gateway.Gateway, store *storage.Store, bus *pubsub.Bus, opts ...Option) *Tracker {
	t := &Tracker{
		gw:     gw,
		api:    apiclient.New(gw),
		bus:    bus,
		now:    time.Now,
		logger: log.New(os.Stderr, "[tracker] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(t)
	}

	t.library = storage.NewLibrary(store)
	t.queue = queue.New(store, queue.WithClock(t.now))
	t.progress = progress.NewRecorder(t.library, bus, progress.WithClock(t.now))
	t.replayer = replay.NewReplayer(t.queue, t.api, bus,
		replay.WithClock(t.now),
		replay.WithLogger(t.logger),
		replay.WithOnSynced(func(ctx context.Context, w domain.Workout) {
			t.recordCompleted(ctx, w)
		}),
	)
	return t
}

// Replayer exposes the replayer for a replay.Coordinator.
func (t *Tracker) Replayer() *replay.Replayer {
	return t.replayer
}

// Client exposes the typed API client.
func (t *Tracker) Client() *apiclient.Client {
	return t.api
}

// Library exposes the local collections.
func (t *Tracker) Library() *storage.Library {
	return t.library
}

// AddWorkout validates w and submits it. When the server cannot be reached the
// workout is queued for replay and the result status is StatusQueued. A
// rejection by the server is returned as is and nothing is queued.
func (t *Tracker) AddWorkout(ctx context.Context, w domain.Workout) (AddResult, error) {
	w.ID = ""
	if w.Date.IsZero() {
		w.Date = t.now().UTC()
	}
	if err := w.Validate(); err != nil {
		return AddResult{}, err
	}

	key := uuid.NewString()
	res, err := t.api.CreateWorkout(ctx, w, key)
	switch {
	case err == nil:
		unlocked := t.recordCompleted(ctx, res.Workout)
		t.publish(pubsub.WorkoutCreated, pubsub.LevelSuccess, "Workout saved: "+res.Workout.Name, res.Workout)
		return AddResult{Status: StatusSaved, Workout: res.Workout, Achievements: unlocked}, nil

	case errors.Is(err, gateway.ErrNetworkUnavailable):
		entry, qerr := t.queue.EnqueueWithKey(ctx, w, key)
		if qerr != nil {
			return AddResult{}, fmt.Errorf("queue workout: %w", qerr)
		}
		t.logger.Printf("workout %q queued as %d", w.Name, entry.TempID)
		t.publish(pubsub.WorkoutQueued, pubsub.LevelWarning, "Workout saved offline. It will sync when the connection returns.", entry)
		return AddResult{Status: StatusQueued, Workout: entry.Workout, Pending: &entry}, nil

	default:
		return AddResult{}, err
	}
}

// Workouts lists workouts from the server, falling back to the last list
// saved on this device when offline.
func (t *Tracker) Workouts(ctx context.Context) ([]domain.Workout, gateway.Source, error) {
	workouts, source, err := t.api.Workouts(ctx)
	if err != nil {
		return nil, source, err
	}
	switch source {
	case gateway.SourceNetwork:
		t.library.CacheWorkouts(ctx, workouts)
	case gateway.SourceOffline:
		if cached := t.library.CachedWorkouts(ctx); len(cached) > 0 {
			return cached, gateway.SourceCache, nil
		}
	}
	return workouts, source, nil
}

// Stats returns server statistics, falling back to the saved copy, and then
// to statistics computed over the saved workout list, when offline.
func (t *Tracker) Stats(ctx context.Context) (domain.Stats, gateway.Source, error) {
	stats, source, err := t.api.Stats(ctx)
	if err != nil {
		return domain.Stats{}, source, err
	}
	switch source {
	case gateway.SourceNetwork:
		t.library.CacheStats(ctx, stats)
	case gateway.SourceOffline:
		if cached, ok := t.library.CachedStats(ctx); ok {
			return cached, gateway.SourceCache, nil
		}
		if cached := t.library.CachedWorkouts(ctx); len(cached) > 0 {
			return domain.ComputeStats(cached, t.now()), gateway.SourceCache, nil
		}
	}
	return stats, source, nil
}

// DeleteWorkout removes a workout on the server. Deletions are not queued.
func (t *Tracker) DeleteWorkout(ctx context.Context, id string) error {
	if err := t.api.DeleteWorkout(ctx, id); err != nil {
		return err
	}
	t.library.WorkoutDeleted(ctx, id)
	t.publish(pubsub.WorkoutDeleted, pubsub.LevelInfo, "Workout deleted", id)
	return nil
}

// Settings returns the server's settings when reachable and the device copy
// otherwise.
func (t *Tracker) Settings(ctx context.Context) (domain.Settings, error) {
	user, source, err := t.api.User(ctx)
	if err != nil {
		var remote *gateway.RemoteError
		if errors.As(err, &remote) && remote.Status == http.StatusNotFound {
			return t.library.Settings(ctx), nil
		}
		return domain.Settings{}, err
	}
	// The device copy is never older than a cached response.
	if source != gateway.SourceNetwork {
		return t.library.Settings(ctx), nil
	}
	t.library.SaveSettings(ctx, user.Settings)
	return user.Settings, nil
}

// UpdateSettings saves settings on the device and then on the server. It
// reports whether the server accepted them; being offline is not an error.
func (t *Tracker) UpdateSettings(ctx context.Context, settings domain.Settings) (bool, error) {
	t.library.SaveSettings(ctx, settings)

	_, err := t.api.UpdateSettings(ctx, settings)
	switch {
	case err == nil:
		t.publish(pubsub.SettingsUpdated, pubsub.LevelSuccess, "Settings updated", settings)
		return true, nil
	case errors.Is(err, gateway.ErrNetworkUnavailable):
		t.publish(pubsub.SettingsUpdated, pubsub.LevelWarning, "Settings saved on this device only", settings)
		return false, nil
	default:
		return false, err
	}
}

// Pending lists queued workouts in submission order.
func (t *Tracker) Pending(ctx context.Context) []queue.Entry {
	return t.queue.List(ctx)
}

// PendingCount is the number of queued workouts. Non-zero means a sync is
// pending.
func (t *Tracker) PendingCount(ctx context.Context) int {
	return t.queue.Len(ctx)
}

// CancelPending drops a queued workout.
func (t *Tracker) CancelPending(ctx context.Context, tempID int64) bool {
	return t.queue.Cancel(ctx, tempID)
}

// SyncNow runs a manual replay pass.
func (t *Tracker) SyncNow(ctx context.Context) (replay.Report, error) {
	return t.replayer.Replay(ctx, replay.TriggerManual)
}

// Progress returns the local progress ledger.
func (t *Tracker) Progress(ctx context.Context) progress.Ledger {
	return t.progress.Ledger(ctx)
}

// ClearCache drops cached server responses.
func (t *Tracker) ClearCache(ctx context.Context) int {
	return t.gw.ClearCache(ctx)
}

// recordCompleted runs for every workout the server acknowledges, directly
// or on replay.
func (t *Tracker) recordCompleted(ctx context.Context, w domain.Workout) []progress.Achievement {
	t.library.WorkoutSaved(ctx, w)
	t.library.AddToHistory(ctx, w, t.now())
	return t.progress.Record(ctx, w)
}

func (t *Tracker) publish(kind pubsub.Kind, level pubsub.Level, msg string, payload any) {
	if t.bus == nil {
		return
	}
	t.bus.Publish(pubsub.Event{Kind: kind, Level: level, Message: msg, Payload: payload})
}
