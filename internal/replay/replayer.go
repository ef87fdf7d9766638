// Package replay delivers queued workouts to the server once connectivity
// returns, one at a time and in submission order.
package replay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"example.com/fittrack/internal/apiclient"
	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/gateway"
	"example.com/fittrack/internal/pubsub"
	"example.com/fittrack/internal/queue"
)

// ErrReplayInProgress is returned when a pass is requested while another runs.
var ErrReplayInProgress = errors.New("replay already in progress")

// Trigger names what started a pass.
type Trigger string

const (
	TriggerOnline         Trigger = "online"
	TriggerBackgroundSync Trigger = "background-sync"
	TriggerManual         Trigger = "manual"
)

// SyncTag is the background-sync registration that replays pending workouts.
const SyncTag = "workout-sync"

// Status is the result of replaying a single entry.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Outcome records what happened to one queued entry.
type Outcome struct {
	Entry   queue.Entry
	Workout *domain.Workout
	Status  Status
	Reason  string
}

// Report summarises a pass. Outcomes follow queue order.
type Report struct {
	Trigger   Trigger
	StartedAt time.Time
	Duration  time.Duration
	Outcomes  []Outcome
}

// Synced counts successful outcomes.
func (r Report) Synced() int {
	return r.count(StatusSuccess)
}

// Failed counts failed outcomes.
func (r Report) Failed() int {
	return r.count(StatusFailure)
}

func (r Report) count(status Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Pending is the queue view the replayer needs.
type Pending interface {
	List(ctx context.Context) []queue.Entry
	Dequeue(ctx context.Context, tempID int64) bool
}

// Submitter delivers a workout to the server.
type Submitter interface {
	CreateWorkout(ctx context.Context, w domain.Workout, idempotencyKey string) (apiclient.CreateResult, error)
}

// Replayer runs replay passes. At most one pass runs at a time.
type Replayer struct {
	pending  Pending
	api      Submitter
	bus      *pubsub.Bus
	running  atomic.Bool
	onSynced func(context.Context, domain.Workout)
	now      func() time.Time
	logger   *log.Logger
}

// Option customises a Replayer.
type Option func(*Replayer)

// WithLogger overrides the replay logger.
func WithLogger(logger *log.Logger) Option {
	return func(r *Replayer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Replayer) {
		if now != nil {
			r.now = now
		}
	}
}

// WithOnSynced registers fn to run after each acknowledged entry.
func WithOnSynced(fn func(context.Context, domain.Workout)) Option {
	return func(r *Replayer) {
		r.onSynced = fn
	}
}

// NewReplayer constructs a Replayer. bus may be nil.
func NewReplayer(pending Pending, api Submitter, bus *pubsub.Bus, opts ...Option) *Replayer {
	r := &Replayer{
		pending: pending,
		api:     api,
		bus:     bus,
		now:     time.Now,
		logger:  log.New(os.Stderr, "[replay] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Running reports whether a pass is in flight.
func (r *Replayer) Running() bool {
	return r.running.Load()
}

// Replay snapshots the queue and submits each entry in order. Acknowledged
// entries are dequeued; failed ones stay queued and the pass moves on. A call
// while another pass runs returns ErrReplayInProgress. If ctx ends mid-pass
// the partial report is returned with ctx.Err().
func (r *Replayer) Replay(ctx context.Context, trigger Trigger) (Report, error) {
	if !r.running.CompareAndSwap(false, true) {
		recordCoalesced(trigger)
		return Report{Trigger: trigger}, ErrReplayInProgress
	}
	defer r.running.Store(false)

	report := Report{Trigger: trigger, StartedAt: r.now()}
	entries := r.pending.List(ctx)
	if len(entries) == 0 {
		return report, nil
	}
	r.logger.Printf("replaying %d pending workouts (%s)", len(entries), trigger)

	var ctxErr error
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			ctxErr = err
			break
		}

		outcome := r.replayOne(ctx, entry)
		if outcome.Status == StatusFailure && ctx.Err() != nil {
			ctxErr = ctx.Err()
			break
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}

	report.Duration = r.now().Sub(report.StartedAt)
	recordPass(trigger, report)
	r.publishCompleted(report)
	return report, ctxErr
}

func (r *Replayer) replayOne(ctx context.Context, entry queue.Entry) Outcome {
	res, err := r.api.CreateWorkout(ctx, entry.Workout, entry.IdempotencyKey)
	if err != nil {
		reason := failureReason(err)
		r.logger.Printf("workout %d (%s) not synced: %s", entry.TempID, entry.Name, reason)
		return Outcome{Entry: entry, Status: StatusFailure, Reason: reason}
	}

	r.pending.Dequeue(ctx, entry.TempID)
	created := res.Workout
	if r.onSynced != nil {
		r.onSynced(ctx, created)
	}
	if r.bus != nil {
		r.bus.Publish(pubsub.Event{
			Kind:    pubsub.WorkoutSynced,
			Level:   pubsub.LevelSuccess,
			Message: fmt.Sprintf("Workout synced: %s", created.Name),
			Payload: created,
		})
	}
	return Outcome{Entry: entry, Workout: &created, Status: StatusSuccess}
}

func (r *Replayer) publishCompleted(report Report) {
	if r.bus == nil {
		return
	}
	synced, failed := report.Synced(), report.Failed()
	level := pubsub.LevelSuccess
	msg := fmt.Sprintf("%d workouts synced", synced)
	if failed > 0 {
		level = pubsub.LevelWarning
		msg = fmt.Sprintf("%d workouts synced, %d still pending", synced, failed)
	}
	r.bus.Publish(pubsub.Event{Kind: pubsub.ReplayCompleted, Level: level, Message: msg, Payload: report})
}

func failureReason(err error) string {
	var remote *gateway.RemoteError
	switch {
	case errors.Is(err, gateway.ErrNetworkUnavailable):
		return "offline"
	case errors.As(err, &remote):
		return remote.Message
	default:
		return err.Error()
	}
}
