package replay

import (
	"context"
	"errors"
	"log"
	"os"
)

// Runner is satisfied by *Replayer.
type Runner interface {
	Replay(ctx context.Context, trigger Trigger) (Report, error)
}

// Coordinator funnels replay triggers from connectivity changes, background
// sync registrations and user retries into passes run on a single goroutine.
// At most one follow-up pass is queued: the first signal that arrives during
// a pass runs once that pass ends, and any further signals are merged into it
// and otherwise ignored.
type Coordinator struct {
	runner   Runner
	signals  chan Trigger
	onReport func(Report)
	logger   *log.Logger
	done     chan struct{}
}

// CoordinatorOption customises a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithReportHandler receives the report of every completed pass.
func WithReportHandler(fn func(Report)) CoordinatorOption {
	return func(c *Coordinator) {
		c.onReport = fn
	}
}

// WithCoordinatorLogger overrides the coordinator logger.
func WithCoordinatorLogger(logger *log.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCoordinator constructs a Coordinator for runner.
func NewCoordinator(runner Runner, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		runner:  runner,
		signals: make(chan Trigger, 1),
		logger:  log.New(os.Stderr, "[replay] ", log.LstdFlags),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Signal asks for a pass. It never blocks and reports whether the signal was
// accepted rather than merged into one already pending.
func (c *Coordinator) Signal(trigger Trigger) bool {
	select {
	case c.signals <- trigger:
		return true
	default:
		return false
	}
}

// BackgroundSync handles a background-sync registration. Only SyncTag starts a
// pass.
func (c *Coordinator) BackgroundSync(tag string) bool {
	if tag != SyncTag {
		return false
	}
	return c.Signal(TriggerBackgroundSync)
}

// Run processes signals until ctx ends. It should be called in a goroutine.
func (c *Coordinator) Run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case trigger := <-c.signals:
			report, err := c.runner.Replay(ctx, trigger)
			switch {
			case errors.Is(err, ErrReplayInProgress):
				continue
			case err != nil && ctx.Err() == nil:
				c.logger.Printf("replay (%s) failed: %v", trigger, err)
			}
			if c.onReport != nil {
				c.onReport(report)
			}
		}
	}
}

// Wait blocks until Run has returned.
func (c *Coordinator) Wait() {
	<-c.done
}
