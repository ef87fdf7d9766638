package replay

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"example.com/fittrack/internal/apiclient"
	"example.com/fittrack/internal/pubsub"
)

// DefaultProbeInterval is how often the monitor checks the server.
const DefaultProbeInterval = 30 * time.Second

// Prober checks whether the server is reachable.
type Prober interface {
	Health(ctx context.Context) (apiclient.Health, error)
}

// Monitor tracks connectivity by probing the health endpoint and signals a
// replay whenever the client goes from offline to online. The client starts
// out offline, so the first successful probe also signals.
type Monitor struct {
	prober   Prober
	signal   func(Trigger) bool
	bus      *pubsub.Bus
	interval time.Duration
	logger   *log.Logger

	mu     sync.Mutex
	online bool
}

// MonitorOption customises a Monitor.
type MonitorOption func(*Monitor)

// WithProbeInterval overrides DefaultProbeInterval.
func WithProbeInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithMonitorLogger overrides the monitor logger.
func WithMonitorLogger(logger *log.Logger) MonitorOption {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMonitor constructs a Monitor. signal is typically Coordinator.Signal;
// bus may be nil.
func NewMonitor(prober Prober, signal func(Trigger) bool, bus *pubsub.Bus, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		prober:   prober,
		signal:   signal,
		bus:      bus,
		interval: DefaultProbeInterval,
		logger:   log.New(os.Stderr, "[monitor] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Online reports the last observed connectivity.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Check probes once and applies any transition. It returns the new state.
func (m *Monitor) Check(ctx context.Context) bool {
	_, err := m.prober.Health(ctx)
	if ctx.Err() != nil {
		return m.Online()
	}
	online := err == nil

	m.mu.Lock()
	changed := online != m.online
	m.online = online
	m.mu.Unlock()

	if !changed {
		return online
	}
	if online {
		m.logger.Printf("connection restored")
	} else {
		m.logger.Printf("working offline: %v", err)
	}
	if m.bus != nil {
		level, msg := pubsub.LevelWarning, "Working offline. Changes will sync when the connection returns."
		if online {
			level, msg = pubsub.LevelSuccess, "Connection restored."
		}
		m.bus.Publish(pubsub.Event{Kind: pubsub.ConnectivityChanged, Level: level, Message: msg, Payload: online})
	}
	if online && m.signal != nil {
		m.signal(TriggerOnline)
	}
	return online
}

// Run probes immediately and then on every interval until ctx ends.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.Check(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
