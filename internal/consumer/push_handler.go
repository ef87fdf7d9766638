package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"example.com/fittrack/internal/events"
	"example.com/fittrack/internal/push"
)

// Broadcaster is satisfied by *push.Broadcaster.
type Broadcaster interface {
	Broadcast(ctx context.Context, n push.Notification) (int, error)
}

// PushHandler notifies every subscribed device when a workout is recorded.
type PushHandler struct {
	broadcaster Broadcaster
	logger      *log.Logger
}

// NewPushHandler constructs a PushHandler. A nil logger writes to stderr.
func NewPushHandler(b Broadcaster, logger *log.Logger) *PushHandler {
	if logger == nil {
		logger = log.New(os.Stderr, "[notifier] ", log.LstdFlags)
	}
	return &PushHandler{broadcaster: b, logger: logger}
}

// Handle broadcasts workout.created events and ignores the rest. Failed
// deliveries are logged rather than retried so one dead endpoint cannot stall
// the partition.
func (h *PushHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != events.TypeWorkoutCreated {
		return nil
	}

	var created events.WorkoutCreated
	if err := json.Unmarshal(msg.Payload, &created); err != nil {
		return fmt.Errorf("decode %s: %w", msg.EventType, err)
	}

	n := WorkoutNotification(created)
	sent, err := h.broadcaster.Broadcast(ctx, n)
	if err != nil {
		h.logger.Printf("workout %s: %d notifications sent, some failed: %v", created.WorkoutID, sent, err)
		return nil
	}
	h.logger.Printf("workout %s: %d notifications sent", created.WorkoutID, sent)
	return nil
}

// WorkoutNotification is the message shown when a workout is registered.
func WorkoutNotification(created events.WorkoutCreated) push.Notification {
	return push.Notification{
		Title: "Workout registered!",
		Body:  "You completed: " + created.Name,
		Icon:  "/icons/icon-192x192.png",
		Tag:   "workout-" + created.WorkoutID,
		Data: map[string]any{
			"workoutId": created.WorkoutID,
			"url":       "/",
		},
	}
}
