// Package events defines the workout event payloads carried through the outbox.
package events

import "time"

const (
	// TypeWorkoutCreated is emitted once a workout is accepted by the API.
	TypeWorkoutCreated = "workout.created"
	// TypeWorkoutDeleted is emitted when a workout is removed.
	TypeWorkoutDeleted = "workout.deleted"
)

// WorkoutCreated represents the message emitted when a new workout is stored.
type WorkoutCreated struct {
	WorkoutID       string    `json:"workout_id"`
	Name            string    `json:"name"`
	Type            string    `json:"type"`
	DurationMinutes int       `json:"duration_minutes"`
	Calories        int       `json:"calories"`
	PerformedAt     time.Time `json:"performed_at"`
	HasLocation     bool      `json:"has_location"`
	HasImage        bool      `json:"has_image"`
}

// WorkoutDeleted is emitted after a workout is removed.
type WorkoutDeleted struct {
	WorkoutID  string    `json:"workout_id"`
	OccurredAt time.Time `json:"occurred_at"`
}
