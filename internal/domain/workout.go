package domain

import (
	"fmt"
	"strings"
	"time"
)

// WorkoutType enumerates the supported workout categories.
type WorkoutType string

const (
	WorkoutTypeCardio      WorkoutType = "cardio"
	WorkoutTypeStrength    WorkoutType = "strength"
	WorkoutTypeFlexibility WorkoutType = "flexibility"
	WorkoutTypeSports      WorkoutType = "sports"
)

// Valid reports whether t is one of the known workout types.
func (t WorkoutType) Valid() bool {
	switch t {
	case WorkoutTypeCardio, WorkoutTypeStrength, WorkoutTypeFlexibility, WorkoutTypeSports:
		return true
	default:
		return false
	}
}

// Location is the optional geolocation fix attached to a workout.
type Location struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Accuracy  float64 `json:"accuracy"`
	Timestamp int64   `json:"timestamp"`
}

// Workout is the canonical workout record exchanged between client and server.
// ID is empty until the server acknowledges the record.
type Workout struct {
	ID              string      `json:"id,omitempty"`
	Name            string      `json:"name"`
	Type            WorkoutType `json:"type"`
	DurationMinutes int         `json:"duration"`
	Calories        int         `json:"calories"`
	Date            time.Time   `json:"date"`
	Location        *Location   `json:"location"`
	Image           *string     `json:"image"`
}

// ValidationError describes a rejected workout payload.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validate checks the invariants a workout must hold before it is stored.
func (w Workout) Validate() error {
	if strings.TrimSpace(w.Name) == "" {
		return &ValidationError{Field: "name", Reason: "required"}
	}
	if !w.Type.Valid() {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown workout type %q", w.Type)}
	}
	if w.DurationMinutes <= 0 {
		return &ValidationError{Field: "duration", Reason: "must be greater than zero"}
	}
	if w.Calories <= 0 {
		return &ValidationError{Field: "calories", Reason: "must be greater than zero"}
	}
	if w.Image != nil && *w.Image != "" && !strings.HasPrefix(*w.Image, "data:") {
		return &ValidationError{Field: "image", Reason: "must be a data URI"}
	}
	return nil
}
