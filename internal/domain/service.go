// Package domain defines the business logic for the workout API.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrWorkoutNotFound is returned when a workout cannot be located.
	ErrWorkoutNotFound = errors.New("workout not found")
	// ErrUserNotFound is returned when no user profile exists.
	ErrUserNotFound = errors.New("user not found")
)

// WorkoutRepository captures workout persistence operations.
type WorkoutRepository interface {
	FindByIdempotency(ctx context.Context, idempotencyKey string) (*Workout, error)
	CreateWorkout(ctx context.Context, workout Workout, idempotencyKey string) error
	ListWorkouts(ctx context.Context) ([]Workout, error)
	DeleteWorkout(ctx context.Context, id string) (bool, error)
}

// UserRepository captures profile persistence operations.
type UserRepository interface {
	FirstUser(ctx context.Context) (*User, error)
	UpdateSettings(ctx context.Context, userID string, settings Settings) (*User, error)
}

// SubscriptionRepository stores web push subscriptions.
type SubscriptionRepository interface {
	SaveSubscription(ctx context.Context, sub PushSubscription) error
	ListSubscriptions(ctx context.Context) ([]PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
}

// Repository is the full persistence surface used by Service.
type Repository interface {
	WorkoutRepository
	UserRepository
	SubscriptionRepository
}

// Service orchestrates workout, profile and subscription workflows.
type Service struct {
	repo Repository
	now  func() time.Time
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a Service.
func NewService(repo Repository, opts ...ServiceOption) *Service {
	s := &Service{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateWorkoutInput captures the payload from the API layer.
type CreateWorkoutInput struct {
	Workout        Workout
	IdempotencyKey string
}

// CreateWorkout stores a workout. When the idempotency key was seen before the
// stored record is returned and replay is true.
func (s *Service) CreateWorkout(ctx context.Context, input CreateWorkoutInput) (*Workout, bool, error) {
	if input.IdempotencyKey != "" {
		existing, err := s.repo.FindByIdempotency(ctx, input.IdempotencyKey)
		if err != nil {
			return nil, false, fmt.Errorf("lookup idempotency key: %w", err)
		}
		if existing != nil {
			return existing, true, nil
		}
	}

	workout := input.Workout
	if err := workout.Validate(); err != nil {
		return nil, false, err
	}
	workout.ID = uuid.NewString()
	if workout.Date.IsZero() {
		workout.Date = s.now()
	}
	workout.Date = workout.Date.UTC()
	if workout.Image != nil && *workout.Image == "" {
		workout.Image = nil
	}

	if err := s.repo.CreateWorkout(ctx, workout, input.IdempotencyKey); err != nil {
		return nil, false, err
	}
	return &workout, false, nil
}

// ListWorkouts returns every workout, newest first.
func (s *Service) ListWorkouts(ctx context.Context) ([]Workout, error) {
	workouts, err := s.repo.ListWorkouts(ctx)
	if err != nil {
		return nil, err
	}
	if workouts == nil {
		workouts = []Workout{}
	}
	return workouts, nil
}

// DeleteWorkout removes a workout by id.
func (s *Service) DeleteWorkout(ctx context.Context, id string) error {
	deleted, err := s.repo.DeleteWorkout(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrWorkoutNotFound
	}
	return nil
}

// Stats aggregates all stored workouts.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	workouts, err := s.repo.ListWorkouts(ctx)
	if err != nil {
		return Stats{}, err
	}
	return ComputeStats(workouts, s.now()), nil
}

// GetUser returns the profile served by this deployment.
func (s *Service) GetUser(ctx context.Context) (*User, error) {
	user, err := s.repo.FirstUser(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// UpdateSettings replaces the profile settings document.
func (s *Service) UpdateSettings(ctx context.Context, settings Settings) (*User, error) {
	user, err := s.GetUser(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.UpdateSettings(ctx, user.ID, settings)
}

// SaveSubscription registers a push subscription.
func (s *Service) SaveSubscription(ctx context.Context, sub PushSubscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	return s.repo.SaveSubscription(ctx, sub)
}

// ListSubscriptions returns every registered push subscription.
func (s *Service) ListSubscriptions(ctx context.Context) ([]PushSubscription, error) {
	return s.repo.ListSubscriptions(ctx)
}

// DeleteSubscription forgets a push subscription.
func (s *Service) DeleteSubscription(ctx context.Context, endpoint string) error {
	return s.repo.DeleteSubscription(ctx, endpoint)
}
