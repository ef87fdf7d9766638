// Package memory provides a map-backed repository for local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"example.com/fittrack/internal/domain"
)

// Repository stores workouts, the profile and push subscriptions in memory.
type Repository struct {
	mu            sync.RWMutex
	workouts      map[string]domain.Workout
	idempotency   map[string]string
	users         []domain.User
	subscriptions map[string]domain.PushSubscription
	subOrder      []string
}

// NewRepository constructs a repository seeded with the default profile.
func NewRepository() *Repository {
	repo := NewEmptyRepository()
	repo.users = append(repo.users, domain.User{
		ID:        "default",
		Name:      "Athlete",
		Settings:  domain.DefaultSettings(),
		CreatedAt: time.Now().UTC(),
	})
	return repo
}

// NewEmptyRepository constructs a repository without any profile.
func NewEmptyRepository() *Repository {
	return &Repository{
		workouts:      make(map[string]domain.Workout),
		idempotency:   make(map[string]string),
		subscriptions: make(map[string]domain.PushSubscription),
	}
}

// FindByIdempotency implements domain.WorkoutRepository.
func (r *Repository) FindByIdempotency(ctx context.Context, idempotencyKey string) (*domain.Workout, error) {
	if idempotencyKey == "" {
		return nil, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.idempotency[idempotencyKey]
	if !ok {
		return nil, nil
	}
	workout, ok := r.workouts[id]
	if !ok {
		return nil, nil
	}
	return &workout, nil
}

// CreateWorkout implements domain.WorkoutRepository.
func (r *Repository) CreateWorkout(ctx context.Context, workout domain.Workout, idempotencyKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.workouts[workout.ID] = workout
	if idempotencyKey != "" {
		r.idempotency[idempotencyKey] = workout.ID
	}
	return nil
}

// ListWorkouts implements domain.WorkoutRepository.
func (r *Repository) ListWorkouts(ctx context.Context) ([]domain.Workout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]domain.Workout, 0, len(r.workouts))
	for _, w := range r.workouts {
		results = append(results, w)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Date.Equal(results[j].Date) {
			return results[i].ID > results[j].ID
		}
		return results[i].Date.After(results[j].Date)
	})
	return results, nil
}

// DeleteWorkout implements domain.WorkoutRepository.
func (r *Repository) DeleteWorkout(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.workouts[id]; !ok {
		return false, nil
	}
	delete(r.workouts, id)
	for key, workoutID := range r.idempotency {
		if workoutID == id {
			delete(r.idempotency, key)
		}
	}
	return true, nil
}

// FirstUser implements domain.UserRepository.
func (r *Repository) FirstUser(ctx context.Context) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.users) == 0 {
		return nil, nil
	}
	user := r.users[0]
	return &user, nil
}

// UpdateSettings implements domain.UserRepository.
func (r *Repository) UpdateSettings(ctx context.Context, userID string, settings domain.Settings) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.users {
		if r.users[i].ID == userID {
			r.users[i].Settings = settings
			user := r.users[i]
			return &user, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

// SaveSubscription implements domain.SubscriptionRepository.
func (r *Repository) SaveSubscription(ctx context.Context, sub domain.PushSubscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subscriptions[sub.Endpoint]; !ok {
		r.subOrder = append(r.subOrder, sub.Endpoint)
	}
	r.subscriptions[sub.Endpoint] = sub
	return nil
}

// ListSubscriptions implements domain.SubscriptionRepository.
func (r *Repository) ListSubscriptions(ctx context.Context) ([]domain.PushSubscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := make([]domain.PushSubscription, 0, len(r.subOrder))
	for _, endpoint := range r.subOrder {
		subs = append(subs, r.subscriptions[endpoint])
	}
	return subs, nil
}

// DeleteSubscription implements domain.SubscriptionRepository.
func (r *Repository) DeleteSubscription(ctx context.Context, endpoint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subscriptions[endpoint]; !ok {
		return nil
	}
	delete(r.subscriptions, endpoint)
	for i, e := range r.subOrder {
		if e == endpoint {
			r.subOrder = append(r.subOrder[:i], r.subOrder[i+1:]...)
			break
		}
	}
	return nil
}
