// Package postgres provides the pgx-backed document store for the API.
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/events"
	"example.com/fittrack/internal/observability"
)

//go:embed migrations/*.up.sql
var migrationFiles embed.FS

// Migrate applies the embedded schema. Statements are idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		contents, err := migrationFiles.ReadFile("migrations/" + name)
		if err != nil {
			return err
		}
		if _, err := pool.Exec(ctx, string(contents)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}
	return nil
}

// Repository provides Postgres-backed persistence for workouts, the user
// profile, push subscriptions and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindByIdempotency returns the workout previously stored under the key, if any.
func (r *Repository) FindByIdempotency(ctx context.Context, idempotencyKey string) (*domain.Workout, error) {
	if idempotencyKey == "" {
		return nil, nil
	}

	var doc []byte
	err := r.pool.QueryRow(ctx, `SELECT document FROM workouts WHERE idempotency_key=$1`, idempotencyKey).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return decodeWorkout(doc)
}

// CreateWorkout persists the workout and records its outbox event inside a single transaction.
func (r *Repository) CreateWorkout(ctx context.Context, workout domain.Workout, idempotencyKey string) (err error) {
	doc, err := json.Marshal(workout)
	if err != nil {
		return err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	const insertWorkout = `INSERT INTO workouts (workout_id, idempotency_key, performed_at, document)
        VALUES ($1,$2,$3,$4)`
	if _, err = tx.Exec(ctx, insertWorkout, workout.ID, nullIfEmpty(idempotencyKey), workout.Date, doc); err != nil {
		return err
	}

	if err = insertOutbox(ctx, tx, workout.ID, events.TypeWorkoutCreated, events.WorkoutCreated{
		WorkoutID:       workout.ID,
		Name:            workout.Name,
		Type:            string(workout.Type),
		DurationMinutes: workout.DurationMinutes,
		Calories:        workout.Calories,
		PerformedAt:     workout.Date,
		HasLocation:     workout.Location != nil,
		HasImage:        workout.Image != nil,
	}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordWorkoutPersisted(time.Now())
	return nil
}

// ListWorkouts returns every workout ordered by date, newest first.
func (r *Repository) ListWorkouts(ctx context.Context) ([]domain.Workout, error) {
	rows, err := r.pool.Query(ctx, `SELECT document FROM workouts ORDER BY performed_at DESC, workout_id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.Workout, 0)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		workout, err := decodeWorkout(doc)
		if err != nil {
			return nil, err
		}
		results = append(results, *workout)
	}
	return results, rows.Err()
}

// DeleteWorkout removes the workout and reports whether it existed.
func (r *Repository) DeleteWorkout(ctx context.Context, id string) (deleted bool, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil || !deleted {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `DELETE FROM workouts WHERE workout_id=$1`, id)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if err = insertOutbox(ctx, tx, id, events.TypeWorkoutDeleted, events.WorkoutDeleted{
		WorkoutID:  id,
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		return false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// FirstUser returns the oldest profile, or nil when none exists.
func (r *Repository) FirstUser(ctx context.Context) (*domain.User, error) {
	const query = `SELECT user_id, name, email, settings, created_at FROM users ORDER BY created_at, user_id LIMIT 1`
	user, err := scanUser(r.pool.QueryRow(ctx, query))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return user, err
}

// UpdateSettings overwrites the settings document of a profile.
func (r *Repository) UpdateSettings(ctx context.Context, userID string, settings domain.Settings) (*domain.User, error) {
	doc, err := json.Marshal(settings)
	if err != nil {
		return nil, err
	}
	const stmt = `UPDATE users SET settings=$2 WHERE user_id=$1
        RETURNING user_id, name, email, settings, created_at`
	user, err := scanUser(r.pool.QueryRow(ctx, stmt, userID, doc))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	return user, err
}

// SaveSubscription upserts a push subscription by endpoint.
func (r *Repository) SaveSubscription(ctx context.Context, sub domain.PushSubscription) error {
	const stmt = `INSERT INTO push_subscriptions (endpoint, p256dh, auth, expiration_time)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (endpoint) DO UPDATE SET p256dh=EXCLUDED.p256dh, auth=EXCLUDED.auth, expiration_time=EXCLUDED.expiration_time`
	_, err := r.pool.Exec(ctx, stmt, sub.Endpoint, sub.Keys.P256dh, sub.Keys.Auth, sub.ExpirationTime)
	return err
}

// ListSubscriptions returns all stored push subscriptions.
func (r *Repository) ListSubscriptions(ctx context.Context) ([]domain.PushSubscription, error) {
	rows, err := r.pool.Query(ctx, `SELECT endpoint, p256dh, auth, expiration_time FROM push_subscriptions ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []domain.PushSubscription
	for rows.Next() {
		var sub domain.PushSubscription
		if err := rows.Scan(&sub.Endpoint, &sub.Keys.P256dh, &sub.Keys.Auth, &sub.ExpirationTime); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// DeleteSubscription removes a push subscription.
func (r *Repository) DeleteSubscription(ctx context.Context, endpoint string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM push_subscriptions WHERE endpoint=$1`, endpoint)
	return err
}

func insertOutbox(ctx context.Context, tx pgx.Tx, aggregateID, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err = tx.Exec(ctx, stmt,
		"workout",
		aggregateID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		aggregateID,
		body,
		fmt.Sprintf("%s:%s", aggregateID, eventType),
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		user     domain.User
		settings []byte
	)
	if err := row.Scan(&user.ID, &user.Name, &user.Email, &settings, &user.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(settings, &user.Settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return &user, nil
}

func decodeWorkout(doc []byte) (*domain.Workout, error) {
	var workout domain.Workout
	if err := json.Unmarshal(doc, &workout); err != nil {
		return nil, fmt.Errorf("decode workout: %w", err)
	}
	return &workout, nil
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	events.TypeWorkoutCreated: {
		Topic:         "workout_events",
		SchemaSubject: "workout_events-value",
	},
	events.TypeWorkoutDeleted: {
		Topic:         "workout_events",
		SchemaSubject: "workout_events-value",
	},
}
