//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/fittrack/internal/domain"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("fittrack"),
		postgrescontainer.WithUsername("fittrack"),
		postgrescontainer.WithPassword("fittrack"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	// a second run must be harmless
	require.NoError(t, Migrate(ctx, pool))
	return pool
}

func TestRepositoryWorkoutLifecycle(t *testing.T) {
	ctx := context.Background()
	pool := startPostgres(t)
	repo := NewRepository(pool)

	older := domain.Workout{
		ID:              uuid.NewString(),
		Name:            "Morning run",
		Type:            domain.WorkoutTypeCardio,
		DurationMinutes: 30,
		Calories:        300,
		Date:            time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond),
	}
	newer := domain.Workout{
		ID:              uuid.NewString(),
		Name:            "Squats",
		Type:            domain.WorkoutTypeStrength,
		DurationMinutes: 45,
		Calories:        400,
		Date:            time.Now().UTC().Truncate(time.Millisecond),
		Location:        &domain.Location{Lat: 40.4, Lng: -3.7, Accuracy: 12, Timestamp: 1700000000000},
	}

	require.NoError(t, repo.CreateWorkout(ctx, older, "key-older"))
	require.NoError(t, repo.CreateWorkout(ctx, newer, ""))

	listed, err := repo.ListWorkouts(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.Equal(t, newer.ID, listed[0].ID)
	require.Equal(t, older.ID, listed[1].ID)
	require.NotNil(t, listed[0].Location)

	found, err := repo.FindByIdempotency(ctx, "key-older")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, older.ID, found.ID)

	missing, err := repo.FindByIdempotency(ctx, "unknown")
	require.NoError(t, err)
	require.Nil(t, missing)

	var outboxRows int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE event_type='workout.created'`).Scan(&outboxRows))
	require.Equal(t, 2, outboxRows)

	deleted, err := repo.DeleteWorkout(ctx, older.ID)
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = repo.DeleteWorkout(ctx, older.ID)
	require.NoError(t, err)
	require.False(t, deleted)

	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE event_type='workout.deleted'`).Scan(&outboxRows))
	require.Equal(t, 1, outboxRows)
}

func TestRepositoryUserAndSubscriptions(t *testing.T) {
	ctx := context.Background()
	pool := startPostgres(t)
	repo := NewRepository(pool)

	user, err := repo.FirstUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, user)
	require.Equal(t, "default", user.ID)
	require.Equal(t, "dark", user.Settings.Theme)

	settings := user.Settings
	settings.Theme = "light"
	settings.Goals.WeeklyWorkouts = 6
	updated, err := repo.UpdateSettings(ctx, user.ID, settings)
	require.NoError(t, err)
	require.Equal(t, "light", updated.Settings.Theme)
	require.Equal(t, 6, updated.Settings.Goals.WeeklyWorkouts)

	_, err = repo.UpdateSettings(ctx, "nobody", settings)
	require.ErrorIs(t, err, domain.ErrUserNotFound)

	sub := domain.PushSubscription{Endpoint: "https://push.example/abc", Keys: domain.PushKeys{P256dh: "p", Auth: "a"}}
	require.NoError(t, repo.SaveSubscription(ctx, sub))
	sub.Keys.Auth = "rotated"
	require.NoError(t, repo.SaveSubscription(ctx, sub))

	subs, err := repo.ListSubscriptions(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.Equal(t, "rotated", subs[0].Keys.Auth)

	require.NoError(t, repo.DeleteSubscription(ctx, sub.Endpoint))
	subs, err = repo.ListSubscriptions(ctx)
	require.NoError(t, err)
	require.Empty(t, subs)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
