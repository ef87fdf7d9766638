//go:build integration

package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/fittrack/internal/persistence/postgres"
)

func TestPersistenceHandlerLogsEventOnce(t *testing.T) {
	ctx := context.Background()
	pool := startPostgres(t)
	handler := NewPersistenceHandler(pool)

	payload := json.RawMessage(`{"workout":{"id":"w-1","name":"Hill sprints"}}`)
	msg := Message{
		Topic:         "workout_events",
		Partition:     0,
		Offset:        5,
		Timestamp:     time.Now().UTC(),
		EventType:     "workout.created",
		AggregateID:   "w-1",
		SchemaSubject: "workout_events-value",
		SchemaID:      42,
		Payload:       payload,
	}

	require.NoError(t, handler.Handle(ctx, msg))
	// redelivery of the same offset
	require.NoError(t, handler.Handle(ctx, msg))

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM workout_event_log`).Scan(&count))
	require.Equal(t, 1, count)

	var (
		aggregateID string
		stored      []byte
	)
	require.NoError(t, pool.QueryRow(ctx, `SELECT aggregate_id, payload FROM workout_event_log LIMIT 1`).Scan(&aggregateID, &stored))
	require.Equal(t, "w-1", aggregateID)
	require.JSONEq(t, string(payload), string(stored))
}

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

	var pool *pgxpool.Pool
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err = pgxpool.New(ctx, connStr)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				break
			}
			pool.Close()
		}
		require.Truef(t, time.Now().Before(deadline), "database not ready: %v", err)
		time.Sleep(time.Second)
	}
	t.Cleanup(pool.Close)

	require.NoError(t, postgres.Migrate(ctx, pool))
	return pool
}
