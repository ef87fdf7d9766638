package apiclient

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"example.com/fittrack/internal/api"
	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/gateway"
	"example.com/fittrack/internal/persistence/memory"
	"example.com/fittrack/internal/storage"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	api.NewHandler(domain.NewService(memory.NewRepository())).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newClient(baseURL string) *Client {
	quiet := log.New(io.Discard, "", 0)
	store := storage.New(nil, storage.WithLogger(quiet))
	return New(gateway.New(baseURL+"/api", store, gateway.WithLogger(quiet)))
}

func offlineURL() string {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	return srv.URL
}

func TestCreateListDelete(t *testing.T) {
	ctx := context.Background()
	c := newClient(newServer(t).URL)

	date := time.Date(2024, 3, 4, 7, 30, 0, 0, time.UTC)
	res, err := c.CreateWorkout(ctx, domain.Workout{
		ID:              "client-side",
		Name:            "Tempo run",
		Type:            domain.WorkoutTypeCardio,
		DurationMinutes: 35,
		Calories:        380,
		Date:            date,
	}, "key-1")
	require.NoError(t, err)
	require.False(t, res.Replayed)
	require.NotEqual(t, "client-side", res.Workout.ID)
	require.True(t, date.Equal(res.Workout.Date))

	again, err := c.CreateWorkout(ctx, domain.Workout{Name: "Tempo run", Type: domain.WorkoutTypeCardio, DurationMinutes: 35, Calories: 380}, "key-1")
	require.NoError(t, err)
	require.True(t, again.Replayed)
	require.Equal(t, res.Workout.ID, again.Workout.ID)

	workouts, source, err := c.Workouts(ctx)
	require.NoError(t, err)
	require.Equal(t, gateway.SourceNetwork, source)
	require.Len(t, workouts, 1)

	stats, _, err := c.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalWorkouts)

	require.NoError(t, c.DeleteWorkout(ctx, res.Workout.ID))
	err = c.DeleteWorkout(ctx, res.Workout.ID)
	var remote *gateway.RemoteError
	require.ErrorAs(t, err, &remote)
	require.Equal(t, http.StatusNotFound, remote.Status)
}

func TestValidationFailureIsRemoteRejected(t *testing.T) {
	c := newClient(newServer(t).URL)
	_, err := c.CreateWorkout(context.Background(), domain.Workout{Name: "", Type: domain.WorkoutTypeCardio, DurationMinutes: 10, Calories: 10}, "")
	require.ErrorIs(t, err, gateway.ErrRemoteRejected)
	require.False(t, errors.Is(err, gateway.ErrNetworkUnavailable))
}

func TestSettingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newClient(newServer(t).URL)

	user, _, err := c.User(ctx)
	require.NoError(t, err)
	settings := user.Settings
	settings.Units = "imperial"

	updated, err := c.UpdateSettings(ctx, settings)
	require.NoError(t, err)
	require.Equal(t, "imperial", updated.Settings.Units)

	user, source, err := c.User(ctx)
	require.NoError(t, err)
	require.Equal(t, gateway.SourceNetwork, source)
	require.Equal(t, "imperial", user.Settings.Units)
}

func TestOfflineWritesReportNetworkUnavailable(t *testing.T) {
	ctx := context.Background()
	c := newClient(offlineURL())

	_, err := c.CreateWorkout(ctx, domain.Workout{Name: "Row", Type: domain.WorkoutTypeCardio, DurationMinutes: 10, Calories: 90}, "k")
	require.ErrorIs(t, err, gateway.ErrNetworkUnavailable)

	require.ErrorIs(t, c.DeleteWorkout(ctx, "w1"), gateway.ErrNetworkUnavailable)

	_, err = c.Health(ctx)
	require.ErrorIs(t, err, gateway.ErrNetworkUnavailable)
}

func TestOfflineReadsReturnEmptyData(t *testing.T) {
	c := newClient(offlineURL())

	workouts, source, err := c.Workouts(context.Background())
	require.NoError(t, err)
	require.Equal(t, gateway.SourceOffline, source)
	require.Empty(t, workouts)
	require.NotNil(t, workouts)

	stats, source, err := c.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, gateway.SourceOffline, source)
	require.Zero(t, stats.TotalWorkouts)
}

func TestHealth(t *testing.T) {
	c := newClient(newServer(t).URL)
	health, err := c.Health(context.Background())
	require.NoError(t, err)
	require.Equal(t, "OK", health.Status)
	require.False(t, health.Timestamp.IsZero())
}
