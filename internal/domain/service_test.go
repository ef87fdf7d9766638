package domain_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/persistence/memory"
)

func validWorkout() domain.Workout {
	return domain.Workout{
		Name:            "Intervals",
		Type:            domain.WorkoutTypeCardio,
		DurationMinutes: 30,
		Calories:        320,
	}
}

func TestCreateWorkoutAssignsIDAndDate(t *testing.T) {
	now := time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)
	svc := domain.NewService(memory.NewRepository(), domain.WithClock(func() time.Time { return now }))

	input := validWorkout()
	input.ID = "client-supplied"
	created, replay, err := svc.CreateWorkout(context.Background(), domain.CreateWorkoutInput{Workout: input})
	require.NoError(t, err)
	require.False(t, replay)
	require.NotEmpty(t, created.ID)
	require.NotEqual(t, "client-supplied", created.ID)
	require.Equal(t, now, created.Date)
}

func TestCreateWorkoutKeepsClientDate(t *testing.T) {
	svc := domain.NewService(memory.NewRepository())

	input := validWorkout()
	input.Date = time.Date(2024, 1, 2, 8, 30, 0, 0, time.FixedZone("CET", 3600))
	created, _, err := svc.CreateWorkout(context.Background(), domain.CreateWorkoutInput{Workout: input})
	require.NoError(t, err)
	require.True(t, created.Date.Equal(input.Date))
	require.Equal(t, time.UTC, created.Date.Location())
}

func TestCreateWorkoutIdempotentReplay(t *testing.T) {
	ctx := context.Background()
	svc := domain.NewService(memory.NewRepository())

	first, replay, err := svc.CreateWorkout(ctx, domain.CreateWorkoutInput{Workout: validWorkout(), IdempotencyKey: "k-1"})
	require.NoError(t, err)
	require.False(t, replay)

	second, replay, err := svc.CreateWorkout(ctx, domain.CreateWorkoutInput{Workout: validWorkout(), IdempotencyKey: "k-1"})
	require.NoError(t, err)
	require.True(t, replay)
	require.Equal(t, first.ID, second.ID)

	workouts, err := svc.ListWorkouts(ctx)
	require.NoError(t, err)
	require.Len(t, workouts, 1)
}

func TestCreateWorkoutValidation(t *testing.T) {
	svc := domain.NewService(memory.NewRepository())
	image := "https://example.com/x.png"

	cases := map[string]func(w *domain.Workout){
		"blank name":        func(w *domain.Workout) { w.Name = "  " },
		"unknown type":      func(w *domain.Workout) { w.Type = "yoga" },
		"zero duration":     func(w *domain.Workout) { w.DurationMinutes = 0 },
		"negative calories": func(w *domain.Workout) { w.Calories = -5 },
		"non data image":    func(w *domain.Workout) { w.Image = &image },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			w := validWorkout()
			mutate(&w)
			_, _, err := svc.CreateWorkout(context.Background(), domain.CreateWorkoutInput{Workout: w})
			var verr *domain.ValidationError
			require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)
		})
	}
}

func TestDeleteWorkoutNotFound(t *testing.T) {
	svc := domain.NewService(memory.NewRepository())
	err := svc.DeleteWorkout(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrWorkoutNotFound)
}

func TestStatsThisWeekStartsSunday(t *testing.T) {
	ctx := context.Background()
	// Wednesday
	now := time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)
	svc := domain.NewService(memory.NewRepository(), domain.WithClock(func() time.Time { return now }))

	dates := []time.Time{
		time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC),   // Sunday 00:00, counts
		time.Date(2024, 3, 2, 23, 59, 0, 0, time.UTC), // Saturday, previous week
		time.Date(2024, 3, 5, 18, 0, 0, 0, time.UTC),
	}
	calories := []int{100, 200, 301}
	for i, date := range dates {
		w := validWorkout()
		w.Date = date
		w.Calories = calories[i]
		w.DurationMinutes = 10 * (i + 1)
		_, _, err := svc.CreateWorkout(ctx, domain.CreateWorkoutInput{Workout: w})
		require.NoError(t, err)
	}

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.Stats{
		TotalWorkouts:         3,
		TotalCalories:         601,
		TotalDuration:         60,
		ThisWeek:              2,
		AvgCaloriesPerWorkout: 200,
	}, stats)
}

func TestStatsEmpty(t *testing.T) {
	stats := domain.ComputeStats(nil, time.Now())
	require.Equal(t, domain.Stats{}, stats)
}

func TestUserNotFoundOnEmptyStore(t *testing.T) {
	ctx := context.Background()
	svc := domain.NewService(memory.NewEmptyRepository())

	_, err := svc.GetUser(ctx)
	require.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = svc.UpdateSettings(ctx, domain.DefaultSettings())
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestUpdateSettings(t *testing.T) {
	ctx := context.Background()
	svc := domain.NewService(memory.NewRepository())

	settings := domain.DefaultSettings()
	settings.Units = "imperial"
	user, err := svc.UpdateSettings(ctx, settings)
	require.NoError(t, err)
	require.Equal(t, "imperial", user.Settings.Units)

	reloaded, err := svc.GetUser(ctx)
	require.NoError(t, err)
	require.Equal(t, "imperial", reloaded.Settings.Units)
}

func TestSaveSubscriptionValidates(t *testing.T) {
	svc := domain.NewService(memory.NewRepository())
	err := svc.SaveSubscription(context.Background(), domain.PushSubscription{Endpoint: "https://push.example"})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
}
