package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/persistence/memory"
)

type stubPush struct {
	key     string
	sent    []domain.PushSubscription
	payload [][]byte
	err     error
}

func (s *stubPush) PublicKey() (string, error) { return s.key, nil }

func (s *stubPush) Send(_ context.Context, sub domain.PushSubscription, payload []byte) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sub)
	s.payload = append(s.payload, payload)
	return nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

func newTestRouter(t *testing.T, repo domain.Repository, opts ...Option) http.Handler {
	t.Helper()
	r := chi.NewRouter()
	NewHandler(domain.NewService(repo), opts...).RegisterRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body any, header map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var env envelope
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	}
	return rr, env
}

func TestWorkoutLifecycle(t *testing.T) {
	h := newTestRouter(t, memory.NewRepository())

	rr, env := do(t, h, http.MethodGet, "/api/workouts", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, env.Success)
	require.JSONEq(t, `[]`, string(env.Data))

	rr, env = do(t, h, http.MethodPost, "/api/workouts", map[string]any{
		"name":     "Evening ride",
		"type":     "cardio",
		"duration": "45",
		"calories": 410,
	}, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.True(t, env.Success)

	var created domain.Workout
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.NotEmpty(t, created.ID)
	require.Equal(t, 45, created.DurationMinutes)
	require.False(t, created.Date.IsZero())

	rr, env = do(t, h, http.MethodGet, "/api/workouts", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var listed []domain.Workout
	require.NoError(t, json.Unmarshal(env.Data, &listed))
	require.Len(t, listed, 1)
	require.Nil(t, listed[0].Location)

	rr, env = do(t, h, http.MethodDelete, "/api/workouts/"+created.ID, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, env.Success)

	rr, env = do(t, h, http.MethodDelete, "/api/workouts/"+created.ID, nil, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.False(t, env.Success)
}

func TestCreateWorkoutRejectsInvalidPayload(t *testing.T) {
	h := newTestRouter(t, memory.NewRepository())

	rr, env := do(t, h, http.MethodPost, "/api/workouts", map[string]any{
		"name": "No duration", "type": "cardio", "calories": 100,
	}, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.False(t, env.Success)
	require.Contains(t, env.Error, "duration")

	rr, env = do(t, h, http.MethodPost, "/api/workouts", `{"name":`, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.False(t, env.Success)
}

func TestCreateWorkoutRejectsFractionalAndHugeNumbers(t *testing.T) {
	h := newTestRouter(t, memory.NewRepository())

	for _, body := range []string{
		`{"name":"Row","type":"cardio","duration":"30.9","calories":100}`,
		`{"name":"Row","type":"cardio","duration":30,"calories":1e300}`,
		`{"name":"Row","type":"cardio","duration":"NaN","calories":100}`,
	} {
		rr, env := do(t, h, http.MethodPost, "/api/workouts", body, nil)
		require.Equal(t, http.StatusBadRequest, rr.Code, body)
		require.False(t, env.Success)
	}

	rr, env := do(t, h, http.MethodPost, "/api/workouts", `{"name":"Row","type":"cardio","duration":"30.0","calories":3e2}`, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.True(t, env.Success)
}

func TestCreateWorkoutIdempotencyKeyReplays(t *testing.T) {
	h := newTestRouter(t, memory.NewRepository())
	body := map[string]any{"name": "Deadlifts", "type": "strength", "duration": 40, "calories": 350}
	header := map[string]string{"Idempotency-Key": "queued-123"}

	_, first := do(t, h, http.MethodPost, "/api/workouts", body, header)
	rr, second := do(t, h, http.MethodPost, "/api/workouts", body, header)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "Workout already recorded", second.Message)
	require.JSONEq(t, string(first.Data), string(second.Data))

	_, env := do(t, h, http.MethodGet, "/api/workouts", nil, nil)
	var listed []domain.Workout
	require.NoError(t, json.Unmarshal(env.Data, &listed))
	require.Len(t, listed, 1)
}

func TestStatsEndpoint(t *testing.T) {
	h := newTestRouter(t, memory.NewRepository())
	for _, cal := range []int{100, 201} {
		rr, _ := do(t, h, http.MethodPost, "/api/workouts", map[string]any{
			"name": "Yoga flow", "type": "flexibility", "duration": 20, "calories": cal,
		}, nil)
		require.Equal(t, http.StatusOK, rr.Code)
	}

	rr, env := do(t, h, http.MethodGet, "/api/stats", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var stats domain.Stats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	require.Equal(t, domain.Stats{TotalWorkouts: 2, TotalCalories: 301, TotalDuration: 40, ThisWeek: 2, AvgCaloriesPerWorkout: 151}, stats)
}

func TestUserEndpoints(t *testing.T) {
	h := newTestRouter(t, memory.NewRepository())

	rr, env := do(t, h, http.MethodGet, "/api/user", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var user domain.User
	require.NoError(t, json.Unmarshal(env.Data, &user))
	require.Equal(t, "dark", user.Settings.Theme)

	settings := user.Settings
	settings.Theme = "light"
	rr, env = do(t, h, http.MethodPut, "/api/user/settings", map[string]any{"settings": settings}, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(env.Data, &user))
	require.Equal(t, "light", user.Settings.Theme)

	rr, _ = do(t, h, http.MethodPut, "/api/user/settings", map[string]any{}, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUserNotFound(t *testing.T) {
	h := newTestRouter(t, memory.NewEmptyRepository())

	rr, env := do(t, h, http.MethodGet, "/api/user", nil, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.False(t, env.Success)

	rr, _ = do(t, h, http.MethodPut, "/api/user/settings", map[string]any{"settings": domain.DefaultSettings()}, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHealthReportsUptime(t *testing.T) {
	start := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	now := start
	h := newTestRouter(t, memory.NewRepository(), WithClock(func() time.Time { return now }))
	now = start.Add(90 * time.Second)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, "OK", resp.Status)
	require.InDelta(t, 90, resp.Uptime, 0.001)
}

func TestPushEndpoints(t *testing.T) {
	repo := memory.NewRepository()
	sender := &stubPush{key: "BPubKey"}
	h := newTestRouter(t, repo, WithPushSender(sender))

	req := httptest.NewRequest(http.MethodGet, "/api/notifications/public-key", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"publicKey":"BPubKey"}`, rr.Body.String())

	sub := domain.PushSubscription{Endpoint: "https://push.example/1", Keys: domain.PushKeys{P256dh: "p", Auth: "a"}}
	rr, env := do(t, h, http.MethodPost, "/api/push/subscribe", sub, nil)
	require.Equal(t, http.StatusCreated, rr.Code)
	require.True(t, env.Success)

	subs, err := repo.ListSubscriptions(context.Background())
	require.NoError(t, err)
	require.Len(t, subs, 1)

	rr, _ = do(t, h, http.MethodPost, "/api/push/send", map[string]any{
		"subscription": sub,
		"payload":      map[string]string{"title": "Hi"},
	}, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, sender.sent, 1)
	require.JSONEq(t, `{"title":"Hi"}`, string(sender.payload[0]))

	sender.err = errors.New("push service down")
	rr, _ = do(t, h, http.MethodPost, "/api/push/send", map[string]any{"subscription": sub}, nil)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestPushUnavailableWithoutSender(t *testing.T) {
	h := newTestRouter(t, memory.NewRepository())
	req := httptest.NewRequest(http.MethodGet, "/api/notifications/public-key", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
