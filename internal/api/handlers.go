// Package api exposes the HTTP handlers of the workout API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/observability"
)

const maxBodyBytes = 10 << 20

// PushSender delivers test notifications and exposes the VAPID public key.
type PushSender interface {
	PublicKey() (string, error)
	Send(ctx context.Context, sub domain.PushSubscription, payload []byte) error
}

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
	push    PushSender
	logger  *log.Logger
	started time.Time
	now     func() time.Time
}

// Option customises a Handler.
type Option func(*Handler)

// WithPushSender enables the push endpoints.
func WithPushSender(sender PushSender) Option {
	return func(h *Handler) {
		h.push = sender
	}
}

// WithLogger overrides the handler logger.
func WithLogger(logger *log.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithClock overrides the time source used by the health endpoint.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, opts ...Option) *Handler {
	h := &Handler{
		service: service,
		logger:  log.New(os.Stdout, "[api] ", log.LstdFlags),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.started = h.now()
	return h
}

// RegisterRoutes wires endpoints under /api.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/workouts", h.listWorkouts)
		r.Post("/workouts", h.createWorkout)
		r.Delete("/workouts/{id}", h.deleteWorkout)
		r.Get("/stats", h.stats)
		r.Get("/user", h.getUser)
		r.Put("/user/settings", h.updateSettings)
		r.Get("/health", h.health)
		r.Get("/notifications/public-key", h.publicKey)
		r.Post("/push/subscribe", h.subscribe)
		r.Post("/push/send", h.sendPush)
	})
}

// Envelope is the response body shared by every API route.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (h *Handler) listWorkouts(w http.ResponseWriter, r *http.Request) {
	workouts, err := h.service.ListWorkouts(r.Context())
	if err != nil {
		h.writeFailure(w, http.StatusInternalServerError, "Error fetching workouts", err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: workouts, Message: "Workouts retrieved"})
}

func (h *Handler) createWorkout(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkoutRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeFailure(w, http.StatusBadRequest, "Error creating workout", err)
		return
	}

	workout, replay, err := h.service.CreateWorkout(r.Context(), domain.CreateWorkoutInput{
		Workout:        req.toWorkout(),
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			h.writeFailure(w, http.StatusBadRequest, "Error creating workout", err)
			return
		}
		h.writeFailure(w, http.StatusInternalServerError, "Error creating workout", err)
		return
	}
	observability.RecordWorkoutCreated(replay)

	message := "Workout created"
	if replay {
		message = "Workout already recorded"
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: workout, Message: message})
}

func (h *Handler) deleteWorkout(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.DeleteWorkout(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrWorkoutNotFound) {
			writeJSON(w, http.StatusNotFound, Envelope{Success: false, Message: "Workout not found"})
			return
		}
		h.writeFailure(w, http.StatusInternalServerError, "Error deleting workout", err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Message: "Workout deleted"})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.writeFailure(w, http.StatusInternalServerError, "Error fetching stats", err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: stats, Message: "Stats retrieved"})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUser(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			writeJSON(w, http.StatusNotFound, Envelope{Success: false, Message: "User not found"})
			return
		}
		h.writeFailure(w, http.StatusInternalServerError, "Error fetching user", err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: user})
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettingsRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeFailure(w, http.StatusBadRequest, "Error updating settings", err)
		return
	}
	if req.Settings == nil {
		h.writeFailure(w, http.StatusBadRequest, "Error updating settings", errors.New("settings is required"))
		return
	}

	user, err := h.service.UpdateSettings(r.Context(), *req.Settings)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			writeJSON(w, http.StatusNotFound, Envelope{Success: false, Message: "User not found"})
			return
		}
		h.writeFailure(w, http.StatusInternalServerError, "Error updating settings", err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: user, Message: "Settings updated"})
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Success   bool    `json:"success"`
	Status    string  `json:"status"`
	Timestamp string  `json:"timestamp"`
	Uptime    float64 `json:"uptime"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	writeJSON(w, http.StatusOK, HealthResponse{
		Success:   true,
		Status:    "OK",
		Timestamp: now.UTC().Format(time.RFC3339Nano),
		Uptime:    now.Sub(h.started).Seconds(),
	})
}

// CreateWorkoutRequest is the payload for POST /api/workouts. Numeric fields
// accept JSON numbers or numeric strings.
type CreateWorkoutRequest struct {
	Name     string           `json:"name"`
	Type     string           `json:"type"`
	Duration flexInt          `json:"duration"`
	Calories flexInt          `json:"calories"`
	Date     *time.Time       `json:"date,omitempty"`
	Location *domain.Location `json:"location"`
	Image    *string          `json:"image"`
}

func (req CreateWorkoutRequest) toWorkout() domain.Workout {
	workout := domain.Workout{
		Name:            strings.TrimSpace(req.Name),
		Type:            domain.WorkoutType(req.Type),
		DurationMinutes: int(req.Duration),
		Calories:        int(req.Calories),
		Location:        req.Location,
		Image:           req.Image,
	}
	if req.Date != nil {
		workout.Date = *req.Date
	}
	return workout
}

// UpdateSettingsRequest is the payload for PUT /api/user/settings.
type UpdateSettingsRequest struct {
	Settings *domain.Settings `json:"settings"`
}

type flexInt int

func (v *flexInt) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*v = 0
		return nil
	}
	raw = strings.Trim(raw, `"`)
	if raw == "" {
		*v = 0
		return nil
	}
	if parsed, err := strconv.Atoi(raw); err == nil {
		*v = flexInt(parsed)
		return nil
	}
	// Whole numbers written as floats ("30.0", 3e1) are accepted.
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != math.Trunc(f) {
		return fmt.Errorf("expected a whole number, got %s", raw)
	}
	if f < float64(math.MinInt) || f >= -float64(math.MinInt) {
		return fmt.Errorf("%s is out of range", raw)
	}
	*v = flexInt(int(f))
	return nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer body.Close()
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return errors.New("unable to parse body: " + err.Error())
	}
	return nil
}

func (h *Handler) writeFailure(w http.ResponseWriter, status int, message string, err error) {
	if status >= http.StatusInternalServerError {
		h.logger.Printf("%s: %v", message, err)
	}
	writeJSON(w, status, Envelope{Success: false, Message: message, Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
