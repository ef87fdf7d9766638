// Package apiclient exposes typed calls for the workout API on top of the
// offline gateway.
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/gateway"
)

// IdempotencyHeader carries the client key that makes workout creation safe
// to retry.
const IdempotencyHeader = "Idempotency-Key"

// replayedMessage is what the server answers when a key was already recorded.
const replayedMessage = "Workout already recorded"

// Caller is satisfied by *gateway.Gateway.
type Caller interface {
	Call(ctx context.Context, req gateway.Request) (*gateway.Response, error)
}

// Client issues typed requests through a Caller.
type Client struct {
	gw Caller
}

// New constructs a Client.
func New(gw Caller) *Client {
	return &Client{gw: gw}
}

// Health is the server liveness report.
type Health struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    float64   `json:"uptime"`
}

// CreateResult is the outcome of CreateWorkout.
type CreateResult struct {
	Workout domain.Workout
	// Replayed is set when the server had already recorded the idempotency key.
	Replayed bool
}

type envelope struct {
	Success bool            `json:"success"`
	Offline bool            `json:"offline"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

// Workouts lists the server's workouts. When offline and nothing is cached the
// list is empty and the source is gateway.SourceOffline.
func (c *Client) Workouts(ctx context.Context) ([]domain.Workout, gateway.Source, error) {
	var workouts []domain.Workout
	source, err := c.read(ctx, "/workouts", &workouts)
	if err != nil {
		return nil, source, err
	}
	if workouts == nil {
		workouts = []domain.Workout{}
	}
	return workouts, source, nil
}

// Stats fetches the aggregate statistics.
func (c *Client) Stats(ctx context.Context) (domain.Stats, gateway.Source, error) {
	var stats domain.Stats
	source, err := c.read(ctx, "/stats", &stats)
	return stats, source, err
}

// User fetches the single user profile.
func (c *Client) User(ctx context.Context) (domain.User, gateway.Source, error) {
	var user domain.User
	source, err := c.read(ctx, "/user", &user)
	return user, source, err
}

// CreateWorkout submits w. The idempotency key, when set, lets the server
// recognise a retry of an earlier submission. gateway.ErrNetworkUnavailable is
// returned when the server cannot be reached.
func (c *Client) CreateWorkout(ctx context.Context, w domain.Workout, idempotencyKey string) (CreateResult, error) {
	header := http.Header{}
	if idempotencyKey != "" {
		header.Set(IdempotencyHeader, idempotencyKey)
	}

	w.ID = ""
	var created domain.Workout
	env, err := c.write(ctx, gateway.Request{
		Method:   http.MethodPost,
		Endpoint: "/workouts",
		Body:     w,
		Header:   header,
	}, &created)
	if err != nil {
		return CreateResult{}, fmt.Errorf("create workout: %w", err)
	}
	return CreateResult{Workout: created, Replayed: env.Message == replayedMessage}, nil
}

// DeleteWorkout removes the workout with id.
func (c *Client) DeleteWorkout(ctx context.Context, id string) error {
	_, err := c.write(ctx, gateway.Request{
		Method:   http.MethodDelete,
		Endpoint: "/workouts/" + url.PathEscape(id),
	}, nil)
	if err != nil {
		return fmt.Errorf("delete workout %s: %w", id, err)
	}
	return nil
}

// UpdateSettings replaces the user's settings and returns the updated user.
func (c *Client) UpdateSettings(ctx context.Context, settings domain.Settings) (domain.User, error) {
	var user domain.User
	_, err := c.write(ctx, gateway.Request{
		Method:   http.MethodPut,
		Endpoint: "/user/settings",
		Body:     map[string]domain.Settings{"settings": settings},
	}, &user)
	if err != nil {
		return domain.User{}, fmt.Errorf("update settings: %w", err)
	}
	return user, nil
}

// Health probes the server without touching the response cache. A server
// that cannot be reached yields gateway.ErrNetworkUnavailable.
func (c *Client) Health(ctx context.Context) (Health, error) {
	resp, err := c.gw.Call(ctx, gateway.Request{Endpoint: "/health", NoCache: true})
	if err != nil {
		return Health{}, err
	}
	if resp.Offline() {
		return Health{}, gateway.ErrNetworkUnavailable
	}
	var health Health
	if err := resp.Decode(&health); err != nil {
		return Health{}, fmt.Errorf("decode health: %w", err)
	}
	return health, nil
}

func (c *Client) read(ctx context.Context, endpoint string, dst any) (gateway.Source, error) {
	resp, err := c.gw.Call(ctx, gateway.Request{Method: http.MethodGet, Endpoint: endpoint})
	if err != nil {
		return "", err
	}
	if resp.Offline() {
		return resp.Source, nil
	}
	if _, err := decodeEnvelope(resp, dst); err != nil {
		return resp.Source, fmt.Errorf("read %s: %w", endpoint, err)
	}
	return resp.Source, nil
}

func (c *Client) write(ctx context.Context, req gateway.Request, dst any) (envelope, error) {
	resp, err := c.gw.Call(ctx, req)
	if err != nil {
		return envelope{}, err
	}
	if resp.Source != gateway.SourceNetwork {
		return envelope{}, gateway.ErrNetworkUnavailable
	}
	return decodeEnvelope(resp, dst)
}

func decodeEnvelope(resp *gateway.Response, dst any) (envelope, error) {
	var env envelope
	if err := resp.Decode(&env); err != nil {
		return envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = "request was not successful"
		}
		return env, &gateway.RemoteError{Status: resp.Status, Message: msg, Detail: env.Error}
	}
	if dst != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, dst); err != nil {
			return env, fmt.Errorf("decode data: %w", err)
		}
	}
	return env, nil
}
