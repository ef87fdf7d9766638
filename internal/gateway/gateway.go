// Package gateway routes client requests to the server API, caching reads and
// answering from the cache or an offline sentinel when the network is down.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"example.com/fittrack/internal/storage"
)

// Source says where a response came from.
type Source string

const (
	SourceNetwork Source = "network"
	SourceCache   Source = "cache"
	SourceOffline Source = "offline"
)

// OfflineBody is returned when the network is down and nothing is cached.
var OfflineBody = json.RawMessage(`{"success":false,"offline":true,"data":[]}`)

// DefaultCacheTTL is how long successful reads stay servable offline.
const DefaultCacheTTL = 5 * time.Minute

// Request is a single call against the server API.
type Request struct {
	Method   string
	Endpoint string // relative to the API base, e.g. "/workouts"
	Body     any
	Header   http.Header
	// NoCache skips the response cache in both directions.
	NoCache bool
}

// Response carries the parsed JSON body and its provenance.
type Response struct {
	Status int
	Body   json.RawMessage
	Source Source
}

// Offline reports whether the response is the offline sentinel.
func (r *Response) Offline() bool {
	return r.Source == SourceOffline
}

// Decode unmarshals the body into dst.
func (r *Response) Decode(dst any) error {
	return json.Unmarshal(r.Body, dst)
}

// InvalidationRule drops cached reads after a successful write to an endpoint
// equal to Prefix or below it.
type InvalidationRule struct {
	Prefix    string
	Endpoints []string
}

// DefaultInvalidationRules maps resource families to the reads they affect.
func DefaultInvalidationRules() []InvalidationRule {
	return []InvalidationRule{
		{Prefix: "/workouts", Endpoints: []string{"/workouts", "/stats"}},
		{Prefix: "/user", Endpoints: []string{"/user"}},
	}
}

// Gateway is the single path between the client and the server API.
type Gateway struct {
	baseURL string
	client  *http.Client
	store   *storage.Store
	ttl     time.Duration
	rules   []InvalidationRule
	logger  *log.Logger
}

// Option customises a Gateway.
type Option func(*Gateway)

// WithHTTPClient overrides the HTTP client. The gateway adds no timeout of its own.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Gateway) {
		if client != nil {
			g.client = client
		}
	}
}

// WithCacheTTL overrides DefaultCacheTTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(g *Gateway) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithInvalidationRules replaces DefaultInvalidationRules.
func WithInvalidationRules(rules []InvalidationRule) Option {
	return func(g *Gateway) {
		g.rules = rules
	}
}

// WithLogger overrides the gateway logger.
func WithLogger(logger *log.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// New constructs a Gateway for the API rooted at baseURL (e.g. "http://host/api").
func New(baseURL string, store *storage.Store, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		store:   store,
		ttl:     DefaultCacheTTL,
		rules:   DefaultInvalidationRules(),
		logger:  log.New(os.Stderr, "[gateway] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Call performs req. Transport failures never surface: the caller gets the
// cached response for the endpoint or the offline sentinel. A non-2xx answer
// is a *RemoteError. Cancellation of ctx is returned as ctx.Err().
func (g *Gateway) Call(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	method := req.Method

	httpReq, err := g.newRequest(ctx, method, req)
	if err != nil {
		return nil, err
	}

	status, body, netErr := g.roundTrip(httpReq)
	if netErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return g.fallback(ctx, req, netErr), nil
	}

	if status < 200 || status >= 300 {
		recordRequest(SourceNetwork, "rejected")
		return nil, remoteError(status, body)
	}

	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("null")
	}
	if !json.Valid(body) {
		recordRequest(SourceNetwork, "rejected")
		return nil, &RemoteError{Status: status, Message: "invalid JSON response"}
	}
	recordRequest(SourceNetwork, "ok")

	switch {
	case req.NoCache:
	case method == http.MethodGet:
		g.store.Set(ctx, cacheKey(req.Endpoint), json.RawMessage(body), g.ttl)
	default:
		g.invalidateFor(ctx, req.Endpoint)
	}

	return &Response{Status: status, Body: body, Source: SourceNetwork}, nil
}

// Invalidate drops cached reads for endpoints, including reads of the same
// endpoint with a query string.
func (g *Gateway) Invalidate(ctx context.Context, endpoints ...string) {
	for _, endpoint := range endpoints {
		key := cacheKey(endpointPath(endpoint))
		g.store.Remove(ctx, key)
		g.store.ClearByPrefix(ctx, key+"?")
	}
}

// ClearCache drops every cached read and returns how many were removed.
func (g *Gateway) ClearCache(ctx context.Context) int {
	return g.store.ClearByPrefix(ctx, storage.CachePrefix)
}

func (g *Gateway) newRequest(ctx context.Context, method string, req Request) (*http.Request, error) {
	var body io.Reader
	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, g.baseURL+req.Endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	return httpReq, nil
}

// roundTrip returns a non-nil error only for transport-level failures,
// including a connection that drops while the body is read.
func (g *Gateway) roundTrip(req *http.Request) (int, []byte, error) {
	resp, err := g.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func (g *Gateway) fallback(ctx context.Context, req Request, cause error) *Response {
	endpoint := req.Endpoint
	var cached json.RawMessage
	// Writes are never answered from the cache.
	if !req.NoCache && req.Method == http.MethodGet && g.store.Get(ctx, cacheKey(endpoint), &cached) {
		g.logger.Printf("using cached %s: %v", endpoint, cause)
		recordRequest(SourceCache, "ok")
		return &Response{Status: http.StatusOK, Body: cached, Source: SourceCache}
	}
	g.logger.Printf("%s unreachable and not cached: %v", endpoint, cause)
	recordRequest(SourceOffline, "ok")
	return &Response{
		Status: http.StatusServiceUnavailable,
		Body:   append(json.RawMessage(nil), OfflineBody...),
		Source: SourceOffline,
	}
}

func (g *Gateway) invalidateFor(ctx context.Context, endpoint string) {
	path := endpointPath(endpoint)
	for _, rule := range g.rules {
		if path == rule.Prefix || strings.HasPrefix(path, rule.Prefix+"/") {
			g.Invalidate(ctx, rule.Endpoints...)
		}
	}
}

func remoteError(status int, body []byte) error {
	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	rerr := &RemoteError{Status: status}
	if err := json.Unmarshal(body, &envelope); err == nil {
		rerr.Message = envelope.Message
		rerr.Detail = envelope.Error
	}
	if rerr.Message == "" && rerr.Detail != "" {
		rerr.Message, rerr.Detail = rerr.Detail, ""
	}
	if rerr.Message == "" {
		rerr.Message = fmt.Sprintf("HTTP error! status: %d", status)
	}
	return rerr
}

func cacheKey(endpoint string) string {
	return storage.CachePrefix + endpoint
}

func endpointPath(endpoint string) string {
	if i := strings.IndexAny(endpoint, "?#"); i >= 0 {
		return endpoint[:i]
	}
	return endpoint
}

// IsOffline reports whether err means the server could not be reached.
func IsOffline(err error) bool {
	return errors.Is(err, ErrNetworkUnavailable)
}
