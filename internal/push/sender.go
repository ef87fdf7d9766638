package push

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/observability"
)

// ErrSubscriptionGone means the push service no longer knows the subscription.
var ErrSubscriptionGone = errors.New("push subscription expired or unsubscribed")

// DeliveryError reports a push service rejection.
type DeliveryError struct {
	Status int
	Body   string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("push service responded %d: %s", e.Status, e.Body)
}

// Notification is the JSON document handed to the service worker.
type Notification struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Icon  string         `json:"icon,omitempty"`
	Tag   string         `json:"tag,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// Sender encrypts and posts payloads to push service endpoints.
type Sender struct {
	keys    *VAPIDKeys
	subject string
	client  *http.Client
	ttl     time.Duration
	random  io.Reader
	now     func() time.Time
}

// SenderOption customises a Sender.
type SenderOption func(*Sender)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) SenderOption {
	return func(s *Sender) {
		if client != nil {
			s.client = client
		}
	}
}

// WithTTL sets how long the push service may hold an undelivered message.
func WithTTL(ttl time.Duration) SenderOption {
	return func(s *Sender) {
		if ttl >= 0 {
			s.ttl = ttl
		}
	}
}

// NewSender constructs a Sender. subject is the VAPID contact (mailto: or https: URL).
func NewSender(keys *VAPIDKeys, subject string, opts ...SenderOption) *Sender {
	s := &Sender{
		keys:    keys,
		subject: subject,
		client:  &http.Client{Timeout: 10 * time.Second},
		ttl:     24 * time.Hour,
		random:  rand.Reader,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PublicKey exposes the application server key for subscription.
func (s *Sender) PublicKey() (string, error) {
	return s.keys.PublicKey()
}

// Send delivers payload to a single subscription.
func (s *Sender) Send(ctx context.Context, sub domain.PushSubscription, payload []byte) error {
	if err := sub.Validate(); err != nil {
		return err
	}

	body, err := encrypt(payload, sub.Keys.P256dh, sub.Keys.Auth, s.random)
	if err != nil {
		return fmt.Errorf("encrypt payload: %w", err)
	}
	authorization, err := s.keys.authorization(sub.Endpoint, s.subject, s.now())
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", authorization)
	req.Header.Set("Content-Encoding", "aes128gcm")
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("TTL", strconv.Itoa(int(s.ttl.Seconds())))
	req.Header.Set("Urgency", "normal")

	resp, err := s.client.Do(req)
	if err != nil {
		observability.RecordPushDelivery("failed")
		return fmt.Errorf("post to push service: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		observability.RecordPushDelivery("sent")
		return nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		observability.RecordPushDelivery("gone")
		return ErrSubscriptionGone
	default:
		observability.RecordPushDelivery("failed")
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &DeliveryError{Status: resp.StatusCode, Body: string(detail)}
	}
}

// SendNotification marshals n and sends it.
func (s *Sender) SendNotification(ctx context.Context, sub domain.PushSubscription, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return s.Send(ctx, sub, payload)
}

// SubscriptionStore is the subset of the domain service the broadcaster needs.
type SubscriptionStore interface {
	ListSubscriptions(ctx context.Context) ([]domain.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
}

// Broadcaster fans a notification out to every stored subscription.
type Broadcaster struct {
	sender *Sender
	store  SubscriptionStore
	logger *log.Logger
}

// NewBroadcaster constructs a Broadcaster. A nil logger writes to stderr.
func NewBroadcaster(sender *Sender, store SubscriptionStore, logger *log.Logger) *Broadcaster {
	if logger == nil {
		logger = log.New(os.Stderr, "[push] ", log.LstdFlags)
	}
	return &Broadcaster{sender: sender, store: store, logger: logger}
}

// Broadcast sends n to every subscription, pruning the ones the push service
// reports gone. It returns how many deliveries succeeded.
func (b *Broadcaster) Broadcast(ctx context.Context, n Notification) (int, error) {
	subs, err := b.store.ListSubscriptions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list subscriptions: %w", err)
	}

	sent := 0
	var errs []error
	for _, sub := range subs {
		err := b.sender.SendNotification(ctx, sub, n)
		switch {
		case err == nil:
			sent++
		case errors.Is(err, ErrSubscriptionGone):
			b.logger.Printf("removing expired subscription %s", sub.Endpoint)
			if delErr := b.store.DeleteSubscription(ctx, sub.Endpoint); delErr != nil {
				errs = append(errs, delErr)
			}
		default:
			b.logger.Printf("push to %s failed: %v", sub.Endpoint, err)
			errs = append(errs, err)
		}
	}
	return sent, errors.Join(errs...)
}
