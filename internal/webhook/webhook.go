// Package webhook manages webhook subscriptions and sends on-demand test deliveries.
package webhook

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/kiranshivaraju/apihub/internal/httpclient"
	"github.com/kiranshivaraju/apihub/pkg/models"
)

const (
	TestEvent   = "test.ping"
	TestMessage = "Test webhook from API Hub"

	idPrefix = "wh_"
)

var (
	ErrInvalidURL  = errors.New("webhook url must be an absolute http or https url")
	ErrTimeout     = errors.New("webhook delivery timed out")
	ErrUnreachable = errors.New("webhook target unreachable")
)

// Store is the persistence the service needs.
type Store interface {
	CreateWebhook(ctx context.Context, wh *models.Webhook) error
	GetWebhook(ctx context.Context, id string) (*models.Webhook, error)
	RecordWebhookDelivery(ctx context.Context, id string, success bool, at time.Time) error
}

// Payload is the JSON body posted to a subscriber.
type Payload struct {
	Event     string         `json:"event"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// TestResult describes one test delivery. Status is zero when no response arrived.
type TestResult struct {
	Success bool   `json:"success"`
	Status  int    `json:"status,omitempty"`
	Message string `json:"message"`
}

type Service struct {
	store  Store
	client *http.Client
	now    func() time.Time
}

// NewService creates a Service whose deliveries are bounded by timeout.
func NewService(s Store, timeout time.Duration) *Service {
	return &Service{
		store:  s,
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

// Create validates and stores a new enabled subscription. Events default to chat.message.
func (s *Service) Create(ctx context.Context, rawURL string, events []string) (*models.Webhook, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		events = []string{models.DefaultWebhookEvent}
	}

	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generate webhook id: %w", err)
	}

	wh := &models.Webhook{
		ID:        idPrefix + hex.EncodeToString(b),
		URL:       rawURL,
		Events:    events,
		IsEnabled: true,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateWebhook(ctx, wh); err != nil {
		return nil, err
	}
	return wh, nil
}

// Test posts a test.ping to the webhook and records the outcome. A response
// below 400 counts as a success. Delivery failures are reported in the result,
// not as an error; only lookup and bookkeeping failures return an error.
func (s *Service) Test(ctx context.Context, id string) (*TestResult, error) {
	wh, err := s.store.GetWebhook(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	status, deliverErr := s.deliver(ctx, wh.URL, Payload{
		Event:     TestEvent,
		Timestamp: now.Format(time.RFC3339),
		Data:      map[string]any{"message": TestMessage},
	})

	result := &TestResult{Status: status, Message: "Test completed"}
	if deliverErr != nil {
		result.Message = deliverErr.Error()
		slog.Warn("webhook test delivery failed", "webhook_id", id, "error", deliverErr)
	} else {
		result.Success = status < http.StatusBadRequest
	}

	if err := s.store.RecordWebhookDelivery(context.WithoutCancel(ctx), id, result.Success, now); err != nil {
		return nil, fmt.Errorf("record delivery: %w", err)
	}
	return result, nil
}

func (s *Service) deliver(ctx context.Context, target string, p Payload) (int, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return 0, fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "apihub-webhooks/1.0")
	req.Header.Set("X-Webhook-Event", p.Event)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, httpclient.ClassifyError(err, ErrTimeout, ErrUnreachable)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return resp.StatusCode, nil
}


// ValidateURL accepts absolute http and https URLs with a host.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidURL
	}
	return nil
}
