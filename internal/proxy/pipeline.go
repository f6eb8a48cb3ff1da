// Package proxy implements the authenticated completion pipeline: authenticate
// the caller, forward to the provider, meter the call and return the provider's payload.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/apihub/internal/keys"
	"github.com/kiranshivaraju/apihub/internal/upstream"
	"github.com/kiranshivaraju/apihub/pkg/models"
)

// Endpoint and Method are recorded on every ledger row the pipeline writes.
const (
	Endpoint = "/api/v1/completions"
	Method   = "POST"
)

const (
	maxUserMessage = 500
	maxAIResponse  = 1000
	maxLogMessage  = 500

	defaultLedgerTimeout = 3 * time.Second
)

var (
	ErrMissingCredential  = errors.New("api key required")
	ErrInvalidCredential  = errors.New("invalid api key")
	ErrDisabledCredential = errors.New("api key is disabled")
)

// KeyStore is the credential side of the store.
type KeyStore interface {
	keys.Finder
	RecordAPIKeyUsage(ctx context.Context, id string) error
}

// Ledger persists the usage rows of one request atomically.
type Ledger interface {
	RecordUsage(ctx context.Context, rec models.UsageRecord) error
}

// StatsInvalidator is told about every stats merge so cached aggregates for
// that day can be dropped.
type StatsInvalidator interface {
	Invalidate(ctx context.Context, at time.Time)
}

type Options struct {
	DefaultModel  string
	LedgerTimeout time.Duration
	// Stats is optional.
	Stats StatsInvalidator
}

// Pipeline holds no per-request state; one instance serves all requests.
type Pipeline struct {
	keys          KeyStore
	ledger        Ledger
	upstream      upstream.Client
	defaultModel  string
	ledgerTimeout time.Duration
	stats         StatsInvalidator
	now           func() time.Time
}

func NewPipeline(ks KeyStore, ledger Ledger, client upstream.Client, opts Options) *Pipeline {
	if opts.LedgerTimeout <= 0 {
		opts.LedgerTimeout = defaultLedgerTimeout
	}
	return &Pipeline{
		keys:          ks,
		ledger:        ledger,
		upstream:      client,
		defaultModel:  opts.DefaultModel,
		ledgerTimeout: opts.LedgerTimeout,
		stats:         opts.Stats,
		now:           time.Now,
	}
}

// Complete runs one proxied request. On success it returns the provider's JSON
// verbatim. Errors are the package sentinels, ErrInvalidBody/ErrMessagesRequired,
// or whatever the upstream client returned.
func (p *Pipeline) Complete(ctx context.Context, secret string, body []byte) (json.RawMessage, error) {
	req, err := ParseRequest(body, p.defaultModel)
	if err != nil {
		return nil, err
	}

	if err := p.authenticate(ctx, secret); err != nil {
		return nil, err
	}

	// Once forwarded, the call runs to completion or the client timeout even if
	// the caller goes away, so a billed call is always metered.
	start := time.Now()
	completion, err := p.upstream.Complete(context.WithoutCancel(ctx), req)
	duration := time.Since(start)
	if err != nil {
		var statusErr *upstream.StatusError
		if errors.As(err, &statusErr) {
			p.recordRejection(ctx, req, statusErr, duration)
		}
		return nil, err
	}

	p.recordSuccess(ctx, req, completion, duration)
	return completion.Raw, nil
}

func (p *Pipeline) authenticate(ctx context.Context, secret string) error {
	if secret == "" {
		return ErrMissingCredential
	}

	key, err := keys.Lookup(ctx, p.keys, secret)
	if errors.Is(err, keys.ErrUnknownKey) {
		return ErrInvalidCredential
	}
	if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	if !key.IsActive {
		return ErrDisabledCredential
	}

	if err := p.keys.RecordAPIKeyUsage(ctx, key.ID); err != nil {
		return fmt.Errorf("record key usage: %w", err)
	}
	return nil
}

func (p *Pipeline) recordSuccess(ctx context.Context, req models.CompletionRequest, c *models.Completion, d time.Duration) {
	now := p.now().UTC()
	ms := int(d.Milliseconds())

	p.write(ctx, models.UsageRecord{
		History: &models.HistoryEntry{
			Endpoint:    Endpoint,
			Method:      Method,
			Model:       req.Model,
			Tokens:      c.Usage,
			DurationMs:  ms,
			StatusCode:  200,
			UserMessage: truncate(lastMessageText(req.Messages), maxUserMessage),
			AIResponse:  truncate(c.Content, maxAIResponse),
			CreatedAt:   now,
		},
		Stats: &models.TokenStatsDelta{
			Date:   now,
			Model:  req.Model,
			Counts: c.Usage,
		},
		Log: &models.LogEntry{
			Level:      models.LogLevelInfo,
			Method:     Method,
			Endpoint:   Endpoint,
			StatusCode: 200,
			Message:    fmt.Sprintf("Success: %d tokens", c.Usage.Total),
			DurationMs: ms,
			CreatedAt:  now,
		},
	})
}

// recordRejection stores a failed history row and an error log. Token stats
// only count successful calls.
func (p *Pipeline) recordRejection(ctx context.Context, req models.CompletionRequest, e *upstream.StatusError, d time.Duration) {
	now := p.now().UTC()
	ms := int(d.Milliseconds())

	msg := e.Body
	if msg == "" {
		msg = e.Error()
	}
	msg = truncate(msg, maxLogMessage)

	p.write(ctx, models.UsageRecord{
		History: &models.HistoryEntry{
			Endpoint:     Endpoint,
			Method:       Method,
			Model:        req.Model,
			DurationMs:   ms,
			StatusCode:   e.StatusCode,
			UserMessage:  truncate(lastMessageText(req.Messages), maxUserMessage),
			ErrorMessage: &msg,
			CreatedAt:    now,
		},
		Log: &models.LogEntry{
			Level:      models.LogLevelError,
			Method:     Method,
			Endpoint:   Endpoint,
			StatusCode: e.StatusCode,
			Message:    msg,
			DurationMs: ms,
			CreatedAt:  now,
		},
	})
}

// write is best effort: the caller's response never depends on it. It is
// detached from request cancellation and bounded by the ledger timeout.
func (p *Pipeline) write(ctx context.Context, rec models.UsageRecord) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.ledgerTimeout)
	defer cancel()

	if err := p.ledger.RecordUsage(ctx, rec); err != nil {
		attrs := []any{"error", err}
		if rec.History != nil {
			attrs = append(attrs, "model", rec.History.Model, "status", rec.History.StatusCode)
		}
		slog.Error("usage ledger write failed", attrs...)
		return
	}
	if rec.Stats != nil && p.stats != nil {
		p.stats.Invalidate(ctx, rec.Stats.Date)
	}
}
