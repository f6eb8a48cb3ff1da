package mock

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/kiranshivaraju/apihub/internal/upstream"
	"github.com/kiranshivaraju/apihub/pkg/models"
)

// Client satisfies upstream.Client for testing and records every request it receives.
type Client struct {
	CompleteFunc func(ctx context.Context, req models.CompletionRequest) (*models.Completion, error)

	mu       sync.Mutex
	requests []models.CompletionRequest
}

func (c *Client) Complete(ctx context.Context, req models.CompletionRequest) (*models.Completion, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	if c.CompleteFunc != nil {
		return c.CompleteFunc(ctx, req)
	}
	return &models.Completion{}, nil
}

// Calls returns how many times Complete was invoked.
func (c *Client) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// Requests returns a copy of the received requests in call order.
func (c *Client) Requests() []models.CompletionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.CompletionRequest(nil), c.requests...)
}

// NewMockClient returns a Client that answers every request with content and usage.
func NewMockClient(content string, usage models.TokenCounts) *Client {
	return &Client{
		CompleteFunc: func(_ context.Context, req models.CompletionRequest) (*models.Completion, error) {
			raw, err := json.Marshal(map[string]any{
				"id":     "chatcmpl-mock",
				"object": "chat.completion",
				"model":  req.Model,
				"choices": []map[string]any{{
					"index":         0,
					"message":       map[string]string{"role": "assistant", "content": content},
					"finish_reason": "stop",
				}},
				"usage": map[string]int{
					"prompt_tokens":     usage.Prompt,
					"completion_tokens": usage.Completion,
					"total_tokens":      usage.Total,
				},
			})
			if err != nil {
				return nil, err
			}
			return &models.Completion{
				Raw:          raw,
				Model:        req.Model,
				Content:      content,
				FinishReason: "stop",
				Usage:        usage,
			}, nil
		},
	}
}

// NewFailingClient returns a Client that always returns err.
func NewFailingClient(err error) *Client {
	return &Client{
		CompleteFunc: func(_ context.Context, _ models.CompletionRequest) (*models.Completion, error) {
			return nil, err
		},
	}
}

// NewTimeoutClient returns a Client that reports a provider timeout.
// It does not block, so tests need no real deadline.
func NewTimeoutClient() *Client {
	return NewFailingClient(upstream.ErrTimeout)
}

// Compile-time check that Client implements upstream.Client.
var _ upstream.Client = (*Client)(nil)
