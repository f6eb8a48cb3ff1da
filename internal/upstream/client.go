// Package upstream talks to the OpenAI-compatible chat-completion provider.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/apihub/internal/config"
	"github.com/kiranshivaraju/apihub/internal/httpclient"
	"github.com/kiranshivaraju/apihub/pkg/models"
)

const maxResponseBytes = 10 << 20

// Client is the interface the proxy and playground depend on.
type Client interface {
	Complete(ctx context.Context, req models.CompletionRequest) (*models.Completion, error)
}

// HTTPClient implements Client against {BaseURL}/chat/completions.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient creates a client whose every call is bounded by cfg.Timeout.
func NewHTTPClient(cfg config.UpstreamConfig) *HTTPClient {
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *HTTPClient) Complete(ctx context.Context, req models.CompletionRequest) (*models.Completion, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, httpclient.ClassifyError(err, ErrTimeout, ErrTransport)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, httpclient.ClassifyError(err, ErrTimeout, ErrTransport)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return parseCompletion(body)
}


// parseCompletion extracts what the ledger needs from a 2xx body. Only a body
// that is not a JSON object fails; unexpected field shapes read as zero so the
// payload still goes back to the caller verbatim.
func parseCompletion(body []byte) (*models.Completion, error) {
	var wire chatCompletionResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	var usage chatUsage
	_ = json.Unmarshal(wire.Usage, &usage)

	c := &models.Completion{
		Raw:   json.RawMessage(body),
		Model: stringField(wire.Model),
		Usage: models.TokenCounts{
			Prompt:     usage.PromptTokens.toInt(),
			Completion: usage.CompletionTokens.toInt(),
			Total:      usage.TotalTokens.toInt(),
		},
	}

	var choices []chatChoice
	if json.Unmarshal(wire.Choices, &choices) == nil && len(choices) > 0 {
		c.Content = messageText(choices[0].Message.Content)
		c.FinishReason = stringField(choices[0].FinishReason)
	}
	return c, nil
}

// messageText accepts content as a plain string or as an array of parts, in
// which case the text parts are joined. Anything else is empty.
func messageText(raw json.RawMessage) string {
	if s := stringField(raw); s != "" {
		return s
	}
	var parts []struct {
		Type string          `json:"type"`
		Text json.RawMessage `json:"text"`
	}
	if json.Unmarshal(raw, &parts) != nil {
		return ""
	}
	var b strings.Builder
	for _, p := range parts {
		if p.Type == "" || p.Type == "text" {
			b.WriteString(stringField(p.Text))
		}
	}
	return b.String()
}

func stringField(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// --- provider response types ---

type chatCompletionResponse struct {
	Model   json.RawMessage `json:"model"`
	Choices json.RawMessage `json:"choices"`
	Usage   json.RawMessage `json:"usage"`
}

type chatChoice struct {
	Message      chatMessage     `json:"message"`
	FinishReason json.RawMessage `json:"finish_reason"`
}

type chatMessage struct {
	Content json.RawMessage `json:"content"`
}

type chatUsage struct {
	PromptTokens     tokenCount `json:"prompt_tokens"`
	CompletionTokens tokenCount `json:"completion_tokens"`
	TotalTokens      tokenCount `json:"total_tokens"`
}

// tokenCount decodes integers, floats and numeric strings. Other values are 0.
type tokenCount float64

func (t *tokenCount) UnmarshalJSON(b []byte) error {
	var n json.Number
	if json.Unmarshal(b, &n) != nil {
		*t = 0
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		f = 0
	}
	*t = tokenCount(f)
	return nil
}

func (t tokenCount) toInt() int {
	if t < 0 {
		return 0
	}
	return int(t)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
