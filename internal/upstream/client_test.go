package upstream_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kiranshivaraju/apihub/internal/config"
	"github.com/kiranshivaraju/apihub/internal/upstream"
	"github.com/kiranshivaraju/apihub/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const completionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "model": "gpt-4o-mini",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": "Hello there"}, "finish_reason": "stop"}],
  "usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`

func newClient(baseURL string, timeout time.Duration) *upstream.HTTPClient {
	return upstream.NewHTTPClient(config.UpstreamConfig{
		BaseURL: baseURL,
		APIKey:  "provider-secret",
		Timeout: timeout,
	})
}

func sampleRequest() models.CompletionRequest {
	return models.CompletionRequest{
		Model:       "gpt-4o-mini",
		Messages:    []json.RawMessage{json.RawMessage(`{"role":"user","content":"hi"}`)},
		Temperature: 0.7,
		MaxTokens:   1000,
	}
}

func TestComplete_Success(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody))
	}))
	defer srv.Close()

	c, err := newClient(srv.URL+"/v1", 5*time.Second).Complete(context.Background(), sampleRequest())
	require.NoError(t, err)

	assert.Equal(t, "Bearer provider-secret", gotAuth)
	assert.Equal(t, "/v1/chat/completions", gotPath)
	assert.Equal(t, "gpt-4o-mini", gotBody["model"])
	assert.Equal(t, 0.7, gotBody["temperature"])
	assert.Equal(t, float64(1000), gotBody["max_tokens"])
	require.Len(t, gotBody["messages"], 1)

	assert.Equal(t, "gpt-4o-mini", c.Model)
	assert.Equal(t, "Hello there", c.Content)
	assert.Equal(t, "stop", c.FinishReason)
	assert.Equal(t, models.TokenCounts{Prompt: 10, Completion: 5, Total: 15}, c.Usage)
	assert.JSONEq(t, completionBody, string(c.Raw))
}

func TestComplete_MissingUsageDefaultsToZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c, err := newClient(srv.URL, 5*time.Second).Complete(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, models.TokenCounts{}, c.Usage)
	assert.Empty(t, c.Content)
}

func TestComplete_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"quota exceeded"}`))
	}))
	defer srv.Close()

	_, err := newClient(srv.URL, 5*time.Second).Complete(context.Background(), sampleRequest())
	require.Error(t, err)

	var statusErr *upstream.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.Equal(t, `{"error":"quota exceeded"}`, statusErr.Body)
}

func TestComplete_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
		_, _ = w.Write([]byte(completionBody))
	}))
	defer srv.Close()

	_, err := newClient(srv.URL, 50*time.Millisecond).Complete(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, upstream.ErrTimeout)
}

func TestComplete_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newClient(srv.URL, 5*time.Second).Complete(ctx, sampleRequest())
	assert.ErrorIs(t, err, upstream.ErrTimeout)
}

func TestComplete_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newClient(url, time.Second).Complete(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, upstream.ErrTransport)
}

func TestComplete_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>gateway</html>`))
	}))
	defer srv.Close()

	_, err := newClient(srv.URL, time.Second).Complete(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, upstream.ErrInvalidResponse)
}

func TestComplete_ProviderShapeVariants(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantContent string
		wantUsage   models.TokenCounts
	}{
		{
			name:        "content as parts",
			body:        `{"model":"m","choices":[{"message":{"role":"assistant","content":[{"type":"text","text":"Hello "},{"type":"image_url","image_url":{"url":"x"}},{"type":"text","text":"there"}]},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}`,
			wantContent: "Hello there",
			wantUsage:   models.TokenCounts{Prompt: 1, Completion: 2, Total: 3},
		},
		{
			name:        "float token counts",
			body:        `{"model":"m","choices":[{"message":{"content":"hi"}}],"usage":{"prompt_tokens":10.0,"completion_tokens":5.0,"total_tokens":15.0}}`,
			wantContent: "hi",
			wantUsage:   models.TokenCounts{Prompt: 10, Completion: 5, Total: 15},
		},
		{
			name:        "string token counts",
			body:        `{"choices":[{"message":{"content":"hi"}}],"usage":{"prompt_tokens":"7","completion_tokens":"1","total_tokens":"8"}}`,
			wantContent: "hi",
			wantUsage:   models.TokenCounts{Prompt: 7, Completion: 1, Total: 8},
		},
		{
			name:      "null content",
			body:      `{"choices":[{"message":{"content":null}}],"usage":{"prompt_tokens":4,"completion_tokens":0,"total_tokens":4}}`,
			wantUsage: models.TokenCounts{Prompt: 4, Total: 4},
		},
		{
			name: "unexpected shapes",
			body: `{"model":42,"choices":{"bad":true},"usage":"n/a"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, err := newClient(srv.URL, time.Second).Complete(context.Background(), sampleRequest())
			require.NoError(t, err)
			assert.Equal(t, tt.wantContent, c.Content)
			assert.Equal(t, tt.wantUsage, c.Usage)
			assert.Equal(t, tt.body, string(c.Raw))
		})
	}
}

func TestComplete_NotConfigured(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	defer srv.Close()

	c := upstream.NewHTTPClient(config.UpstreamConfig{BaseURL: srv.URL, Timeout: time.Second})
	_, err := c.Complete(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, upstream.ErrNotConfigured)
	assert.False(t, called)
}
