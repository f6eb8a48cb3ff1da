package proxy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/kiranshivaraju/apihub/internal/store"
	"github.com/kiranshivaraju/apihub/pkg/models"
)

const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1000
)

var (
	ErrInvalidBody      = errors.New("invalid request body")
	ErrMessagesRequired = errors.New("messages array is required")
)

type completionBody struct {
	Model       string            `json:"model"`
	Messages    []json.RawMessage `json:"messages"`
	Temperature *float64          `json:"temperature"`
	MaxTokens   *int              `json:"max_tokens"`
}

// ParseRequest decodes a chat-completion body and fills in defaults.
// An empty body is treated as {} and therefore fails on messages.
func ParseRequest(body []byte, defaultModel string) (models.CompletionRequest, error) {
	var b completionBody
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &b); err != nil {
			return models.CompletionRequest{}, fmt.Errorf("%w: %v", ErrInvalidBody, err)
		}
	}
	if len(b.Messages) == 0 {
		return models.CompletionRequest{}, ErrMessagesRequired
	}

	req := models.CompletionRequest{
		Model:       b.Model,
		Messages:    b.Messages,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
	if req.Model == "" {
		req.Model = defaultModel
	}
	if b.Temperature != nil {
		req.Temperature = *b.Temperature
	}
	if b.MaxTokens != nil {
		req.MaxTokens = *b.MaxTokens
	}
	return req, nil
}

// lastMessageText returns the content of the final message. String content is
// returned as is; any other content shape is returned as its JSON text.
func lastMessageText(messages []json.RawMessage) string {
	if len(messages) == 0 {
		return ""
	}
	var m struct {
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(messages[len(messages)-1], &m); err != nil || len(m.Content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Content, &s); err == nil {
		return s
	}
	if string(m.Content) == "null" {
		return ""
	}
	return string(m.Content)
}

// truncate cleans s for storage and cuts it to at most n characters.
func truncate(s string, n int) string {
	s = store.CleanText(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
