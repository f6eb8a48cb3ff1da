// Package models contains shared data models used across the apihub codebase.
package models

import "encoding/json"

// CompletionRequest is a chat-completion call forwarded to the upstream provider.
// Messages are passed through untouched.
type CompletionRequest struct {
	Model       string            `json:"model"`
	Messages    []json.RawMessage `json:"messages"`
	Temperature float64           `json:"temperature"`
	MaxTokens   int               `json:"max_tokens"`
}

// Completion is a successful upstream result.
type Completion struct {
	Raw          json.RawMessage `json:"-"`
	Model        string          `json:"model"`
	Content      string          `json:"content"`
	FinishReason string          `json:"finish_reason"`
	Usage        TokenCounts     `json:"usage"`
}
