package models

import "time"

// Log levels stored in api_logs.
const (
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// TokenCounts is the usage block reported by the upstream provider.
type TokenCounts struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// HistoryEntry is one proxied request. Rows are append-only.
type HistoryEntry struct {
	ID           int64       `db:"id"            json:"id"`
	Endpoint     string      `db:"endpoint"      json:"endpoint"`
	Method       string      `db:"method"        json:"method"`
	Model        string      `db:"model"         json:"model"`
	Tokens       TokenCounts `json:"tokens"`
	DurationMs   int         `db:"duration_ms"   json:"duration"`
	StatusCode   int         `db:"status_code"   json:"status"`
	UserMessage  string      `db:"user_message"  json:"user_message"`
	AIResponse   string      `db:"ai_response"   json:"ai_response"`
	ErrorMessage *string     `db:"error_message" json:"error,omitempty"`
	CreatedAt    time.Time   `db:"created_at"    json:"timestamp"`
}

// LogEntry is an operational log row. Rows are append-only.
type LogEntry struct {
	ID         int64     `db:"id"          json:"id"`
	Level      string    `db:"level"       json:"level"`
	Method     string    `db:"method"      json:"method"`
	Endpoint   string    `db:"endpoint"    json:"endpoint"`
	StatusCode int       `db:"status_code" json:"status"`
	Message    string    `db:"message"     json:"message"`
	DurationMs int       `db:"duration_ms" json:"duration_ms"`
	CreatedAt  time.Time `db:"created_at"  json:"timestamp"`
}

// TokenStatsDelta is merged into the (Date, Model) aggregate as one more request.
type TokenStatsDelta struct {
	Date   time.Time
	Model  string
	Counts TokenCounts
}

// UsageRecord groups the ledger writes produced by a single proxied request.
// Nil parts are skipped.
type UsageRecord struct {
	History *HistoryEntry
	Stats   *TokenStatsDelta
	Log     *LogEntry
}

// ModelUsage is the per-model aggregate over a date range.
type ModelUsage struct {
	Model            string `json:"model"`
	TotalRequests    int64  `json:"total_requests"`
	TotalTokens      int64  `json:"total_tokens"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
}

// DailyUsage is the total token count for one calendar day.
type DailyUsage struct {
	Date   string `json:"date"`
	Tokens int64  `json:"tokens"`
}

// UsageStats is the payload of the stats endpoint.
type UsageStats struct {
	Models []*ModelUsage `json:"models"`
	Daily  []*DailyUsage `json:"daily"`
}
