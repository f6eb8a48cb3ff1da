package models

import "time"

// APIKey is a caller credential for the completions proxy.
// The secret is shown once at creation; only its prefix and bcrypt hash are stored.
type APIKey struct {
	ID           string     `db:"id"            json:"id"`
	Name         string     `db:"name"          json:"name"`
	KeyPrefix    string     `db:"key_prefix"    json:"key_prefix"`
	KeyHash      string     `db:"key_hash"      json:"-"`
	CreatedAt    time.Time  `db:"created_at"    json:"created_at"`
	LastUsedAt   *time.Time `db:"last_used_at"  json:"last_used_at"`
	RequestCount int64      `db:"request_count" json:"requests"`
	IsActive     bool       `db:"is_active"     json:"active"`
}
