package models

import (
	"math"
	"time"
)

// DefaultWebhookEvent is subscribed when a webhook is created without events.
const DefaultWebhookEvent = "chat.message"

// Webhook is an outbound subscription. Deliveries are only sent on demand (test ping).
type Webhook struct {
	ID             string     `db:"id"               json:"id"`
	URL            string     `db:"url"              json:"url"`
	Events         []string   `db:"events"           json:"events"`
	IsEnabled      bool       `db:"is_enabled"       json:"enabled"`
	CreatedAt      time.Time  `db:"created_at"       json:"created_at"`
	LastDeliveryAt *time.Time `db:"last_delivery_at" json:"last_delivery_at"`
	SuccessCount   int64      `db:"success_count"    json:"success_count"`
	FailureCount   int64      `db:"failure_count"    json:"failure_count"`
}

// SuccessRate returns the delivery success percentage rounded to one decimal.
// A webhook with no deliveries reports 100.
func (w *Webhook) SuccessRate() float64 {
	total := w.SuccessCount + w.FailureCount
	if total == 0 {
		return 100
	}
	rate := float64(w.SuccessCount) / float64(total) * 100
	return math.Round(rate*10) / 10
}
