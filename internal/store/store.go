package store

import (
	"context"
	"errors"
	"time"

	"github.com/kiranshivaraju/apihub/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	RecordAPIKeyUsage(ctx context.Context, id string) error
	RevokeAPIKey(ctx context.Context, id string) error

	RecordUsage(ctx context.Context, rec models.UsageRecord) error

	ListHistory(ctx context.Context, limit int) ([]*models.HistoryEntry, error)
	ModelUsageSince(ctx context.Context, since time.Time) ([]*models.ModelUsage, error)
	DailyUsageSince(ctx context.Context, since time.Time) ([]*models.DailyUsage, error)
	ListLogs(ctx context.Context, filter LogFilter) ([]*models.LogEntry, error)

	CreateWebhook(ctx context.Context, wh *models.Webhook) error
	ListWebhooks(ctx context.Context) ([]*models.Webhook, error)
	GetWebhook(ctx context.Context, id string) (*models.Webhook, error)
	DeleteWebhook(ctx context.Context, id string) error
	RecordWebhookDelivery(ctx context.Context, id string, success bool, at time.Time) error
}

// LogFilter narrows ListLogs. An empty Level matches every level.
type LogFilter struct {
	Level string
	Limit int
}
