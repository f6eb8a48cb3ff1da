package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/apihub/internal/api/response"
	"github.com/kiranshivaraju/apihub/internal/store"
	"github.com/kiranshivaraju/apihub/internal/webhook"
	"github.com/kiranshivaraju/apihub/pkg/models"
)

type WebhookService interface {
	Create(ctx context.Context, url string, events []string) (*models.Webhook, error)
	Test(ctx context.Context, id string) (*webhook.TestResult, error)
}

type WebhookStore interface {
	ListWebhooks(ctx context.Context) ([]*models.Webhook, error)
	DeleteWebhook(ctx context.Context, id string) error
}

type webhookView struct {
	ID             string     `json:"id"`
	URL            string     `json:"url"`
	Events         []string   `json:"events"`
	Enabled        bool       `json:"enabled"`
	CreatedAt      time.Time  `json:"created_at"`
	LastDeliveryAt *time.Time `json:"last_delivery_at"`
	SuccessRate    float64    `json:"success_rate"`
}

func toWebhookView(wh *models.Webhook) webhookView {
	return webhookView{
		ID:             wh.ID,
		URL:            wh.URL,
		Events:         wh.Events,
		Enabled:        wh.IsEnabled,
		CreatedAt:      wh.CreatedAt,
		LastDeliveryAt: wh.LastDeliveryAt,
		SuccessRate:    wh.SuccessRate(),
	}
}

// NewListWebhooksHandler returns an http.HandlerFunc for GET /api/v1/webhooks.
func NewListWebhooksHandler(s WebhookStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hooks, err := s.ListWebhooks(r.Context())
		if err != nil {
			internalError(w, r, "list webhooks", err)
			return
		}
		views := make([]webhookView, 0, len(hooks))
		for _, wh := range hooks {
			views = append(views, toWebhookView(wh))
		}
		response.JSON(w, map[string]any{"webhooks": views})
	}
}

// NewCreateWebhookHandler returns an http.HandlerFunc for POST /api/v1/webhooks.
func NewCreateWebhookHandler(svc WebhookService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			URL    string   `json:"url"`
			Events []string `json:"events"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid JSON body", "", nil)
			return
		}

		url := strings.TrimSpace(req.URL)
		if url == "" {
			response.Error(w, http.StatusBadRequest, "URL is required", "", nil)
			return
		}

		wh, err := svc.Create(r.Context(), url, req.Events)
		if errors.Is(err, webhook.ErrInvalidURL) {
			response.Error(w, http.StatusBadRequest, "URL must be an absolute http or https URL", "", nil)
			return
		}
		if err != nil {
			internalError(w, r, "create webhook", err)
			return
		}
		response.Created(w, toWebhookView(wh))
	}
}

// NewDeleteWebhookHandler returns an http.HandlerFunc for DELETE /api/v1/webhooks/{webhookID}.
func NewDeleteWebhookHandler(s WebhookStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := s.DeleteWebhook(r.Context(), chi.URLParam(r, "webhookID"))
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "Webhook not found", "", nil)
			return
		}
		if err != nil {
			internalError(w, r, "delete webhook", err)
			return
		}
		response.JSON(w, map[string]bool{"success": true})
	}
}

// NewTestWebhookHandler returns an http.HandlerFunc for POST /api/v1/webhooks/{webhookID}/test.
// Delivery failures are reported with 200 and success=false.
func NewTestWebhookHandler(svc WebhookService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.Test(r.Context(), chi.URLParam(r, "webhookID"))
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "Webhook not found", "", nil)
			return
		}
		if err != nil {
			internalError(w, r, "test webhook", err)
			return
		}
		response.JSON(w, res)
	}
}
