package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/apihub/internal/api/middleware"
	"github.com/kiranshivaraju/apihub/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
// A nil Admin leaves the management routes open.
type Dependencies struct {
	Admin *mw.AdminAuth

	HealthHandler      http.HandlerFunc
	CompletionsHandler http.HandlerFunc
	PlaygroundHandler  http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc

	HistoryHandler http.HandlerFunc
	StatsHandler   http.HandlerFunc
	LogsHandler    http.HandlerFunc

	ListWebhooksHandler  http.HandlerFunc
	CreateWebhookHandler http.HandlerFunc
	DeleteWebhookHandler http.HandlerFunc
	TestWebhookHandler   http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(mw.CORS)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotFound, "Not found", "", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "", nil)
	})

	// Public
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	r.Post("/api/v1/completions", orNotImplemented(deps.CompletionsHandler))

	// Management
	r.Group(func(r chi.Router) {
		if deps.Admin != nil {
			r.Use(deps.Admin.Require)
		}

		r.Post("/api/v1/keys", orNotImplemented(deps.CreateKeyHandler))
		r.Get("/api/v1/keys", orNotImplemented(deps.ListKeysHandler))
		r.Delete("/api/v1/keys", orNotImplemented(deps.RevokeKeyHandler))
		r.Delete("/api/v1/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))

		r.Get("/api/v1/history", orNotImplemented(deps.HistoryHandler))
		r.Get("/api/v1/history/stats", orNotImplemented(deps.StatsHandler))
		r.Get("/api/v1/logs", orNotImplemented(deps.LogsHandler))

		r.Get("/api/v1/webhooks", orNotImplemented(deps.ListWebhooksHandler))
		r.Post("/api/v1/webhooks", orNotImplemented(deps.CreateWebhookHandler))
		r.Delete("/api/v1/webhooks/{webhookID}", orNotImplemented(deps.DeleteWebhookHandler))
		r.Post("/api/v1/webhooks/{webhookID}/test", orNotImplemented(deps.TestWebhookHandler))

		r.Post("/api/v1/playground/completions", orNotImplemented(deps.PlaygroundHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "Not implemented", "", nil)
	}
}
