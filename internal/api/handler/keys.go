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
	"github.com/kiranshivaraju/apihub/internal/keys"
	"github.com/kiranshivaraju/apihub/internal/store"
	"github.com/kiranshivaraju/apihub/pkg/models"
)

const maxKeyNameLen = 100

type KeyIssuer interface {
	Issue(ctx context.Context, name string) (*keys.Issued, error)
}

type KeyStore interface {
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id string) error
}

// createdKey is the only response that ever carries the plaintext secret.
type createdKey struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Key        string     `json:"key"`
	KeyPrefix  string     `json:"key_prefix"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
	Requests   int64      `json:"requests"`
	Active     bool       `json:"active"`
}

// NewCreateKeyHandler returns an http.HandlerFunc for POST /api/v1/keys.
func NewCreateKeyHandler(issuer KeyIssuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid JSON body", "", nil)
			return
		}

		name := strings.TrimSpace(req.Name)
		if name == "" {
			response.Error(w, http.StatusBadRequest, "Name is required", "", nil)
			return
		}
		if len([]rune(name)) > maxKeyNameLen {
			response.Error(w, http.StatusBadRequest, "Name is too long", "", nil)
			return
		}

		issued, err := issuer.Issue(r.Context(), name)
		if err != nil {
			internalError(w, r, "create api key", err)
			return
		}

		k := issued.Key
		response.Created(w, createdKey{
			ID:         k.ID,
			Name:       k.Name,
			Key:        issued.Secret,
			KeyPrefix:  k.KeyPrefix,
			CreatedAt:  k.CreatedAt,
			LastUsedAt: k.LastUsedAt,
			Requests:   k.RequestCount,
			Active:     k.IsActive,
		})
	}
}

// NewListKeysHandler returns an http.HandlerFunc for GET /api/v1/keys.
func NewListKeysHandler(s KeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.ListAPIKeys(r.Context())
		if err != nil {
			internalError(w, r, "list api keys", err)
			return
		}
		response.JSON(w, map[string]any{"keys": list})
	}
}

// NewRevokeKeyHandler returns an http.HandlerFunc for DELETE /api/v1/keys/{keyID}.
// The legacy ?id= query form is accepted as well.
func NewRevokeKeyHandler(s KeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "keyID")
		if id == "" {
			id = r.URL.Query().Get("id")
		}
		if id == "" {
			response.Error(w, http.StatusBadRequest, "Key ID is required", "", nil)
			return
		}

		err := s.RevokeAPIKey(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "API key not found", "", nil)
			return
		}
		if err != nil {
			internalError(w, r, "revoke api key", err)
			return
		}
		response.JSON(w, map[string]bool{"success": true})
	}
}
