package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	mw "github.com/kiranshivaraju/apihub/internal/api/middleware"
	"github.com/kiranshivaraju/apihub/internal/api/response"
	"github.com/kiranshivaraju/apihub/internal/proxy"
	"github.com/kiranshivaraju/apihub/internal/upstream"
)

// APIKeyHeader carries the caller's secret on the proxy endpoint.
const APIKeyHeader = "X-Api-Key"

const maxBodyBytes = 1 << 20

// Completer defines the pipeline the completions handler depends on.
type Completer interface {
	Complete(ctx context.Context, secret string, body []byte) (json.RawMessage, error)
}

// NewCompletionsHandler returns an http.HandlerFunc for POST /api/v1/completions.
// upstreamTimeout is only used to word the 504 message.
func NewCompletionsHandler(p Completer, upstreamTimeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid request body", "", nil)
			return
		}

		secret := strings.TrimSpace(r.Header.Get(APIKeyHeader))
		payload, err := p.Complete(r.Context(), secret, body)
		if err != nil {
			writeCompletionError(w, r, err, upstreamTimeout)
			return
		}

		response.Raw(w, http.StatusOK, payload)
	}
}

// writeCompletionError maps pipeline and provider errors to the proxy's HTTP contract.
func writeCompletionError(w http.ResponseWriter, r *http.Request, err error, upstreamTimeout time.Duration) {
	var statusErr *upstream.StatusError
	switch {
	case errors.Is(err, proxy.ErrInvalidBody):
		response.Error(w, http.StatusBadRequest, "Invalid JSON body", "", nil)
	case errors.Is(err, proxy.ErrMessagesRequired):
		response.Error(w, http.StatusBadRequest, "Messages array is required", "", nil)
	case errors.Is(err, proxy.ErrMissingCredential):
		response.Error(w, http.StatusUnauthorized, "API key required", "Include X-Api-Key header", nil)
	case errors.Is(err, proxy.ErrInvalidCredential):
		response.Error(w, http.StatusUnauthorized, "Invalid API key", "", nil)
	case errors.Is(err, proxy.ErrDisabledCredential):
		response.Error(w, http.StatusForbidden, "API key is disabled", "", nil)
	case errors.Is(err, upstream.ErrNotConfigured):
		response.Error(w, http.StatusInternalServerError, "GPTunnel not configured", "", nil)
	case errors.Is(err, upstream.ErrTimeout):
		response.Error(w, http.StatusGatewayTimeout, "Timeout",
			fmt.Sprintf("Request timeout after %s", upstreamTimeout), nil)
	case errors.As(err, &statusErr):
		response.Error(w, statusErr.StatusCode, "GPTunnel error", "", statusErr.Body)
	default:
		requestID, _ := mw.GetRequestID(r)
		slog.Error("completion failed", "error", err, "path", r.URL.Path, "request_id", requestID)
		response.Error(w, http.StatusInternalServerError, "Internal error", err.Error(), nil)
	}
}
