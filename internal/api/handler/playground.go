package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/kiranshivaraju/apihub/internal/api/response"
	"github.com/kiranshivaraju/apihub/internal/proxy"
	"github.com/kiranshivaraju/apihub/internal/upstream"
)

type playgroundUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type playgroundResponse struct {
	Model        string          `json:"model"`
	Content      string          `json:"content"`
	Usage        playgroundUsage `json:"usage"`
	FinishReason string          `json:"finish_reason"`
}

// NewPlaygroundHandler returns an http.HandlerFunc for POST /api/v1/playground/completions.
// It calls the provider directly without an API key and writes nothing to the ledger.
func NewPlaygroundHandler(client upstream.Client, defaultModel string, upstreamTimeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid request body", "", nil)
			return
		}

		req, err := proxy.ParseRequest(body, defaultModel)
		if err != nil {
			writeCompletionError(w, r, err, upstreamTimeout)
			return
		}

		c, err := client.Complete(r.Context(), req)
		if err != nil {
			writeCompletionError(w, r, err, upstreamTimeout)
			return
		}

		model := c.Model
		if model == "" {
			model = req.Model
		}
		response.JSON(w, playgroundResponse{
			Model:   model,
			Content: c.Content,
			Usage: playgroundUsage{
				PromptTokens:     c.Usage.Prompt,
				CompletionTokens: c.Usage.Completion,
				TotalTokens:      c.Usage.Total,
			},
			FinishReason: c.FinishReason,
		})
	}
}
