package handler

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/apihub/internal/api/response"
	"github.com/kiranshivaraju/apihub/internal/store"
	"github.com/kiranshivaraju/apihub/pkg/models"
)

const (
	defaultHistoryLimit = 50
	defaultLogsLimit    = 100
)

type HistoryReader interface {
	ListHistory(ctx context.Context, limit int) ([]*models.HistoryEntry, error)
}

type StatsProvider interface {
	Stats(ctx context.Context) (*models.UsageStats, error)
}

type LogReader interface {
	ListLogs(ctx context.Context, filter store.LogFilter) ([]*models.LogEntry, error)
}

var validLogLevels = map[string]bool{
	models.LogLevelInfo:  true,
	models.LogLevelWarn:  true,
	models.LogLevelError: true,
}

// NewHistoryHandler returns an http.HandlerFunc for GET /api/v1/history.
func NewHistoryHandler(h HistoryReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := queryLimit(r, defaultHistoryLimit)
		if !ok {
			response.Error(w, http.StatusBadRequest, "limit must be a positive integer", "", nil)
			return
		}

		entries, err := h.ListHistory(r.Context(), limit)
		if err != nil {
			internalError(w, r, "list history", err)
			return
		}
		response.JSON(w, map[string]any{"history": entries})
	}
}

// NewStatsHandler returns an http.HandlerFunc for GET /api/v1/history/stats.
func NewStatsHandler(p StatsProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := p.Stats(r.Context())
		if err != nil {
			internalError(w, r, "usage stats", err)
			return
		}
		response.JSON(w, stats)
	}
}

// NewLogsHandler returns an http.HandlerFunc for GET /api/v1/logs.
func NewLogsHandler(l LogReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := queryLimit(r, defaultLogsLimit)
		if !ok {
			response.Error(w, http.StatusBadRequest, "limit must be a positive integer", "", nil)
			return
		}

		level := r.URL.Query().Get("level")
		if level != "" && !validLogLevels[level] {
			response.Error(w, http.StatusBadRequest, "level must be one of info, warn, error", "", nil)
			return
		}

		entries, err := l.ListLogs(r.Context(), store.LogFilter{Level: level, Limit: limit})
		if err != nil {
			internalError(w, r, "list logs", err)
			return
		}
		response.JSON(w, map[string]any{"logs": entries})
	}
}
