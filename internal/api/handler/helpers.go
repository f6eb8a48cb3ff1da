package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	mw "github.com/kiranshivaraju/apihub/internal/api/middleware"
	"github.com/kiranshivaraju/apihub/internal/api/response"
)

const maxListLimit = 500

// queryLimit parses ?limit=, falling back to def and capping at maxListLimit.
// ok is false for a non-numeric or non-positive value.
func queryLimit(r *http.Request, def int) (limit int, ok bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, true
}

func internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	requestID, _ := mw.GetRequestID(r)
	slog.Error(op+" failed", "error", err, "request_id", requestID)
	response.Error(w, http.StatusInternalServerError, "Internal error", "", nil)
}
