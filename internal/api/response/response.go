package response

import (
	"encoding/json"
	"net/http"
)

// errorBody is the flat error shape every endpoint uses: {"error", "message"?, "details"?}.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

func JSON(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, data)
}

func Created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, data)
}

// Status writes data as JSON with an arbitrary status code.
func Status(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, data)
}

// Raw writes an already-encoded JSON document unchanged.
func Raw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func Error(w http.ResponseWriter, status int, errMsg, message string, details any) {
	writeJSON(w, status, errorBody{
		Error:   errMsg,
		Message: message,
		Details: details,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
