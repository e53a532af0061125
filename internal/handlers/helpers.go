package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/netvault/netvault/internal/apierr"
)

// errorBody is the JSON body returned for every rejected request. It always
// names the specific error kind.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes the JSON error response for an APIError.
func WriteError(w http.ResponseWriter, ae *apierr.APIError) {
	WriteJSON(w, ae.HTTPStatus, errorBody{
		Error:   ae.Code,
		Message: ae.Message,
	})
}

// formatInt renders an int64 for use in a header value.
func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}
