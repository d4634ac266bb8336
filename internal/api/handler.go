// Package api provides HTTP handlers for the codespace API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/ashureev/codespace/internal/domain"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// KindError writes a classified error using the status its kind maps to.
func KindError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	JSON(w, StatusFor(kind), map[string]string{"error": domain.MessageOf(err), "kind": string(kind)})
}

// StatusFor maps an error kind to an HTTP status.
func StatusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindOutOfRange:
		return http.StatusUnprocessableEntity
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
