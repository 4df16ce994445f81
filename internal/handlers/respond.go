package handlers

import (
	"encoding/json"
	"net/http"

	"gemini-chat/internal/models"
)

// Shared helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(message string) models.ErrorResponse {
	return models.ErrorResponse{Error: message}
}

func errorRespWithDetails(message, details string) models.ErrorResponse {
	if details == "" {
		details = "Unknown error"
	}
	return models.ErrorResponse{Error: message, Details: details}
}

// Health reports liveness only; the proxy has no dependencies worth probing per request.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// NotFound and MethodNotAllowed keep router errors in the JSON shape.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errorResp("Not found"))
}

func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, errorResp("Method not allowed"))
}
