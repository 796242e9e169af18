package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"studysync-backend/internal/models"
	"studysync-backend/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrActiveSessionExists):
		writeJSON(w, http.StatusConflict, errorResp("ACTIVE_SESSION_EXISTS", "End the current session before starting a new one", r))
	case errors.Is(err, services.ErrNoActiveSession):
		writeJSON(w, http.StatusNotFound, errorResp("NO_ACTIVE_SESSION", "No active session found", r))
	case errors.Is(err, services.ErrConcurrentModificationLost):
		writeJSON(w, http.StatusConflict, errorResp("CONFLICT", "The session changed concurrently; re-fetch and retry", r))
	case errors.Is(err, services.ErrUserNotFound):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "User not found", r))
	case errors.Is(err, services.ErrStoreUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorResp("STORE_UNAVAILABLE", "Storage is temporarily unavailable, please retry", r))
	default:
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Something went wrong", r))
	}
}
