package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/pkg/errors"
)

type errorResponse struct {
	Error   string            `json:"error"`
	Type    string            `json:"type,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, errorResponse{Error: message})
}

// respondWithAppError maps the AppError taxonomy onto HTTP statuses. Internal
// messages are not exposed.
func respondWithAppError(w http.ResponseWriter, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		respondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	status := statusForErrorType(appErr.Type)
	body := errorResponse{Error: appErr.Message, Type: string(appErr.Type), Details: appErr.Details}
	if status == http.StatusInternalServerError {
		body = errorResponse{Error: "internal server error", Type: string(apperrors.ErrorTypeInternal)}
	}
	respondWithJSON(w, status, body)
}

func statusForErrorType(t apperrors.ErrorType) int {
	switch t {
	case apperrors.ErrorTypeValidation:
		return http.StatusBadRequest
	case apperrors.ErrorTypeConflict, apperrors.ErrorTypeInvalidTransition:
		return http.StatusConflict
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case apperrors.ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrorTypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
