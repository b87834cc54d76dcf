package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/snippetd/internal/apperror"
)

// errorResponse is the error body shape shared by every endpoint.
type errorResponse struct {
	Message string `json:"message"`
}

// writeJSON sends a JSON response. Headers (including Link) must be set on
// w before calling.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already out; nothing left to do but log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error onto an HTTP status and the standard
// {"message": ...} body. This is the only place that translation happens;
// lower layers deal in apperror sentinels.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, apperror.ErrForbidden):
			status = http.StatusForbidden
		case errors.Is(err, apperror.ErrStorage):
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, errorResponse{Message: appErr.Message})
		return
	}

	// Unknown failure: never leak internals to the client.
	writeJSON(w, http.StatusInternalServerError,
		errorResponse{Message: "Sorry, an internal error occurred."})
}
