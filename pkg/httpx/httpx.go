// Package httpx writes JSON responses and maps domain errors to status codes.
package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/FACorreiaa/sales-manager/internal/domain/common"
)

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// WriteJSON writes v with the given status
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.Any("error", err))
	}
}

// WriteError writes an error body with the given status
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Error: message})
}

// StatusFor maps an error to its HTTP status
func StatusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, common.ErrUnauthenticated):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// WriteDomainError maps err to a status. Validation errors carry their
// field messages; server errors are logged and hidden from the client.
func WriteDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", slog.Any("error", err))
		WriteError(w, status, "internal error")
		return
	}

	resp := ErrorResponse{Error: err.Error()}
	var ve *common.ValidationError
	var ves common.ValidationErrors
	switch {
	case errors.As(err, &ves):
		resp.Fields = make(map[string]string, len(ves))
		for _, e := range ves {
			if e.Field != "" {
				resp.Fields[e.Field] = e.Message
			}
		}
	case errors.As(err, &ve) && ve.Field != "":
		resp.Fields = map[string]string{ve.Field: ve.Message}
	}
	WriteJSON(w, status, resp)
}
