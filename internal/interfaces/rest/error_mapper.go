package rest

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/DanielPopoola/x402-gateway/internal/application"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// WriteError maps application errors to HTTP responses. Internal details stay
// in the logs; clients see the service-level message only.
func WriteError(w http.ResponseWriter, err error, logger *slog.Logger) {
	statusCode := application.ToHTTPStatus(err)

	message := "An internal error occurred"
	if svcErr, ok := application.IsServiceError(err); ok {
		message = svcErr.Message
	}

	WriteJSON(w, statusCode, ErrorResponse{
		Error:   errorTitle(statusCode),
		Code:    application.ToErrorCode(err),
		Message: message,
	}, logger)
}

func WriteJSON(w http.ResponseWriter, status int, body any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", "status", status, "error", err)
	}
}

func errorTitle(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "Bad request"
	case http.StatusTooManyRequests:
		return "Too many requests"
	case http.StatusServiceUnavailable:
		return "Service unavailable"
	default:
		return "Server error"
	}
}
