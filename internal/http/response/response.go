// Package response writes JSON responses for the handlers that bypass huma,
// such as multipart uploads. Bodies match the shapes huma produces so
// clients see one format.
package response

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	domainerrors "github.com/lutrinapp/lutrin/internal/errors"
)

// CodeRateLimited is the error code of a 429 response.
const CodeRateLimited = "RATE_LIMITED"

// ErrorBody is the JSON body of every error response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON writes data with the given status code.
func JSON(w http.ResponseWriter, status int, data any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil && logger != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

// Success writes a 200 OK response.
func Success(w http.ResponseWriter, data any, logger *slog.Logger) {
	JSON(w, http.StatusOK, data, logger)
}

// Created writes a 201 Created response.
func Created(w http.ResponseWriter, data any, logger *slog.Logger) {
	JSON(w, http.StatusCreated, data, logger)
}

// Error writes an error body with the given status and code.
func Error(w http.ResponseWriter, status int, code, message string, logger *slog.Logger) {
	JSON(w, status, ErrorBody{Code: code, Message: message}, logger)
}

// BadRequest writes a 400 Bad Request response.
func BadRequest(w http.ResponseWriter, message string, logger *slog.Logger) {
	Error(w, http.StatusBadRequest, string(domainerrors.CodeValidation), message, logger)
}

// TooManyRequests writes a 429 Too Many Requests response.
func TooManyRequests(w http.ResponseWriter, message string, logger *slog.Logger) {
	Error(w, http.StatusTooManyRequests, CodeRateLimited, message, logger)
}

// HandleError writes the response for err. Domain errors keep their code
// and status; anything else is logged and hidden behind a 500.
func HandleError(w http.ResponseWriter, err error, logger *slog.Logger) {
	var domainErr *domainerrors.Error
	if errors.As(err, &domainErr) {
		JSON(w, domainErr.HTTPStatus(), ErrorBody{
			Code:    string(domainErr.Code),
			Message: domainErr.Message,
			Details: domainErr.Details,
		}, logger)
		return
	}

	if logger != nil {
		logger.Error("unhandled error", "error", err)
	}
	Error(w, http.StatusInternalServerError, string(domainerrors.CodeInternal), "internal server error", logger)
}
