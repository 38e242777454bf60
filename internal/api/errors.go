package api

import (
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/lutrinapp/lutrin/internal/errors"
	"github.com/lutrinapp/lutrin/internal/http/response"
)

// APIError is a custom error type that implements huma.StatusError.
// It maps domain errors to HTTP responses with consistent structure.
type APIError struct { //nolint:revive // API prefix is intentional for clarity
	status  int
	Code    string `json:"code" doc:"Machine-readable error code"`
	Message string `json:"message" doc:"Human-readable error message"`
	Details any    `json:"details,omitempty" doc:"Additional error details"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// GetStatus implements huma.StatusError.
func (e *APIError) GetStatus() int {
	return e.status
}

// ContentType returns the content type for the error response.
func (e *APIError) ContentType(_ string) string {
	return "application/json"
}

// RegisterErrorHandler configures huma to use domain errors.
// Call this after creating the huma.API but before registering routes.
func RegisterErrorHandler() {
	huma.NewError = func(status int, message string, errs ...error) huma.StatusError {
		for _, err := range errs {
			var domainErr *domainerrors.Error
			if errors.As(err, &domainErr) {
				return &APIError{
					status:  domainErr.HTTPStatus(),
					Code:    string(domainErr.Code),
					Message: domainErr.Message,
					Details: domainErr.Details,
				}
			}
		}

		// huma's own request validation reports 422 with per-field errors.
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
			details := make(map[string]string, len(errs))
			for _, err := range errs {
				var detail *huma.ErrorDetail
				if errors.As(err, &detail) {
					details[detail.Location] = detail.Message
				}
			}
			return &APIError{
				status:  status,
				Code:    statusToCode(status),
				Message: message,
				Details: details,
			}
		}

		return &APIError{
			status:  status,
			Code:    statusToCode(status),
			Message: message,
		}
	}
}

// toHumaError converts a service error to the huma error for its code.
// Unknown errors are logged and become opaque 500s.
func (s *Server) toHumaError(err error) error {
	var domainErr *domainerrors.Error
	if errors.As(err, &domainErr) {
		return huma.NewError(domainErr.HTTPStatus(), domainErr.Message, domainErr)
	}
	s.logger.Error("unhandled error", "error", err)
	return huma.Error500InternalServerError("internal server error")
}

// statusToCode maps HTTP status codes to our domain error codes.
func statusToCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return string(domainerrors.CodeValidation)
	case http.StatusNotFound:
		return string(domainerrors.CodeNotFound)
	case http.StatusConflict:
		return string(domainerrors.CodeConflict)
	case http.StatusTooManyRequests:
		return response.CodeRateLimited
	case http.StatusServiceUnavailable:
		return string(domainerrors.CodeOffline)
	default:
		return string(domainerrors.CodeInternal)
	}
}
