// errors.go - Structured error handling for API responses
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Lllllllleong/clinicaltrialexplorer/internal/chat"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/dataset"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/llm"
	"github.com/labstack/echo/v4"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewUpstreamError creates a 502 error for a failed language model call
func NewUpstreamError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadGateway,
		Code:    "UPSTREAM_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// toAPIError maps domain errors onto API errors.
func toAPIError(err error) *APIError {
	var apiErr *APIError
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &httpErr):
		return &APIError{
			Status:  httpErr.Code,
			Code:    "HTTP_ERROR",
			Message: fmt.Sprintf("%v", httpErr.Message),
		}
	case errors.Is(err, chat.ErrEmptyQuestion):
		return NewValidationError("question")
	case errors.Is(err, chat.ErrUnknownMode):
		return NewBadRequestError("unknown chat mode", err)
	case errors.Is(err, dataset.ErrArtifactNotFound):
		return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: "artifact not found"}
	case errors.Is(err, llm.ErrAPI):
		return NewUpstreamError("The language model is unavailable. Please try again later.", err)
	case errors.Is(err, chat.ErrQueryFailed):
		return NewUpstreamError("Could not answer the question from the dataset.", err)
	case errors.Is(err, context.DeadlineExceeded):
		return &APIError{Status: http.StatusGatewayTimeout, Code: "TIMEOUT", Message: "the request timed out"}
	default:
		return NewInternalError("An unexpected error occurred", err)
	}
}

// ErrorHandler renders every error as an APIError.
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	apiErr := toAPIError(err)
	if apiErr.Status >= http.StatusInternalServerError {
		slog.Error("Request failed.",
			"method", c.Request().Method,
			"path", c.Path(),
			"status", apiErr.Status,
			"error", err)
	}
	if err := c.JSON(apiErr.Status, apiErr); err != nil {
		slog.Error("Failed to write error response.", "error", err)
	}
}
