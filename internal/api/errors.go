package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/premeepro/production/internal/auth"
	"example.com/premeepro/production/internal/engine"
	"example.com/premeepro/production/internal/repository"
	"example.com/premeepro/production/internal/validation"
)

// ErrorResponse defines the structure of an error response
type ErrorResponse struct {
	Message string            `json:"message"`
	Code    string            `json:"code,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Error represents an API error
type Error struct {
	Message    string
	StatusCode int
	Code       string
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.Message
}

// Common API errors
var (
	ErrInvalidRequest     = &Error{Message: "Invalid request", StatusCode: http.StatusBadRequest, Code: "INVALID_REQUEST"}
	ErrNotFound           = &Error{Message: "Resource not found", StatusCode: http.StatusNotFound, Code: "NOT_FOUND"}
	ErrInternalServer     = &Error{Message: "Internal server error", StatusCode: http.StatusInternalServerError, Code: "INTERNAL_ERROR"}
	ErrUnauthorized       = &Error{Message: "Unauthorized", StatusCode: http.StatusUnauthorized, Code: "UNAUTHORIZED"}
	ErrForbidden          = &Error{Message: "Forbidden", StatusCode: http.StatusForbidden, Code: "FORBIDDEN"}
	ErrConflict           = &Error{Message: "Resource already exists", StatusCode: http.StatusConflict, Code: "CONFLICT"}
	ErrValidation         = &Error{Message: "Validation error", StatusCode: http.StatusBadRequest, Code: "VALIDATION_ERROR"}
	ErrServiceUnavailable = &Error{Message: "Service unavailable", StatusCode: http.StatusServiceUnavailable, Code: "SERVICE_UNAVAILABLE"}
)

// lifecycleStatus maps engine error codes to HTTP statuses. Codes not listed are conflicts
// with the current job state.
var lifecycleStatus = map[string]int{
	engine.CodeNoTemplate:    http.StatusUnprocessableEntity,
	engine.CodeEmptyTemplate: http.StatusUnprocessableEntity,
	engine.CodeInvalidStep:   http.StatusUnprocessableEntity,
}

// NewError creates a new API error with custom details
func NewError(message string, statusCode int, code string) *Error {
	return &Error{
		Message:    message,
		StatusCode: statusCode,
		Code:       code,
	}
}

// NewValidationError creates a new validation error with a custom message
func NewValidationError(message string) *Error {
	return NewError(message, http.StatusBadRequest, ErrValidation.Code)
}

// WriteError writes the response for err and aborts the request
func WriteError(c *gin.Context, err error) {
	status, body := describeError(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Str("request_id", c.GetString(requestIDKey)).
			Msg("Unhandled error")
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func describeError(err error) (int, ErrorResponse) {
	var (
		apiErr    *Error
		lifecycle engine.Error
		invalid   *validation.Error
		forbidden *auth.ForbiddenError
	)

	switch {
	case errors.As(err, &apiErr):
		return apiErr.StatusCode, ErrorResponse{Message: apiErr.Message, Code: apiErr.Code}
	case errors.As(err, &invalid):
		return http.StatusBadRequest, ErrorResponse{Message: ErrValidation.Message, Code: ErrValidation.Code, Fields: invalid.Fields}
	case errors.As(err, &lifecycle):
		status, ok := lifecycleStatus[lifecycle.Code()]
		if !ok {
			status = http.StatusConflict
		}
		return status, ErrorResponse{Message: lifecycle.Error(), Code: lifecycle.Code()}
	case errors.As(err, &forbidden):
		return http.StatusForbidden, ErrorResponse{Message: forbidden.Error(), Code: ErrForbidden.Code}
	case errors.Is(err, auth.ErrInvalidKey), errors.Is(err, auth.ErrExpiredKey), errors.Is(err, auth.ErrRevokedKey):
		return http.StatusUnauthorized, ErrorResponse{Message: errors.Cause(err).Error(), Code: ErrUnauthorized.Code}
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Message: ErrNotFound.Message, Code: ErrNotFound.Code}
	case errors.Is(err, repository.ErrDuplicateKey):
		return http.StatusConflict, ErrorResponse{Message: ErrConflict.Message, Code: ErrConflict.Code}
	case errors.Is(err, repository.ErrForeignKey):
		return http.StatusUnprocessableEntity, ErrorResponse{Message: "Referenced resource does not exist", Code: "INVALID_REFERENCE"}
	}
	return http.StatusInternalServerError, ErrorResponse{Message: ErrInternalServer.Message, Code: ErrInternalServer.Code}
}
