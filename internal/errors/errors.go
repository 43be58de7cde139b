// Package errors defines the application error type and the JSON error
// envelope written by the HTTP layer.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/3leaps/mqlforge/internal/observability"
)

// Error codes used in the HTTP envelope.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeRateLimited        = "RATE_LIMITED"
	CodePayloadTooLarge    = "PAYLOAD_TOO_LARGE"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeExternalService    = "EXTERNAL_SERVICE_ERROR"
	CodeInternal           = "INTERNAL_ERROR"
)

// AppError is an error that knows how it should be rendered over HTTP.
type AppError struct {
	Code    string
	Message string
	Status  int
	Details map[string]any
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// WithDetails returns a copy of e carrying the given details.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// WithCause returns a copy of e wrapping err.
func (e *AppError) WithCause(err error) *AppError {
	cp := *e
	cp.Err = err
	return &cp
}

func New(code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, Status: status}
}

func NewValidationError(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}

func NewNotFoundError(message string) *AppError {
	return New(CodeNotFound, message, http.StatusNotFound)
}

func NewUnauthorizedError(message string) *AppError {
	return New(CodeUnauthorized, message, http.StatusUnauthorized)
}

func NewForbiddenError(message string) *AppError {
	return New(CodeForbidden, message, http.StatusForbidden)
}

func NewMethodNotAllowedError(method string) *AppError {
	return New(CodeMethodNotAllowed, fmt.Sprintf("method %s not allowed", method), http.StatusMethodNotAllowed)
}

func NewRateLimitedError() *AppError {
	return New(CodeRateLimited, "too many compile requests", http.StatusTooManyRequests)
}

func NewPayloadTooLargeError(limit int64) *AppError {
	return New(CodePayloadTooLarge, fmt.Sprintf("request body exceeds %d bytes", limit), http.StatusRequestEntityTooLarge)
}

func NewServiceUnavailableError(message string) *AppError {
	return New(CodeServiceUnavailable, message, http.StatusServiceUnavailable)
}

// NewExternalServiceError reports a failing dependency such as the artifact mirror.
func NewExternalServiceError(message string) *AppError {
	return New(CodeExternalService, message, http.StatusBadGateway)
}

// WrapInternal logs err with the request id from ctx and returns an
// INTERNAL_ERROR whose message does not leak err.
func WrapInternal(ctx context.Context, err error, message string) *AppError {
	if observability.ServerLogger != nil {
		observability.ServerLogger.Error(message,
			zap.String("request_id", RequestIDFromContext(ctx)),
			zap.Error(err))
	}
	return &AppError{Code: CodeInternal, Message: message, Status: http.StatusInternalServerError, Err: err}
}

// HTTPErrorResponse is the JSON envelope for all error responses.
type HTTPErrorResponse struct {
	Error HTTPErrorBody `json:"error"`
}

type HTTPErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

type requestIDKey struct{}

// ContextWithRequestID stores id on ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id stored on ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// AsAppError converts any error into an *AppError. Unknown errors become
// INTERNAL_ERROR with a generic message.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return &AppError{Code: CodeInternal, Message: "internal server error", Status: http.StatusInternalServerError, Err: err}
}

// RespondWithError writes err as a JSON error envelope.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := AsAppError(err)
	status := appErr.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	body := HTTPErrorResponse{Error: HTTPErrorBody{
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	}}
	if r != nil {
		body.Error.RequestID = RequestIDFromContext(r.Context())
	}
	WriteJSON(w, status, body)
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && observability.ServerLogger != nil {
		observability.ServerLogger.Warn("failed to encode response", zap.Error(err))
	}
}
