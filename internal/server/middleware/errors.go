// Package middleware holds the HTTP middleware chain for the compile service.
package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	apperrors "github.com/3leaps/mqlforge/internal/errors"
	"github.com/3leaps/mqlforge/internal/observability"
)

// ErrorResponse is the JSON body written for middleware failures.
type ErrorResponse = apperrors.HTTPErrorResponse

// Recovery turns panics into a 500 INTERNAL_ERROR envelope.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			observability.ServerLogger.Error("panic recovered",
				zap.Any("panic", rec),
				zap.String("request_id", apperrors.RequestIDFromContext(r.Context())),
				zap.String("path", r.URL.Path),
				zap.ByteString("stack", debug.Stack()))

			writeErrorResponse(w, r, apperrors.New(apperrors.CodeInternal, fmt.Sprintf("panic: %v", rec), http.StatusInternalServerError))
		}()
		next.ServeHTTP(w, r)
	})
}

func writeErrorResponse(w http.ResponseWriter, r *http.Request, err *apperrors.AppError) {
	apperrors.RespondWithError(w, r, err)
}
