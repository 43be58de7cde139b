package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/3leaps/mqlforge/internal/errors"
	"github.com/3leaps/mqlforge/internal/observability"
)

// Messages returned by BearerAuth.
const (
	MsgAuthHeaderRequired = "Authorization header is required"
	MsgAPIKeyRequired     = "API key is required"
	MsgInvalidAPIKey      = "Invalid API key"
)

// BearerAuth requires "Authorization: Bearer <apiKey>". A missing header or
// empty token is 401; a wrong token is 403. An empty apiKey rejects every
// token.
func BearerAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				apperrors.RespondWithError(w, r, apperrors.NewUnauthorizedError(MsgAuthHeaderRequired))
				return
			}

			token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
			if token == "" {
				apperrors.RespondWithError(w, r, apperrors.NewUnauthorizedError(MsgAPIKeyRequired))
				return
			}

			if apiKey == "" || subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
				observability.ServerLogger.Warn("rejected api key",
					zap.String("request_id", apperrors.RequestIDFromContext(r.Context())),
					zap.String("path", r.URL.Path))
				apperrors.RespondWithError(w, r, apperrors.NewForbiddenError(MsgInvalidAPIKey))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
