package middleware

import (
	"net/http"

	"golang.org/x/time/rate"

	apperrors "github.com/3leaps/mqlforge/internal/errors"
)

// MaxBodyBytes caps request bodies at limit bytes. Handlers see an
// *http.MaxBytesError when they read past it.
func MaxBodyBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				apperrors.RespondWithError(w, r, apperrors.NewPayloadTooLargeError(limit))
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit admits at most perSecond requests per second with the given
// burst, shared across all callers. perSecond <= 0 disables the limit.
func RateLimit(perSecond float64, burst int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if perSecond <= 0 {
			return next
		}
		if burst < 1 {
			burst = 1
		}
		limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				apperrors.RespondWithError(w, r, apperrors.NewRateLimitedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
