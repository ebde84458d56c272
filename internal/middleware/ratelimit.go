package middleware

import (
	"math"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"

	xerrors "github.com/s1natex/tasks-crud-api/internal/errors"
	"github.com/s1natex/tasks-crud-api/internal/httpjson"
)

func RateLimitMiddleware(l *rate.Limiter) func(http.Handler) http.Handler {
	if l == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.Allow() {
				next.ServeHTTP(w, r)
				return
			}
			retry := 1.0
			if l.Limit() > 0 {
				retry = math.Max(1, math.Ceil(1.0/float64(l.Limit())))
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(retry)))
			httpjson.WriteError(w, xerrors.CodeTooManyRequests, "rate limit exceeded")
		})
	}
}

// NewLimiter returns nil (no limiting) when rps <= 0.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
