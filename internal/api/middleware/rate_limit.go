package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ayo6706/custody-engine/internal/api/problem"
	"github.com/ayo6706/custody-engine/internal/auth"
	"github.com/go-chi/httprate"
)

// PublicRateLimiter limits requests per IP for unauthenticated routes.
func PublicRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, time.Second,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(limitExceeded("IP", rps)),
	)
}

// AuthRateLimiter limits authenticated callers keyed by their verified identity,
// falling back to the client IP.
func AuthRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, time.Second,
		httprate.WithKeyFuncs(keyByIdentity),
		httprate.WithLimitHandler(limitExceeded("identity", rps)),
	)
}

func keyByIdentity(r *http.Request) (string, error) {
	if id := auth.IdentityFromContext(r.Context()); id != "" {
		return "id:" + string(id), nil
	}
	return httprate.KeyByIP(r)
}

func limitExceeded(scope string, rps int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		problem.Write(
			w,
			r,
			http.StatusTooManyRequests,
			problem.Type("rate-limit-exceeded"),
			http.StatusText(http.StatusTooManyRequests),
			fmt.Sprintf("Rate limit of %d req/s exceeded for this %s", rps, scope),
		)
	}
}
