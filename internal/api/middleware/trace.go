package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const TraceHeader = "X-Trace-ID"

// maxTraceIDLen bounds client-supplied trace ids echoed into logs and headers.
const maxTraceIDLen = 128

// TraceMiddleware ensures each request has a trace identifier propagated via
// context and headers.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := strings.TrimSpace(r.Header.Get(TraceHeader))
		if traceID == "" || len(traceID) > maxTraceIDLen {
			traceID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), traceContextKey, traceID)
		w.Header().Set(TraceHeader, traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
