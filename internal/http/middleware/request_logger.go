package middleware

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/inkworks/booking-broker/pkg/logging"
)

// RequestLogger emits structured start/finish logs for every HTTP request,
// tagged with the correlation id when the Correlation middleware ran first
// and the trace id when a span is active.
func RequestLogger(logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			corrID := CorrelationID(r.Context())
			started := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"correlation_id", corrID,
				"remote_ip", r.RemoteAddr,
			}
			if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
				started = append(started, "trace_id", sc.TraceID().String())
			}
			logger.Info("request started", started...)
			next.ServeHTTP(w, r)
			logger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"correlation_id", corrID,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
