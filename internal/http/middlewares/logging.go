package middlewares

import (
	"net/http"
	"time"

	"github.com/dropDatabas3/tcpoidc/internal/observability/logger"
)

// WithLogging inyecta un logger scoped (request_id, method, path) en el contexto
// y registra el fin del request con nivel según status.
func WithLogging() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := GetRequestID(r.Context())
			if requestID == "" {
				requestID = w.Header().Get("X-Request-ID")
			}
			reqLog := logger.L().With(
				logger.RequestID(requestID),
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
			)
			reqLog.Debug("request started",
				logger.ClientIP(clientIP(r)),
				logger.UserAgent(r.UserAgent()),
			)

			rec := newRecorder(w)
			next.ServeHTTP(rec, r.WithContext(logger.ToContext(r.Context(), reqLog)))

			dur := time.Since(start)
			switch {
			case rec.status >= 500:
				reqLog.Error("request failed",
					logger.Status(rec.status),
					logger.Bytes(rec.bytes),
					logger.DurationMs(dur.Milliseconds()),
				)
			case rec.status >= 400:
				reqLog.Warn("request completed with client error",
					logger.Status(rec.status),
					logger.Bytes(rec.bytes),
					logger.DurationMs(dur.Milliseconds()),
				)
			default:
				reqLog.Info("request completed",
					logger.Status(rec.status),
					logger.Bytes(rec.bytes),
					logger.DurationMs(dur.Milliseconds()),
				)
			}
		})
	}
}
