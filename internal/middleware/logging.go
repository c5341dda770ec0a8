package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

// RoundTrip implements http.RoundTripper.
func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// StructuredLogging wraps next so every outbound request is logged with a
// request-scoped logger. The logger is also stored in the request context.
func StructuredLogging(next http.RoundTripper, baseLogger *slog.Logger) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		start := time.Now()
		requestID := uuid.NewString()

		logger := baseLogger
		if logger == nil {
			logger = GetLoggerFromCtx(req.Context())
		}
		// Create a logger enriched with request-specific fields
		requestLogger := logger.With(
			slog.String("request_id", requestID),
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
		)
		req = req.WithContext(WithLogger(req.Context(), requestLogger))

		resp, err := next.RoundTrip(req)
		latency := time.Since(start)
		if err != nil {
			requestLogger.ErrorContext(req.Context(), "Request failed",
				slog.String("error", err.Error()),
				slog.Duration("latency", latency),
			)
			return nil, err
		}

		requestLogger.DebugContext(req.Context(), "Request completed",
			slog.Int("status", resp.StatusCode),
			slog.Duration("latency", latency),
		)
		return resp, nil
	})
}
