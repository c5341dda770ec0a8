package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ulule/limiter/v3"
)

// RateLimit wraps next so outbound requests sharing key stay within the
// limiter's rate. Requests over the limit wait for the window to reset
// instead of failing.
func RateLimit(next http.RoundTripper, limiterInstance *limiter.Limiter, key string) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		ctx := req.Context()
		for {
			lctx, err := limiterInstance.Get(ctx, key)
			if err != nil {
				GetLoggerFromCtx(ctx).ErrorContext(ctx, "Failed to get rate limit context", slog.String("key", key), slog.String("error", err.Error()))
				return nil, err
			}
			if !lctx.Reached {
				break
			}

			wait := time.Until(time.Unix(lctx.Reset, 0))
			GetLoggerFromCtx(ctx).WarnContext(ctx, "Rate limit reached, waiting",
				slog.String("key", key),
				slog.Int64("limit", lctx.Limit),
				slog.Duration("wait", wait),
			)
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
		return next.RoundTrip(req)
	})
}
