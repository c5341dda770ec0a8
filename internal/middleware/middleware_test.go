package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

func TestGetLoggerFromCtx(t *testing.T) {
	assert.Equal(t, slog.Default(), GetLoggerFromCtx(context.Background()))

	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, GetLoggerFromCtx(ctx))
}

func TestStructuredLogging(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var seen *slog.Logger
	inner := RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		seen = GetLoggerFromCtx(req.Context())
		return http.DefaultTransport.RoundTrip(req)
	})
	client := &http.Client{Transport: StructuredLogging(inner, logger)}

	resp, err := client.Get(srv.URL + "/accounts")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.NotSame(t, logger, seen, "request logger should be derived from the base logger")
	assert.Contains(t, buf.String(), `"request_id"`)
	assert.Contains(t, buf.String(), `"path":"/accounts"`)
	assert.Contains(t, buf.String(), `"status":418`)
}

func TestRateLimit_AllowsWithinLimit(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	l := limiter.New(memory.NewStore(), limiter.Rate{Period: time.Minute, Limit: 5})
	client := &http.Client{Transport: RateLimit(nil, l, "test")}

	for i := 0; i < 5; i++ {
		resp, err := client.Get(srv.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}
	assert.Equal(t, 5, calls)
}

func TestRateLimit_HonoursContextWhileWaiting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	l := limiter.New(memory.NewStore(), limiter.Rate{Period: time.Hour, Limit: 1})
	client := &http.Client{Transport: RateLimit(nil, l, "test")}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = client.Do(req)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
