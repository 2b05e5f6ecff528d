package middleware_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DanielPopoola/x402-gateway/internal/config"
	"github.com/DanielPopoola/x402-gateway/internal/interfaces/rest"
	"github.com/DanielPopoola/x402-gateway/internal/interfaces/rest/middleware"
	"github.com/DanielPopoola/x402-gateway/internal/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestRequestID(t *testing.T) {
	var seen string
	h := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = middleware.GetRequestID(r.Context())
	}))

	t.Run("generates an id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		_, err := uuid.Parse(seen)
		require.NoError(t, err)
		assert.Equal(t, seen, rec.Header().Get(middleware.RequestIDHeader))
	})

	t.Run("keeps a valid caller id", func(t *testing.T) {
		id := uuid.NewString()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(middleware.RequestIDHeader, id)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, id, seen)
	})

	t.Run("replaces garbage", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(middleware.RequestIDHeader, "<script>")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.NotEqual(t, "<script>", seen)
		_, err := uuid.Parse(seen)
		assert.NoError(t, err)
	})
}

func TestRecovery(t *testing.T) {
	h := middleware.Recovery(discard)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	panics := testutil.ToFloat64(metrics.PanicsRecovered)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, panics+1, testutil.ToFloat64(metrics.PanicsRecovered))

	var body rest.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Server error", body.Error)
	assert.Equal(t, "INTERNAL_ERROR", body.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestRecovery_AfterResponseStarted(t *testing.T) {
	h := middleware.Recovery(discard)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data":`))
		panic("boom")
	}))

	panics := testutil.ToFloat64(metrics.PanicsRecovered)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"data":`, rec.Body.String(), "no error body is appended to a started response")
	assert.Equal(t, panics+1, testutil.ToFloat64(metrics.PanicsRecovered))
}

func TestRecovery_AbortHandlerPropagates(t *testing.T) {
	h := middleware.Recovery(discard)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestTimeout(t *testing.T) {
	h := middleware.Timeout(20 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"Service unavailable","code":"TIMEOUT","message":"Request timeout"}`, rec.Body.String())
}

func newLimiter(t *testing.T, burst int, trustedProxies ...string) *middleware.RateLimiter {
	t.Helper()
	l, err := middleware.NewRateLimiter(config.RateLimitConfig{
		Enabled:           true,
		RequestsPerSecond: 0.001,
		Burst:             burst,
		IdleTTL:           time.Minute,
	}, trustedProxies, discard)
	require.NoError(t, err)
	return l
}

func TestRateLimiter_PerClientBuckets(t *testing.T) {
	l := newLimiter(t, 2)

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))

	assert.True(t, l.Allow("10.0.0.2"), "other clients keep their own budget")
}

func TestRateLimiter_AllowChallenge(t *testing.T) {
	l := newLimiter(t, 1)

	send := func() (bool, *httptest.ResponseRecorder) {
		req := httptest.NewRequest(http.MethodGet, "/api/premium-data", nil)
		req.RemoteAddr = "192.0.2.7:51234"
		rec := httptest.NewRecorder()
		return l.AllowChallenge(rec, req), rec
	}

	allowed, rec := send()
	assert.True(t, allowed)
	assert.Zero(t, rec.Body.Len(), "nothing written when allowed")

	allowed, rec = send()
	assert.False(t, allowed)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	var body rest.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "RATE_LIMITED", body.Code)
}

func TestRateLimiter_NilAllowsEverything(t *testing.T) {
	var l *middleware.RateLimiter
	rec := httptest.NewRecorder()

	assert.True(t, l.AllowChallenge(rec, httptest.NewRequest(http.MethodGet, "/", nil)))
	assert.Zero(t, rec.Body.Len())
}

func TestRateLimiter_ClientIP(t *testing.T) {
	tests := []struct {
		name    string
		trusted []string
		remote  string
		xff     string
		realIP  string
		want    string
	}{
		{name: "no proxies configured ignores headers", remote: "192.0.2.7:1000", xff: "198.51.100.1", realIP: "198.51.100.2", want: "192.0.2.7"},
		{name: "untrusted peer ignores headers", trusted: []string{"10.0.0.0/8"}, remote: "192.0.2.7:1000", xff: "198.51.100.1", want: "192.0.2.7"},
		{name: "trusted peer uses forwarded client", trusted: []string{"10.0.0.0/8"}, remote: "10.1.2.3:1000", xff: "198.51.100.1", want: "198.51.100.1"},
		{name: "spoofed leftmost hop is skipped", trusted: []string{"10.0.0.0/8"}, remote: "10.1.2.3:1000", xff: "1.2.3.4, 198.51.100.1, 10.9.9.9", want: "198.51.100.1"},
		{name: "trusted peer falls back to X-Real-IP", trusted: []string{"10.0.0.1"}, remote: "10.0.0.1:1000", realIP: "198.51.100.2", want: "198.51.100.2"},
		{name: "garbage header keeps peer", trusted: []string{"10.0.0.1"}, remote: "10.0.0.1:1000", xff: "not-an-ip", want: "10.0.0.1"},
		{name: "ipv6 peer", remote: "[2001:db8::1]:1000", xff: "198.51.100.1", want: "2001:db8::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLimiter(t, 1, tt.trusted...)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}

			assert.Equal(t, tt.want, l.ClientIP(req))
		})
	}
}

func TestNewRateLimiter_RejectsBadProxy(t *testing.T) {
	_, err := middleware.NewRateLimiter(config.RateLimitConfig{Burst: 1}, []string{"10.0.0.0/33"}, discard)
	assert.Error(t, err)
}
