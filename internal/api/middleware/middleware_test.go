package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gatherly-live/server/internal/auth"
	"github.com/gatherly-live/server/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCorrelationIDGeneratesAndEchoes(t *testing.T) {
	var seen string
	handler := CorrelationID(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotEmpty(t, seen)
	require.Equal(t, seen, res.Header().Get("X-Request-ID"))
}

func TestCorrelationIDHonorsClientHeader(t *testing.T) {
	handler := CorrelationID(zerolog.Nop())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "client-chosen-id")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	require.Equal(t, "client-chosen-id", res.Header().Get("X-Request-ID"))
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	jwt := auth.NewJWTManager("middleware-test-secret-0000000000", time.Hour, "gatherly-test")
	handler := RequireAuth(jwt, "test")(okHandler())

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusUnauthorized, res.Code)
	require.Equal(t, "application/problem+json", res.Header().Get("Content-Type"))
}

func TestRequireAuthPassesIdentityThrough(t *testing.T) {
	jwt := auth.NewJWTManager("middleware-test-secret-0000000000", time.Hour, "gatherly-test")
	token, err := jwt.Generate("user-1", "ada@example.org", "user")
	require.NoError(t, err)

	var identity auth.Identity
	handler := RequireAuth(jwt, "test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ = IdentityFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "user-1", identity.ID)
	require.Equal(t, "ada@example.org", identity.Email)
}

func TestRequireAuthRejectsGarbageToken(t *testing.T) {
	jwt := auth.NewJWTManager("middleware-test-secret-0000000000", time.Hour, "gatherly-test")
	handler := RequireAuth(jwt, "test")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not.a.jwt")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestRateLimitEnforcesLoginTier(t *testing.T) {
	// The tier stamp wraps the limiter, mirroring how the router composes
	// the two per route.
	handler := WithRateLimitTierHandler(TierLogin)(
		RateLimit(config.RateLimitConfig{LoginPerMinute: 2})(okHandler()))

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = "198.51.100.9:4242"
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		statuses = append(statuses, res.Code)
	}

	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, statuses)
}

func TestRateLimitSkipsHealthEndpoints(t *testing.T) {
	handler := RateLimit(config.RateLimitConfig{PublicPerMinute: 1})(okHandler())

	for i := 0; i < 5; i++ {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Equal(t, http.StatusOK, res.Code)
	}
}

func TestRequestSizeCapsBody(t *testing.T) {
	handler := RequestSize(16)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		if _, err := r.Body.Read(buf); err != nil && err.Error() == "http: request body too large" {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 64)))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, res.Code)
}
