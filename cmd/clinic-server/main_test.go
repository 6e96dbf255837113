package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/platform/auth"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:                "development",
		JWTIssuer:          "clinic",
		TokenTTL:           time.Hour,
		CORSOrigins:        []string{"http://localhost:3000"},
		RateLimitRPS:       100,
		RateLimitBurst:     100,
		RequestTimeout:     5 * time.Second,
		BodyLimit:          "1M",
		CancellationWindow: 24 * time.Hour,
	}
}

func newTestRouter(t *testing.T) (*echo.Echo, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store := auth.NewMemoryRevocationStore(time.Minute)
	t.Cleanup(store.Close)

	e := newRouter(routerDeps{
		cfg:         testConfig(),
		loc:         time.UTC,
		pool:        mock,
		revocations: store,
		registry:    prometheus.NewRegistry(),
		logger:      zerolog.Nop(),
	})
	return e, mock
}

func TestRouter_RegistersDomainRoutes(t *testing.T) {
	e, _ := newTestRouter(t)

	want := map[string]bool{
		"POST /api/v1/auth/register":           false,
		"POST /api/v1/auth/login":              false,
		"GET /api/v1/me":                       false,
		"GET /api/v1/patients":                 false,
		"POST /api/v1/patients":                false,
		"GET /api/v1/physicians":               false,
		"GET /api/v1/physicians/:id":           false,
		"GET /api/v1/appointments":             false,
		"POST /api/v1/appointments":            false,
		"PUT /api/v1/appointments/:id":         false,
		"POST /api/v1/appointments/:id/cancel": false,
		"GET /api/v1/appointments/upcoming":    false,
		"GET /api/v1/appointments/concluded":   false,
		"GET /api/v1/dashboard":                false,
		"GET /api/v1/records/:patient_id":      false,
		"PUT /api/v1/records/:patient_id":      false,
		"GET /health":                          false,
		"GET /metrics":                         false,
	}
	for _, r := range e.Routes() {
		key := r.Method + " " + r.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for route, found := range want {
		assert.True(t, found, "route %s not registered", route)
	}
}

func TestRouter_PublicAndProtectedPaths(t *testing.T) {
	e, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "clinic_http_requests_total")
}

func TestRouter_HealthDB(t *testing.T) {
	e, mock := newTestRouter(t)
	mock.ExpectPing()

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/db", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "healthy"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRevocationStore(t *testing.T) {
	ctx := context.Background()

	store, closeFn, err := newRevocationStore(ctx, "")
	require.NoError(t, err)
	defer closeFn()
	_, ok := store.(*auth.MemoryRevocationStore)
	assert.True(t, ok, "expected in-memory store without REDIS_URL")

	mr := miniredis.RunT(t)
	store, closeRedis, err := newRevocationStore(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	defer closeRedis()
	require.NoError(t, store.Revoke(ctx, "jti-1", "user-1", time.Now().Add(time.Hour)))
	revoked, err := store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	_, _, err = newRevocationStore(ctx, "://bad")
	assert.Error(t, err)
}
