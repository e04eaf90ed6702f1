package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthOK(_ context.Context) error { return nil }

func healthErr(msg string) func(context.Context) error {
	return func(_ context.Context) error { return errors.New(msg) }
}

func newHealthContext(path string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandleStartup(t *testing.T) {
	c, rec := newHealthContext("/health/startup")

	env := newTestServer(t,
		withHealthChecks(
			HealthCheck{Name: "redis_bridge", Check: healthOK},
		),
	)

	err := env.srv.handleStartup(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready","checks":{"redis_bridge":"ok"}}`, rec.Body.String())
}

func TestHandleStartup_BridgeDown(t *testing.T) {
	c, rec := newHealthContext("/health/startup")

	env := newTestServer(t,
		withHealthChecks(
			HealthCheck{Name: "redis_bridge", Check: healthErr("bridge is not subscribed")},
		),
	)

	err := env.srv.handleStartup(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"redis_bridge":"bridge is not subscribed"}}`, rec.Body.String())
}

func TestHandleLiveness(t *testing.T) {
	c, rec := newHealthContext("/health/live")

	env := newTestServer(t, withHealthChecks(
		HealthCheck{Name: "redis_bridge", Check: healthErr("connection refused")},
	))
	env.clock.Advance(90 * time.Second)

	err := env.srv.handleLiveness(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code, "liveness ignores dependency checks")
	assert.JSONEq(t, `{"status":"ok","uptime":90,"version":"dev"}`, rec.Body.String())
}

func TestHandleReadiness_NoChecks(t *testing.T) {
	c, rec := newHealthContext("/health/ready")

	env := newTestServer(t)
	err := env.srv.handleReadiness(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready","checks":{}}`, rec.Body.String())
}

func TestHandleReadiness_ReportsEveryCheck(t *testing.T) {
	tests := []struct {
		name       string
		checks     []HealthCheck
		wantStatus int
		wantBody   string
	}{
		{
			name: "all healthy",
			checks: []HealthCheck{
				{Name: "redis_bridge", Check: healthOK},
				{Name: "upstream_dns", Check: healthOK},
			},
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ready","checks":{"redis_bridge":"ok","upstream_dns":"ok"}}`,
		},
		{
			name: "one failing",
			checks: []HealthCheck{
				{Name: "redis_bridge", Check: healthErr("connection refused")},
				{Name: "upstream_dns", Check: healthOK},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   `{"status":"unhealthy","checks":{"redis_bridge":"connection refused","upstream_dns":"ok"}}`,
		},
		{
			name: "all failing",
			checks: []HealthCheck{
				{Name: "redis_bridge", Check: healthErr("connection refused")},
				{Name: "upstream_dns", Check: healthErr("no such host")},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   `{"status":"unhealthy","checks":{"redis_bridge":"connection refused","upstream_dns":"no such host"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newHealthContext("/health/ready")
			env := newTestServer(t, withHealthChecks(tt.checks...))

			require.NoError(t, env.srv.handleReadiness(c))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestHandleReadiness_ChecksGetDeadline(t *testing.T) {
	c, rec := newHealthContext("/health/ready")

	var deadline time.Time
	env := newTestServer(t, withHealthChecks(HealthCheck{Name: "redis_bridge", Check: func(ctx context.Context) error {
		deadline, _ = ctx.Deadline()
		return nil
	}}))

	require.NoError(t, env.srv.handleReadiness(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, deadline.IsZero())
}

func TestHandleVersion(t *testing.T) {
	c, rec := newHealthContext("/version")

	env := newTestServer(t)
	err := env.srv.handleVersion(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `"name":"streamrelay"`)
	assert.Contains(t, body, `"version"`)
	assert.Contains(t, body, `"commit"`)
	assert.Contains(t, body, `"build_time"`)
	assert.Contains(t, body, `"go_version"`)
}
