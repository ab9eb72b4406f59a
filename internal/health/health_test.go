package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecker_Health(t *testing.T) {
	t.Parallel()

	c := NewChecker("1.2.3")
	w := httptest.NewRecorder()
	c.HealthHandler()(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, contentTypeJSON, w.Header().Get(headerContentType))

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
}

func TestChecker_Readiness(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checks     map[string]CheckFunc
		draining   bool
		wantStatus Status
		wantCode   int
	}{
		{
			name:       "no checks",
			wantStatus: StatusHealthy,
			wantCode:   http.StatusOK,
		},
		{
			name:       "routes configured",
			checks:     map[string]CheckFunc{"routes": RouteTableCheck(func() int { return 4 })},
			wantStatus: StatusHealthy,
			wantCode:   http.StatusOK,
		},
		{
			name:       "no routes",
			checks:     map[string]CheckFunc{"routes": RouteTableCheck(func() int { return 0 })},
			wantStatus: StatusUnhealthy,
			wantCode:   http.StatusServiceUnavailable,
		},
		{
			name: "degraded is still ready",
			checks: map[string]CheckFunc{
				"routes": RouteTableCheck(func() int { return 1 }),
				"slow":   func() Check { return Check{Status: StatusDegraded} },
			},
			wantStatus: StatusDegraded,
			wantCode:   http.StatusOK,
		},
		{
			name: "unhealthy wins over degraded",
			checks: map[string]CheckFunc{
				"a": func() Check { return Check{Status: StatusUnhealthy} },
				"b": func() Check { return Check{Status: StatusDegraded} },
			},
			wantStatus: StatusUnhealthy,
			wantCode:   http.StatusServiceUnavailable,
		},
		{
			name:       "draining",
			draining:   true,
			wantStatus: StatusUnhealthy,
			wantCode:   http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := NewChecker("test")
			for name, fn := range tt.checks {
				c.RegisterCheck(name, fn)
			}
			c.SetDraining(tt.draining)

			w := httptest.NewRecorder()
			c.ReadinessHandler()(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

			assert.Equal(t, tt.wantCode, w.Code)
			var resp ReadinessResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
		})
	}
}

func TestChecker_UnregisterCheck(t *testing.T) {
	t.Parallel()

	c := NewChecker("test")
	c.RegisterCheck("bad", func() Check { return Check{Status: StatusUnhealthy} })
	assert.Equal(t, StatusUnhealthy, c.Readiness().Status)

	c.UnregisterCheck("bad")
	assert.Equal(t, StatusHealthy, c.Readiness().Status)
}

func TestChecker_Liveness(t *testing.T) {
	t.Parallel()

	c := NewChecker("test")
	c.SetDraining(true)

	w := httptest.NewRecorder()
	c.LivenessHandler()(w, httptest.NewRequest(http.MethodGet, "/live", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestRouteTableCheck_Message(t *testing.T) {
	t.Parallel()

	check := RouteTableCheck(func() int { return 2 })()
	assert.Equal(t, "2 routes configured", check.Message)
}
