package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustcart/backoffice-auth/internal/apierror"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.LoginAttempt("staff", "success")
		m.Registration("success")
		m.PermissionCheck("denied")
		m.ActivityEvent("publish", "ok")
	})
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.LoginAttempt("staff", "success")
	m.LoginAttempt("staff", "success")
	m.PermissionCheck("error")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LoginAttemptsTotal.WithLabelValues("staff", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PermissionChecksTotal.WithLabelValues("error")))
}

func TestMiddlewareRecordsRouteTemplate(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/rbac/roles/:role", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/forbidden", func(c echo.Context) error { return apierror.Forbidden("forbidden") })

	for _, p := range []string{"/rbac/roles/admin", "/rbac/roles/staff", "/forbidden"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, p, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/rbac/roles/:role", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/forbidden", "403")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Registration("success")

	e := echo.New()
	e.GET("/metrics", Handler(reg))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "trustcart_auth_registrations_total"))
}
