// Package metrics holds the Prometheus collectors of the auth service.
// Every recording method is safe on a nil *Metrics so components can run
// without instrumentation in tests.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trustcart/backoffice-auth/internal/apierror"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Auth metrics
	LoginAttemptsTotal    *prometheus.CounterVec
	RegistrationsTotal    *prometheus.CounterVec
	PermissionChecksTotal *prometheus.CounterVec

	// Activity stream metrics
	ActivityEventsTotal *prometheus.CounterVec
}

// New creates and registers all collectors on registry.
func New(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trustcart_auth_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trustcart_auth_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		LoginAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trustcart_auth_login_attempts_total",
				Help: "Login attempts by resolved principal kind and outcome",
			},
			[]string{"principal", "result"},
		),
		RegistrationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trustcart_auth_registrations_total",
				Help: "Registration attempts by outcome",
			},
			[]string{"result"},
		),
		PermissionChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trustcart_auth_permission_checks_total",
				Help: "Permission checks by outcome (granted, denied, error)",
			},
			[]string{"result"},
		),
		ActivityEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trustcart_auth_activity_events_total",
				Help: "Activity stream events by stage and outcome",
			},
			[]string{"stage", "result"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.LoginAttemptsTotal,
		m.RegistrationsTotal,
		m.PermissionChecksTotal,
		m.ActivityEventsTotal,
	)
	return m
}

func (m *Metrics) LoginAttempt(principal, result string) {
	if m == nil {
		return
	}
	m.LoginAttemptsTotal.WithLabelValues(principal, result).Inc()
}

func (m *Metrics) Registration(result string) {
	if m == nil {
		return
	}
	m.RegistrationsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) PermissionCheck(result string) {
	if m == nil {
		return
	}
	m.PermissionChecksTotal.WithLabelValues(result).Inc()
}

// ActivityEvent counts an event at stage "publish" or "consume".
func (m *Metrics) ActivityEvent(stage, result string) {
	if m == nil {
		return
	}
	m.ActivityEventsTotal.WithLabelValues(stage, result).Inc()
}

// Middleware records request count and latency per route template, so
// path parameters do not blow up label cardinality.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil && !c.Response().Committed {
				status = apierror.HTTPStatus(err)
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler exposes gatherer in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
