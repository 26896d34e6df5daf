package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustcart/backoffice-auth/internal/apierror"
	"github.com/trustcart/backoffice-auth/internal/config"
	"github.com/trustcart/backoffice-auth/internal/handler"
	"github.com/trustcart/backoffice-auth/internal/metrics"
	"github.com/trustcart/backoffice-auth/internal/model"
	"github.com/trustcart/backoffice-auth/internal/service"
	"github.com/trustcart/backoffice-auth/internal/utils"
)

type grants map[uint64][]string

func (g grants) Authorize(_ context.Context, userID uint64, slugs ...string) error {
	held := map[string]bool{}
	for _, s := range g[userID] {
		held[s] = true
	}
	for _, s := range slugs {
		if !held[s] {
			return apierror.Forbidden("Forbidden")
		}
	}
	return nil
}

type rbacStub struct {
	handler.RBACAPI
}

func (rbacStub) FindAllRoles(context.Context) ([]model.Role, error) {
	return []model.Role{{ID: 1, Slug: "super-admin"}}, nil
}

func (rbacStub) CreateRole(_ context.Context, in service.CreateRoleInput) (model.Role, error) {
	return model.Role{ID: 9, Slug: in.Slug}, nil
}

func (rbacStub) FindAllPermissions(context.Context) ([]model.Permission, error) {
	return []model.Permission{{ID: 1, Slug: "view-users"}}, nil
}

func (rbacStub) GetActivityLogs(context.Context, model.ActivityFilter) ([]model.ActivityLog, error) {
	return []model.ActivityLog{}, nil
}

func (rbacStub) LogActivity(context.Context, model.ActivityLog) error { return nil }

func (rbacStub) MakeAdmin(context.Context, uint64) (string, error) { return "super-admin", nil }

func nullLog() *logrus.Entry {
	l, _ := test.NewNullLogger()
	return logrus.NewEntry(l)
}

type fixture struct {
	e   *echo.Echo
	iss *utils.TokenIssuer
}

func newFixture(t *testing.T, env string, g grants) fixture {
	t.Helper()
	iss, err := utils.NewTokenIssuer("router-secret")
	require.NoError(t, err)

	e := echo.New()
	e.HTTPErrorHandler = handler.ErrorHandler(nullLog())
	reg := prometheus.NewRegistry()
	metrics.New(reg)

	RegisterRoutes(e, &handler.HealthHandler{}, metrics.Handler(reg))
	RegisterRBAC(e, handler.NewRBACHandler(rbacStub{}, nullLog()), iss, g, nil, config.Config{Env: env})
	return fixture{e: e, iss: iss}
}

func (f fixture) token(t *testing.T, id uint64, typ string) string {
	t.Helper()
	tok, err := f.iss.Issue(utils.Claims{ID: id, Email: "u@example.com", Type: typ})
	require.NoError(t, err)
	return tok.Token
}

func (f fixture) do(method, path, token string) int {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec.Code
}

func TestPublicRoutes(t *testing.T) {
	f := newFixture(t, "dev", nil)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", ""))
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/metrics", ""))
}

func TestRBACGates(t *testing.T) {
	g := grants{
		1: {PermViewUsers, PermAssignRoles, PermViewAuditLogs},
		2: {PermViewUsers},
	}
	f := newFixture(t, "dev", g)
	admin := f.token(t, 1, utils.TypeStaff)
	viewer := f.token(t, 2, utils.TypeStaff)
	nobody := f.token(t, 3, utils.TypeStaff)
	customer := f.token(t, 1, utils.TypeCustomer)

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"no token", http.MethodGet, "/rbac/roles", "", http.StatusUnauthorized},
		{"customer sharing a staff id", http.MethodGet, "/rbac/roles", customer, http.StatusForbidden},
		{"staff without grants", http.MethodGet, "/rbac/roles", nobody, http.StatusForbidden},
		{"viewer reads roles", http.MethodGet, "/rbac/roles", viewer, http.StatusOK},
		{"viewer reads permissions", http.MethodGet, "/rbac/permissions", viewer, http.StatusOK},
		{"viewer cannot create roles", http.MethodPost, "/rbac/roles", viewer, http.StatusForbidden},
		{"viewer cannot read audit log", http.MethodGet, "/rbac/activity-logs", viewer, http.StatusForbidden},
		{"admin reads audit log", http.MethodGet, "/rbac/activity-logs", admin, http.StatusOK},
		{"admin escalates outside production", http.MethodPost, "/rbac/dev/make-me-admin", admin, http.StatusOK},
		{"viewer cannot escalate", http.MethodPost, "/rbac/dev/make-me-admin", viewer, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, f.do(tc.method, tc.path, tc.token))
		})
	}
}

func TestMakeMeAdminDisabledInProduction(t *testing.T) {
	f := newFixture(t, "production", grants{1: {PermAssignRoles}})
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPost, "/rbac/dev/make-me-admin", f.token(t, 1, utils.TypeStaff)))
}
