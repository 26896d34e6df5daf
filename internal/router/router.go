package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/trustcart/backoffice-auth/internal/config"
	"github.com/trustcart/backoffice-auth/internal/handler"
	"github.com/trustcart/backoffice-auth/internal/middleware"
)

// Permission slugs that gate the /rbac surface.
const (
	PermViewUsers     = "view-users"
	PermAssignRoles   = "assign-roles"
	PermViewAuditLogs = "view-audit-logs"
)

// RegisterRoutes registers routes that do not require authentication:
// the health check and the Prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler, metrics echo.HandlerFunc) {
	e.GET("/healthz", h.Health)
	if metrics != nil {
		e.GET("/metrics", metrics)
	}
}

// RegisterAuth registers the /auth group.  Login and registration sit
// behind the rate limiter; /auth/me requires a valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, v middleware.TokenVerifier, limit echo.MiddlewareFunc) {
	g := e.Group("/auth")
	if limit != nil {
		g.POST("/login", a.Login, limit)
		g.POST("/register", a.Register, limit)
	} else {
		g.POST("/login", a.Login)
		g.POST("/register", a.Register)
	}
	g.POST("/validate", a.Validate)
	g.GET("/me", a.Me, middleware.JWTAuth(v))
}

// RegisterRBAC registers the /rbac group.  Every route requires a staff
// token; each additionally names the permission it needs.  The permission
// reference routes are served through the response cache after the gate.
func RegisterRBAC(e *echo.Echo, h *handler.RBACHandler, v middleware.TokenVerifier, a middleware.Authorizer, cache echo.MiddlewareFunc, cfg config.Config) {
	g := e.Group("/rbac", middleware.JWTAuth(v))

	view := middleware.RequirePermission(a, PermViewUsers)
	assign := middleware.RequirePermission(a, PermAssignRoles)
	audit := middleware.RequirePermission(a, PermViewAuditLogs)

	g.GET("/roles", h.ListRoles, view)
	g.POST("/roles", h.CreateRole, assign)
	g.GET("/roles/:role", h.GetRole, view)
	g.DELETE("/roles/:role", h.DeactivateRole, assign)
	g.GET("/roles/:role/permissions", h.GetRolePermissions, assign)
	g.PUT("/roles/:role/permissions", h.SetRolePermissions, assign)
	g.POST("/roles/:role/permissions", h.AddRolePermission, assign)
	g.DELETE("/roles/:role/permissions/:permissionId", h.RemoveRolePermission, assign)

	perms := []echo.MiddlewareFunc{view}
	if cache != nil {
		perms = append(perms, cache)
	}
	g.GET("/permissions", h.ListPermissions, perms...)
	g.GET("/permissions/module/:module", h.ListPermissionsByModule, perms...)

	g.GET("/users/:userId/permissions", h.UserPermissions, view)
	g.GET("/users/:userId/roles", h.UserRoles, view)
	g.GET("/users/:userId/check/:permissionSlug", h.CheckPermission, view)
	g.POST("/users/:userId/roles", h.AssignRole, assign)
	g.DELETE("/users/:userId/roles/:roleId", h.RemoveRole, assign)
	g.POST("/users/:userId/permissions", h.GrantPermission, assign)
	g.DELETE("/users/:userId/permissions/:permissionId", h.RevokePermission, assign)

	g.GET("/activity-logs", h.ListActivity, audit)
	g.POST("/activity-logs", h.CreateActivity, audit)

	g.POST("/dev/make-me-admin", h.MakeMeAdmin, middleware.RequireNonProduction(cfg), assign)
}
