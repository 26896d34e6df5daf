package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/trustcart/backoffice-auth/internal/apierror"
	"github.com/trustcart/backoffice-auth/internal/middleware"
	"github.com/trustcart/backoffice-auth/internal/model"
	"github.com/trustcart/backoffice-auth/internal/service"
)

// RBACAPI is the part of the RBAC service the HTTP surface uses.
type RBACAPI interface {
	FindAllRoles(ctx context.Context) ([]model.Role, error)
	FindRoleBySlug(ctx context.Context, slug string) (model.Role, error)
	CreateRole(ctx context.Context, in service.CreateRoleInput) (model.Role, error)
	DeactivateRole(ctx context.Context, roleID uint64) error
	FindAllPermissions(ctx context.Context) ([]model.Permission, error)
	FindPermissionsByModule(ctx context.Context, module string) ([]model.Permission, error)
	GetRolePermissions(ctx context.Context, roleID uint64) ([]model.Permission, error)
	SetRolePermissions(ctx context.Context, roleID uint64, permissionIDs []uint64) error
	AddPermissionToRole(ctx context.Context, roleID, permissionID uint64) error
	RemovePermissionFromRole(ctx context.Context, roleID, permissionID uint64) error
	GetUserRoles(ctx context.Context, userID uint64) ([]model.Role, error)
	GetUserPermissions(ctx context.Context, userID uint64) ([]model.Permission, error)
	CheckPermission(ctx context.Context, userID uint64, permissionSlug string) bool
	AssignRoleToUser(ctx context.Context, userID, roleID uint64, assignedBy *uint64) error
	RemoveRoleFromUser(ctx context.Context, userID, roleID uint64) error
	GrantPermissionToUser(ctx context.Context, userID, permissionID uint64, grantedBy *uint64) error
	RevokePermissionFromUser(ctx context.Context, userID, permissionID uint64, revokedBy *uint64) error
	LogActivity(ctx context.Context, e model.ActivityLog) error
	GetActivityLogs(ctx context.Context, f model.ActivityFilter) ([]model.ActivityLog, error)
	MakeAdmin(ctx context.Context, userID uint64) (string, error)
}

// RBACHandler serves /rbac.  Successful mutations are written to the
// activity log; a failed audit write never fails the request.
type RBACHandler struct {
	RBAC RBACAPI
	Log  *logrus.Entry
}

func NewRBACHandler(r RBACAPI, log *logrus.Entry) *RBACHandler {
	return &RBACHandler{RBAC: r, Log: log}
}

type roleIDReq struct {
	RoleID uint64 `json:"roleId"`
}

type permissionIDReq struct {
	PermissionID uint64 `json:"permissionId"`
	Granted      *bool  `json:"granted"`
}

type permissionIDsReq struct {
	PermissionIDs []uint64 `json:"permissionIds"`
}

type activityReq struct {
	Module       string `json:"module"`
	Action       string `json:"action"`
	ResourceType string `json:"resourceType"`
	ResourceID   string `json:"resourceId"`
	Description  string `json:"description"`
}

func message(c echo.Context, msg string) error {
	return c.JSON(http.StatusOK, echo.Map{"message": msg})
}

func parseID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apierror.BadRequest("invalid " + name)
	}
	return id, nil
}

// actor returns the caller's id for assigned_by / granted_by columns.
func actor(c echo.Context) *uint64 {
	if id, ok := middleware.IdentityFrom(c); ok {
		v := id.ID
		return &v
	}
	return nil
}

func (h *RBACHandler) audit(c echo.Context, action, resourceType string, resourceID uint64, desc string) {
	entry := model.ActivityLog{
		UserID:       actor(c),
		Module:       "rbac",
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   strconv.FormatUint(resourceID, 10),
		Description:  desc,
		IPAddress:    c.RealIP(),
		UserAgent:    c.Request().UserAgent(),
	}
	if id, ok := middleware.IdentityFrom(c); ok {
		entry.RoleSlug = id.RoleSlug
	}
	if err := h.RBAC.LogActivity(c.Request().Context(), entry); err != nil {
		h.Log.WithError(err).WithField("action", action).Warn("activity log write failed")
	}
}

// ----- roles -----

func (h *RBACHandler) ListRoles(c echo.Context) error {
	roles, err := h.RBAC.FindAllRoles(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, roles)
}

// GetRole resolves the :role segment as a slug.
func (h *RBACHandler) GetRole(c echo.Context) error {
	role, err := h.RBAC.FindRoleBySlug(c.Request().Context(), c.Param("role"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, role)
}

func (h *RBACHandler) CreateRole(c echo.Context) error {
	var req service.CreateRoleInput
	if err := c.Bind(&req); err != nil {
		return apierror.BadRequest("invalid body")
	}
	role, err := h.RBAC.CreateRole(c.Request().Context(), req)
	if err != nil {
		return err
	}
	h.audit(c, "create-role", "role", role.ID, "created role "+role.Slug)
	return c.JSON(http.StatusCreated, role)
}

func (h *RBACHandler) DeactivateRole(c echo.Context) error {
	id, err := parseID(c, "role")
	if err != nil {
		return err
	}
	if err := h.RBAC.DeactivateRole(c.Request().Context(), id); err != nil {
		return err
	}
	h.audit(c, "deactivate-role", "role", id, "")
	return message(c, "Role deactivated")
}

func (h *RBACHandler) GetRolePermissions(c echo.Context) error {
	id, err := parseID(c, "role")
	if err != nil {
		return err
	}
	perms, err := h.RBAC.GetRolePermissions(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, perms)
}

func (h *RBACHandler) SetRolePermissions(c echo.Context) error {
	id, err := parseID(c, "role")
	if err != nil {
		return err
	}
	var req permissionIDsReq
	if err := c.Bind(&req); err != nil || req.PermissionIDs == nil {
		return apierror.BadRequest("permissionIds is required")
	}
	if err := h.RBAC.SetRolePermissions(c.Request().Context(), id, req.PermissionIDs); err != nil {
		return err
	}
	h.audit(c, "set-role-permissions", "role", id, fmt.Sprintf("%d permissions", len(req.PermissionIDs)))
	return message(c, "Role permissions updated")
}

func (h *RBACHandler) AddRolePermission(c echo.Context) error {
	id, err := parseID(c, "role")
	if err != nil {
		return err
	}
	var req permissionIDReq
	if err := c.Bind(&req); err != nil || req.PermissionID == 0 {
		return apierror.BadRequest("permissionId is required")
	}
	if err := h.RBAC.AddPermissionToRole(c.Request().Context(), id, req.PermissionID); err != nil {
		return err
	}
	h.audit(c, "add-role-permission", "role", id, fmt.Sprintf("permission %d", req.PermissionID))
	return message(c, "Permission added to role")
}

func (h *RBACHandler) RemoveRolePermission(c echo.Context) error {
	id, err := parseID(c, "role")
	if err != nil {
		return err
	}
	pid, err := parseID(c, "permissionId")
	if err != nil {
		return err
	}
	if err := h.RBAC.RemovePermissionFromRole(c.Request().Context(), id, pid); err != nil {
		return err
	}
	h.audit(c, "remove-role-permission", "role", id, fmt.Sprintf("permission %d", pid))
	return message(c, "Permission removed from role")
}

// ----- permissions -----

func (h *RBACHandler) ListPermissions(c echo.Context) error {
	perms, err := h.RBAC.FindAllPermissions(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, perms)
}

func (h *RBACHandler) ListPermissionsByModule(c echo.Context) error {
	perms, err := h.RBAC.FindPermissionsByModule(c.Request().Context(), c.Param("module"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, perms)
}

// ----- users -----

func (h *RBACHandler) UserRoles(c echo.Context) error {
	uid, err := parseID(c, "userId")
	if err != nil {
		return err
	}
	roles, err := h.RBAC.GetUserRoles(c.Request().Context(), uid)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, roles)
}

func (h *RBACHandler) UserPermissions(c echo.Context) error {
	uid, err := parseID(c, "userId")
	if err != nil {
		return err
	}
	perms, err := h.RBAC.GetUserPermissions(c.Request().Context(), uid)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, perms)
}

func (h *RBACHandler) CheckPermission(c echo.Context) error {
	uid, err := parseID(c, "userId")
	if err != nil {
		return err
	}
	ok := h.RBAC.CheckPermission(c.Request().Context(), uid, c.Param("permissionSlug"))
	return c.JSON(http.StatusOK, echo.Map{"hasPermission": ok})
}

func (h *RBACHandler) AssignRole(c echo.Context) error {
	uid, err := parseID(c, "userId")
	if err != nil {
		return err
	}
	var req roleIDReq
	if err := c.Bind(&req); err != nil || req.RoleID == 0 {
		return apierror.BadRequest("roleId is required")
	}
	if err := h.RBAC.AssignRoleToUser(c.Request().Context(), uid, req.RoleID, actor(c)); err != nil {
		return err
	}
	h.audit(c, "assign-role", "user", uid, fmt.Sprintf("role %d", req.RoleID))
	return message(c, "Role assigned")
}

func (h *RBACHandler) RemoveRole(c echo.Context) error {
	uid, err := parseID(c, "userId")
	if err != nil {
		return err
	}
	rid, err := parseID(c, "roleId")
	if err != nil {
		return err
	}
	if err := h.RBAC.RemoveRoleFromUser(c.Request().Context(), uid, rid); err != nil {
		return err
	}
	h.audit(c, "remove-role", "user", uid, fmt.Sprintf("role %d", rid))
	return message(c, "Role removed")
}

// GrantPermission records a direct grant, or a revocation when the body
// carries "granted": false.
func (h *RBACHandler) GrantPermission(c echo.Context) error {
	uid, err := parseID(c, "userId")
	if err != nil {
		return err
	}
	var req permissionIDReq
	if err := c.Bind(&req); err != nil || req.PermissionID == 0 {
		return apierror.BadRequest("permissionId is required")
	}
	if req.Granted != nil && !*req.Granted {
		return h.revoke(c, uid, req.PermissionID)
	}
	if err := h.RBAC.GrantPermissionToUser(c.Request().Context(), uid, req.PermissionID, actor(c)); err != nil {
		return err
	}
	h.audit(c, "grant-permission", "user", uid, fmt.Sprintf("permission %d", req.PermissionID))
	return message(c, "Permission granted")
}

func (h *RBACHandler) RevokePermission(c echo.Context) error {
	uid, err := parseID(c, "userId")
	if err != nil {
		return err
	}
	pid, err := parseID(c, "permissionId")
	if err != nil {
		return err
	}
	return h.revoke(c, uid, pid)
}

func (h *RBACHandler) revoke(c echo.Context, uid, pid uint64) error {
	if err := h.RBAC.RevokePermissionFromUser(c.Request().Context(), uid, pid, actor(c)); err != nil {
		return err
	}
	h.audit(c, "revoke-permission", "user", uid, fmt.Sprintf("permission %d", pid))
	return message(c, "Permission revoked")
}

// ----- activity log -----

func (h *RBACHandler) ListActivity(c echo.Context) error {
	f, err := activityFilter(c)
	if err != nil {
		return err
	}
	logs, err := h.RBAC.GetActivityLogs(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, logs)
}

func (h *RBACHandler) CreateActivity(c echo.Context) error {
	var req activityReq
	if err := c.Bind(&req); err != nil {
		return apierror.BadRequest("invalid body")
	}
	entry := model.ActivityLog{
		UserID:       actor(c),
		Module:       req.Module,
		Action:       req.Action,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Description:  req.Description,
		IPAddress:    c.RealIP(),
		UserAgent:    c.Request().UserAgent(),
	}
	if id, ok := middleware.IdentityFrom(c); ok {
		entry.RoleSlug = id.RoleSlug
	}
	if err := h.RBAC.LogActivity(c.Request().Context(), entry); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"message": "Activity logged"})
}

// activityFilter reads userId, module, from, to and limit.  Dates accept
// RFC 3339 or YYYY-MM-DD; a bare "to" date covers the whole day.
func activityFilter(c echo.Context) (model.ActivityFilter, error) {
	var f model.ActivityFilter
	if v := c.QueryParam("userId"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return f, apierror.BadRequest("invalid userId")
		}
		f.UserID = &id
	}
	f.Module = strings.TrimSpace(c.QueryParam("module"))
	for _, p := range []struct {
		name   string
		dst    **time.Time
		endDay bool
	}{{"from", &f.From, false}, {"to", &f.To, true}} {
		v := c.QueryParam(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			d, derr := time.Parse(time.DateOnly, v)
			if derr != nil {
				return f, apierror.BadRequest("invalid " + p.name)
			}
			t = d
			if p.endDay {
				t = d.Add(24*time.Hour - time.Nanosecond)
			}
		}
		*p.dst = &t
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, apierror.BadRequest("invalid limit")
		}
		f.Limit = n
	}
	return f, nil
}

// ----- development -----

// MakeMeAdmin escalates the caller.  The route is guarded by
// RequireNonProduction.
func (h *RBACHandler) MakeMeAdmin(c echo.Context) error {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return apierror.Unauthorized("Unauthorized")
	}
	slug, err := h.RBAC.MakeAdmin(c.Request().Context(), id.ID)
	if err != nil {
		return err
	}
	h.audit(c, "make-me-admin", "user", id.ID, "self-escalated to "+slug)
	return c.JSON(http.StatusOK, echo.Map{"message": "Role updated, log in again to refresh your token", "role": slug})
}
