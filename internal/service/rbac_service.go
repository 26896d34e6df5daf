package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/trustcart/backoffice-auth/internal/apierror"
	"github.com/trustcart/backoffice-auth/internal/metrics"
	"github.com/trustcart/backoffice-auth/internal/model"
	"github.com/trustcart/backoffice-auth/internal/repository"
)

type RoleStore interface {
	ListActive(ctx context.Context) ([]model.Role, error)
	GetBySlug(ctx context.Context, slug string) (model.Role, error)
	Create(ctx context.Context, role model.Role) (uint64, error)
	Deactivate(ctx context.Context, id uint64) error
	ListPermissions(ctx context.Context) ([]model.Permission, error)
	ListPermissionsByModule(ctx context.Context, module string) ([]model.Permission, error)
	RolePermissions(ctx context.Context, roleID uint64) ([]model.Permission, error)
	SetRolePermissions(ctx context.Context, roleID uint64, permissionIDs []uint64) error
	AddRolePermission(ctx context.Context, roleID, permissionID uint64) error
	RemoveRolePermission(ctx context.Context, roleID, permissionID uint64) error
}

type UserAccessStore interface {
	UserRoles(ctx context.Context, userID uint64) ([]model.Role, error)
	RoleDerivedPermissions(ctx context.Context, userID uint64) ([]model.Permission, error)
	PermissionOverrides(ctx context.Context, userID uint64) ([]repository.PermissionOverride, error)
	PermissionFacts(ctx context.Context, userID uint64, permissionSlug string) (bool, *bool, error)
	AssignRole(ctx context.Context, userID, roleID uint64, assignedBy *uint64) error
	RemoveRole(ctx context.Context, userID, roleID uint64) error
	SetPermissionOverride(ctx context.Context, userID, permissionID uint64, granted bool, grantedBy *uint64) error
}

type ActivityStore interface {
	Insert(ctx context.Context, e model.ActivityLog) (uint64, error)
	List(ctx context.Context, f model.ActivityFilter) ([]model.ActivityLog, error)
}

// StaffRoleUpdater moves a staff account's primary role.
type StaffRoleUpdater interface {
	UpdateRole(ctx context.Context, id, roleID uint64) error
}

// RBACDeps wires an RBACService.  Staff and Metrics may be nil.
type RBACDeps struct {
	Roles    RoleStore
	Access   UserAccessStore
	Activity ActivityStore
	Staff    StaffRoleUpdater
	Metrics  *metrics.Metrics
	Log      *logrus.Entry
	Timeout  time.Duration
}

// RBACService computes authorization facts with a fresh query per call and
// applies RBAC mutations.
type RBACService struct {
	RBACDeps
}

func NewRBACService(d RBACDeps) *RBACService {
	if d.Timeout <= 0 {
		d.Timeout = 5 * time.Second
	}
	if d.Log == nil {
		d.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &RBACService{RBACDeps: d}
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// adminRoleSlugs are tried in order by MakeAdmin.
var adminRoleSlugs = []string{"super-admin", "admin"}

// FindAllRoles lists active roles, most senior first.
func (s *RBACService) FindAllRoles(ctx context.Context) ([]model.Role, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return s.Roles.ListActive(ctx)
}

// FindRoleBySlug returns the role with its permission set attached.
func (s *RBACService) FindRoleBySlug(ctx context.Context, slug string) (model.Role, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	role, err := s.Roles.GetBySlug(ctx, strings.TrimSpace(slug))
	if errors.Is(err, repository.ErrNotFound) {
		return model.Role{}, apierror.NotFound("Role not found")
	}
	if err != nil {
		return model.Role{}, err
	}
	perms, err := s.Roles.RolePermissions(ctx, role.ID)
	if err != nil {
		return model.Role{}, err
	}
	role.Permissions = perms
	return role, nil
}

// CreateRoleInput is the body of POST /rbac/roles.
type CreateRoleInput struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	Priority    int    `json:"priority"`
}

func (s *RBACService) CreateRole(ctx context.Context, in CreateRoleInput) (model.Role, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	name := strings.TrimSpace(in.Name)
	slug := strings.ToLower(strings.TrimSpace(in.Slug))
	if name == "" || slug == "" {
		return model.Role{}, apierror.BadRequest("name and slug are required")
	}
	if !slugPattern.MatchString(slug) {
		return model.Role{}, apierror.BadRequest("slug must be lowercase words separated by dashes")
	}
	_, err := s.Roles.Create(ctx, model.Role{Name: name, Slug: slug, Description: strings.TrimSpace(in.Description), Priority: in.Priority})
	if errors.Is(err, repository.ErrRoleExists) {
		return model.Role{}, apierror.Conflict("Role already exists")
	}
	if err != nil {
		return model.Role{}, err
	}
	return s.FindRoleBySlug(ctx, slug)
}

// DeactivateRole soft-deletes a role.  Its role_permissions and user_roles
// rows are kept; inactive roles simply stop granting anything.
func (s *RBACService) DeactivateRole(ctx context.Context, roleID uint64) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	err := s.Roles.Deactivate(ctx, roleID)
	if errors.Is(err, repository.ErrNotFound) {
		return apierror.NotFound("Role not found")
	}
	return err
}

func (s *RBACService) FindAllPermissions(ctx context.Context) ([]model.Permission, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return s.Roles.ListPermissions(ctx)
}

func (s *RBACService) FindPermissionsByModule(ctx context.Context, module string) ([]model.Permission, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return s.Roles.ListPermissionsByModule(ctx, strings.TrimSpace(module))
}

func (s *RBACService) GetRolePermissions(ctx context.Context, roleID uint64) ([]model.Permission, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return s.Roles.RolePermissions(ctx, roleID)
}

// SetRolePermissions replaces the permission set of a role atomically.
func (s *RBACService) SetRolePermissions(ctx context.Context, roleID uint64, permissionIDs []uint64) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return referenceError(s.Roles.SetRolePermissions(ctx, roleID, dedupe(permissionIDs)))
}

func (s *RBACService) AddPermissionToRole(ctx context.Context, roleID, permissionID uint64) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return referenceError(s.Roles.AddRolePermission(ctx, roleID, permissionID))
}

func (s *RBACService) RemovePermissionFromRole(ctx context.Context, roleID, permissionID uint64) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return s.Roles.RemoveRolePermission(ctx, roleID, permissionID)
}

// GetUserRoles lists the active roles assigned through user_roles.  A
// missing table yields an empty list.
func (s *RBACService) GetUserRoles(ctx context.Context, userID uint64) ([]model.Role, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	roles, err := s.Access.UserRoles(ctx, userID)
	if repository.IsMissingTable(err) {
		s.Log.WithError(err).Warn("user roles unavailable")
		return []model.Role{}, nil
	}
	return roles, err
}

// GetUserPermissions returns the effective permission set: role-derived
// permissions minus revocations plus direct grants.
func (s *RBACService) GetUserPermissions(ctx context.Context, userID uint64) ([]model.Permission, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	derived, err := s.Access.RoleDerivedPermissions(ctx, userID)
	if repository.IsMissingTable(err) {
		s.Log.WithError(err).Warn("role permissions unavailable")
		derived, err = nil, nil
	}
	if err != nil {
		return nil, err
	}
	overrides, err := s.Access.PermissionOverrides(ctx, userID)
	if repository.IsMissingTable(err) {
		s.Log.WithError(err).Warn("permission overrides unavailable")
		overrides, err = nil, nil
	}
	if err != nil {
		return nil, err
	}
	return EffectivePermissions(derived, overrides), nil
}

// CheckPermission reports whether userID holds permissionSlug.  It fails
// closed: any error, including a timeout, is false.
func (s *RBACService) CheckPermission(ctx context.Context, userID uint64, permissionSlug string) bool {
	ok, err := s.check(ctx, userID, permissionSlug)
	if err != nil {
		s.Log.WithError(err).WithFields(logrus.Fields{"user_id": userID, "permission": permissionSlug}).
			Warn("permission check failed, denying")
		return false
	}
	return ok
}

func (s *RBACService) check(ctx context.Context, userID uint64, permissionSlug string) (bool, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	viaRole, override, err := s.Access.PermissionFacts(ctx, userID, permissionSlug)
	if err != nil {
		s.Metrics.PermissionCheck("error")
		return false, err
	}
	ok := EffectivePermission(viaRole, override)
	if ok {
		s.Metrics.PermissionCheck("granted")
	} else {
		s.Metrics.PermissionCheck("denied")
	}
	return ok, nil
}

// Authorize requires every slug.  A check that times out is reported as
// 503 so it is not mistaken for a denial; other failures deny with 403.
func (s *RBACService) Authorize(ctx context.Context, userID uint64, slugs ...string) error {
	for _, slug := range slugs {
		ok, err := s.check(ctx, userID, slug)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return apierror.Unavailable("permission check timed out", err)
			}
			s.Log.WithError(err).WithFields(logrus.Fields{"user_id": userID, "permission": slug}).
				Warn("permission check failed, denying")
			return apierror.Forbidden("Forbidden")
		}
		if !ok {
			return apierror.Forbidden("Forbidden")
		}
	}
	return nil
}

// AssignRoleToUser is idempotent.
func (s *RBACService) AssignRoleToUser(ctx context.Context, userID, roleID uint64, assignedBy *uint64) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return referenceError(s.Access.AssignRole(ctx, userID, roleID, assignedBy))
}

// RemoveRoleFromUser is a no-op when the assignment does not exist.
func (s *RBACService) RemoveRoleFromUser(ctx context.Context, userID, roleID uint64) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return s.Access.RemoveRole(ctx, userID, roleID)
}

func (s *RBACService) GrantPermissionToUser(ctx context.Context, userID, permissionID uint64, grantedBy *uint64) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return referenceError(s.Access.SetPermissionOverride(ctx, userID, permissionID, true, grantedBy))
}

// RevokePermissionFromUser records an explicit revocation, which beats any
// role that grants the permission.
func (s *RBACService) RevokePermissionFromUser(ctx context.Context, userID, permissionID uint64, revokedBy *uint64) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return referenceError(s.Access.SetPermissionOverride(ctx, userID, permissionID, false, revokedBy))
}

// LogActivity appends an audit entry.  Module and action are required.
func (s *RBACService) LogActivity(ctx context.Context, e model.ActivityLog) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	e.Module = strings.TrimSpace(e.Module)
	e.Action = strings.TrimSpace(e.Action)
	if e.Module == "" || e.Action == "" {
		return apierror.BadRequest("module and action are required")
	}
	_, err := s.Activity.Insert(ctx, e)
	return err
}

// GetActivityLogs returns entries newest first.
func (s *RBACService) GetActivityLogs(ctx context.Context, f model.ActivityFilter) ([]model.ActivityLog, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return nil, apierror.BadRequest("from must not be after to")
	}
	return s.Activity.List(ctx, f)
}

// MakeAdmin gives userID the most senior active admin role and returns its
// slug.  Callers must keep it away from production.
func (s *RBACService) MakeAdmin(ctx context.Context, userID uint64) (string, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	var role model.Role
	for _, slug := range adminRoleSlugs {
		r, err := s.Roles.GetBySlug(ctx, slug)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", err
		}
		if r.IsActive {
			role = r
			break
		}
	}
	if role.ID == 0 {
		return "", apierror.NotFound("No admin role configured")
	}
	if err := s.Access.AssignRole(ctx, userID, role.ID, &userID); err != nil {
		return "", referenceError(err)
	}
	if s.Staff != nil {
		if err := s.Staff.UpdateRole(ctx, userID, role.ID); err != nil {
			s.Log.WithError(err).WithField("user_id", userID).Warn("primary role update failed")
		}
	}
	s.Log.WithFields(logrus.Fields{"user_id": userID, "role": role.Slug}).Warn("user self-escalated to admin")
	return role.Slug, nil
}

// bounded caps a store call at the configured database timeout.
func (s *RBACService) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.Timeout)
}

// referenceError turns a foreign-key miss into a 404.
func referenceError(err error) error {
	if repository.IsMissingReference(err) {
		return apierror.NotFound("User, role or permission not found")
	}
	if err != nil {
		return fmt.Errorf("rbac write: %w", err)
	}
	return nil
}

func dedupe(ids []uint64) []uint64 {
	seen := make(map[uint64]bool, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
