package repository

import (
	"context"
	"database/sql"

	"github.com/trustcart/backoffice-auth/internal/model"
)

// PermissionOverride is a user_permissions row joined with its permission.
type PermissionOverride struct {
	Permission model.Permission
	Granted    bool
}

// RBACRepo provides data access to the user side of the RBAC graph:
// user_roles and user_permissions.
type RBACRepo struct{ DB *sql.DB }

func NewRBACRepo(db *sql.DB) *RBACRepo { return &RBACRepo{DB: db} }

// UserRoles returns the active roles assigned to a user through user_roles,
// most senior first.
func (r *RBACRepo) UserRoles(ctx context.Context, userID uint64) ([]model.Role, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT r.id,r.name,r.slug,r.description,r.priority,r.is_active,r.created_at,r.updated_at
		 FROM roles r JOIN user_roles ur ON ur.role_id = r.id
		 WHERE ur.user_id = ? AND r.is_active = TRUE
		 ORDER BY r.priority DESC, r.id`, userID)
	if err != nil {
		return nil, err
	}
	return scanRoles(rows)
}

// RoleDerivedPermissions returns the distinct permissions reachable through
// user_roles -> role_permissions -> permissions, counting active roles only.
func (r *RBACRepo) RoleDerivedPermissions(ctx context.Context, userID uint64) ([]model.Permission, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT DISTINCT `+permissionColumns+` FROM permissions p
		 JOIN role_permissions rp ON rp.permission_id = p.id
		 JOIN user_roles ur ON ur.role_id = rp.role_id
		 JOIN roles r ON r.id = ur.role_id AND r.is_active = TRUE
		 WHERE ur.user_id = ?
		 ORDER BY p.module, p.action`, userID)
	if err != nil {
		return nil, err
	}
	return scanPermissions(rows)
}

// PermissionOverrides returns every user_permissions row of a user.
func (r *RBACRepo) PermissionOverrides(ctx context.Context, userID uint64) ([]PermissionOverride, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+permissionColumns+`, up.granted FROM permissions p
		 JOIN user_permissions up ON up.permission_id = p.id
		 WHERE up.user_id = ?
		 ORDER BY p.module, p.action`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []PermissionOverride{}
	for rows.Next() {
		var o PermissionOverride
		p := &o.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Slug, &p.Module, &p.Action, &p.Description, &o.Granted); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// PermissionFacts answers, in one round trip, whether permissionSlug is
// reachable through an active role of userID and which override, if any,
// the user carries for it.
func (r *RBACRepo) PermissionFacts(ctx context.Context, userID uint64, permissionSlug string) (viaRole bool, override *bool, err error) {
	var granted sql.NullBool
	err = r.DB.QueryRowContext(ctx,
		`SELECT
		   EXISTS(SELECT 1 FROM user_roles ur
		          JOIN roles r ON r.id = ur.role_id AND r.is_active = TRUE
		          JOIN role_permissions rp ON rp.role_id = ur.role_id
		          JOIN permissions p ON p.id = rp.permission_id
		          WHERE ur.user_id = ? AND p.slug = ?),
		   (SELECT up.granted FROM user_permissions up
		    JOIN permissions p ON p.id = up.permission_id
		    WHERE up.user_id = ? AND p.slug = ? LIMIT 1)`,
		userID, permissionSlug, userID, permissionSlug).Scan(&viaRole, &granted)
	if err != nil {
		return false, nil, err
	}
	if granted.Valid {
		g := granted.Bool
		override = &g
	}
	return viaRole, override, nil
}

// AssignRole is idempotent: assigning the same pair twice leaves one row.
func (r *RBACRepo) AssignRole(ctx context.Context, userID, roleID uint64, assignedBy *uint64) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role_id, assigned_by, assigned_at) VALUES (?,?,?,UTC_TIMESTAMP())
		 ON DUPLICATE KEY UPDATE user_id = user_id`,
		userID, roleID, nullableUint(assignedBy))
	return err
}

func (r *RBACRepo) RemoveRole(ctx context.Context, userID, roleID uint64) error {
	_, err := r.DB.ExecContext(ctx, "DELETE FROM user_roles WHERE user_id = ? AND role_id = ?", userID, roleID)
	return err
}

// SetPermissionOverride upserts the (user, permission) override row.
func (r *RBACRepo) SetPermissionOverride(ctx context.Context, userID, permissionID uint64, granted bool, grantedBy *uint64) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO user_permissions (user_id, permission_id, granted, granted_by, granted_at)
		 VALUES (?,?,?,?,UTC_TIMESTAMP())
		 ON DUPLICATE KEY UPDATE granted = VALUES(granted), granted_by = VALUES(granted_by), granted_at = VALUES(granted_at)`,
		userID, permissionID, granted, nullableUint(grantedBy))
	return err
}
