package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/trustcart/backoffice-auth/internal/model"
)

// ErrRoleExists is returned when a role name or slug is already taken.
var ErrRoleExists = errors.New("role already exists")

// RoleRepo provides data access to roles, permissions and role_permissions.
type RoleRepo struct{ DB *sql.DB }

func NewRoleRepo(db *sql.DB) *RoleRepo { return &RoleRepo{DB: db} }

const (
	roleColumns       = "id,name,slug,description,priority,is_active,created_at,updated_at"
	permissionColumns = "p.id,p.name,p.slug,p.module,p.action,p.description"
)

// ListActive returns active roles, most senior first.
func (r *RoleRepo) ListActive(ctx context.Context) ([]model.Role, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+roleColumns+" FROM roles WHERE is_active = TRUE ORDER BY priority DESC, id")
	if err != nil {
		return nil, err
	}
	return scanRoles(rows)
}

// GetBySlug fetches a role by slug, active or not.  Permissions are not
// loaded.
func (r *RoleRepo) GetBySlug(ctx context.Context, slug string) (model.Role, error) {
	var role model.Role
	err := r.DB.QueryRowContext(ctx, "SELECT "+roleColumns+" FROM roles WHERE slug=? LIMIT 1", slug).
		Scan(&role.ID, &role.Name, &role.Slug, &role.Description, &role.Priority, &role.IsActive, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return model.Role{}, notFound(err)
	}
	return role, nil
}

// GetSlugByID returns the slug of role id.
func (r *RoleRepo) GetSlugByID(ctx context.Context, id uint64) (string, error) {
	var slug string
	err := r.DB.QueryRowContext(ctx, "SELECT slug FROM roles WHERE id=? LIMIT 1", id).Scan(&slug)
	if err != nil {
		return "", notFound(err)
	}
	return slug, nil
}

// Create inserts an active role and returns its ID.
func (r *RoleRepo) Create(ctx context.Context, role model.Role) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO roles (name, slug, description, priority, is_active) VALUES (?,?,?,?,TRUE)",
		strings.TrimSpace(role.Name), strings.TrimSpace(role.Slug), role.Description, role.Priority)
	if err != nil {
		if IsDuplicate(err) {
			return 0, ErrRoleExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// Deactivate soft-deletes a role.  role_permissions and user_roles rows
// referencing it are left alone.
func (r *RoleRepo) Deactivate(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE roles SET is_active = FALSE WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err := r.DB.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM roles WHERE id = ?)", id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
	}
	return nil
}

// ListPermissions returns all permissions ordered by module then action.
func (r *RoleRepo) ListPermissions(ctx context.Context) ([]model.Permission, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT "+permissionColumns+" FROM permissions p ORDER BY p.module, p.action")
	if err != nil {
		return nil, err
	}
	return scanPermissions(rows)
}

func (r *RoleRepo) ListPermissionsByModule(ctx context.Context, module string) ([]model.Permission, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+permissionColumns+" FROM permissions p WHERE p.module = ? ORDER BY p.module, p.action", module)
	if err != nil {
		return nil, err
	}
	return scanPermissions(rows)
}

// RolePermissions returns the permission set of a role.
func (r *RoleRepo) RolePermissions(ctx context.Context, roleID uint64) ([]model.Permission, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+permissionColumns+` FROM permissions p
		 JOIN role_permissions rp ON rp.permission_id = p.id
		 WHERE rp.role_id = ? ORDER BY p.module, p.action`, roleID)
	if err != nil {
		return nil, err
	}
	return scanPermissions(rows)
}

// SetRolePermissions replaces the permission set of a role in one
// transaction.
func (r *RoleRepo) SetRolePermissions(ctx context.Context, roleID uint64, permissionIDs []uint64) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM role_permissions WHERE role_id = ?", roleID); err != nil {
		return err
	}
	for _, pid := range permissionIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO role_permissions (role_id, permission_id) VALUES (?,?) ON DUPLICATE KEY UPDATE role_id = role_id",
			roleID, pid); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// AddRolePermission is idempotent.
func (r *RoleRepo) AddRolePermission(ctx context.Context, roleID, permissionID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO role_permissions (role_id, permission_id) VALUES (?,?) ON DUPLICATE KEY UPDATE role_id = role_id",
		roleID, permissionID)
	return err
}

func (r *RoleRepo) RemoveRolePermission(ctx context.Context, roleID, permissionID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"DELETE FROM role_permissions WHERE role_id = ? AND permission_id = ?", roleID, permissionID)
	return err
}

func scanRoles(rows *sql.Rows) ([]model.Role, error) {
	defer rows.Close()
	out := []model.Role{}
	for rows.Next() {
		var role model.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Slug, &role.Description, &role.Priority,
			&role.IsActive, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

func scanPermissions(rows *sql.Rows) ([]model.Permission, error) {
	defer rows.Close()
	out := []model.Permission{}
	for rows.Next() {
		var p model.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Slug, &p.Module, &p.Action, &p.Description); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
