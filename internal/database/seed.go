package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type seedRole struct {
	Slug, Name, Description string
	Priority                int
	Permissions             []string // permission slugs; "*" means all
}

type seedPermission struct {
	Slug, Name, Module, Action, Description string
}

// DefaultPermissions is the reference data every deployment starts with.
var DefaultPermissions = []seedPermission{
	{"view-users", "View users", "users", "view", "List staff accounts, their roles and permissions"},
	{"manage-users", "Manage users", "users", "manage", "Create, edit and deactivate staff accounts"},
	{"assign-roles", "Assign roles", "users", "assign-roles", "Manage roles and assign them to users"},
	{"view-audit-logs", "View audit logs", "audit", "view", "Read and append activity log entries"},
	{"view-orders", "View orders", "orders", "view", "Read orders"},
	{"manage-orders", "Manage orders", "orders", "manage", "Change order state"},
	{"view-crm", "View CRM", "crm", "view", "Read leads, quotes and tasks"},
	{"manage-crm", "Manage CRM", "crm", "manage", "Edit leads, quotes and tasks"},
	{"manage-landing-pages", "Manage landing pages", "landing-pages", "manage", "Edit landing pages"},
	{"manage-printing", "Manage printing", "printing", "manage", "Print invoices and labels"},
}

// DefaultRoles lists the seeded roles, most senior first.  super-admin is
// inserted first so that it receives id 1 on an empty database, matching
// the bootstrap admin's default role.
var DefaultRoles = []seedRole{
	{"super-admin", "Super Admin", "Unrestricted access", 100, []string{"*"}},
	{"admin", "Admin", "Back-office administrator", 90, []string{"*"}},
	{"manager", "Manager", "Team lead", 50, []string{"view-users", "view-orders", "manage-orders", "view-crm", "manage-crm"}},
	{"staff", "Staff", "Back-office operator", 10, []string{"view-orders", "view-crm"}},
	{"customer-account", "Customer Account", "Self-registered storefront account", 0, nil},
}

// SeedAdmin is the staff account created by Seed.  PasswordHash must
// already be hashed.
type SeedAdmin struct {
	Email        string
	PasswordHash string
	RoleSlug     string
}

// Seed upserts the default roles, permissions and role permissions and,
// when admin is non-nil, the admin staff account with its user_roles row.
// Running it twice changes nothing.
func Seed(ctx context.Context, db *sql.DB, admin *SeedAdmin) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range DefaultPermissions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO permissions (name, slug, module, action, description) VALUES (?,?,?,?,?)
			 ON DUPLICATE KEY UPDATE module = VALUES(module), action = VALUES(action), description = VALUES(description)`,
			p.Name, p.Slug, p.Module, p.Action, p.Description); err != nil {
			return fmt.Errorf("seed permission %s: %w", p.Slug, err)
		}
	}

	for _, r := range DefaultRoles {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO roles (name, slug, description, priority, is_active) VALUES (?,?,?,?,TRUE)
			 ON DUPLICATE KEY UPDATE description = VALUES(description), priority = VALUES(priority)`,
			r.Name, r.Slug, r.Description, r.Priority); err != nil {
			return fmt.Errorf("seed role %s: %w", r.Slug, err)
		}
		if len(r.Permissions) == 0 {
			continue
		}
		q := `INSERT INTO role_permissions (role_id, permission_id)
			SELECT r.id, p.id FROM roles r JOIN permissions p
			WHERE r.slug = ?`
		args := []any{r.Slug}
		if r.Permissions[0] != "*" {
			q += " AND p.slug IN (?" + strings.Repeat(",?", len(r.Permissions)-1) + ")"
			for _, s := range r.Permissions {
				args = append(args, s)
			}
		}
		q += " ON DUPLICATE KEY UPDATE role_id = role_id"
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("seed role permissions %s: %w", r.Slug, err)
		}
	}

	if admin != nil {
		slug := admin.RoleSlug
		if slug == "" {
			slug = "super-admin"
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users (email, password_hash, name, role_id, status)
			 VALUES (?, ?, 'Admin', (SELECT id FROM roles WHERE slug = ?), 'active')
			 ON DUPLICATE KEY UPDATE id = id`,
			strings.ToLower(strings.TrimSpace(admin.Email)), admin.PasswordHash, slug); err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_roles (user_id, role_id, assigned_at)
			 SELECT u.id, r.id, UTC_TIMESTAMP() FROM users u JOIN roles r ON r.slug = ?
			 WHERE u.email = ?
			 ON DUPLICATE KEY UPDATE user_id = user_id`,
			slug, strings.ToLower(strings.TrimSpace(admin.Email))); err != nil {
			return fmt.Errorf("seed admin role: %w", err)
		}
	}
	return tx.Commit()
}
