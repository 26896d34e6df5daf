package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema lists the tables owned by the auth/RBAC core in dependency order.
// Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS roles (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		slug VARCHAR(100) NOT NULL,
		description VARCHAR(255) NOT NULL DEFAULT '',
		priority INT NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_roles_name (name),
		UNIQUE KEY uq_roles_slug (slug)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS permissions (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		slug VARCHAR(100) NOT NULL,
		module VARCHAR(64) NOT NULL,
		action VARCHAR(64) NOT NULL,
		description VARCHAR(255) NOT NULL DEFAULT '',
		UNIQUE KEY uq_permissions_name (name),
		UNIQUE KEY uq_permissions_slug (slug),
		KEY idx_permissions_module_action (module, action)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		email VARCHAR(255) NOT NULL,
		phone VARCHAR(32) NULL,
		password_hash VARCHAR(255) NOT NULL,
		name VARCHAR(100) NOT NULL DEFAULT '',
		last_name VARCHAR(100) NOT NULL DEFAULT '',
		role_id BIGINT UNSIGNED NULL,
		status ENUM('active','inactive','suspended') NOT NULL DEFAULT 'active',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_users_email (email),
		UNIQUE KEY uq_users_phone (phone),
		CONSTRAINT fk_users_role FOREIGN KEY (role_id) REFERENCES roles (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS customers (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		email VARCHAR(255) NULL,
		phone VARCHAR(32) NULL,
		password_hash VARCHAR(255) NULL,
		name VARCHAR(100) NOT NULL DEFAULT '',
		last_name VARCHAR(100) NOT NULL DEFAULT '',
		lifecycle_stage VARCHAR(32) NOT NULL DEFAULT 'lead',
		customer_type VARCHAR(32) NOT NULL DEFAULT 'new',
		status VARCHAR(32) NOT NULL DEFAULT 'active',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_customers_email (email),
		KEY idx_customers_phone (phone)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS role_permissions (
		role_id BIGINT UNSIGNED NOT NULL,
		permission_id BIGINT UNSIGNED NOT NULL,
		PRIMARY KEY (role_id, permission_id),
		CONSTRAINT fk_rp_role FOREIGN KEY (role_id) REFERENCES roles (id),
		CONSTRAINT fk_rp_permission FOREIGN KEY (permission_id) REFERENCES permissions (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS user_roles (
		user_id BIGINT UNSIGNED NOT NULL,
		role_id BIGINT UNSIGNED NOT NULL,
		assigned_by BIGINT UNSIGNED NULL,
		assigned_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, role_id),
		CONSTRAINT fk_ur_user FOREIGN KEY (user_id) REFERENCES users (id),
		CONSTRAINT fk_ur_role FOREIGN KEY (role_id) REFERENCES roles (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS user_permissions (
		user_id BIGINT UNSIGNED NOT NULL,
		permission_id BIGINT UNSIGNED NOT NULL,
		granted BOOLEAN NOT NULL,
		granted_by BIGINT UNSIGNED NULL,
		granted_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, permission_id),
		CONSTRAINT fk_up_user FOREIGN KEY (user_id) REFERENCES users (id),
		CONSTRAINT fk_up_permission FOREIGN KEY (permission_id) REFERENCES permissions (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS activity_logs (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id BIGINT UNSIGNED NULL,
		role_slug VARCHAR(100) NULL,
		module VARCHAR(64) NOT NULL,
		action VARCHAR(64) NOT NULL,
		resource_type VARCHAR(64) NOT NULL DEFAULT '',
		resource_id VARCHAR(64) NOT NULL DEFAULT '',
		description TEXT NULL,
		ip_address VARCHAR(64) NOT NULL DEFAULT '',
		user_agent VARCHAR(512) NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		KEY idx_activity_user (user_id, created_at),
		KEY idx_activity_module (module, created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates any missing table.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
