package model

import "time"

// Staff account statuses. Accounts are never hard-deleted; deactivation
// flips the status.
const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"
)

// StaffAccount represents a row in the `users` table.  Staff accounts are
// the principals of the back office and the only identities that take part
// in the RBAC graph.
//
// Fields:
//
//	ID           – primary key identifier of the user.
//	Email        – unique email address.
//	Phone        – unique phone number, optional.
//	PasswordHash – bcrypt hashed password.
//	Name         – display name.
//	LastName     – family name.
//	RoleID       – foreign key into the roles table, nil when unassigned.
//	Status       – active, inactive or suspended.
type StaffAccount struct {
	ID           uint64    // users.id
	Email        string    // users.email
	Phone        *string   // users.phone (nullable)
	PasswordHash string    // users.password_hash
	Name         string    // users.name
	LastName     string    // users.last_name
	RoleID       *uint64   // users.role_id (nullable)
	Status       string    // users.status
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// CustomerAccount represents a row in the `customers` table.  Customers
// share the login surface with staff but have no relation to the users
// table.  PasswordHash is nil until the customer self-registers.
type CustomerAccount struct {
	ID             uint64    // customers.id
	Email          *string   // customers.email (nullable)
	Phone          *string   // customers.phone (nullable)
	PasswordHash   *string   // customers.password_hash (nullable)
	Name           string    // customers.name
	LastName       string    // customers.last_name
	LifecycleStage string    // customers.lifecycle_stage
	CustomerType   string    // customers.customer_type
	Status         string    // customers.status
	CreatedAt      time.Time // customers.created_at
	UpdatedAt      time.Time // customers.updated_at
}

// HasPassword reports whether the customer can authenticate with a password.
func (c CustomerAccount) HasPassword() bool {
	return c.PasswordHash != nil && *c.PasswordHash != ""
}
