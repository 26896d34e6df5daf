package model

import "time"

// Role is a named, prioritized group of permissions.  Higher priority means
// more senior.  Roles are soft-deleted through IsActive.
type Role struct {
	ID          uint64       `json:"id"`
	Name        string       `json:"name"`
	Slug        string       `json:"slug"`
	Description string       `json:"description"`
	Priority    int          `json:"priority"`
	IsActive    bool         `json:"isActive"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	Permissions []Permission `json:"permissions,omitempty"`
}

// Permission is static reference data grouped by module and action.
type Permission struct {
	ID          uint64 `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Module      string `json:"module"`
	Action      string `json:"action"`
	Description string `json:"description"`
}
