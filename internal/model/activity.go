package model

import "time"

// ActivityLog is an append-only audit entry.  Only Module and Action are
// mandatory.
type ActivityLog struct {
	ID           uint64    `json:"id"`
	UserID       *uint64   `json:"userId"`
	RoleSlug     *string   `json:"roleSlug"`
	Module       string    `json:"module"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resourceType,omitempty"`
	ResourceID   string    `json:"resourceId,omitempty"`
	Description  string    `json:"description,omitempty"`
	IPAddress    string    `json:"ipAddress,omitempty"`
	UserAgent    string    `json:"userAgent,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ActivityFilter narrows GetActivityLogs.  Zero values mean "no filter".
type ActivityFilter struct {
	UserID *uint64
	Module string
	From   *time.Time
	To     *time.Time
	Limit  int
}
