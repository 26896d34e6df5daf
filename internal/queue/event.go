// Package queue carries authentication activity over RabbitMQ.  The login
// and registration paths publish an AuthEvent; a background consumer
// appends each event to the activity log so the request path never waits
// on the audit write.
package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/trustcart/backoffice-auth/internal/model"
)

// ActivityQueue is the durable queue shared by publisher and consumer.
const ActivityQueue = "auth.activity"

// Auth event kinds.
const (
	EventLogin       = "login"
	EventLoginFailed = "login_failed"
	EventRegister    = "register"
	EventBootstrap   = "bootstrap"
)

// AuthEvent describes one authentication outcome.  UserID is nil for
// failed logins that matched no account.  The identifier is never the
// password and is kept only for failed attempts.
type AuthEvent struct {
	EventID       string    `json:"event_id"`
	Kind          string    `json:"kind"`
	PrincipalType string    `json:"principal_type,omitempty"`
	UserID        *uint64   `json:"user_id,omitempty"`
	RoleSlug      *string   `json:"role_slug,omitempty"`
	Identifier    string    `json:"identifier,omitempty"`
	IPAddress     string    `json:"ip_address,omitempty"`
	UserAgent     string    `json:"user_agent,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewAuthEvent stamps a fresh event id and the current UTC time.
func NewAuthEvent(kind string) AuthEvent {
	return AuthEvent{EventID: uuid.NewString(), Kind: kind, OccurredAt: time.Now().UTC()}
}

// ActivityLog converts the event into an activity_logs entry under module
// "auth".
func (e AuthEvent) ActivityLog() model.ActivityLog {
	resourceType := e.PrincipalType
	resourceID := ""
	if e.UserID != nil {
		resourceID = uintToString(*e.UserID)
	}
	desc := e.Kind
	if e.PrincipalType != "" {
		desc = e.PrincipalType + " " + e.Kind
	}
	if e.Kind == EventLoginFailed && e.Identifier != "" {
		desc += " for " + e.Identifier
	}
	userID := e.UserID
	// customer ids live in another table; keep them out of user_id.
	if e.PrincipalType == "customer" {
		userID = nil
	}
	return model.ActivityLog{
		UserID:       userID,
		RoleSlug:     e.RoleSlug,
		Module:       "auth",
		Action:       e.Kind,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Description:  desc + " [" + e.EventID + "]",
		IPAddress:    e.IPAddress,
		UserAgent:    e.UserAgent,
	}
}
