package service

import (
	"strings"

	"github.com/trustcart/backoffice-auth/internal/model"
	"github.com/trustcart/backoffice-auth/internal/utils"
)

// CustomerRoleSlug is the fixed role slug carried by customer tokens.
// Customers are outside the RBAC graph; the slug only labels them.
const CustomerRoleSlug = "customer-account"

// IdentifierKind says which column a login identifier is matched against.
type IdentifierKind int

const (
	IdentifierPhone IdentifierKind = iota
	IdentifierEmail
)

// ClassifyIdentifier treats anything containing "@" as an email and
// everything else as a phone number.  Emails are lowercased.
func ClassifyIdentifier(identifier string) (IdentifierKind, string) {
	id := strings.TrimSpace(identifier)
	if strings.Contains(id, "@") {
		return IdentifierEmail, strings.ToLower(id)
	}
	return IdentifierPhone, id
}

// Principal is an authenticated identity: either a StaffPrincipal or a
// CustomerPrincipal.
type Principal interface {
	// Kind is utils.TypeStaff or utils.TypeCustomer.
	Kind() string
	Claims() utils.Claims
	View() UserView
}

// StaffPrincipal is a back-office account.  RoleSlug is nil when the role
// could not be resolved.
type StaffPrincipal struct {
	Account  model.StaffAccount
	RoleSlug *string
}

// CustomerPrincipal is a storefront account.
type CustomerPrincipal struct {
	Account model.CustomerAccount
}

// UserView is the user object returned by login and /auth/me.
type UserView struct {
	ID       uint64  `json:"id"`
	Email    string  `json:"email"`
	Phone    string  `json:"phone,omitempty"`
	Name     string  `json:"name"`
	LastName string  `json:"lastName"`
	RoleID   *uint64 `json:"roleId,omitempty"`
	RoleSlug *string `json:"roleSlug"`
	Type     string  `json:"type"`
}

func (StaffPrincipal) Kind() string { return utils.TypeStaff }

func (p StaffPrincipal) Claims() utils.Claims {
	return utils.Claims{
		ID:       p.Account.ID,
		Email:    p.Account.Email,
		Phone:    deref(p.Account.Phone),
		RoleID:   p.Account.RoleID,
		RoleSlug: p.RoleSlug,
		Type:     utils.TypeStaff,
	}
}

func (p StaffPrincipal) View() UserView {
	return UserView{
		ID:       p.Account.ID,
		Email:    p.Account.Email,
		Phone:    deref(p.Account.Phone),
		Name:     p.Account.Name,
		LastName: p.Account.LastName,
		RoleID:   p.Account.RoleID,
		RoleSlug: p.RoleSlug,
		Type:     utils.TypeStaff,
	}
}

func (CustomerPrincipal) Kind() string { return utils.TypeCustomer }

func (p CustomerPrincipal) Claims() utils.Claims {
	slug := CustomerRoleSlug
	return utils.Claims{
		ID:       p.Account.ID,
		Email:    deref(p.Account.Email),
		Phone:    deref(p.Account.Phone),
		RoleSlug: &slug,
		Type:     utils.TypeCustomer,
	}
}

func (p CustomerPrincipal) View() UserView {
	slug := CustomerRoleSlug
	return UserView{
		ID:       p.Account.ID,
		Email:    deref(p.Account.Email),
		Phone:    deref(p.Account.Phone),
		Name:     p.Account.Name,
		LastName: p.Account.LastName,
		RoleSlug: &slug,
		Type:     utils.TypeCustomer,
	}
}

// viewFromClaims rebuilds a UserView from a verified token when no account
// row is consulted.
func viewFromClaims(c *utils.Claims) UserView {
	return UserView{
		ID:       c.ID,
		Email:    c.Email,
		Phone:    c.Phone,
		RoleID:   c.RoleID,
		RoleSlug: c.RoleSlug,
		Type:     c.Type,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
