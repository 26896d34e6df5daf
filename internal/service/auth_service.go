// Package service holds the authentication and RBAC logic.  Handlers call
// it with request-scoped contexts; it talks to storage only through the
// small interfaces declared here so tests can substitute fakes.
package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/trustcart/backoffice-auth/internal/apierror"
	"github.com/trustcart/backoffice-auth/internal/metrics"
	"github.com/trustcart/backoffice-auth/internal/model"
	"github.com/trustcart/backoffice-auth/internal/queue"
	"github.com/trustcart/backoffice-auth/internal/repository"
	"github.com/trustcart/backoffice-auth/internal/utils"
)

// Client-facing login messages.
const (
	MsgInvalidCredentials = "Invalid credentials"
	MsgNoPasswordSet      = "No password set for this account. Please register to set a password."
	MsgEmailRegistered    = "Email already registered"
	MsgIdentifierRequired = "Email or phone is required"
	MsgAccountInactive    = "Account is not active"
	MsgPasswordTooLong    = "Password must be at most 72 bytes"
)

// fallbackRoleID is used at registration when the customer-account role
// cannot be resolved.
const fallbackRoleID uint64 = 1

type StaffStore interface {
	Create(ctx context.Context, u model.StaffAccount) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.StaffAccount, error)
	GetByPhone(ctx context.Context, phone string) (model.StaffAccount, error)
	GetByID(ctx context.Context, id uint64) (model.StaffAccount, error)
}

type CustomerStore interface {
	Create(ctx context.Context, c model.CustomerAccount) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.CustomerAccount, error)
	GetByPhone(ctx context.Context, phone string) (model.CustomerAccount, error)
}

// RoleLookup is the slice of the role store the login path needs.
type RoleLookup interface {
	GetBySlug(ctx context.Context, slug string) (model.Role, error)
	GetSlugByID(ctx context.Context, id uint64) (string, error)
}

// RoleAssigner writes user_roles rows.
type RoleAssigner interface {
	AssignRole(ctx context.Context, userID, roleID uint64, assignedBy *uint64) error
}

// AccessResolver answers the role and permission part of /auth/me.
type AccessResolver interface {
	GetUserRoles(ctx context.Context, userID uint64) ([]model.Role, error)
	GetUserPermissions(ctx context.Context, userID uint64) ([]model.Permission, error)
}

type TokenService interface {
	Issue(c utils.Claims) (utils.AccessToken, error)
	Verify(raw string) (*utils.Claims, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, ev queue.AuthEvent) error
}

// BootstrapAdmin is the demo admin created on first login.  Empty Email or
// Password disables it.
type BootstrapAdmin struct {
	Email    string
	Password string
	RoleID   uint64
}

func (b BootstrapAdmin) enabled() bool { return b.Email != "" && b.Password != "" }

// matches compares both fields in constant time.
func (b BootstrapAdmin) matches(email, password string) bool {
	if !b.enabled() {
		return false
	}
	e := subtle.ConstantTimeCompare([]byte(strings.ToLower(b.Email)), []byte(email))
	p := subtle.ConstantTimeCompare([]byte(b.Password), []byte(password))
	return e&p == 1
}

// RequestMeta is where a request came from; it only feeds the audit trail.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// AuthDeps wires an AuthService.  Events, Metrics and Access may be nil.
type AuthDeps struct {
	Staff     StaffStore
	Customers CustomerStore
	Roles     RoleLookup
	Assigner  RoleAssigner
	Access    AccessResolver
	Tokens    TokenService
	Hasher    utils.PasswordHasher
	Events    EventPublisher
	Metrics   *metrics.Metrics
	Log       *logrus.Entry
	Bootstrap BootstrapAdmin
	Timeout   time.Duration

	// MaxPendingEvents caps concurrent publishes; further events are
	// dropped.  Zero means defaultPendingEvents.
	MaxPendingEvents int
}

const defaultPendingEvents = 64

// AuthService resolves logins against staff and customer accounts and
// issues access tokens.
type AuthService struct {
	AuthDeps
	bootstrapGroup singleflight.Group
	eventSlots     chan struct{}
}

func NewAuthService(d AuthDeps) *AuthService {
	if d.Timeout <= 0 {
		d.Timeout = 5 * time.Second
	}
	if d.Log == nil {
		d.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if d.MaxPendingEvents <= 0 {
		d.MaxPendingEvents = defaultPendingEvents
	}
	return &AuthService{AuthDeps: d, eventSlots: make(chan struct{}, d.MaxPendingEvents)}
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	User        UserView  `json:"user"`
}

// Login authenticates identifier/password.  Staff accounts are matched
// first, then customers, then the bootstrap admin.
func (s *AuthService) Login(ctx context.Context, identifier, password string, meta RequestMeta) (*LoginResult, error) {
	kind, id := ClassifyIdentifier(identifier)
	if id == "" {
		s.Metrics.LoginAttempt("none", "rejected")
		return nil, apierror.Unauthorized(MsgIdentifierRequired)
	}

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	p, err := s.resolve(ctx, kind, id, password)
	if err != nil {
		principal := "none"
		if p != nil {
			principal = p.Kind()
		}
		s.Metrics.LoginAttempt(principal, "failure")
		if apierror.StatusOf(err) == 0 {
			return nil, err
		}
		ev := queue.NewAuthEvent(queue.EventLoginFailed)
		ev.Identifier = id
		if p != nil {
			ev.PrincipalType = p.Kind()
			uid := p.Claims().ID
			ev.UserID = &uid
		}
		s.emit(ev, meta)
		return nil, err
	}

	res, err := s.issue(p)
	if err != nil {
		return nil, err
	}
	s.Metrics.LoginAttempt(p.Kind(), "success")
	ev := queue.NewAuthEvent(queue.EventLogin)
	ev.PrincipalType = p.Kind()
	ev.UserID = &res.User.ID
	ev.RoleSlug = res.User.RoleSlug
	s.emit(ev, meta)
	return res, nil
}

// resolve runs the lookup pipeline.  On a credential failure the matched
// principal, if any, is returned alongside the error.
func (s *AuthService) resolve(ctx context.Context, kind IdentifierKind, id, password string) (Principal, error) {
	staff, err := s.lookupStaff(ctx, kind, id)
	switch {
	case err == nil:
		p := StaffPrincipal{Account: staff}
		if !s.Hasher.Compare(staff.PasswordHash, password) {
			return p, apierror.Unauthorized(MsgInvalidCredentials)
		}
		if staff.Status != "" && staff.Status != model.StatusActive {
			return p, apierror.Unauthorized(MsgAccountInactive)
		}
		p.RoleSlug = s.roleSlug(ctx, staff.RoleID)
		return p, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("staff lookup: %w", err)
	}

	customer, err := s.lookupCustomer(ctx, kind, id)
	switch {
	case err == nil:
		p := CustomerPrincipal{Account: customer}
		if !customer.HasPassword() {
			return p, apierror.Unauthorized(MsgNoPasswordSet)
		}
		if !s.Hasher.Compare(*customer.PasswordHash, password) {
			return p, apierror.Unauthorized(MsgInvalidCredentials)
		}
		return p, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("customer lookup: %w", err)
	}

	if kind == IdentifierEmail && s.Bootstrap.matches(id, password) {
		return s.bootstrap(ctx, id, password)
	}
	return nil, apierror.Unauthorized(MsgInvalidCredentials)
}

func (s *AuthService) lookupStaff(ctx context.Context, kind IdentifierKind, id string) (model.StaffAccount, error) {
	if kind == IdentifierEmail {
		return s.Staff.GetByEmail(ctx, id)
	}
	return s.Staff.GetByPhone(ctx, id)
}

// lookupCustomer treats a missing customers table as "no customer" so a
// staff-only deployment keeps working.
func (s *AuthService) lookupCustomer(ctx context.Context, kind IdentifierKind, id string) (model.CustomerAccount, error) {
	var (
		c   model.CustomerAccount
		err error
	)
	if kind == IdentifierEmail {
		c, err = s.Customers.GetByEmail(ctx, id)
	} else {
		c, err = s.Customers.GetByPhone(ctx, id)
	}
	if repository.IsMissingTable(err) {
		s.Log.WithError(err).Warn("customers table missing, skipping customer lookup")
		return model.CustomerAccount{}, repository.ErrNotFound
	}
	return c, err
}

// roleSlug resolves a staff role slug.  Failures are logged and yield nil;
// they never fail a login.
func (s *AuthService) roleSlug(ctx context.Context, roleID *uint64) *string {
	if roleID == nil || s.Roles == nil {
		return nil
	}
	slug, err := s.Roles.GetSlugByID(ctx, *roleID)
	if err != nil {
		s.Log.WithError(err).WithField("role_id", *roleID).Warn("role slug lookup failed")
		return nil
	}
	return &slug
}

// bootstrap creates the demo admin.  Concurrent callers share one
// creation; a unique-key conflict means another process won the race, so
// the existing row is fetched and its password checked instead.
func (s *AuthService) bootstrap(ctx context.Context, email, password string) (Principal, error) {
	v, err, _ := s.bootstrapGroup.Do(email, func() (any, error) {
		return s.createBootstrapAdmin(ctx, email, password)
	})
	if err != nil {
		return nil, err
	}
	acc := v.(model.StaffAccount)
	return StaffPrincipal{Account: acc, RoleSlug: s.roleSlug(ctx, acc.RoleID)}, nil
}

func (s *AuthService) createBootstrapAdmin(ctx context.Context, email, password string) (model.StaffAccount, error) {
	hash, err := s.Hasher.Hash(password)
	if err != nil {
		return model.StaffAccount{}, err
	}
	roleID := s.Bootstrap.RoleID
	if roleID == 0 {
		roleID = fallbackRoleID
	}
	acc := model.StaffAccount{
		Email:        email,
		PasswordHash: hash,
		Name:         "Admin",
		LastName:     "User",
		RoleID:       &roleID,
		Status:       model.StatusActive,
	}
	id, err := s.Staff.Create(ctx, acc)
	if errors.Is(err, repository.ErrEmailExists) {
		existing, gerr := s.Staff.GetByEmail(ctx, email)
		if gerr != nil {
			return model.StaffAccount{}, fmt.Errorf("bootstrap refetch: %w", gerr)
		}
		if !s.Hasher.Compare(existing.PasswordHash, password) {
			return model.StaffAccount{}, apierror.Unauthorized(MsgInvalidCredentials)
		}
		return existing, nil
	}
	if err != nil {
		return model.StaffAccount{}, fmt.Errorf("bootstrap create: %w", err)
	}
	acc.ID = id
	s.Log.WithField("user_id", id).Info("bootstrap admin created")
	s.assignPrimaryRole(ctx, id, roleID)

	ev := queue.NewAuthEvent(queue.EventBootstrap)
	ev.PrincipalType = utils.TypeStaff
	ev.UserID = &id
	s.emit(ev, RequestMeta{})
	return acc, nil
}

// assignPrimaryRole mirrors users.role_id into user_roles so role-path
// permission checks see the account.  Best-effort.
func (s *AuthService) assignPrimaryRole(ctx context.Context, userID, roleID uint64) {
	if s.Assigner == nil {
		return
	}
	if err := s.Assigner.AssignRole(ctx, userID, roleID, nil); err != nil {
		s.Log.WithError(err).WithFields(logrus.Fields{"user_id": userID, "role_id": roleID}).
			Warn("primary role assignment failed")
	}
}

func (s *AuthService) issue(p Principal) (*LoginResult, error) {
	tok, err := s.Tokens.Issue(p.Claims())
	if err != nil {
		return nil, err
	}
	return &LoginResult{AccessToken: tok.Token, ExpiresAt: tok.Exp, User: p.View()}, nil
}

// RegisterInput is the body of POST /auth/register.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
	LastName string
	Phone    string
}

type RegisterResult struct {
	Message string `json:"message"`
	UserID  uint64 `json:"userId"`
}

// Register creates a staff account with the customer-account role and,
// best-effort, a mirrored customer record.  The two writes are not
// atomic: a failed mirror is logged and the registration still succeeds.
func (s *AuthService) Register(ctx context.Context, in RegisterInput, meta RequestMeta) (*RegisterResult, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || in.Password == "" {
		s.Metrics.Registration("rejected")
		return nil, apierror.BadRequest("Email and password are required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	if _, err := s.Staff.GetByEmail(ctx, email); err == nil {
		s.Metrics.Registration("conflict")
		return nil, apierror.Unauthorized(MsgEmailRegistered)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("staff lookup: %w", err)
	}

	roleID := s.defaultRoleID(ctx)
	hash, err := s.Hasher.Hash(in.Password)
	if errors.Is(err, utils.ErrPasswordTooLong) {
		s.Metrics.Registration("rejected")
		return nil, apierror.BadRequest(MsgPasswordTooLong)
	}
	if err != nil {
		return nil, err
	}
	acc := model.StaffAccount{
		Email:        email,
		Phone:        optional(in.Phone),
		PasswordHash: hash,
		Name:         strings.TrimSpace(in.Name),
		LastName:     strings.TrimSpace(in.LastName),
		RoleID:       &roleID,
		Status:       model.StatusActive,
	}
	id, err := s.Staff.Create(ctx, acc)
	if errors.Is(err, repository.ErrEmailExists) {
		s.Metrics.Registration("conflict")
		return nil, apierror.Unauthorized(MsgEmailRegistered)
	}
	if err != nil {
		s.Metrics.Registration("failure")
		return nil, fmt.Errorf("create staff: %w", err)
	}

	s.mirrorCustomer(ctx, acc)
	s.assignPrimaryRole(ctx, id, roleID)
	s.Metrics.Registration("success")

	ev := queue.NewAuthEvent(queue.EventRegister)
	ev.PrincipalType = utils.TypeStaff
	ev.UserID = &id
	s.emit(ev, meta)
	return &RegisterResult{Message: "User registered successfully", UserID: id}, nil
}

func (s *AuthService) defaultRoleID(ctx context.Context) uint64 {
	if s.Roles == nil {
		return fallbackRoleID
	}
	role, err := s.Roles.GetBySlug(ctx, CustomerRoleSlug)
	if err != nil {
		s.Log.WithError(err).Warn("customer-account role lookup failed, using fallback role")
		return fallbackRoleID
	}
	return role.ID
}

func (s *AuthService) mirrorCustomer(ctx context.Context, acc model.StaffAccount) {
	email := acc.Email
	hash := acc.PasswordHash
	_, err := s.Customers.Create(ctx, model.CustomerAccount{
		Email:          &email,
		Phone:          acc.Phone,
		PasswordHash:   &hash,
		Name:           acc.Name,
		LastName:       acc.LastName,
		LifecycleStage: "lead",
		CustomerType:   "new",
		Status:         model.StatusActive,
	})
	if err != nil {
		s.Log.WithError(err).WithField("email", email).Warn("mirrored customer creation failed")
	}
}

// ValidateResult is the body of POST /auth/validate.
type ValidateResult struct {
	Valid bool          `json:"valid"`
	User  *utils.Claims `json:"user,omitempty"`
}

// ValidateToken never fails; any verification problem is {valid:false}.
func (s *AuthService) ValidateToken(raw string) ValidateResult {
	c, err := s.Tokens.Verify(strings.TrimSpace(raw))
	if err != nil {
		return ValidateResult{Valid: false}
	}
	return ValidateResult{Valid: true, User: c}
}

// Profile is the body of GET /auth/me.
type Profile struct {
	User        UserView           `json:"user"`
	Roles       []model.Role       `json:"roles"`
	Permissions []model.Permission `json:"permissions"`
}

// Profile returns the caller and, for staff, their roles and effective
// permissions.  Customers get empty sets without touching the RBAC tables.
// Role and permission lookups degrade to empty lists.
func (s *AuthService) Profile(ctx context.Context, c *utils.Claims) (*Profile, error) {
	out := &Profile{User: viewFromClaims(c), Roles: []model.Role{}, Permissions: []model.Permission{}}
	if c.IsCustomer() || c.HasCustomerRole() {
		return out, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	acc, err := s.Staff.GetByID(ctx, c.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apierror.Unauthorized("User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("staff lookup: %w", err)
	}
	out.User = StaffPrincipal{Account: acc, RoleSlug: c.RoleSlug}.View()
	if s.Access == nil {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		roles, err := s.Access.GetUserRoles(gctx, acc.ID)
		if err != nil {
			s.Log.WithError(err).WithField("user_id", acc.ID).Warn("profile roles lookup failed")
			return nil
		}
		out.Roles = roles
		return nil
	})
	g.Go(func() error {
		perms, err := s.Access.GetUserPermissions(gctx, acc.ID)
		if err != nil {
			s.Log.WithError(err).WithField("user_id", acc.ID).Warn("profile permissions lookup failed")
			return nil
		}
		out.Permissions = perms
		return nil
	})
	_ = g.Wait()
	return out, nil
}

// emit publishes ev off the request path.  When MaxPendingEvents
// publishes are already in flight the event is dropped.
func (s *AuthService) emit(ev queue.AuthEvent, meta RequestMeta) {
	if s.Events == nil {
		return
	}
	select {
	case s.eventSlots <- struct{}{}:
	default:
		s.Metrics.ActivityEvent("publish", "dropped")
		s.Log.WithField("kind", ev.Kind).Warn("activity publisher saturated, event dropped")
		return
	}
	ev.IPAddress = meta.IP
	ev.UserAgent = meta.UserAgent
	go func() {
		defer func() { <-s.eventSlots }()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Events.Publish(ctx, ev); err != nil {
			s.Metrics.ActivityEvent("publish", "error")
			return
		}
		s.Metrics.ActivityEvent("publish", "ok")
	}()
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
