package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/trustcart/backoffice-auth/internal/model"
	"github.com/trustcart/backoffice-auth/internal/queue"
	"github.com/trustcart/backoffice-auth/internal/repository"
)

// memDB is an in-memory stand-in for the MySQL schema.  Unique keys and
// upserts behave like the real tables.
type memDB struct {
	mu sync.Mutex

	staff     map[uint64]model.StaffAccount
	customers map[uint64]model.CustomerAccount
	roles     map[uint64]model.Role
	perms     map[uint64]model.Permission
	rolePerms map[[2]uint64]bool
	userRoles map[[2]uint64]bool
	overrides map[[2]uint64]bool
	activity  []model.ActivityLog
	nextID    uint64

	staffCreates  int
	slugErr       error
	customerErr   error
	factsErr      error
	factsDelay    time.Duration
	listDelay     time.Duration
	userRolesErr  error
	derivedErr    error
	accessLookups int
}

func newMemDB() *memDB {
	return &memDB{
		staff:     map[uint64]model.StaffAccount{},
		customers: map[uint64]model.CustomerAccount{},
		roles:     map[uint64]model.Role{},
		perms:     map[uint64]model.Permission{},
		rolePerms: map[[2]uint64]bool{},
		userRoles: map[[2]uint64]bool{},
		overrides: map[[2]uint64]bool{},
		nextID:    100,
	}
}

func (m *memDB) id() uint64 { m.nextID++; return m.nextID }

func (m *memDB) addRole(id uint64, slug string, priority int, permIDs ...uint64) {
	m.roles[id] = model.Role{ID: id, Name: strings.ToUpper(slug), Slug: slug, Priority: priority, IsActive: true}
	for _, p := range permIDs {
		m.rolePerms[[2]uint64{id, p}] = true
	}
}

func (m *memDB) addPerm(id uint64, slug, module, action string) {
	m.perms[id] = model.Permission{ID: id, Name: slug, Slug: slug, Module: module, Action: action}
}

func (m *memDB) staffCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.staff)
}

type staffStore struct{ *memDB }

func (s staffStore) Create(_ context.Context, u model.StaffAccount) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staffCreates++
	for _, x := range s.staff {
		if x.Email == u.Email {
			return 0, repository.ErrEmailExists
		}
	}
	u.ID = s.id()
	s.staff[u.ID] = u
	return u.ID, nil
}

func (s staffStore) find(match func(model.StaffAccount) bool) (model.StaffAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, x := range s.staff {
		if match(x) {
			return x, nil
		}
	}
	return model.StaffAccount{}, repository.ErrNotFound
}

func (s staffStore) GetByEmail(_ context.Context, email string) (model.StaffAccount, error) {
	return s.find(func(x model.StaffAccount) bool { return x.Email == email })
}

func (s staffStore) GetByPhone(_ context.Context, phone string) (model.StaffAccount, error) {
	return s.find(func(x model.StaffAccount) bool { return x.Phone != nil && *x.Phone == phone })
}

func (s staffStore) GetByID(_ context.Context, id uint64) (model.StaffAccount, error) {
	return s.find(func(x model.StaffAccount) bool { return x.ID == id })
}

func (s staffStore) UpdateRole(_ context.Context, id, roleID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.staff[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.RoleID = &roleID
	s.staff[id] = u
	return nil
}

type customerStore struct{ *memDB }

func (s customerStore) Create(_ context.Context, c model.CustomerAccount) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.customerErr != nil {
		return 0, s.customerErr
	}
	c.ID = s.id()
	s.customers[c.ID] = c
	return c.ID, nil
}

func (s customerStore) find(match func(model.CustomerAccount) bool) (model.CustomerAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.customerErr != nil {
		return model.CustomerAccount{}, s.customerErr
	}
	for _, x := range s.customers {
		if match(x) {
			return x, nil
		}
	}
	return model.CustomerAccount{}, repository.ErrNotFound
}

func (s customerStore) GetByEmail(_ context.Context, email string) (model.CustomerAccount, error) {
	return s.find(func(x model.CustomerAccount) bool { return x.Email != nil && *x.Email == email })
}

func (s customerStore) GetByPhone(_ context.Context, phone string) (model.CustomerAccount, error) {
	return s.find(func(x model.CustomerAccount) bool { return x.Phone != nil && *x.Phone == phone })
}

type roleStore struct{ *memDB }

func (s roleStore) ListActive(ctx context.Context) ([]model.Role, error) {
	if s.listDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.listDelay):
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Role{}
	for _, r := range s.roles {
		if r.IsActive {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

func (s roleStore) GetBySlug(_ context.Context, slug string) (model.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.Slug == slug {
			return r, nil
		}
	}
	return model.Role{}, repository.ErrNotFound
}

func (s roleStore) GetSlugByID(_ context.Context, id uint64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slugErr != nil {
		return "", s.slugErr
	}
	r, ok := s.roles[id]
	if !ok {
		return "", repository.ErrNotFound
	}
	return r.Slug, nil
}

func (s roleStore) Create(_ context.Context, role model.Role) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.Slug == role.Slug || r.Name == role.Name {
			return 0, repository.ErrRoleExists
		}
	}
	role.ID = s.id()
	role.IsActive = true
	s.roles[role.ID] = role
	return role.ID, nil
}

func (s roleStore) Deactivate(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return repository.ErrNotFound
	}
	r.IsActive = false
	s.roles[id] = r
	return nil
}

func (s roleStore) ListPermissions(context.Context) ([]model.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Permission{}
	for _, p := range s.perms {
		out = append(out, p)
	}
	return EffectivePermissions(out, nil), nil
}

func (s roleStore) ListPermissionsByModule(ctx context.Context, module string) ([]model.Permission, error) {
	all, _ := s.ListPermissions(ctx)
	out := []model.Permission{}
	for _, p := range all {
		if p.Module == module {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s roleStore) RolePermissions(_ context.Context, roleID uint64) ([]model.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Permission{}
	for k := range s.rolePerms {
		if k[0] == roleID {
			out = append(out, s.perms[k[1]])
		}
	}
	return EffectivePermissions(out, nil), nil
}

func (s roleStore) SetRolePermissions(_ context.Context, roleID uint64, ids []uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.rolePerms {
		if k[0] == roleID {
			delete(s.rolePerms, k)
		}
	}
	for _, id := range ids {
		s.rolePerms[[2]uint64{roleID, id}] = true
	}
	return nil
}

func (s roleStore) AddRolePermission(_ context.Context, roleID, permissionID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rolePerms[[2]uint64{roleID, permissionID}] = true
	return nil
}

func (s roleStore) RemoveRolePermission(_ context.Context, roleID, permissionID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rolePerms, [2]uint64{roleID, permissionID})
	return nil
}

type accessStore struct{ *memDB }

func (s accessStore) UserRoles(_ context.Context, userID uint64) ([]model.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessLookups++
	if s.userRolesErr != nil {
		return nil, s.userRolesErr
	}
	out := []model.Role{}
	for k := range s.userRoles {
		if r := s.roles[k[1]]; k[0] == userID && r.IsActive {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

func (s accessStore) derived(userID uint64) []model.Permission {
	var out []model.Permission
	for p := range s.perms {
		for k := range s.userRoles {
			if k[0] == userID && s.roles[k[1]].IsActive && s.rolePerms[[2]uint64{k[1], p}] {
				out = append(out, s.perms[p])
				break
			}
		}
	}
	return out
}

func (s accessStore) RoleDerivedPermissions(_ context.Context, userID uint64) ([]model.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessLookups++
	if s.derivedErr != nil {
		return nil, s.derivedErr
	}
	return s.derived(userID), nil
}

func (s accessStore) PermissionOverrides(_ context.Context, userID uint64) ([]repository.PermissionOverride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.PermissionOverride
	for k, g := range s.overrides {
		if k[0] == userID {
			out = append(out, repository.PermissionOverride{Permission: s.perms[k[1]], Granted: g})
		}
	}
	return out, nil
}

func (s accessStore) PermissionFacts(ctx context.Context, userID uint64, slug string) (bool, *bool, error) {
	if s.factsDelay > 0 {
		select {
		case <-ctx.Done():
			return false, nil, ctx.Err()
		case <-time.After(s.factsDelay):
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.factsErr != nil {
		return false, nil, s.factsErr
	}
	viaRole := false
	for _, p := range s.derived(userID) {
		if p.Slug == slug {
			viaRole = true
		}
	}
	for k, g := range s.overrides {
		if k[0] == userID && s.perms[k[1]].Slug == slug {
			g := g
			return viaRole, &g, nil
		}
	}
	return viaRole, nil, nil
}

func (s accessStore) AssignRole(_ context.Context, userID, roleID uint64, _ *uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userRoles[[2]uint64{userID, roleID}] = true
	return nil
}

func (s accessStore) RemoveRole(_ context.Context, userID, roleID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.userRoles, [2]uint64{userID, roleID})
	return nil
}

func (s accessStore) SetPermissionOverride(_ context.Context, userID, permissionID uint64, granted bool, _ *uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[[2]uint64{userID, permissionID}] = granted
	return nil
}

type activityStore struct{ *memDB }

func (s activityStore) Insert(_ context.Context, e model.ActivityLog) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.id()
	s.activity = append(s.activity, e)
	return e.ID, nil
}

func (s activityStore) List(_ context.Context, f model.ActivityFilter) ([]model.ActivityLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.ActivityLog{}
	for i := len(s.activity) - 1; i >= 0; i-- {
		e := s.activity[i]
		if f.Module != "" && e.Module != f.Module {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []queue.AuthEvent
}

func (r *eventRecorder) Publish(_ context.Context, ev queue.AuthEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *eventRecorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

func nullLog() *logrus.Entry {
	l, _ := test.NewNullLogger()
	return logrus.NewEntry(l)
}
