package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustcart/backoffice-auth/internal/apierror"
	"github.com/trustcart/backoffice-auth/internal/model"
	"github.com/trustcart/backoffice-auth/internal/repository"
)

func newRBACFixture() (*memDB, *RBACService) {
	db := newMemDB()
	db.addPerm(1, "view-users", "users", "view")
	db.addPerm(2, "manage-users", "users", "manage")
	db.addPerm(3, "view-orders", "orders", "view")
	db.addPerm(4, "view-crm", "crm", "view")
	db.addRole(1, "super-admin", 100, 1, 2, 3, 4)
	db.addRole(2, "manager", 50, 1, 3)
	db.addRole(3, "staff", 10, 3)
	svc := NewRBACService(RBACDeps{
		Roles:    roleStore{db},
		Access:   accessStore{db},
		Activity: activityStore{db},
		Staff:    staffStore{db},
		Log:      nullLog(),
		Timeout:  time.Second,
	})
	return db, svc
}

func bptr(b bool) *bool { return &b }

func TestEffectivePermission(t *testing.T) {
	cases := []struct {
		viaRole  bool
		override *bool
		want     bool
	}{
		{false, nil, false},
		{true, nil, true},
		{true, bptr(false), false},
		{false, bptr(true), true},
		{true, bptr(true), true},
		{false, bptr(false), false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, EffectivePermission(tc.viaRole, tc.override), "viaRole=%v override=%v", tc.viaRole, tc.override)
	}
}

func TestEffectivePermissions_UnionMinusRevoked(t *testing.T) {
	viewUsers := model.Permission{ID: 1, Slug: "view-users", Module: "users", Action: "view"}
	viewOrders := model.Permission{ID: 3, Slug: "view-orders", Module: "orders", Action: "view"}
	viewCRM := model.Permission{ID: 4, Slug: "view-crm", Module: "crm", Action: "view"}

	got := EffectivePermissions(
		[]model.Permission{viewUsers, viewOrders, viewUsers},
		[]repository.PermissionOverride{{Permission: viewOrders, Granted: false}, {Permission: viewCRM, Granted: true}},
	)
	require.Len(t, got, 2)
	assert.Equal(t, "view-crm", got[0].Slug)
	assert.Equal(t, "view-users", got[1].Slug)
}

func TestCheckPermission_RolePath(t *testing.T) {
	db, svc := newRBACFixture()
	db.userRoles[[2]uint64{42, 3}] = true

	assert.True(t, svc.CheckPermission(context.Background(), 42, "view-orders"))
	assert.False(t, svc.CheckPermission(context.Background(), 42, "view-users"))
	assert.False(t, svc.CheckPermission(context.Background(), 7, "view-orders"))
}

func TestCheckPermission_FailsClosed(t *testing.T) {
	db, svc := newRBACFixture()
	db.userRoles[[2]uint64{42, 1}] = true
	db.factsErr = &mysql.MySQLError{Number: 1146, Message: "Table 'user_roles' doesn't exist"}

	assert.NotPanics(t, func() {
		assert.False(t, svc.CheckPermission(context.Background(), 42, "view-users"))
	})
}

func TestGrantAndRevokeAreConsulted(t *testing.T) {
	db, svc := newRBACFixture()
	ctx := context.Background()
	by := uint64(1)

	require.NoError(t, svc.GrantPermissionToUser(ctx, 42, 4, &by))
	assert.True(t, svc.CheckPermission(ctx, 42, "view-crm"), "direct grant without any role")

	db.userRoles[[2]uint64{42, 3}] = true
	require.True(t, svc.CheckPermission(ctx, 42, "view-orders"))
	require.NoError(t, svc.RevokePermissionFromUser(ctx, 42, 3, &by))
	assert.False(t, svc.CheckPermission(ctx, 42, "view-orders"), "revocation beats the role")

	perms, err := svc.GetUserPermissions(ctx, 42)
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.Equal(t, "view-crm", perms[0].Slug)

	require.NoError(t, svc.GrantPermissionToUser(ctx, 42, 3, &by))
	assert.True(t, svc.CheckPermission(ctx, 42, "view-orders"), "re-grant overwrites the revocation")
	assert.Len(t, db.overrides, 2)
}

func TestAuthorize(t *testing.T) {
	db, svc := newRBACFixture()
	db.userRoles[[2]uint64{42, 2}] = true
	ctx := context.Background()

	assert.NoError(t, svc.Authorize(ctx, 42, "view-users", "view-orders"))
	requireStatus(t, svc.Authorize(ctx, 42, "view-users", "manage-users"), http.StatusForbidden, "")

	db.factsErr = errors.New("connection reset")
	requireStatus(t, svc.Authorize(ctx, 42, "view-users"), http.StatusForbidden, "")
}

func TestAuthorize_TimeoutIsUnavailable(t *testing.T) {
	db, svc := newRBACFixture()
	db.userRoles[[2]uint64{42, 1}] = true
	db.factsDelay = time.Second
	svc.Timeout = 20 * time.Millisecond

	err := svc.Authorize(context.Background(), 42, "view-users")
	requireStatus(t, err, http.StatusServiceUnavailable, "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, svc.CheckPermission(context.Background(), 42, "view-users"))
}

func TestAssignRoleToUser_Idempotent(t *testing.T) {
	db, svc := newRBACFixture()
	ctx := context.Background()

	require.NoError(t, svc.AssignRoleToUser(ctx, 42, 2, nil))
	require.NoError(t, svc.AssignRoleToUser(ctx, 42, 2, nil))
	assert.Len(t, db.userRoles, 1)

	roles, err := svc.GetUserRoles(ctx, 42)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "manager", roles[0].Slug)

	require.NoError(t, svc.RemoveRoleFromUser(ctx, 42, 2))
	require.NoError(t, svc.RemoveRoleFromUser(ctx, 42, 2))
	assert.Empty(t, db.userRoles)
}

func TestDeactivateRole_SoftDelete(t *testing.T) {
	db, svc := newRBACFixture()
	ctx := context.Background()
	db.userRoles[[2]uint64{42, 2}] = true

	require.NoError(t, svc.DeactivateRole(ctx, 2))

	roles, err := svc.FindAllRoles(ctx)
	require.NoError(t, err)
	for _, r := range roles {
		assert.NotEqual(t, "manager", r.Slug)
	}
	assert.True(t, db.userRoles[[2]uint64{42, 2}], "user_roles row kept")
	assert.True(t, db.rolePerms[[2]uint64{2, 1}], "role_permissions row kept")
	assert.False(t, svc.CheckPermission(ctx, 42, "view-users"), "inactive role grants nothing")

	requireStatus(t, svc.DeactivateRole(ctx, 999), http.StatusNotFound, "")
}

func TestFindAllRoles_OrderedBySeniority(t *testing.T) {
	_, svc := newRBACFixture()
	roles, err := svc.FindAllRoles(context.Background())
	require.NoError(t, err)
	require.Len(t, roles, 3)
	assert.Equal(t, []string{"super-admin", "manager", "staff"}, []string{roles[0].Slug, roles[1].Slug, roles[2].Slug})
}

func TestFindAllRoles_SlowStoreTimesOut(t *testing.T) {
	db, svc := newRBACFixture()
	db.listDelay = time.Second
	svc.Timeout = 20 * time.Millisecond

	start := time.Now()
	_, err := svc.FindAllRoles(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, http.StatusGatewayTimeout, apierror.HTTPStatus(err))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestFindRoleBySlug(t *testing.T) {
	_, svc := newRBACFixture()
	role, err := svc.FindRoleBySlug(context.Background(), "manager")
	require.NoError(t, err)
	require.Len(t, role.Permissions, 2)
	assert.Equal(t, "view-orders", role.Permissions[0].Slug)

	_, err = svc.FindRoleBySlug(context.Background(), "nope")
	requireStatus(t, err, http.StatusNotFound, "")
}

func TestCreateRole(t *testing.T) {
	_, svc := newRBACFixture()
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, CreateRoleInput{Name: "Auditor", Slug: " Auditor ", Priority: 20})
	require.NoError(t, err)
	assert.Equal(t, "auditor", role.Slug)
	assert.True(t, role.IsActive)

	_, err = svc.CreateRole(ctx, CreateRoleInput{Name: "Auditor", Slug: "auditor"})
	requireStatus(t, err, http.StatusConflict, "")
	_, err = svc.CreateRole(ctx, CreateRoleInput{Name: "", Slug: "x"})
	requireStatus(t, err, http.StatusBadRequest, "")
	_, err = svc.CreateRole(ctx, CreateRoleInput{Name: "Bad", Slug: "bad slug!"})
	requireStatus(t, err, http.StatusBadRequest, "")
}

func TestRolePermissionMutations(t *testing.T) {
	db, svc := newRBACFixture()
	ctx := context.Background()

	require.NoError(t, svc.SetRolePermissions(ctx, 3, []uint64{1, 1, 4, 0}))
	perms, err := svc.GetRolePermissions(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, perms, 2)

	require.NoError(t, svc.AddPermissionToRole(ctx, 3, 2))
	require.NoError(t, svc.AddPermissionToRole(ctx, 3, 2))
	require.NoError(t, svc.RemovePermissionFromRole(ctx, 3, 1))
	assert.True(t, db.rolePerms[[2]uint64{3, 2}])
	assert.False(t, db.rolePerms[[2]uint64{3, 1}])
}

func TestFindPermissionsByModule(t *testing.T) {
	_, svc := newRBACFixture()
	perms, err := svc.FindPermissionsByModule(context.Background(), "users")
	require.NoError(t, err)
	require.Len(t, perms, 2)
	assert.Equal(t, "manage-users", perms[0].Slug)

	all, err := svc.FindAllPermissions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "crm", all[0].Module)
}

func TestGetUserPermissions_MissingTableDegrades(t *testing.T) {
	db, svc := newRBACFixture()
	db.derivedErr = &mysql.MySQLError{Number: 1146}
	perms, err := svc.GetUserPermissions(context.Background(), 42)
	require.NoError(t, err)
	assert.Empty(t, perms)

	db.derivedErr = errors.New("connection refused")
	_, err = svc.GetUserPermissions(context.Background(), 42)
	assert.Error(t, err)
}

func TestActivityLog(t *testing.T) {
	_, svc := newRBACFixture()
	ctx := context.Background()

	requireStatus(t, svc.LogActivity(ctx, model.ActivityLog{Module: "rbac"}), http.StatusBadRequest, "")
	require.NoError(t, svc.LogActivity(ctx, model.ActivityLog{Module: "rbac", Action: "assign-role"}))
	require.NoError(t, svc.LogActivity(ctx, model.ActivityLog{Module: "orders", Action: "export"}))

	logs, err := svc.GetActivityLogs(ctx, model.ActivityFilter{Module: "rbac"})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "assign-role", logs[0].Action)

	from, to := time.Now(), time.Now().Add(-time.Hour)
	_, err = svc.GetActivityLogs(ctx, model.ActivityFilter{From: &from, To: &to})
	requireStatus(t, err, http.StatusBadRequest, "")
}

func TestMakeAdmin(t *testing.T) {
	db, svc := newRBACFixture()
	ctx := context.Background()
	db.staff[42] = model.StaffAccount{ID: 42, Email: "dev@x.com"}

	slug, err := svc.MakeAdmin(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "super-admin", slug)
	assert.True(t, db.userRoles[[2]uint64{42, 1}])
	assert.Equal(t, uint64(1), *db.staff[42].RoleID)
	assert.True(t, svc.CheckPermission(ctx, 42, "manage-users"))

	require.NoError(t, svc.DeactivateRole(ctx, 1))
	db.addRole(9, "admin", 90, 1)
	slug, err = svc.MakeAdmin(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "admin", slug)
}
