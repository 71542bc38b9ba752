package tenants

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantd/pkg/apperr"
	"github.com/platinummonkey/tenantd/pkg/audit"
	"github.com/platinummonkey/tenantd/pkg/rbac"
)

// withAdmins returns a manager over the fixture's store that treats the
// given entries as system administrators
func (f *fixture) withAdmins(entries ...string) *Manager {
	return NewManager(f.store, f.mgr.Evaluator(), f.idp,
		WithAudit(f.audit),
		WithSystemAdmins(entries...),
	)
}

func TestIsSystemAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	root := f.idp.AddUser("Root@Example.com", "Root")
	ops := f.idp.AddUser("ops@example.com", "Ops")
	mgr := f.withAdmins(" ROOT@example.com ", ops.ID, "")

	tests := []struct {
		name   string
		userID string
		want   bool
	}{
		{"by email", root.ID, true},
		{"by user id", ops.ID, true},
		{"tenant owner is not a system admin", f.owner.ID, false},
		{"unknown identity", uuid.NewString(), false},
		{"anonymous", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := mgr.IsSystemAdmin(ctx, tt.userID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}

	t.Run("no admins configured", func(t *testing.T) {
		ok, err := f.mgr.IsSystemAdmin(ctx, root.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestListAllTenants(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	root := f.idp.AddUser("root@example.com", "Root")
	mgr := f.withAdmins("root@example.com")

	other := f.idp.AddUser("other@example.com", "")
	second, err := f.mgr.CreateTenant(ctx, CreateTenantRequest{Name: "Globex", Subdomain: "globex", Emoji: "🌐"}, other.ID)
	require.NoError(t, err)

	list, err := mgr.ListAllTenants(ctx, root.ID)
	require.NoError(t, err)
	ids := make([]string, 0, len(list))
	for _, tenant := range list {
		ids = append(ids, tenant.ID)
	}
	assert.ElementsMatch(t, []string{f.tenant.ID, second.ID}, ids)

	_, err = mgr.ListAllTenants(ctx, f.owner.ID)
	assertKind(t, err, apperr.KindInsufficientPermission)

	_, err = mgr.ListAllTenants(ctx, "")
	assertKind(t, err, apperr.KindUnauthenticated)
}

func TestDeleteTenant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	root := f.idp.AddUser("root@example.com", "Root")
	mgr := f.withAdmins(root.ID)
	manager := f.addMember(t, "manager@example.com", rbac.RoleManager)
	_, err := f.mgr.GrantPermission(ctx, f.tenant.ID, manager.ID, rbac.LevelApprove, f.owner.ID)
	require.NoError(t, err)

	// warm the authorization cache before deleting
	ok, err := f.mgr.Evaluator().Authorize(ctx, f.tenant.ID, manager.ID, rbac.LevelApprove)
	require.NoError(t, err)
	require.True(t, ok)

	t.Run("owners cannot delete their tenant", func(t *testing.T) {
		err := mgr.DeleteTenant(ctx, f.tenant.ID, f.owner.ID)
		assertKind(t, err, apperr.KindInsufficientPermission)
		_, err = f.store.GetTenant(ctx, f.tenant.ID)
		require.NoError(t, err)
	})

	t.Run("invalid id", func(t *testing.T) {
		assertKind(t, mgr.DeleteTenant(ctx, "acme", root.ID), apperr.KindValidation)
	})

	require.NoError(t, mgr.DeleteTenant(ctx, f.tenant.ID, root.ID))

	_, err = f.store.GetTenant(ctx, f.tenant.ID)
	assert.ErrorIs(t, err, ErrTenantNotFound)
	_, ok = f.role(t, f.owner.ID)
	assert.False(t, ok)
	grants, err := f.store.ListGrants(ctx, f.tenant.ID, manager.ID)
	require.NoError(t, err)
	assert.Empty(t, grants)

	ok, err = f.mgr.Evaluator().Authorize(ctx, f.tenant.ID, manager.ID, rbac.LevelView)
	require.NoError(t, err)
	assert.False(t, ok, "cached level must not outlive the tenant")

	events := f.audit.ofType(audit.EventTypeTenantDelete)
	require.Len(t, events, 1)
	assert.Equal(t, root.ID, events[0].ActorID)
	assert.Equal(t, "acme", events[0].Metadata["subdomain"])
	assert.Equal(t, 2, events[0].Metadata["members_removed"])

	assertKind(t, mgr.DeleteTenant(ctx, f.tenant.ID, root.ID), apperr.KindNotFound)
}
