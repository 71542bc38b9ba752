package tenants

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantd/pkg/apperr"
	"github.com/platinummonkey/tenantd/pkg/audit"
	"github.com/platinummonkey/tenantd/pkg/rbac"
)

func TestCreateTenant(t *testing.T) {
	ctx := context.Background()

	t.Run("creator becomes the active owner", func(t *testing.T) {
		f := newFixture(t)

		assert.Equal(t, "acme", f.tenant.Subdomain)
		assert.Equal(t, f.owner.ID, f.tenant.OwnerID)
		assert.False(t, f.tenant.CreatedAt.IsZero())

		m, err := f.store.GetMembership(ctx, f.tenant.ID, f.owner.ID)
		require.NoError(t, err)
		assert.Equal(t, rbac.RoleOwner, m.Role)
		assert.Equal(t, StateActive, m.State())
		assert.Nil(t, m.InvitedAt)
		assert.Nil(t, m.InvitedBy)

		members, err := f.mgr.ListMembers(ctx, f.tenant.ID, f.owner.ID)
		require.NoError(t, err)
		require.Len(t, members, 1)
		assert.Equal(t, "Olive Owner", members[0].FullName)
		assert.Equal(t, "owner@example.com", members[0].Email)

		events := f.audit.ofType(audit.EventTypeTenantCreate)
		require.Len(t, events, 1)
		assert.Equal(t, f.tenant.ID, events[0].TenantID)
	})

	t.Run("subdomain is normalized and must be unique", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.mgr.CreateTenant(ctx, CreateTenantRequest{Name: "Other", Subdomain: "  ACME ", Emoji: "🏢"}, f.owner.ID)
		assertKind(t, err, apperr.KindConflict)
	})

	t.Run("invalid input", func(t *testing.T) {
		f := newFixture(t)

		tests := []struct {
			name string
			req  CreateTenantRequest
		}{
			{"short name", CreateTenantRequest{Name: "A", Subdomain: "valid-sub", Emoji: "🚀"}},
			{"reserved subdomain", CreateTenantRequest{Name: "Admin", Subdomain: "admin", Emoji: "🚀"}},
			{"bad subdomain chars", CreateTenantRequest{Name: "Under", Subdomain: "under_score", Emoji: "🚀"}},
			{"missing emoji", CreateTenantRequest{Name: "No Emoji", Subdomain: "no-emoji", Emoji: ""}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := f.mgr.CreateTenant(ctx, tt.req, f.owner.ID)
				assertKind(t, err, apperr.KindValidation)
			})
		}
	})

	t.Run("requires an acting user", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.mgr.CreateTenant(ctx, CreateTenantRequest{Name: "Beta", Subdomain: "beta", Emoji: "🚀"}, "")
		assertKind(t, err, apperr.KindUnauthenticated)
	})

	t.Run("unknown identity still creates the tenant", func(t *testing.T) {
		f := newFixture(t)
		tenant, err := f.mgr.CreateTenant(ctx, CreateTenantRequest{Name: "Ghost", Subdomain: "ghost", Emoji: "👻"}, "ghost-user")
		require.NoError(t, err)

		role, ok, err := f.store.GetRole(ctx, tenant.ID, "ghost-user")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, rbac.RoleOwner, role)
	})
}

func TestTenantReads(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	observer := f.addMember(t, "observer@example.com", rbac.RoleObserver)
	outsider := f.idp.AddUser("outsider@example.com", "")

	got, err := f.mgr.GetTenant(ctx, f.tenant.ID, observer.ID)
	require.NoError(t, err)
	assert.Equal(t, f.tenant.Name, got.Name)

	got, err = f.mgr.GetTenantBySubdomain(ctx, "ACME", observer.ID)
	require.NoError(t, err)
	assert.Equal(t, f.tenant.ID, got.ID)

	_, err = f.mgr.GetTenant(ctx, f.tenant.ID, outsider.ID)
	assertKind(t, err, apperr.KindNotFound)
	_, err = f.mgr.GetTenantBySubdomain(ctx, "acme", outsider.ID)
	assertKind(t, err, apperr.KindNotFound)
	_, err = f.mgr.GetTenantBySubdomain(ctx, "missing", outsider.ID)
	assertKind(t, err, apperr.KindNotFound)

	second, err := f.mgr.CreateTenant(ctx, CreateTenantRequest{Name: "Zeta Labs", Subdomain: "zeta", Emoji: "🧪"}, f.owner.ID)
	require.NoError(t, err)

	tenants, err := f.mgr.ListTenantsForUser(ctx, f.owner.ID)
	require.NoError(t, err)
	require.Len(t, tenants, 2)
	assert.Equal(t, f.tenant.ID, tenants[0].ID)
	assert.Equal(t, second.ID, tenants[1].ID)

	tenants, err = f.mgr.ListTenantsForUser(ctx, outsider.ID)
	require.NoError(t, err)
	assert.Empty(t, tenants)
}
