//go:build integration

package tenants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/tenantd/pkg/apperr"
	"github.com/platinummonkey/tenantd/pkg/identity"
	"github.com/platinummonkey/tenantd/pkg/rbac"
)

func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker not available, skipping integration tests")
	}
	provider.Close()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("tenantd_test"),
		postgres.WithUsername("tenantd"),
		postgres.WithPassword("tenantd_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	require.NoError(t, db.PingContext(ctx))
	require.NoError(t, ApplySchema(ctx, db))

	t.Cleanup(func() {
		db.Close()
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	})
	return db
}

func TestPostgresLifecycleIntegration(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	store := NewPostgresStore(db)
	idp := identity.NewMemoryProvider()
	mgr := NewManager(store, rbac.NewEvaluator(store), idp, WithInviter(idp))

	owner := idp.AddUser("owner@example.com", "Olive Owner")
	tenant, err := mgr.CreateTenant(ctx, CreateTenantRequest{Name: "Acme", Subdomain: "acme", Emoji: "🚀"}, owner.ID)
	require.NoError(t, err)

	_, err = mgr.CreateTenant(ctx, CreateTenantRequest{Name: "Acme Again", Subdomain: "acme", Emoji: "🚀"}, owner.ID)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	res, err := mgr.Invite(ctx, InviteRequest{
		TenantID:       tenant.ID,
		ActingUserID:   owner.ID,
		Email:          "invitee@example.com",
		FullName:       "Ivy Invitee",
		Role:           rbac.RoleManager,
		SendInvitation: true,
	})
	require.NoError(t, err)
	assert.Equal(t, StatePending, res.Membership.State())

	_, err = mgr.AcceptInvitation(ctx, tenant.ID, res.UserID)
	require.NoError(t, err)
	_, err = mgr.AcceptInvitation(ctx, tenant.ID, res.UserID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = mgr.GrantPermission(ctx, tenant.ID, res.UserID, rbac.LevelApprove, owner.ID)
	require.NoError(t, err)
	_, err = mgr.GrantPermission(ctx, tenant.ID, res.UserID, rbac.LevelApprove, owner.ID)
	require.NoError(t, err)
	level, err := mgr.Evaluator().EffectiveLevel(ctx, tenant.ID, res.UserID)
	require.NoError(t, err)
	assert.Equal(t, rbac.LevelApprove, level)

	members, err := mgr.ListMembers(ctx, tenant.ID, owner.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "Ivy Invitee", members[0].FullName)

	_, err = mgr.UpdateRole(ctx, tenant.ID, owner.ID, rbac.RoleObserver, owner.ID)
	assert.Equal(t, apperr.KindInvariantViolation, apperr.KindOf(err))

	require.NoError(t, mgr.RemoveMembership(ctx, tenant.ID, res.UserID, owner.ID))
	grants, err := store.ListGrants(ctx, tenant.ID, res.UserID)
	require.NoError(t, err)
	assert.Empty(t, grants)

	// a failed membership write after identity creation is compensated
	idp.OnCreate = func(req identity.CreateRequest) error {
		_, err := db.ExecContext(ctx, `DELETE FROM tenants WHERE id = $1`, tenant.ID)
		return err
	}
	_, err = mgr.Invite(ctx, InviteRequest{
		TenantID:     tenant.ID,
		ActingUserID: owner.ID,
		Email:        "late@example.com",
		Role:         rbac.RoleObserver,
	})
	require.Error(t, err)
	_, err = idp.LookupByEmail(ctx, "late@example.com")
	assert.True(t, errors.Is(err, identity.ErrNotFound))
}

func TestPostgresConcurrentOwnerDemotionIntegration(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	store := NewPostgresStore(db)
	idp := identity.NewMemoryProvider()
	mgr := NewManager(store, rbac.NewEvaluator(store), idp, WithInviter(idp))

	for i := 0; i < 10; i++ {
		first := idp.AddUser(fmt.Sprintf("first-%d@example.com", i), "")
		tenant, err := mgr.CreateTenant(ctx, CreateTenantRequest{
			Name:      fmt.Sprintf("Race %d", i),
			Subdomain: fmt.Sprintf("race-%d", i),
			Emoji:     "🏁",
		}, first.ID)
		require.NoError(t, err)

		second := idp.AddUser(fmt.Sprintf("second-%d@example.com", i), "")
		_, err = mgr.Invite(ctx, InviteRequest{
			TenantID:     tenant.ID,
			ActingUserID: first.ID,
			UserID:       second.ID,
			Role:         rbac.RoleOwner,
		})
		require.NoError(t, err)

		errs := demoteEachOther(ctx, mgr, tenant.ID, first.ID, second.ID)
		assertOneDemotionWon(t, store, tenant.ID, errs)
	}
}
