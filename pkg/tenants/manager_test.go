package tenants

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantd/pkg/apperr"
	"github.com/platinummonkey/tenantd/pkg/audit"
	"github.com/platinummonkey/tenantd/pkg/identity"
	"github.com/platinummonkey/tenantd/pkg/rbac"
)

type recordingAudit struct {
	mu     sync.Mutex
	events []*audit.AuditEvent
}

func (r *recordingAudit) Log(ctx context.Context, event *audit.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingAudit) Close() error { return nil }

func (r *recordingAudit) ofType(eventType audit.EventType) []*audit.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*audit.AuditEvent
	for _, e := range r.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	store  *MemoryStore
	idp    *identity.MemoryProvider
	audit  *recordingAudit
	mgr    *Manager
	owner  *identity.User
	tenant *Tenant
}

// newFixture creates a tenant owned by owner@example.com
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: NewMemoryStore(),
		idp:   identity.NewMemoryProvider(),
		audit: &recordingAudit{},
	}
	evaluator := rbac.NewEvaluator(f.store, rbac.WithCache(rbac.NewMemoryCache(100, 0)))
	f.mgr = NewManager(f.store, evaluator, f.idp,
		WithInviter(f.idp),
		WithAudit(f.audit),
		WithInviteRedirectURL("https://app.example.com/accept"),
	)

	f.owner = f.idp.AddUser("owner@example.com", "Olive Owner")
	tenant, err := f.mgr.CreateTenant(context.Background(), CreateTenantRequest{
		Name:      "Acme Corp",
		Subdomain: "acme",
		Emoji:     "🚀",
	}, f.owner.ID)
	require.NoError(t, err)
	f.tenant = tenant
	return f
}

// addMember adds an existing identity directly as an active member
func (f *fixture) addMember(t *testing.T, email string, role rbac.Role) *identity.User {
	t.Helper()
	user := f.idp.AddUser(email, "")
	res, err := f.mgr.Invite(context.Background(), InviteRequest{
		TenantID:     f.tenant.ID,
		ActingUserID: f.owner.ID,
		UserID:       user.ID,
		Role:         role,
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeAddedExisting, res.Outcome)
	return user
}

func (f *fixture) role(t *testing.T, userID string) (rbac.Role, bool) {
	t.Helper()
	role, ok, err := f.store.GetRole(context.Background(), f.tenant.ID, userID)
	require.NoError(t, err)
	return role, ok
}

func assertKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, apperr.KindOf(err), "unexpected error: %v", err)
}

func TestStoreError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{"tenant not found", ErrTenantNotFound, apperr.KindNotFound},
		{"membership not found", ErrMembershipNotFound, apperr.KindNotFound},
		{"membership exists", ErrMembershipExists, apperr.KindConflict},
		{"subdomain taken", ErrSubdomainTaken, apperr.KindConflict},
		{"engine error passes through", apperr.Forbidden("no"), apperr.KindForbidden},
		{"anything else is upstream", assert.AnError, apperr.KindUpstreamFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apperr.KindOf(storeError(tt.err)))
		})
	}
	assert.NoError(t, storeError(nil))
}

func TestValidateScope(t *testing.T) {
	assertKind(t, validateScope("", ""), apperr.KindUnauthenticated)
	assertKind(t, validateScope("not-a-uuid", "user"), apperr.KindValidation)
	assert.NoError(t, validateScope("6f1c2b8e-58a4-4c7e-9a55-0d6c7b1e2f30", "user"))
}

func TestDeniedOperationsAreAudited(t *testing.T) {
	f := newFixture(t)
	observer := f.addMember(t, "observer@example.com", rbac.RoleObserver)

	_, err := f.mgr.UpdateRole(context.Background(), f.tenant.ID, f.owner.ID, rbac.RoleManager, observer.ID)
	assertKind(t, err, apperr.KindInsufficientPermission)

	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "tenants.UpdateRole", ae.Op)

	denied := f.audit.ofType(audit.EventTypeAccessDenied)
	require.Len(t, denied, 1)
	assert.Equal(t, audit.EventStatusDenied, denied[0].Status)
	assert.Equal(t, observer.ID, denied[0].ActorID)
	assert.Equal(t, f.owner.ID, denied[0].TargetUserID)
	assert.Equal(t, "update_role", denied[0].Metadata["operation"])
}
