package tenants

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/tenantd/pkg/apperr"
	"github.com/platinummonkey/tenantd/pkg/audit"
	"github.com/platinummonkey/tenantd/pkg/identity"
	"github.com/platinummonkey/tenantd/pkg/observability"
)

// IsSystemAdmin reports whether the user may administer every tenant
func (m *Manager) IsSystemAdmin(ctx context.Context, userID string) (bool, error) {
	if userID == "" || len(m.systemAdmins) == 0 {
		return false, nil
	}
	if _, ok := m.systemAdmins[userID]; ok {
		return true, nil
	}
	if !m.hasEmailAdmins() {
		return false, nil
	}

	user, err := m.identities.GetIdentity(ctx, userID)
	m.metrics.ObserveIdentityCall("get", err)
	if errors.Is(err, identity.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Upstream("failed to resolve caller identity", err)
	}
	_, ok := m.systemAdmins[identity.NormalizeEmail(user.Email)]
	return ok, nil
}

func (m *Manager) hasEmailAdmins() bool {
	for e := range m.systemAdmins {
		if strings.Contains(e, "@") {
			return true
		}
	}
	return false
}

func (m *Manager) requireSystemAdmin(ctx context.Context, actingUserID string) error {
	if actingUserID == "" {
		return apperr.Unauthenticated("authentication required")
	}
	ok, err := m.IsSystemAdmin(ctx, actingUserID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.InsufficientPermission("system administrator access required")
	}
	return nil
}

// ListAllTenants lists every tenant, newest first, for a system administrator
func (m *Manager) ListAllTenants(ctx context.Context, actingUserID string) (tenants []*Tenant, err error) {
	const op = "tenants.ListAllTenants"
	ctx, span := observability.StartSpan(ctx, op)
	start := m.now()
	defer func() { m.finish(ctx, span, op, "list_all_tenants", "", actingUserID, "", start, err) }()

	if err := m.requireSystemAdmin(ctx, actingUserID); err != nil {
		return nil, err
	}
	tenants, err = m.store.ListAllTenants(ctx)
	if err != nil {
		return nil, storeError(err)
	}
	return tenants, nil
}

// DeleteTenant removes a tenant together with its memberships and grants.
// Only system administrators may delete; tenant owners may not.
func (m *Manager) DeleteTenant(ctx context.Context, tenantID, actingUserID string) (err error) {
	const op = "tenants.DeleteTenant"
	ctx, span := observability.StartSpan(ctx, op, attribute.String("tenant.id", tenantID))
	start := m.now()
	defer func() { m.finish(ctx, span, op, "delete_tenant", tenantID, actingUserID, "", start, err) }()

	if err := validateScope(tenantID, actingUserID); err != nil {
		return err
	}
	if err := m.requireSystemAdmin(ctx, actingUserID); err != nil {
		return err
	}

	var (
		tenant *Tenant
		users  []string
	)
	err = m.store.InTx(ctx, func(tx Tx) error {
		if err := tx.LockTenant(ctx, tenantID); err != nil {
			return err
		}
		var err error
		tenant, err = m.store.GetTenant(ctx, tenantID)
		if err != nil {
			return err
		}
		users, err = tx.DeleteTenant(ctx, tenantID)
		return err
	})
	if err != nil {
		return storeError(err)
	}

	for _, userID := range users {
		m.invalidate(ctx, tenantID, userID)
	}

	e := m.event(ctx, audit.EventTypeTenantDelete, tenantID, actingUserID, "")
	e.Metadata["subdomain"] = tenant.Subdomain
	e.Metadata["members_removed"] = len(users)
	m.record(ctx, e)
	return nil
}
