package tenants

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/tenantd/pkg/apperr"
	"github.com/platinummonkey/tenantd/pkg/audit"
	"github.com/platinummonkey/tenantd/pkg/observability"
	"github.com/platinummonkey/tenantd/pkg/rbac"
	"github.com/platinummonkey/tenantd/pkg/validation"
)

// CreateTenant creates a tenant with the acting user as its sole owner.
// The tenant and the owner membership are written atomically.
func (m *Manager) CreateTenant(ctx context.Context, req CreateTenantRequest, actingUserID string) (tenant *Tenant, err error) {
	const op = "tenants.CreateTenant"
	ctx, span := observability.StartSpan(ctx, op, attribute.String("tenant.subdomain", req.Subdomain))
	start := m.now()
	defer func() {
		tenantID := ""
		if tenant != nil {
			tenantID = tenant.ID
		}
		m.finish(ctx, span, op, "create_tenant", tenantID, actingUserID, "", start, err)
	}()

	if actingUserID == "" {
		return nil, apperr.Unauthenticated("authentication required")
	}

	subdomain := validation.NormalizeSubdomain(req.Subdomain)
	if err := validation.TenantName(req.Name); err != nil {
		return nil, apperr.Validation(err.Error())
	}
	if err := validation.Subdomain(subdomain); err != nil {
		return nil, apperr.Validation(err.Error())
	}
	if err := validation.Emoji(req.Emoji); err != nil {
		return nil, apperr.Validation(err.Error())
	}

	now := m.now()
	tenant = &Tenant{
		Name:      strings.TrimSpace(req.Name),
		Subdomain: subdomain,
		Emoji:     strings.TrimSpace(req.Emoji),
		OwnerID:   actingUserID,
	}
	owner := &Membership{
		UserID:   actingUserID,
		Role:     rbac.RoleOwner,
		JoinedAt: &now,
	}

	var profile *Profile
	user, lookupErr := m.identities.GetIdentity(ctx, actingUserID)
	m.metrics.ObserveIdentityCall("get", lookupErr)
	if lookupErr == nil {
		profile = &Profile{UserID: user.ID, Email: user.Email, FullName: user.FullName, AvatarURL: user.AvatarURL}
	} else {
		observability.FromContext(ctx, m.logger).WithError(lookupErr).
			WithField("user_id", actingUserID).Warn("Could not load owner profile, creating tenant without it")
	}

	if err := m.store.CreateTenantWithOwner(ctx, tenant, owner, profile); err != nil {
		return nil, storeError(err)
	}
	m.invalidate(ctx, tenant.ID, actingUserID)

	e := m.event(ctx, audit.EventTypeTenantCreate, tenant.ID, actingUserID, actingUserID)
	e.Metadata["subdomain"] = tenant.Subdomain
	e.Metadata["name"] = tenant.Name
	m.record(ctx, e)

	return tenant, nil
}

// GetTenant returns a tenant the acting user is a member of. Non-members
// get NotFound so tenant existence is not revealed.
func (m *Manager) GetTenant(ctx context.Context, tenantID, actingUserID string) (*Tenant, error) {
	if err := validateScope(tenantID, actingUserID); err != nil {
		return nil, err
	}
	if err := m.requireMember(ctx, tenantID, actingUserID); err != nil {
		return nil, err
	}
	t, err := m.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, storeError(err)
	}
	return t, nil
}

// GetTenantBySubdomain resolves a subdomain for a member of that tenant
func (m *Manager) GetTenantBySubdomain(ctx context.Context, subdomain, actingUserID string) (*Tenant, error) {
	if actingUserID == "" {
		return nil, apperr.Unauthenticated("authentication required")
	}
	t, err := m.store.GetTenantBySubdomain(ctx, validation.NormalizeSubdomain(subdomain))
	if err != nil {
		return nil, storeError(err)
	}
	if err := m.requireMember(ctx, t.ID, actingUserID); err != nil {
		return nil, err
	}
	return t, nil
}

// ListTenantsForUser lists the tenants the acting user belongs to
func (m *Manager) ListTenantsForUser(ctx context.Context, actingUserID string) ([]*Tenant, error) {
	if actingUserID == "" {
		return nil, apperr.Unauthenticated("authentication required")
	}
	tenants, err := m.store.ListTenantsForUser(ctx, actingUserID)
	if err != nil {
		return nil, storeError(err)
	}
	return tenants, nil
}

// requireMember returns NotFound for non-members; the log keeps the real reason
func (m *Manager) requireMember(ctx context.Context, tenantID, actingUserID string) error {
	snap, err := m.evaluator.Snapshot(ctx, tenantID, actingUserID)
	if err != nil {
		return apperr.Upstream("failed to resolve caller role", err)
	}
	if snap.Member {
		return nil
	}

	reason := "caller is not a member"
	if _, err := m.store.GetTenant(ctx, tenantID); errors.Is(err, ErrTenantNotFound) {
		reason = "tenant does not exist"
	}
	observability.FromContext(ctx, m.logger).WithTenant(tenantID, actingUserID).
		WithField("reason", reason).Info("Tenant hidden from caller")
	return apperr.NotFound("tenant not found")
}
