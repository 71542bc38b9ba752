package tenants

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/tenantd/pkg/apperr"
	"github.com/platinummonkey/tenantd/pkg/audit"
	"github.com/platinummonkey/tenantd/pkg/observability"
	"github.com/platinummonkey/tenantd/pkg/rbac"
)

const msgGrants = "only owners can manage permission grants"

// GrantPermission records an explicit level for a member. Once a member has
// any grant, its highest grant replaces the role level.
func (m *Manager) GrantPermission(ctx context.Context, tenantID, targetUserID string, level rbac.PermissionLevel, actingUserID string) (grant *Grant, err error) {
	const op = "tenants.GrantPermission"
	ctx, span := observability.StartSpan(ctx, op,
		attribute.String("tenant.id", tenantID),
		attribute.Int("permission.level", int(level)),
	)
	start := m.now()
	defer func() { m.finish(ctx, span, op, "grant_permission", tenantID, actingUserID, targetUserID, start, err) }()

	if err := validateScope(tenantID, actingUserID); err != nil {
		return nil, err
	}
	if !level.Valid() {
		return nil, apperr.Validation("permission level must be between 1 and 5")
	}
	if targetUserID == "" {
		return nil, apperr.Validation("user id is required")
	}
	if _, err := m.requireRole(ctx, tenantID, actingUserID, msgGrants, rbac.RoleOwner); err != nil {
		return nil, err
	}

	err = m.store.InTx(ctx, func(tx Tx) error {
		if _, err := lockedActor(ctx, tx, tenantID, actingUserID, msgGrants, rbac.RoleOwner); err != nil {
			return err
		}
		if _, err := tx.GetMembership(ctx, tenantID, targetUserID); err != nil {
			return err
		}
		grant = &Grant{TenantID: tenantID, UserID: targetUserID, Level: level, GrantedBy: actingUserID}
		return tx.InsertGrant(ctx, grant)
	})
	if err != nil {
		return nil, storeError(err)
	}

	m.invalidate(ctx, tenantID, targetUserID)
	e := m.event(ctx, audit.EventTypePermissionGrant, tenantID, actingUserID, targetUserID)
	e.Metadata["level"] = int(level)
	m.record(ctx, e)
	return grant, nil
}

// RevokePermission removes one explicit level, or every grant of the member
// when level is rbac.LevelNone. Removing nothing is NotFound.
func (m *Manager) RevokePermission(ctx context.Context, tenantID, targetUserID string, level rbac.PermissionLevel, actingUserID string) (err error) {
	const op = "tenants.RevokePermission"
	ctx, span := observability.StartSpan(ctx, op,
		attribute.String("tenant.id", tenantID),
		attribute.Int("permission.level", int(level)),
	)
	start := m.now()
	defer func() { m.finish(ctx, span, op, "revoke_permission", tenantID, actingUserID, targetUserID, start, err) }()

	if err := validateScope(tenantID, actingUserID); err != nil {
		return err
	}
	if level != rbac.LevelNone && !level.Valid() {
		return apperr.Validation("permission level must be between 1 and 5")
	}
	if targetUserID == "" {
		return apperr.Validation("user id is required")
	}
	if _, err := m.requireRole(ctx, tenantID, actingUserID, msgGrants, rbac.RoleOwner); err != nil {
		return err
	}

	var removed int64
	err = m.store.InTx(ctx, func(tx Tx) error {
		if _, err := lockedActor(ctx, tx, tenantID, actingUserID, msgGrants, rbac.RoleOwner); err != nil {
			return err
		}
		var err error
		removed, err = tx.DeleteGrants(ctx, tenantID, targetUserID, level)
		if err != nil {
			return err
		}
		if removed == 0 {
			return apperr.NotFound("no matching permission grant")
		}
		return nil
	})
	if err != nil {
		return storeError(err)
	}

	m.invalidate(ctx, tenantID, targetUserID)
	e := m.event(ctx, audit.EventTypePermissionRevoke, tenantID, actingUserID, targetUserID)
	e.Metadata["level"] = int(level)
	e.Metadata["removed"] = removed
	m.record(ctx, e)
	return nil
}

// ListGrants lists a member's explicit grants. Owners and managers may list
// anyone's grants; other members only their own.
func (m *Manager) ListGrants(ctx context.Context, tenantID, targetUserID, actingUserID string) ([]*Grant, error) {
	if err := validateScope(tenantID, actingUserID); err != nil {
		return nil, err
	}
	if targetUserID != actingUserID {
		if _, err := m.requireRole(ctx, tenantID, actingUserID, "only owners and managers can view other members' grants",
			rbac.RoleOwner, rbac.RoleManager); err != nil {
			return nil, err
		}
	} else if err := m.requireMember(ctx, tenantID, actingUserID); err != nil {
		return nil, err
	}

	grants, err := m.store.ListGrants(ctx, tenantID, targetUserID)
	if err != nil {
		return nil, storeError(err)
	}
	return grants, nil
}

// Authorize decides whether the user's effective level in the tenant meets
// required. A missing membership is a denial, not an error.
func (m *Manager) Authorize(ctx context.Context, tenantID, userID string, required rbac.PermissionLevel) (*rbac.Decision, error) {
	if err := validateScope(tenantID, userID); err != nil {
		return nil, err
	}
	if !required.Valid() {
		return nil, apperr.Validation("permission level must be between 1 and 5")
	}

	decision, err := m.evaluator.Check(ctx, tenantID, userID, required)
	if err != nil {
		return nil, apperr.Upstream("failed to evaluate permissions", err)
	}
	m.metrics.ObserveAuthz(decision.Allowed, decision.Source.Kind())

	if !decision.Allowed {
		e := m.event(ctx, audit.EventTypeAccessDenied, tenantID, userID, userID)
		e.Status = audit.EventStatusDenied
		e.Metadata["required_level"] = int(required)
		e.Metadata["effective_level"] = int(decision.Level)
		e.Metadata["source"] = decision.Source.Kind()
		m.record(ctx, e)
	}
	return decision, nil
}
