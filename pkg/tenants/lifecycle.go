package tenants

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/tenantd/pkg/apperr"
	"github.com/platinummonkey/tenantd/pkg/audit"
	"github.com/platinummonkey/tenantd/pkg/identity"
	"github.com/platinummonkey/tenantd/pkg/observability"
	"github.com/platinummonkey/tenantd/pkg/rbac"
)

const (
	msgInviters    = "only owners and managers can invite members"
	msgOwnerInvite = "only owners can assign the owner role"
	msgMutators    = "only owners and managers can manage members"
	msgOwnerChange = "only owners can change an owner membership or assign the owner role"
)

func checkInviteRole(actor, role rbac.Role) error {
	if !actor.OneOf(rbac.RoleOwner, rbac.RoleManager) {
		return apperr.InsufficientPermission(msgInviters)
	}
	if role == rbac.RoleOwner && actor != rbac.RoleOwner {
		return apperr.InsufficientPermission(msgOwnerInvite)
	}
	return nil
}

// AuthorizeInvite checks that the actor may add a member with role, without
// touching the identity provider or the store's write side.
func (m *Manager) AuthorizeInvite(ctx context.Context, tenantID string, role rbac.Role, actingUserID string) error {
	if err := validateScope(tenantID, actingUserID); err != nil {
		return err
	}
	if !role.Valid() {
		return apperr.Validation("invalid role")
	}
	actor, err := m.requireRole(ctx, tenantID, actingUserID, msgInviters, rbac.RoleOwner, rbac.RoleManager)
	if err != nil {
		return err
	}
	return checkInviteRole(actor, role)
}

// Invite adds a user to a tenant, creating the identity first when no
// identity exists for the email. Inviting an existing member is a no-op
// reported as OutcomeAlreadyMember.
//
// Identity creation and the membership write are separate systems. If the
// membership write fails after an identity was created here, the identity
// is deleted again; a failed deletion is logged and the write error returned.
func (m *Manager) Invite(ctx context.Context, req InviteRequest) (res *InviteResult, err error) {
	const op = "tenants.Invite"
	ctx, span := observability.StartSpan(ctx, op,
		attribute.String("tenant.id", req.TenantID),
		attribute.String("member.role", string(req.Role)),
	)
	start := m.now()
	defer func() {
		target := req.UserID
		if res != nil {
			target = res.UserID
		}
		m.finish(ctx, span, op, "invite", req.TenantID, req.ActingUserID, target, start, err)
	}()

	if err := validateScope(req.TenantID, req.ActingUserID); err != nil {
		return nil, err
	}
	if req.Email == "" && req.UserID == "" {
		return nil, apperr.Validation("email or user id is required")
	}
	if req.Email != "" {
		if verr := m.validator.Var(req.Email, "email"); verr != nil {
			return nil, apperr.Validation("invalid email address")
		}
	}
	if err := m.AuthorizeInvite(ctx, req.TenantID, req.Role, req.ActingUserID); err != nil {
		return nil, err
	}

	user, created, err := m.resolveIdentity(ctx, req)
	if err != nil {
		return nil, err
	}

	var (
		membership *Membership
		already    bool
	)
	txErr := m.store.InTx(ctx, func(tx Tx) error {
		actor, err := lockedActor(ctx, tx, req.TenantID, req.ActingUserID, msgInviters, rbac.RoleOwner, rbac.RoleManager)
		if err != nil {
			return err
		}
		if err := checkInviteRole(actor.Role, req.Role); err != nil {
			return err
		}

		existing, err := tx.GetMembership(ctx, req.TenantID, user.ID)
		if err == nil {
			membership, already = existing, true
			return nil
		}
		if !errors.Is(err, ErrMembershipNotFound) {
			return err
		}

		now := m.now()
		mem := &Membership{TenantID: req.TenantID, UserID: user.ID, Role: req.Role}
		if req.SendInvitation {
			invitedBy := req.ActingUserID
			mem.InvitedBy = &invitedBy
			mem.InvitedAt = &now
		} else {
			mem.JoinedAt = &now
		}
		if err := tx.InsertMembership(ctx, mem); err != nil {
			return err
		}

		fullName := req.FullName
		if fullName == "" {
			fullName = user.FullName
		}
		if err := tx.UpsertProfile(ctx, &Profile{
			UserID:    user.ID,
			Email:     user.Email,
			FullName:  fullName,
			AvatarURL: user.AvatarURL,
		}); err != nil {
			return err
		}
		membership = mem
		return nil
	})
	if txErr != nil {
		if created {
			m.compensate(ctx, req.TenantID, req.ActingUserID, user, txErr)
		}
		return nil, storeError(txErr)
	}

	res = &InviteResult{
		Membership:      membership,
		IdentityCreated: created,
		UserID:          user.ID,
		Email:           user.Email,
	}
	switch {
	case already:
		res.Outcome = OutcomeAlreadyMember
		return res, nil
	case created:
		res.Outcome = OutcomeCreated
	default:
		res.Outcome = OutcomeAddedExisting
	}

	m.invalidate(ctx, req.TenantID, user.ID)

	if req.SendInvitation {
		res.InvitationSent = m.sendInvitation(ctx, req, user)
	}

	eventType := audit.EventTypeMemberAdd
	if req.SendInvitation {
		eventType = audit.EventTypeMemberInvite
	}
	e := m.event(ctx, eventType, req.TenantID, req.ActingUserID, user.ID)
	e.Metadata["role"] = string(req.Role)
	e.Metadata["outcome"] = string(res.Outcome)
	e.Metadata["invitation_sent"] = res.InvitationSent
	m.record(ctx, e)

	return res, nil
}

// resolveIdentity finds the target identity, creating it when the email is unknown
func (m *Manager) resolveIdentity(ctx context.Context, req InviteRequest) (*identity.User, bool, error) {
	if req.UserID != "" {
		user, err := m.identities.GetIdentity(ctx, req.UserID)
		m.metrics.ObserveIdentityCall("get", err)
		if errors.Is(err, identity.ErrNotFound) {
			return nil, false, apperr.NotFound("user not found")
		}
		if err != nil {
			return nil, false, apperr.Upstream("failed to look up user", err)
		}
		return user, false, nil
	}

	email := identity.NormalizeEmail(req.Email)
	user, err := m.identities.LookupByEmail(ctx, email)
	m.metrics.ObserveIdentityCall("lookup", err)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, identity.ErrNotFound) {
		return nil, false, apperr.Upstream("failed to look up user", err)
	}

	password := req.Password
	if password == "" {
		password, err = identity.GenerateTemporaryPassword(identity.TemporaryPasswordLength)
		if err != nil {
			return nil, false, apperr.Internal("failed to generate password", err)
		}
	}

	metadata := map[string]interface{}{}
	if req.FullName != "" {
		metadata["full_name"] = req.FullName
	}
	user, err = m.identities.CreateIdentity(ctx, identity.CreateRequest{
		Email:        email,
		Password:     password,
		EmailConfirm: !req.SendInvitation,
		Metadata:     metadata,
	})
	m.metrics.ObserveIdentityCall("create", err)
	if errors.Is(err, identity.ErrAlreadyExists) {
		// created concurrently by another request
		user, err = m.identities.LookupByEmail(ctx, email)
		m.metrics.ObserveIdentityCall("lookup", err)
		if err != nil {
			return nil, false, apperr.Upstream("failed to look up user", err)
		}
		return user, false, nil
	}
	if err != nil {
		return nil, false, apperr.Upstream("failed to create user identity", err)
	}
	return user, true, nil
}

// compensate deletes an identity created for a membership that was not written
func (m *Manager) compensate(ctx context.Context, tenantID, actingUserID string, user *identity.User, cause error) {
	cctx := context.WithoutCancel(ctx)
	err := m.identities.DeleteIdentity(cctx, user.ID)
	m.metrics.ObserveIdentityCall("delete", err)
	m.metrics.ObserveCompensation(err)

	e := m.event(cctx, audit.EventTypeIdentityCompensate, tenantID, actingUserID, user.ID)
	e.Metadata["email"] = user.Email
	e.Metadata["cause"] = cause.Error()

	logger := observability.FromContext(ctx, m.logger).WithTenant(tenantID, actingUserID).WithFields(map[string]interface{}{
		"email":       user.Email,
		"identity_id": user.ID,
		"cause":       cause.Error(),
	})
	if err != nil {
		e.Status = audit.EventStatusFailure
		e.ErrorMessage = err.Error()
		logger.WithError(err).Error("Compensating identity deletion failed, identity is orphaned")
	} else {
		logger.Warn("Deleted identity created for a failed membership")
	}
	m.record(cctx, e)
}

// sendInvitation delivers the invitation; failures are logged and reported as false
func (m *Manager) sendInvitation(ctx context.Context, req InviteRequest, user *identity.User) bool {
	if m.inviter == nil {
		return false
	}
	metadata := map[string]interface{}{
		"tenant_id": req.TenantID,
		"role":      string(req.Role),
	}
	if req.FullName != "" {
		metadata["full_name"] = req.FullName
	}
	if t, err := m.store.GetTenant(ctx, req.TenantID); err == nil {
		metadata["tenant_name"] = t.Name
	}

	if err := m.inviter.SendInvitation(ctx, user.Email, m.redirectURL, metadata); err != nil {
		observability.FromContext(ctx, m.logger).WithTenant(req.TenantID, req.ActingUserID).
			WithError(err).WithField("email", user.Email).Warn("Failed to send invitation")
		return false
	}
	return true
}

// AcceptInvitation activates the user's pending membership. Accepting an
// active membership, or one that does not exist, is NotFound.
func (m *Manager) AcceptInvitation(ctx context.Context, tenantID, userID string) (membership *Membership, err error) {
	const op = "tenants.AcceptInvitation"
	ctx, span := observability.StartSpan(ctx, op, attribute.String("tenant.id", tenantID))
	start := m.now()
	defer func() { m.finish(ctx, span, op, "accept_invitation", tenantID, userID, userID, start, err) }()

	if err := validateScope(tenantID, userID); err != nil {
		return nil, err
	}

	err = m.store.InTx(ctx, func(tx Tx) error {
		if err := tx.LockTenant(ctx, tenantID); err != nil {
			return err
		}
		ok, err := tx.MarkJoined(ctx, tenantID, userID, m.now())
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NotFound("no pending invitation")
		}
		membership, err = tx.GetMembership(ctx, tenantID, userID)
		return err
	})
	if err != nil {
		return nil, storeError(err)
	}

	m.invalidate(ctx, tenantID, userID)
	m.record(ctx, m.event(ctx, audit.EventTypeMemberAccept, tenantID, userID, userID))
	return membership, nil
}

// UpdateRole changes a member's role. Changes touching the owner role need
// an owner actor, and the last owner cannot be demoted.
func (m *Manager) UpdateRole(ctx context.Context, tenantID, targetUserID string, newRole rbac.Role, actingUserID string) (membership *Membership, err error) {
	const op = "tenants.UpdateRole"
	ctx, span := observability.StartSpan(ctx, op,
		attribute.String("tenant.id", tenantID),
		attribute.String("member.role", string(newRole)),
	)
	start := m.now()
	defer func() { m.finish(ctx, span, op, "update_role", tenantID, actingUserID, targetUserID, start, err) }()

	if err := validateScope(tenantID, actingUserID); err != nil {
		return nil, err
	}
	if !newRole.Valid() {
		return nil, apperr.Validation("invalid role")
	}
	if targetUserID == "" {
		return nil, apperr.Validation("user id is required")
	}
	if _, err := m.requireRole(ctx, tenantID, actingUserID, msgMutators, rbac.RoleOwner, rbac.RoleManager); err != nil {
		return nil, err
	}

	var previous rbac.Role
	err = m.store.InTx(ctx, func(tx Tx) error {
		actor, err := lockedActor(ctx, tx, tenantID, actingUserID, msgMutators, rbac.RoleOwner, rbac.RoleManager)
		if err != nil {
			return err
		}
		target, err := tx.GetMembership(ctx, tenantID, targetUserID)
		if err != nil {
			return err
		}
		if (target.Role == rbac.RoleOwner || newRole == rbac.RoleOwner) && actor.Role != rbac.RoleOwner {
			return apperr.InsufficientPermission(msgOwnerChange)
		}

		previous = target.Role
		membership = target
		if target.Role == newRole {
			return nil
		}

		if target.Role == rbac.RoleOwner {
			owners, err := tx.CountOwners(ctx, tenantID)
			if err != nil {
				return err
			}
			if owners <= 1 {
				return apperr.InvariantViolation("tenant must keep at least one owner")
			}
		}

		if err := tx.UpdateRole(ctx, tenantID, targetUserID, newRole); err != nil {
			return err
		}
		membership.Role = newRole
		return nil
	})
	if err != nil {
		return nil, storeError(err)
	}
	if previous == newRole {
		return membership, nil
	}

	m.invalidate(ctx, tenantID, targetUserID)
	e := m.event(ctx, audit.EventTypeMemberRoleChange, tenantID, actingUserID, targetUserID)
	e.Changes = &audit.ChangeDetails{
		Before: map[string]interface{}{"role": string(previous)},
		After:  map[string]interface{}{"role": string(newRole)},
	}
	m.record(ctx, e)
	return membership, nil
}

// RemoveMembership deletes a non-owner membership together with its grants
func (m *Manager) RemoveMembership(ctx context.Context, tenantID, targetUserID, actingUserID string) (err error) {
	const op = "tenants.RemoveMembership"
	ctx, span := observability.StartSpan(ctx, op, attribute.String("tenant.id", tenantID))
	start := m.now()
	defer func() { m.finish(ctx, span, op, "remove_member", tenantID, actingUserID, targetUserID, start, err) }()

	if err := validateScope(tenantID, actingUserID); err != nil {
		return err
	}
	if targetUserID == "" {
		return apperr.Validation("user id is required")
	}
	if _, err := m.requireRole(ctx, tenantID, actingUserID, msgMutators, rbac.RoleOwner, rbac.RoleManager); err != nil {
		return err
	}
	if targetUserID == actingUserID {
		return apperr.Forbidden("you cannot remove yourself from a tenant")
	}

	var (
		removedRole   rbac.Role
		grantsRemoved int64
	)
	err = m.store.InTx(ctx, func(tx Tx) error {
		if _, err := lockedActor(ctx, tx, tenantID, actingUserID, msgMutators, rbac.RoleOwner, rbac.RoleManager); err != nil {
			return err
		}
		target, err := tx.GetMembership(ctx, tenantID, targetUserID)
		if err != nil {
			return err
		}
		if target.Role == rbac.RoleOwner {
			return apperr.Forbidden("owners cannot be removed")
		}
		removedRole = target.Role

		grantsRemoved, err = tx.DeleteGrants(ctx, tenantID, targetUserID, rbac.LevelNone)
		if err != nil {
			return err
		}
		return tx.DeleteMembership(ctx, tenantID, targetUserID)
	})
	if err != nil {
		return storeError(err)
	}

	m.invalidate(ctx, tenantID, targetUserID)
	e := m.event(ctx, audit.EventTypeMemberRemove, tenantID, actingUserID, targetUserID)
	e.Metadata["role"] = string(removedRole)
	e.Metadata["grants_removed"] = grantsRemoved
	m.record(ctx, e)
	return nil
}

// ListMembers lists a tenant's members for any member of it
func (m *Manager) ListMembers(ctx context.Context, tenantID, actingUserID string) ([]*Member, error) {
	if err := validateScope(tenantID, actingUserID); err != nil {
		return nil, err
	}
	if err := m.requireMember(ctx, tenantID, actingUserID); err != nil {
		return nil, err
	}
	members, err := m.store.ListMembers(ctx, tenantID)
	if err != nil {
		return nil, storeError(err)
	}
	return members, nil
}
