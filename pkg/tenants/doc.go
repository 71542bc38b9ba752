// Package tenants implements tenant membership: the data model, the
// persistence contract and the lifecycle manager that enforces who may
// invite, promote, demote and remove whom.
//
// # Membership lifecycle
//
// A membership is created either pending (invited, joined_at unset) or
// active (joined_at set). AcceptInvitation moves a pending membership to
// active. Removal deletes the row and the user's explicit grants. The role
// can change while the membership exists.
//
// # Rules
//
//   - only owners and managers invite, change roles or remove members
//   - anything that creates, touches or yields an owner requires an owner actor
//   - a tenant always keeps at least one owner
//   - owners cannot be removed and nobody can remove themselves
//   - only owners grant or revoke explicit permission levels
//
// Every mutation runs inside Store.InTx after locking the tenant row, so
// the owner-count check and the write are atomic with respect to other
// mutations of the same tenant.
//
// # Usage
//
//	store := tenants.NewPostgresStore(db)
//	evaluator := rbac.NewEvaluator(store, rbac.WithCache(cache))
//	manager := tenants.NewManager(store, evaluator, identities,
//		tenants.WithInviter(inviter),
//		tenants.WithAudit(auditLogger),
//	)
//	res, err := manager.Invite(ctx, tenants.InviteRequest{...})
package tenants
