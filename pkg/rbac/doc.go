// Package rbac provides the role catalog and permission evaluator for tenant-scoped
// authorization.
//
// # Roles and levels
//
// Every membership carries exactly one Role. Roles map to a numeric level on a
// fixed ladder:
//
//	owner    5
//	manager  4
//	auditor  2
//	observer 1
//
// Permissions are expressed as a PermissionLevel:
//
//	LevelView    1
//	LevelInput   2
//	LevelApprove 3
//	LevelManage  4
//	LevelAdmin   5
//
// A role satisfies a permission iff its level is at least the permission's level.
// Level 3 has no role; it is reachable only through an explicit grant.
//
// # Effective level
//
// A user's effective level within a tenant comes from exactly one source, modeled
// by the LevelSource sum type:
//
//	ExplicitGrant  max of the explicit grants recorded for the user, when any exist
//	RoleDerived    the level of the membership role otherwise
//	NoAccess       level 0 when the user is not a member
//
// ResolveLevel is the single function that decides between them. Explicit grants
// may raise or lower access relative to the role.
//
// # Evaluator
//
// Evaluator answers Authorize and AuthorizeRole queries against a MembershipReader
// (implemented by tenants.Store). Snapshots may be cached through a Cache:
//
//	evaluator := rbac.NewEvaluator(store, rbac.WithCache(
//		rbac.NewTieredCache(rbac.NewMemoryCache(10000, 30*time.Second), rbac.NewRedisCache(client, 5*time.Minute)),
//	))
//	ok, err := evaluator.Authorize(ctx, tenantID, userID, rbac.LevelManage)
//
// Mutations in the lifecycle manager call Invalidate so subsequent reads observe
// the new role. Invalidate also cancels cache fills whose store read started
// before it, so a slow reader cannot put the old role back. In a TieredCache the
// L1 of other instances is not invalidated and expires after its own TTL.
package rbac
