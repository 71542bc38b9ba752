// Package api exposes the tenant engine over HTTP with gorilla/mux.
//
// # Routes
//
// Every route below requires "Authorization: Bearer <token>"; the token's
// subject is the acting user of the engine call.
//
//	POST   /tenants                                         create a tenant, caller becomes owner
//	GET    /tenants                                         tenants the caller belongs to
//	GET    /tenants/{subdomain}                             resolve a subdomain
//	GET    /tenants/{tenant_id}/members                     list members
//	POST   /tenants/{tenant_id}/members                     invite or add one member
//	POST   /tenants/{tenant_id}/members/bulk                provision up to 50 members
//	PATCH  /tenants/{tenant_id}/members/{user_id}           change a member's role
//	DELETE /tenants/{tenant_id}/members/{user_id}           remove a member
//	POST   /tenants/{tenant_id}/invitations/accept          accept the caller's invitation
//	GET    /tenants/{tenant_id}/authorize?level=N           check the caller's level
//	GET    /tenants/{tenant_id}/members/{user_id}/grants    list explicit grants
//	POST   /tenants/{tenant_id}/members/{user_id}/grants    grant a level
//	DELETE /tenants/{tenant_id}/members/{user_id}/grants    revoke one level (?level=N) or all
//	GET    /admin/status                                    whether the caller is a system administrator
//	GET    /admin/tenants                                   every tenant (system administrators)
//	DELETE /admin/tenants/{tenant_id}                       delete a tenant and its memberships
//
// /health, /health/live, /health/ready and /metrics are public.
//
// Errors use the httputil error body; the status comes from the apperr kind
// returned by the engine, so a caller outside a tenant sees 404 for it just
// like for a tenant that does not exist.
//
// # Assembly
//
//	server := api.NewServer(api.ServerConfig{
//		Tenants: api.NewTenantHandlers(manager, logger),
//		Bulk:    api.NewBulkHandlers(orchestrator, limiter, logger),
//		Auth:    middleware.NewAuthMiddleware(authenticator, logger),
//		Health:  health,
//		Logger:  logger,
//	})
package api
