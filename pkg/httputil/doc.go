// Package httputil holds the JSON request and response helpers shared by the
// HTTP handlers, and the request plumbing middleware.
//
// # Errors
//
// Handlers return engine errors unchanged and let WriteAppError pick the
// status from the apperr kind:
//
//	if err := manager.RemoveMembership(ctx, tenantID, userID, actor); err != nil {
//		httputil.WriteAppError(w, err)
//		return
//	}
//
// Every error body has the same shape:
//
//	{"error": "insufficient_permission", "message": "only owners can ..."}
//
// Validation failures add a details array with one entry per field.
//
// # Requests
//
//	tenantID, err := httputil.ParsePathUUID(r, "tenant_id")
//	var req InviteMemberRequest
//	err = httputil.ParseJSON(r, &req)
//
// Both return apperr validation errors, so they go straight to WriteAppError.
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware(logger),
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.MaxBytesMiddleware(1<<20),
//		httputil.ContentTypeMiddleware,
//	)(router)
package httputil
