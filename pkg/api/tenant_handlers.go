package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantd/pkg/apperr"
	"github.com/platinummonkey/tenantd/pkg/httputil"
	"github.com/platinummonkey/tenantd/pkg/middleware"
	"github.com/platinummonkey/tenantd/pkg/observability"
	"github.com/platinummonkey/tenantd/pkg/rbac"
	"github.com/platinummonkey/tenantd/pkg/tenants"
)

// TenantHandlers serves tenants, memberships, invitations and grants
type TenantHandlers struct {
	manager *tenants.Manager
	logger  *observability.Logger
}

// NewTenantHandlers creates a new TenantHandlers
func NewTenantHandlers(manager *tenants.Manager, logger *observability.Logger) *TenantHandlers {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &TenantHandlers{
		manager: manager,
		logger:  logger,
	}
}

// RegisterRoutes registers tenant routes
func (h *TenantHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/tenants", h.CreateTenant).Methods("POST")
	router.HandleFunc("/tenants", h.ListTenants).Methods("GET")
	router.HandleFunc("/tenants/{subdomain}", h.GetTenantBySubdomain).Methods("GET")

	// Members
	router.HandleFunc("/tenants/{tenant_id}/members", h.ListMembers).Methods("GET")
	router.HandleFunc("/tenants/{tenant_id}/members", h.InviteMember).Methods("POST")
	router.HandleFunc("/tenants/{tenant_id}/members/{user_id}", h.UpdateRole).Methods("PATCH")
	router.HandleFunc("/tenants/{tenant_id}/members/{user_id}", h.RemoveMember).Methods("DELETE")

	// Invitations
	router.HandleFunc("/tenants/{tenant_id}/invitations/accept", h.AcceptInvitation).Methods("POST")

	// Authorization and grants
	router.HandleFunc("/tenants/{tenant_id}/authorize", h.Authorize).Methods("GET")
	router.HandleFunc("/tenants/{tenant_id}/members/{user_id}/grants", h.ListGrants).Methods("GET")
	router.HandleFunc("/tenants/{tenant_id}/members/{user_id}/grants", h.GrantPermission).Methods("POST")
	router.HandleFunc("/tenants/{tenant_id}/members/{user_id}/grants", h.RevokePermission).Methods("DELETE")

	// System administration
	router.HandleFunc("/admin/status", h.AdminStatus).Methods("GET")
	router.HandleFunc("/admin/tenants", h.ListAllTenants).Methods("GET")
	router.HandleFunc("/admin/tenants/{tenant_id}", h.DeleteTenant).Methods("DELETE")
}

// CreateTenant handles POST /tenants
func (h *TenantHandlers) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req CreateTenantRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	tenant, err := h.manager.CreateTenant(r.Context(), tenants.CreateTenantRequest{
		Name:      req.Name,
		Subdomain: req.Subdomain,
		Emoji:     req.Emoji,
	}, middleware.ActingUserID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	_ = httputil.WriteCreated(w, tenant)
}

// ListTenants handles GET /tenants
func (h *TenantHandlers) ListTenants(w http.ResponseWriter, r *http.Request) {
	list, err := h.manager.ListTenantsForUser(r.Context(), middleware.ActingUserID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if list == nil {
		list = []*tenants.Tenant{}
	}
	_ = httputil.WriteSuccess(w, TenantListResponse{Tenants: list})
}

// GetTenantBySubdomain handles GET /tenants/{subdomain}
func (h *TenantHandlers) GetTenantBySubdomain(w http.ResponseWriter, r *http.Request) {
	subdomain, err := httputil.ParsePathString(r, "subdomain")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	tenant, err := h.manager.GetTenantBySubdomain(r.Context(), subdomain, middleware.ActingUserID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	_ = httputil.WriteSuccess(w, tenant)
}

// ListMembers handles GET /tenants/{tenant_id}/members
func (h *TenantHandlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httputil.ParsePathUUID(r, "tenant_id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	members, err := h.manager.ListMembers(r.Context(), tenantID, middleware.ActingUserID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if members == nil {
		members = []*tenants.Member{}
	}
	_ = httputil.WriteSuccess(w, MemberListResponse{Members: members})
}

// InviteMember handles POST /tenants/{tenant_id}/members
func (h *TenantHandlers) InviteMember(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httputil.ParsePathUUID(r, "tenant_id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req InviteMemberRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	role, err := parseRole(req.Role)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.manager.Invite(r.Context(), tenants.InviteRequest{
		TenantID:       tenantID,
		ActingUserID:   middleware.ActingUserID(r),
		Email:          req.Email,
		UserID:         req.UserID,
		FullName:       req.FullName,
		Role:           role,
		SendInvitation: boolOr(req.SendInvitation, true),
		Password:       req.Password,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if res.Outcome == tenants.OutcomeAlreadyMember {
		_ = httputil.WriteSuccess(w, res)
		return
	}
	_ = httputil.WriteCreated(w, res)
}

// UpdateRole handles PATCH /tenants/{tenant_id}/members/{user_id}
func (h *TenantHandlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	tenantID, userID, err := memberPath(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req UpdateRoleRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	role, err := parseRole(req.Role)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	membership, err := h.manager.UpdateRole(r.Context(), tenantID, userID, role, middleware.ActingUserID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	_ = httputil.WriteSuccess(w, membership)
}

// RemoveMember handles DELETE /tenants/{tenant_id}/members/{user_id}
func (h *TenantHandlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	tenantID, userID, err := memberPath(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.manager.RemoveMembership(r.Context(), tenantID, userID, middleware.ActingUserID(r)); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httputil.WriteNoContent(w)
}

// AcceptInvitation handles POST /tenants/{tenant_id}/invitations/accept.
// The acting user accepts their own pending invitation.
func (h *TenantHandlers) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httputil.ParsePathUUID(r, "tenant_id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	membership, err := h.manager.AcceptInvitation(r.Context(), tenantID, middleware.ActingUserID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	_ = httputil.WriteSuccess(w, membership)
}

// Authorize handles GET /tenants/{tenant_id}/authorize?level=N for the acting user
func (h *TenantHandlers) Authorize(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httputil.ParsePathUUID(r, "tenant_id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	n, err := httputil.ParseQueryInt(r, "level", 0)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	level, err := parseLevel(n)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	decision, err := h.manager.Authorize(r.Context(), tenantID, middleware.ActingUserID(r), level)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	_ = httputil.WriteSuccess(w, newAuthorizeResponse(decision))
}

// ListGrants handles GET /tenants/{tenant_id}/members/{user_id}/grants
func (h *TenantHandlers) ListGrants(w http.ResponseWriter, r *http.Request) {
	tenantID, userID, err := memberPath(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	grants, err := h.manager.ListGrants(r.Context(), tenantID, userID, middleware.ActingUserID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if grants == nil {
		grants = []*tenants.Grant{}
	}
	_ = httputil.WriteSuccess(w, GrantListResponse{Grants: grants})
}

// GrantPermission handles POST /tenants/{tenant_id}/members/{user_id}/grants
func (h *TenantHandlers) GrantPermission(w http.ResponseWriter, r *http.Request) {
	tenantID, userID, err := memberPath(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req GrantRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	level, err := parseLevel(req.Level)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	grant, err := h.manager.GrantPermission(r.Context(), tenantID, userID, level, middleware.ActingUserID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	_ = httputil.WriteCreated(w, grant)
}

// RevokePermission handles DELETE /tenants/{tenant_id}/members/{user_id}/grants[?level=N].
// Without a level every grant of the member is revoked.
func (h *TenantHandlers) RevokePermission(w http.ResponseWriter, r *http.Request) {
	tenantID, userID, err := memberPath(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	n, err := httputil.ParseQueryInt(r, "level", 0)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	level := rbac.LevelNone
	if n != 0 {
		if level, err = parseLevel(n); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
	}

	if err := h.manager.RevokePermission(r.Context(), tenantID, userID, level, middleware.ActingUserID(r)); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httputil.WriteNoContent(w)
}

func memberPath(r *http.Request) (tenantID, userID string, err error) {
	if tenantID, err = httputil.ParsePathUUID(r, "tenant_id"); err != nil {
		return "", "", err
	}
	if userID, err = httputil.ParsePathUUID(r, "user_id"); err != nil {
		return "", "", err
	}
	return tenantID, userID, nil
}

func parseRole(s string) (rbac.Role, error) {
	role, err := rbac.ParseRole(s)
	if err != nil {
		return "", apperr.Validation("role must be one of owner, manager, auditor, observer")
	}
	return role, nil
}

func parseLevel(n int) (rbac.PermissionLevel, error) {
	level, err := rbac.ParseLevel(n)
	if err != nil {
		return rbac.LevelNone, apperr.Validation("level must be between 1 and 5")
	}
	return level, nil
}

// writeError writes err and logs server-side failures with their cause
func writeError(w http.ResponseWriter, r *http.Request, logger *observability.Logger, err error) {
	if apperr.StatusOf(apperr.KindOf(err)) >= http.StatusInternalServerError {
		observability.FromContext(r.Context(), logger).WithError(err).
			WithField("kind", apperr.KindOf(err).String()).Error("Request failed")
	}
	httputil.WriteAppError(w, err)
}
