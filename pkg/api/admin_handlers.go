package api

import (
	"net/http"

	"github.com/platinummonkey/tenantd/pkg/httputil"
	"github.com/platinummonkey/tenantd/pkg/middleware"
	"github.com/platinummonkey/tenantd/pkg/tenants"
)

// AdminStatus handles GET /admin/status
func (h *TenantHandlers) AdminStatus(w http.ResponseWriter, r *http.Request) {
	ok, err := h.manager.IsSystemAdmin(r.Context(), middleware.ActingUserID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	_ = httputil.WriteSuccess(w, AdminStatusResponse{SystemAdmin: ok})
}

// ListAllTenants handles GET /admin/tenants
func (h *TenantHandlers) ListAllTenants(w http.ResponseWriter, r *http.Request) {
	list, err := h.manager.ListAllTenants(r.Context(), middleware.ActingUserID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if list == nil {
		list = []*tenants.Tenant{}
	}
	_ = httputil.WriteSuccess(w, TenantListResponse{Tenants: list})
}

// DeleteTenant handles DELETE /admin/tenants/{tenant_id}
func (h *TenantHandlers) DeleteTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httputil.ParsePathUUID(r, "tenant_id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.manager.DeleteTenant(r.Context(), tenantID, middleware.ActingUserID(r)); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httputil.WriteNoContent(w)
}
