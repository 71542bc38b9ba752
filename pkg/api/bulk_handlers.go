package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantd/pkg/httputil"
	"github.com/platinummonkey/tenantd/pkg/middleware"
	"github.com/platinummonkey/tenantd/pkg/observability"
	"github.com/platinummonkey/tenantd/pkg/provisioning"
)

// Provisioner runs a bulk provisioning batch
type Provisioner interface {
	Provision(ctx context.Context, req provisioning.BulkRequest) (*provisioning.BulkResult, error)
}

// BulkHandlers serves bulk member provisioning
type BulkHandlers struct {
	provisioner Provisioner
	limiter     *middleware.RateLimitMiddleware
	logger      *observability.Logger
}

// NewBulkHandlers creates a new BulkHandlers. limiter may be nil to disable
// rate limiting.
func NewBulkHandlers(provisioner Provisioner, limiter *middleware.RateLimitMiddleware, logger *observability.Logger) *BulkHandlers {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &BulkHandlers{
		provisioner: provisioner,
		limiter:     limiter,
		logger:      logger,
	}
}

// RegisterRoutes registers the bulk route
func (h *BulkHandlers) RegisterRoutes(router *mux.Router) {
	var handler http.Handler = http.HandlerFunc(h.ProvisionMembers)
	if h.limiter != nil {
		handler = h.limiter.Handler(handler)
	}
	router.Handle("/tenants/{tenant_id}/members/bulk", handler).Methods("POST")
}

// ProvisionMembers handles POST /tenants/{tenant_id}/members/bulk. A batch
// that runs answers 200 even when some records failed; the per-record
// results carry the failures.
func (h *BulkHandlers) ProvisionMembers(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httputil.ParsePathUUID(r, "tenant_id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req BulkProvisionRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.provisioner.Provision(r.Context(), provisioning.BulkRequest{
		TenantID:        tenantID,
		ActingUserID:    middleware.ActingUserID(r),
		Users:           req.Users,
		SendInvitations: boolOr(req.SendInvitations, true),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	_ = httputil.WriteSuccess(w, result)
}
