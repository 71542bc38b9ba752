package api

import (
	"github.com/platinummonkey/tenantd/pkg/provisioning"
	"github.com/platinummonkey/tenantd/pkg/rbac"
	"github.com/platinummonkey/tenantd/pkg/tenants"
)

// CreateTenantRequest is the body of POST /tenants
type CreateTenantRequest struct {
	Name      string `json:"name"`
	Subdomain string `json:"subdomain"`
	Emoji     string `json:"emoji"`
}

// InviteMemberRequest is the body of POST /tenants/{tenant_id}/members.
// Either Email or UserID names the member.
type InviteMemberRequest struct {
	Email    string `json:"email,omitempty"`
	UserID   string `json:"user_id,omitempty"`
	FullName string `json:"full_name,omitempty"`
	Role     string `json:"role"`
	// SendInvitation defaults to true
	SendInvitation *bool  `json:"send_invitation,omitempty"`
	Password       string `json:"password,omitempty"`
}

// UpdateRoleRequest is the body of PATCH /tenants/{tenant_id}/members/{user_id}
type UpdateRoleRequest struct {
	Role string `json:"role"`
}

// GrantRequest is the body of POST /tenants/{tenant_id}/members/{user_id}/grants
type GrantRequest struct {
	Level int `json:"level"`
}

// BulkProvisionRequest is the body of POST /tenants/{tenant_id}/members/bulk
type BulkProvisionRequest struct {
	Users []provisioning.Record `json:"users"`
	// SendInvitations defaults to true
	SendInvitations *bool `json:"send_invitations,omitempty"`
}

// AuthorizeResponse answers GET /tenants/{tenant_id}/authorize
type AuthorizeResponse struct {
	Allowed   bool   `json:"allowed"`
	Level     int    `json:"level"`
	LevelName string `json:"level_name"`
	Required  int    `json:"required"`
	Source    string `json:"source"`
}

func newAuthorizeResponse(d *rbac.Decision) AuthorizeResponse {
	return AuthorizeResponse{
		Allowed:   d.Allowed,
		Level:     int(d.Level),
		LevelName: d.Level.String(),
		Required:  int(d.Required),
		Source:    d.Source.Kind(),
	}
}

// TenantListResponse answers GET /tenants
type TenantListResponse struct {
	Tenants []*tenants.Tenant `json:"tenants"`
}

// AdminStatusResponse answers GET /admin/status
type AdminStatusResponse struct {
	SystemAdmin bool `json:"system_admin"`
}

// MemberListResponse answers GET /tenants/{tenant_id}/members
type MemberListResponse struct {
	Members []*tenants.Member `json:"members"`
}

// GrantListResponse answers GET /tenants/{tenant_id}/members/{user_id}/grants
type GrantListResponse struct {
	Grants []*tenants.Grant `json:"grants"`
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
