package tenants

import (
	"time"

	"github.com/platinummonkey/tenantd/pkg/rbac"
)

// Tenant is a customer organization keyed by its subdomain
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Subdomain string    `json:"subdomain"`
	Emoji     string    `json:"emoji"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// MembershipState is derived from the membership timestamps
type MembershipState string

const (
	StatePending MembershipState = "pending_invite"
	StateActive  MembershipState = "active"
)

// Membership binds one user to one tenant with exactly one role
type Membership struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenant_id"`
	UserID    string     `json:"user_id"`
	Role      rbac.Role  `json:"role"`
	InvitedBy *string    `json:"invited_by,omitempty"`
	InvitedAt *time.Time `json:"invited_at,omitempty"`
	JoinedAt  *time.Time `json:"joined_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// State reports whether the membership is still waiting for acceptance
func (m *Membership) State() MembershipState {
	if m.JoinedAt == nil {
		return StatePending
	}
	return StateActive
}

// Profile caches identity attributes shown in member listings
type Profile struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Member is a membership joined with the member's profile
type Member struct {
	Membership
	Email     string          `json:"email"`
	FullName  string          `json:"full_name,omitempty"`
	AvatarURL string          `json:"avatar_url,omitempty"`
	State     MembershipState `json:"state"`
}

// Grant is an explicit permission level that overrides the member's role
type Grant struct {
	ID        string               `json:"id"`
	TenantID  string               `json:"tenant_id"`
	UserID    string               `json:"user_id"`
	Level     rbac.PermissionLevel `json:"level"`
	GrantedBy string               `json:"granted_by"`
	GrantedAt time.Time            `json:"granted_at"`
}

// CreateTenantRequest describes a new tenant. The acting user becomes its owner.
type CreateTenantRequest struct {
	Name      string `json:"name"`
	Subdomain string `json:"subdomain"`
	Emoji     string `json:"emoji"`
}

// InviteRequest adds a user to a tenant, creating the identity if needed.
// Exactly one of Email or UserID identifies the target.
type InviteRequest struct {
	TenantID     string
	ActingUserID string

	Email    string
	UserID   string
	FullName string
	Role     rbac.Role

	// SendInvitation creates a pending membership and delivers an invitation.
	// Otherwise the membership is active immediately.
	SendInvitation bool

	// Password for a newly created identity; generated when empty
	Password string
}

// InviteOutcome says what Invite did
type InviteOutcome string

const (
	// OutcomeCreated means a new identity was created and added
	OutcomeCreated InviteOutcome = "created"
	// OutcomeAddedExisting means an existing identity was added
	OutcomeAddedExisting InviteOutcome = "added_existing"
	// OutcomeAlreadyMember means the user was a member already; nothing changed
	OutcomeAlreadyMember InviteOutcome = "already_member"
)

// InviteResult is returned by Invite
type InviteResult struct {
	Membership      *Membership   `json:"membership"`
	Outcome         InviteOutcome `json:"outcome"`
	IdentityCreated bool          `json:"identity_created"`
	InvitationSent  bool          `json:"invitation_sent"`
	UserID          string        `json:"user_id"`
	Email           string        `json:"email"`
}
