package tenants

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/tenantd/pkg/rbac"
)

var (
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrMembershipNotFound = errors.New("membership not found")
	ErrMembershipExists   = errors.New("membership already exists")
	ErrSubdomainTaken     = errors.New("subdomain already taken")
)

// Store persists tenants, memberships, grants and profiles.
// It is also the rbac.MembershipReader the evaluator reads through.
type Store interface {
	rbac.MembershipReader

	GetTenant(ctx context.Context, tenantID string) (*Tenant, error)
	GetTenantBySubdomain(ctx context.Context, subdomain string) (*Tenant, error)
	// ListTenantsForUser returns the tenants the user holds any membership in
	ListTenantsForUser(ctx context.Context, userID string) ([]*Tenant, error)
	// ListAllTenants returns every tenant, newest first
	ListAllTenants(ctx context.Context) ([]*Tenant, error)

	GetMembership(ctx context.Context, tenantID, userID string) (*Membership, error)
	// ListMembers returns memberships joined with profiles, newest first
	ListMembers(ctx context.Context, tenantID string) ([]*Member, error)
	ListGrants(ctx context.Context, tenantID, userID string) ([]*Grant, error)

	// CreateTenantWithOwner inserts the tenant, the owner's active membership
	// and profile atomically. It fills in generated ids and timestamps.
	CreateTenantWithOwner(ctx context.Context, tenant *Tenant, owner *Membership, profile *Profile) error

	// InTx runs fn in a transaction, committing when fn returns nil
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the write side of the store, valid only inside InTx
type Tx interface {
	// LockTenant serializes membership mutations of one tenant until commit
	LockTenant(ctx context.Context, tenantID string) error

	GetMembership(ctx context.Context, tenantID, userID string) (*Membership, error)
	CountOwners(ctx context.Context, tenantID string) (int, error)

	// InsertMembership fills in ID and CreatedAt
	InsertMembership(ctx context.Context, m *Membership) error
	UpdateRole(ctx context.Context, tenantID, userID string, role rbac.Role) error
	// MarkJoined sets joined_at on a pending membership; it reports false when
	// there was no pending membership to accept
	MarkJoined(ctx context.Context, tenantID, userID string, at time.Time) (bool, error)
	DeleteMembership(ctx context.Context, tenantID, userID string) error

	// InsertGrant is idempotent per (tenant, user, level) and fills in ID and GrantedAt
	InsertGrant(ctx context.Context, g *Grant) error
	// DeleteGrants removes one level, or every level when level is LevelNone
	DeleteGrants(ctx context.Context, tenantID, userID string, level rbac.PermissionLevel) (int64, error)

	UpsertProfile(ctx context.Context, p *Profile) error

	// DeleteTenant removes the tenant with its memberships and grants and
	// returns the ids of the users that held either
	DeleteTenant(ctx context.Context, tenantID string) ([]string, error)
}
