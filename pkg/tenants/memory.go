package tenants

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/tenantd/pkg/rbac"
)

type pairKey struct {
	tenantID string
	userID   string
}

type memoryState struct {
	tenants     map[string]*Tenant
	memberships map[pairKey]*Membership
	grants      map[pairKey][]*Grant
	profiles    map[string]*Profile
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		tenants:     make(map[string]*Tenant, len(s.tenants)),
		memberships: make(map[pairKey]*Membership, len(s.memberships)),
		grants:      make(map[pairKey][]*Grant, len(s.grants)),
		profiles:    make(map[string]*Profile, len(s.profiles)),
	}
	for k, v := range s.tenants {
		t := *v
		c.tenants[k] = &t
	}
	for k, v := range s.memberships {
		c.memberships[k] = copyMembership(v)
	}
	for k, v := range s.grants {
		gs := make([]*Grant, len(v))
		for i, g := range v {
			cp := *g
			gs[i] = &cp
		}
		c.grants[k] = gs
	}
	for k, v := range s.profiles {
		p := *v
		c.profiles[k] = &p
	}
	return c
}

func copyMembership(m *Membership) *Membership {
	c := *m
	if m.InvitedBy != nil {
		v := *m.InvitedBy
		c.InvitedBy = &v
	}
	if m.InvitedAt != nil {
		v := *m.InvitedAt
		c.InvitedAt = &v
	}
	if m.JoinedAt != nil {
		v := *m.JoinedAt
		c.JoinedAt = &v
	}
	return &c
}

// MemoryStore is an in-process Store. Transactions are serialized and
// rolled back by discarding a working copy of the state.
type MemoryStore struct {
	mu    sync.RWMutex
	txMu  sync.Mutex
	state *memoryState

	// BeforeInsertMembership, when set, runs inside the transaction before a
	// membership insert; a non-nil error aborts the transaction
	BeforeInsertMembership func(m *Membership) error
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memoryState{
		tenants:     make(map[string]*Tenant),
		memberships: make(map[pairKey]*Membership),
		grants:      make(map[pairKey][]*Grant),
		profiles:    make(map[string]*Profile),
	}}
}

func (s *MemoryStore) GetRole(ctx context.Context, tenantID, userID string) (rbac.Role, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.state.memberships[pairKey{tenantID, userID}]
	if !ok {
		return "", false, nil
	}
	return m.Role, true, nil
}

func (s *MemoryStore) ListGrantLevels(ctx context.Context, tenantID, userID string) ([]rbac.PermissionLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var levels []rbac.PermissionLevel
	for _, g := range s.state.grants[pairKey{tenantID, userID}] {
		levels = append(levels, g.Level)
	}
	return levels, nil
}

func (s *MemoryStore) GetTenant(ctx context.Context, tenantID string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.state.tenants[tenantID]
	if !ok {
		return nil, ErrTenantNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) GetTenantBySubdomain(ctx context.Context, subdomain string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subdomain = strings.ToLower(subdomain)
	for _, t := range s.state.tenants {
		if t.Subdomain == subdomain {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrTenantNotFound
}

func (s *MemoryStore) ListTenantsForUser(ctx context.Context, userID string) ([]*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tenants := make([]*Tenant, 0)
	for key := range s.state.memberships {
		if key.userID != userID {
			continue
		}
		if t, ok := s.state.tenants[key.tenantID]; ok {
			cp := *t
			tenants = append(tenants, &cp)
		}
	}
	sort.Slice(tenants, func(i, j int) bool { return tenants[i].Name < tenants[j].Name })
	return tenants, nil
}

func (s *MemoryStore) ListAllTenants(ctx context.Context) ([]*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tenants := make([]*Tenant, 0, len(s.state.tenants))
	for _, t := range s.state.tenants {
		cp := *t
		tenants = append(tenants, &cp)
	}
	sort.Slice(tenants, func(i, j int) bool { return tenants[i].CreatedAt.After(tenants[j].CreatedAt) })
	return tenants, nil
}

func (s *MemoryStore) GetMembership(ctx context.Context, tenantID, userID string) (*Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.state.memberships[pairKey{tenantID, userID}]
	if !ok {
		return nil, ErrMembershipNotFound
	}
	return copyMembership(m), nil
}

func (s *MemoryStore) ListMembers(ctx context.Context, tenantID string) ([]*Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := make([]*Member, 0)
	for key, m := range s.state.memberships {
		if key.tenantID != tenantID {
			continue
		}
		member := &Member{Membership: *copyMembership(m), State: m.State()}
		if p, ok := s.state.profiles[m.UserID]; ok {
			member.Email = p.Email
			member.FullName = p.FullName
			member.AvatarURL = p.AvatarURL
		}
		members = append(members, member)
	}
	sort.Slice(members, func(i, j int) bool {
		if !members[i].CreatedAt.Equal(members[j].CreatedAt) {
			return members[i].CreatedAt.After(members[j].CreatedAt)
		}
		return members[i].UserID < members[j].UserID
	})
	return members, nil
}

func (s *MemoryStore) ListGrants(ctx context.Context, tenantID, userID string) ([]*Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	grants := make([]*Grant, 0)
	for _, g := range s.state.grants[pairKey{tenantID, userID}] {
		cp := *g
		grants = append(grants, &cp)
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i].Level < grants[j].Level })
	return grants, nil
}

func (s *MemoryStore) CreateTenantWithOwner(ctx context.Context, tenant *Tenant, owner *Membership, profile *Profile) error {
	return s.InTx(ctx, func(tx Tx) error {
		mtx := tx.(*memoryTx)
		for _, t := range mtx.state.tenants {
			if t.Subdomain == tenant.Subdomain {
				return ErrSubdomainTaken
			}
		}
		if tenant.ID == "" {
			tenant.ID = uuid.NewString()
		}
		tenant.CreatedAt = time.Now().UTC()
		cp := *tenant
		mtx.state.tenants[tenant.ID] = &cp

		owner.TenantID = tenant.ID
		if err := mtx.InsertMembership(ctx, owner); err != nil {
			return err
		}
		if profile != nil {
			return mtx.UpsertProfile(ctx, profile)
		}
		return nil
	})
}

// InTx runs fn against a working copy and publishes it on success
func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	working := s.state.clone()
	s.mu.RUnlock()

	if err := fn(&memoryTx{store: s, state: working}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = working
	s.mu.Unlock()
	return nil
}

type memoryTx struct {
	store *MemoryStore
	state *memoryState
}

func (t *memoryTx) LockTenant(ctx context.Context, tenantID string) error {
	if _, ok := t.state.tenants[tenantID]; !ok {
		return ErrTenantNotFound
	}
	return nil
}

func (t *memoryTx) GetMembership(ctx context.Context, tenantID, userID string) (*Membership, error) {
	m, ok := t.state.memberships[pairKey{tenantID, userID}]
	if !ok {
		return nil, ErrMembershipNotFound
	}
	return copyMembership(m), nil
}

func (t *memoryTx) CountOwners(ctx context.Context, tenantID string) (int, error) {
	n := 0
	for key, m := range t.state.memberships {
		if key.tenantID == tenantID && m.Role == rbac.RoleOwner {
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) InsertMembership(ctx context.Context, m *Membership) error {
	if hook := t.store.BeforeInsertMembership; hook != nil {
		if err := hook(m); err != nil {
			return err
		}
	}
	key := pairKey{m.TenantID, m.UserID}
	if _, exists := t.state.memberships[key]; exists {
		return ErrMembershipExists
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = time.Now().UTC()
	t.state.memberships[key] = copyMembership(m)
	return nil
}

func (t *memoryTx) UpdateRole(ctx context.Context, tenantID, userID string, role rbac.Role) error {
	m, ok := t.state.memberships[pairKey{tenantID, userID}]
	if !ok {
		return ErrMembershipNotFound
	}
	m.Role = role
	return nil
}

func (t *memoryTx) MarkJoined(ctx context.Context, tenantID, userID string, at time.Time) (bool, error) {
	m, ok := t.state.memberships[pairKey{tenantID, userID}]
	if !ok || m.JoinedAt != nil {
		return false, nil
	}
	m.JoinedAt = &at
	return true, nil
}

func (t *memoryTx) DeleteMembership(ctx context.Context, tenantID, userID string) error {
	key := pairKey{tenantID, userID}
	if _, ok := t.state.memberships[key]; !ok {
		return ErrMembershipNotFound
	}
	delete(t.state.memberships, key)
	return nil
}

func (t *memoryTx) InsertGrant(ctx context.Context, g *Grant) error {
	key := pairKey{g.TenantID, g.UserID}
	for _, existing := range t.state.grants[key] {
		if existing.Level == g.Level {
			*g = *existing
			return nil
		}
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	g.GrantedAt = time.Now().UTC()
	cp := *g
	t.state.grants[key] = append(t.state.grants[key], &cp)
	return nil
}

func (t *memoryTx) DeleteGrants(ctx context.Context, tenantID, userID string, level rbac.PermissionLevel) (int64, error) {
	key := pairKey{tenantID, userID}
	var kept []*Grant
	var removed int64
	for _, g := range t.state.grants[key] {
		if level == rbac.LevelNone || g.Level == level {
			removed++
			continue
		}
		kept = append(kept, g)
	}
	if len(kept) == 0 {
		delete(t.state.grants, key)
	} else {
		t.state.grants[key] = kept
	}
	return removed, nil
}

func (t *memoryTx) UpsertProfile(ctx context.Context, p *Profile) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	existing, ok := t.state.profiles[p.UserID]
	cp := *p
	if ok {
		if cp.FullName == "" {
			cp.FullName = existing.FullName
		}
		if cp.AvatarURL == "" {
			cp.AvatarURL = existing.AvatarURL
		}
	}
	t.state.profiles[p.UserID] = &cp
	return nil
}

func (t *memoryTx) DeleteTenant(ctx context.Context, tenantID string) ([]string, error) {
	if _, ok := t.state.tenants[tenantID]; !ok {
		return nil, ErrTenantNotFound
	}
	seen := make(map[string]struct{})
	for key := range t.state.memberships {
		if key.tenantID == tenantID {
			seen[key.userID] = struct{}{}
			delete(t.state.memberships, key)
		}
	}
	for key := range t.state.grants {
		if key.tenantID == tenantID {
			seen[key.userID] = struct{}{}
			delete(t.state.grants, key)
		}
	}
	delete(t.state.tenants, tenantID)

	users := make([]string, 0, len(seen))
	for id := range seen {
		users = append(users, id)
	}
	sort.Strings(users)
	return users, nil
}
