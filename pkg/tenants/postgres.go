package tenants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/platinummonkey/tenantd/pkg/rbac"
)

const uniqueViolation = "23505"

// PostgresStore implements Store on PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// querier is satisfied by *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

const membershipColumns = `id, tenant_id, user_id, role, invited_by, invited_at, joined_at, created_at`

func scanMembership(row rowScanner, extra ...interface{}) (*Membership, error) {
	m := &Membership{}
	var (
		invitedBy           sql.NullString
		invitedAt, joinedAt sql.NullTime
	)
	dest := append([]interface{}{
		&m.ID, &m.TenantID, &m.UserID, &m.Role, &invitedBy, &invitedAt, &joinedAt, &m.CreatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if invitedBy.Valid {
		m.InvitedBy = &invitedBy.String
	}
	if invitedAt.Valid {
		t := invitedAt.Time
		m.InvitedAt = &t
	}
	if joinedAt.Valid {
		t := joinedAt.Time
		m.JoinedAt = &t
	}
	return m, nil
}

func getMembership(ctx context.Context, q querier, query, tenantID, userID string) (*Membership, error) {
	m, err := scanMembership(q.QueryRowContext(ctx, query, tenantID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMembershipNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// GetRole implements rbac.MembershipReader
func (s *PostgresStore) GetRole(ctx context.Context, tenantID, userID string) (rbac.Role, bool, error) {
	var role rbac.Role
	err := s.db.QueryRowContext(ctx,
		`SELECT role FROM tenant_users WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID,
	).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get role: %w", err)
	}
	return role, true, nil
}

// ListGrantLevels implements rbac.MembershipReader
func (s *PostgresStore) ListGrantLevels(ctx context.Context, tenantID, userID string) ([]rbac.PermissionLevel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT permission_level_id FROM user_permissions WHERE tenant_id = $1 AND user_id = $2 ORDER BY permission_level_id`,
		tenantID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()

	var levels []rbac.PermissionLevel
	for rows.Next() {
		var level int
		if err := rows.Scan(&level); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		levels = append(levels, rbac.PermissionLevel(level))
	}
	return levels, rows.Err()
}

const tenantColumns = `id, name, subdomain, emoji, owner_id, created_at`

func scanTenant(row rowScanner) (*Tenant, error) {
	t := &Tenant{}
	if err := row.Scan(&t.ID, &t.Name, &t.Subdomain, &t.Emoji, &t.OwnerID, &t.CreatedAt); err != nil {
		return nil, err
	}
	return t, nil
}

// GetTenant retrieves a tenant by id
func (s *PostgresStore) GetTenant(ctx context.Context, tenantID string) (*Tenant, error) {
	t, err := scanTenant(s.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return t, nil
}

// GetTenantBySubdomain retrieves a tenant by subdomain, case-insensitively
func (s *PostgresStore) GetTenantBySubdomain(ctx context.Context, subdomain string) (*Tenant, error) {
	t, err := scanTenant(s.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE subdomain = $1`, strings.ToLower(subdomain)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return t, nil
}

// ListTenantsForUser lists tenants the user is a member of, pending or active
func (s *PostgresStore) ListTenantsForUser(ctx context.Context, userID string) ([]*Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.subdomain, t.emoji, t.owner_id, t.created_at
		FROM tenants t
		JOIN tenant_users tu ON tu.tenant_id = t.id
		WHERE tu.user_id = $1
		ORDER BY t.name ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	tenants := make([]*Tenant, 0)
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// ListAllTenants lists every tenant, newest first
func (s *PostgresStore) ListAllTenants(ctx context.Context) ([]*Tenant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	tenants := make([]*Tenant, 0)
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// GetMembership retrieves the membership for a pair
func (s *PostgresStore) GetMembership(ctx context.Context, tenantID, userID string) (*Membership, error) {
	return getMembership(ctx, s.db,
		`SELECT `+membershipColumns+` FROM tenant_users WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID)
}

// ListMembers lists memberships with profile attributes, newest first
func (s *PostgresStore) ListMembers(ctx context.Context, tenantID string) ([]*Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tu.id, tu.tenant_id, tu.user_id, tu.role, tu.invited_by, tu.invited_at, tu.joined_at, tu.created_at,
		       p.email, p.full_name, p.avatar_url
		FROM tenant_users tu
		LEFT JOIN user_profiles p ON p.user_id = tu.user_id
		WHERE tu.tenant_id = $1
		ORDER BY tu.created_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := make([]*Member, 0)
	for rows.Next() {
		var email, fullName, avatarURL sql.NullString
		m, err := scanMembership(rows, &email, &fullName, &avatarURL)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, &Member{
			Membership: *m,
			Email:      email.String,
			FullName:   fullName.String,
			AvatarURL:  avatarURL.String,
			State:      m.State(),
		})
	}
	return members, rows.Err()
}

// ListGrants lists explicit grants for a pair, lowest level first
func (s *PostgresStore) ListGrants(ctx context.Context, tenantID, userID string) ([]*Grant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, user_id, permission_level_id, granted_by, granted_at
		FROM user_permissions
		WHERE tenant_id = $1 AND user_id = $2
		ORDER BY permission_level_id`, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()

	grants := make([]*Grant, 0)
	for rows.Next() {
		g := &Grant{}
		if err := rows.Scan(&g.ID, &g.TenantID, &g.UserID, &g.Level, &g.GrantedBy, &g.GrantedAt); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// CreateTenantWithOwner inserts a tenant and its bootstrap owner in one transaction
func (s *PostgresStore) CreateTenantWithOwner(ctx context.Context, tenant *Tenant, owner *Membership, profile *Profile) error {
	return s.InTx(ctx, func(tx Tx) error {
		ptx := tx.(*pgTx)
		if tenant.ID == "" {
			tenant.ID = uuid.NewString()
		}
		err := ptx.tx.QueryRowContext(ctx, `
			INSERT INTO tenants (id, name, subdomain, emoji, owner_id)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at`,
			tenant.ID, tenant.Name, tenant.Subdomain, tenant.Emoji, tenant.OwnerID,
		).Scan(&tenant.CreatedAt)
		if isUniqueViolation(err) {
			return ErrSubdomainTaken
		}
		if err != nil {
			return fmt.Errorf("failed to create tenant: %w", err)
		}

		owner.TenantID = tenant.ID
		if err := ptx.InsertMembership(ctx, owner); err != nil {
			return err
		}
		if profile != nil {
			return ptx.UpsertProfile(ctx, profile)
		}
		return nil
	})
}

// InTx implements Store
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) LockTenant(ctx context.Context, tenantID string) error {
	var id string
	err := t.tx.QueryRowContext(ctx, `SELECT id FROM tenants WHERE id = $1 FOR UPDATE`, tenantID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrTenantNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock tenant: %w", err)
	}
	return nil
}

func (t *pgTx) GetMembership(ctx context.Context, tenantID, userID string) (*Membership, error) {
	return getMembership(ctx, t.tx,
		`SELECT `+membershipColumns+` FROM tenant_users WHERE tenant_id = $1 AND user_id = $2 FOR UPDATE`,
		tenantID, userID)
}

func (t *pgTx) CountOwners(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tenant_users WHERE tenant_id = $1 AND role = 'owner'`, tenantID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count owners: %w", err)
	}
	return n, nil
}

func (t *pgTx) InsertMembership(ctx context.Context, m *Membership) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO tenant_users (id, tenant_id, user_id, role, invited_by, invited_at, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		m.ID, m.TenantID, m.UserID, string(m.Role), m.InvitedBy, m.InvitedAt, m.JoinedAt,
	).Scan(&m.CreatedAt)
	if isUniqueViolation(err) {
		return ErrMembershipExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert membership: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateRole(ctx context.Context, tenantID, userID string, role rbac.Role) error {
	result, err := t.tx.ExecContext(ctx,
		`UPDATE tenant_users SET role = $1 WHERE tenant_id = $2 AND user_id = $3`,
		string(role), tenantID, userID)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	return requireRow(result, ErrMembershipNotFound)
}

func (t *pgTx) MarkJoined(ctx context.Context, tenantID, userID string, at time.Time) (bool, error) {
	result, err := t.tx.ExecContext(ctx,
		`UPDATE tenant_users SET joined_at = $1 WHERE tenant_id = $2 AND user_id = $3 AND joined_at IS NULL`,
		at, tenantID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to accept invitation: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

func (t *pgTx) DeleteMembership(ctx context.Context, tenantID, userID string) error {
	result, err := t.tx.ExecContext(ctx,
		`DELETE FROM tenant_users WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete membership: %w", err)
	}
	return requireRow(result, ErrMembershipNotFound)
}

func (t *pgTx) InsertGrant(ctx context.Context, g *Grant) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	// the no-op update makes RETURNING yield the existing row on conflict
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO user_permissions (id, tenant_id, user_id, permission_level_id, granted_by)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, user_id, permission_level_id)
		DO UPDATE SET granted_by = user_permissions.granted_by
		RETURNING id, granted_by, granted_at`,
		g.ID, g.TenantID, g.UserID, int(g.Level), g.GrantedBy,
	).Scan(&g.ID, &g.GrantedBy, &g.GrantedAt)
	if err != nil {
		return fmt.Errorf("failed to insert grant: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteGrants(ctx context.Context, tenantID, userID string, level rbac.PermissionLevel) (int64, error) {
	query := `DELETE FROM user_permissions WHERE tenant_id = $1 AND user_id = $2`
	args := []interface{}{tenantID, userID}
	if level != rbac.LevelNone {
		query += ` AND permission_level_id = $3`
		args = append(args, int(level))
	}
	result, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete grants: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (t *pgTx) UpsertProfile(ctx context.Context, p *Profile) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO user_profiles (user_id, email, full_name, avatar_url, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5)
		ON CONFLICT (user_id) DO UPDATE SET
			email = EXCLUDED.email,
			full_name = COALESCE(EXCLUDED.full_name, user_profiles.full_name),
			avatar_url = COALESCE(EXCLUDED.avatar_url, user_profiles.avatar_url),
			updated_at = EXCLUDED.updated_at`,
		p.UserID, p.Email, p.FullName, p.AvatarURL, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

// DeleteTenant relies on ON DELETE CASCADE for memberships and grants
func (t *pgTx) DeleteTenant(ctx context.Context, tenantID string) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT user_id FROM tenant_users WHERE tenant_id = $1
		UNION
		SELECT user_id FROM user_permissions WHERE tenant_id = $1
		ORDER BY user_id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenant users: %w", err)
	}
	defer rows.Close()

	users := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		users = append(users, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	result, err := t.tx.ExecContext(ctx, `DELETE FROM tenants WHERE id = $1`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete tenant: %w", err)
	}
	if err := requireRow(result, ErrTenantNotFound); err != nil {
		return nil, err
	}
	return users, nil
}

func requireRow(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
