package tenants

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/tenantd/pkg/apperr"
	"github.com/platinummonkey/tenantd/pkg/audit"
	"github.com/platinummonkey/tenantd/pkg/identity"
	"github.com/platinummonkey/tenantd/pkg/observability"
	"github.com/platinummonkey/tenantd/pkg/rbac"
	"github.com/platinummonkey/tenantd/pkg/validation"
)

// Manager runs membership lifecycle operations. Every operation takes the
// acting user explicitly and checks its authority before mutating anything.
type Manager struct {
	store      Store
	evaluator  *rbac.Evaluator
	identities identity.Provider
	inviter    identity.Inviter
	validator  *validation.Validator

	audit   audit.Logger
	logger  *observability.Logger
	metrics *observability.Metrics

	systemAdmins map[string]struct{}

	redirectURL     string
	identityTimeout time.Duration
	now             func() time.Time
}

// Option configures a Manager
type Option func(*Manager)

// WithInviter sets the channel that delivers invitations for pending memberships
func WithInviter(inviter identity.Inviter) Option {
	return func(m *Manager) { m.inviter = inviter }
}

// WithAudit sets the audit sink
func WithAudit(logger audit.Logger) Option {
	return func(m *Manager) { m.audit = logger }
}

// WithLogger sets the application logger
func WithLogger(logger *observability.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithMetrics enables Prometheus metrics
func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithInviteRedirectURL sets where invitation links land
func WithInviteRedirectURL(url string) Option {
	return func(m *Manager) { m.redirectURL = url }
}

// WithIdentityTimeout bounds each identity provider call
func WithIdentityTimeout(d time.Duration) Option {
	return func(m *Manager) { m.identityTimeout = d }
}

// WithSystemAdmins names the users allowed to list and delete every tenant.
// Entries containing "@" match the identity's email, others the user id.
func WithSystemAdmins(entries ...string) Option {
	return func(m *Manager) {
		for _, e := range entries {
			e = strings.TrimSpace(e)
			if e == "" {
				continue
			}
			if strings.Contains(e, "@") {
				e = identity.NormalizeEmail(e)
			}
			m.systemAdmins[e] = struct{}{}
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager. The identity provider is wrapped so that a
// provider that never answers fails with identity.ErrTimeout.
func NewManager(store Store, evaluator *rbac.Evaluator, identities identity.Provider, opts ...Option) *Manager {
	m := &Manager{
		store:           store,
		evaluator:       evaluator,
		validator:       validation.New(),
		systemAdmins:    make(map[string]struct{}),
		audit:           audit.NewNopLogger(),
		logger:          observability.NewNopLogger(),
		identityTimeout: identity.DefaultTimeout,
		now:             func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	m.identities = identity.WithTimeout(identities, m.identityTimeout)
	return m
}

// Evaluator returns the evaluator the manager authorizes through
func (m *Manager) Evaluator() *rbac.Evaluator {
	return m.evaluator
}

func validateScope(tenantID, actingUserID string) error {
	if actingUserID == "" {
		return apperr.Unauthenticated("authentication required")
	}
	if _, err := uuid.Parse(tenantID); err != nil {
		return apperr.Validation("tenant id must be a UUID")
	}
	return nil
}

// requireRole checks the actor's current role through the evaluator
func (m *Manager) requireRole(ctx context.Context, tenantID, actingUserID, message string, roles ...rbac.Role) (rbac.Role, error) {
	snap, err := m.evaluator.Snapshot(ctx, tenantID, actingUserID)
	if err != nil {
		return "", apperr.Upstream("failed to resolve caller role", err)
	}
	if !snap.Member || !snap.Role.OneOf(roles...) {
		return "", apperr.InsufficientPermission(message)
	}
	return snap.Role, nil
}

// lockedActor re-reads the actor's role inside a transaction that holds the tenant lock
func lockedActor(ctx context.Context, tx Tx, tenantID, actingUserID, message string, roles ...rbac.Role) (*Membership, error) {
	if err := tx.LockTenant(ctx, tenantID); err != nil {
		return nil, err
	}
	actor, err := tx.GetMembership(ctx, tenantID, actingUserID)
	if errors.Is(err, ErrMembershipNotFound) {
		return nil, apperr.InsufficientPermission(message)
	}
	if err != nil {
		return nil, err
	}
	if !actor.Role.OneOf(roles...) {
		return nil, apperr.InsufficientPermission(message)
	}
	return actor, nil
}

// storeError translates store sentinels into engine errors
func storeError(err error) error {
	var ae *apperr.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ae):
		return err
	case errors.Is(err, ErrTenantNotFound):
		return apperr.NotFound("tenant not found")
	case errors.Is(err, ErrMembershipNotFound):
		return apperr.NotFound("membership not found")
	case errors.Is(err, ErrMembershipExists):
		return apperr.Conflict("user is already a member of this tenant")
	case errors.Is(err, ErrSubdomainTaken):
		return apperr.Conflict("subdomain is already taken")
	default:
		return apperr.Upstream("membership store failure", err)
	}
}

func (m *Manager) invalidate(ctx context.Context, tenantID, userID string) {
	if err := m.evaluator.Invalidate(ctx, tenantID, userID); err != nil {
		observability.FromContext(ctx, m.logger).WithError(err).
			WithTenant(tenantID, "").Warn("Failed to invalidate authorization cache")
	}
}

func (m *Manager) record(ctx context.Context, event *audit.AuditEvent) {
	if err := m.audit.Log(ctx, event); err != nil {
		observability.FromContext(ctx, m.logger).WithError(err).
			WithField("event_type", string(event.EventType)).Warn("Failed to write audit event")
	}
}

func (m *Manager) event(ctx context.Context, eventType audit.EventType, tenantID, actingUserID, targetUserID string) *audit.AuditEvent {
	e := audit.NewEvent(ctx, eventType, audit.EventStatusSuccess)
	e.TenantID = tenantID
	e.ActorID = actingUserID
	e.TargetUserID = targetUserID
	return e
}

// finish closes the operation span, records metrics and audits denials
func (m *Manager) finish(ctx context.Context, span trace.Span, op, metric, tenantID, actingUserID, targetUserID string, start time.Time, err error) {
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Op == "" {
		ae.Op = op
	}

	outcome := "ok"
	if err != nil {
		outcome = apperr.KindOf(err).String()
	}
	m.metrics.ObserveOperation(metric, outcome, start)
	observability.EndSpan(span, err)

	switch apperr.KindOf(err) {
	case apperr.KindInsufficientPermission, apperr.KindForbidden:
		e := m.event(ctx, audit.EventTypeAccessDenied, tenantID, actingUserID, targetUserID)
		e.Status = audit.EventStatusDenied
		e.ErrorMessage = err.Error()
		e.Metadata["operation"] = metric
		m.record(ctx, e)
	case apperr.KindUpstreamFailure, apperr.KindInternal, apperr.KindUnknown:
		if err != nil {
			observability.FromContext(ctx, m.logger).WithTenant(tenantID, actingUserID).
				WithError(err).WithField("operation", metric).Error("Membership operation failed")
		}
	}
}
